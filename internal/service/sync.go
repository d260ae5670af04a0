package service

import (
	"context"
	"errors"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/pool"
	"ordersync/backend/internal/storage"
	engine "ordersync/backend/internal/sync"
)

var (
	// ErrSyncInProgress 该用户已有一次同步在执行
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrSyncQueueFull 后台任务队列已满
	ErrSyncQueueFull = errors.New("sync queue is full")
)

// SyncNotifier 同步完成后的通知出口
// 由 WebSocket 集线器实现，向订阅该用户的连接推送同步结果
type SyncNotifier interface {
	NotifySyncCompleted(userID string, summary *domain.SyncSummary)
}

// SyncStatus 用户的同步状态视图
type SyncStatus struct {
	UserID       string     `json:"userId"`
	LastSyncedAt *time.Time `json:"lastSyncedAt"`
	NeedsSync    bool       `json:"needsSync"`
	InProgress   bool       `json:"inProgress"`
}

// SyncService 同步编排服务
//
// 在引擎之上叠加三层控制：每用户互斥锁、最小同步间隔判断、
// 以及通过协程池执行的后台异步触发。
type SyncService struct {
	engine      *engine.Orchestrator
	checkpoints storage.CheckpointRepository
	locks       storage.SyncLockRepository
	workers     *pool.WorkerPool
	notifier    SyncNotifier
	log         *zap.Logger

	minInterval time.Duration
	lockTTL     time.Duration

	mu      stdsync.Mutex
	running map[string]bool

	now func() time.Time
}

// NewSyncService 创建同步编排服务
func NewSyncService(
	orch *engine.Orchestrator,
	checkpoints storage.CheckpointRepository,
	locks storage.SyncLockRepository,
	workers *pool.WorkerPool,
	notifier SyncNotifier,
	minInterval time.Duration,
	lockTTL time.Duration,
	log *zap.Logger,
) *SyncService {
	if minInterval <= 0 {
		minInterval = 30 * time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &SyncService{
		engine:      orch,
		checkpoints: checkpoints,
		locks:       locks,
		workers:     workers,
		notifier:    notifier,
		log:         log,
		minInterval: minInterval,
		lockTTL:     lockTTL,
		running:     make(map[string]bool),
		now:         time.Now,
	}
}

// NeedsSync 判断用户是否需要同步
// 从未同步过，或距上次同步超过最小间隔时返回 true
func (s *SyncService) NeedsSync(userID string) (bool, error) {
	last, err := s.checkpoints.GetLastSyncedAt(userID)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return s.now().Sub(*last) >= s.minInterval, nil
}

// Status 返回用户当前的同步状态视图
func (s *SyncService) Status(userID string) (*SyncStatus, error) {
	last, err := s.checkpoints.GetLastSyncedAt(userID)
	if err != nil {
		return nil, err
	}

	needs := last == nil || s.now().Sub(*last) >= s.minInterval

	s.mu.Lock()
	inProgress := s.running[userID]
	s.mu.Unlock()

	return &SyncStatus{
		UserID:       userID,
		LastSyncedAt: last,
		NeedsSync:    needs,
		InProgress:   inProgress,
	}, nil
}

// SyncNow 同步执行一次完整的同步流程并返回结果
//
// 同一用户并发调用时，后到者拿不到互斥锁，返回 ErrSyncInProgress
func (s *SyncService) SyncNow(ctx context.Context, userID string) (*domain.SyncSummary, error) {
	acquired, err := s.locks.AcquireSyncLock(userID, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrSyncInProgress
	}
	defer func() {
		if err := s.locks.ReleaseSyncLock(userID); err != nil {
			s.log.Warn("failed to release sync lock",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}()

	s.setRunning(userID, true)
	defer s.setRunning(userID, false)

	summary, err := s.engine.RunPass(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NotifySyncCompleted(userID, summary)
	}
	return summary, nil
}

// TriggerSync 将一次同步提交到后台协程池执行，立即返回
//
// 队列已满时返回 ErrSyncQueueFull；重复触发由互斥锁在执行时拦截
func (s *SyncService) TriggerSync(ctx context.Context, userID string) error {
	s.mu.Lock()
	if s.running[userID] {
		s.mu.Unlock()
		return ErrSyncInProgress
	}
	s.mu.Unlock()

	// 请求返回后任务仍在执行，脱离请求上下文的取消传播
	bgCtx := context.WithoutCancel(ctx)

	ok := s.workers.TrySubmit(func() {
		summary, err := s.SyncNow(bgCtx, userID)
		if err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				return
			}
			s.log.Error("background sync failed",
				zap.String("user_id", userID),
				zap.Error(err))
			return
		}
		s.log.Info("background sync completed",
			zap.String("user_id", userID),
			zap.Int("messages_seen", summary.MessagesSeen),
			zap.Int("stored", summary.Stored))
	})
	if !ok {
		return ErrSyncQueueFull
	}
	return nil
}

func (s *SyncService) setRunning(userID string, v bool) {
	s.mu.Lock()
	if v {
		s.running[userID] = true
	} else {
		delete(s.running, userID)
	}
	s.mu.Unlock()
}
