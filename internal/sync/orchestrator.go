package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/mailsource"
	"ordersync/backend/internal/monitoring"
	"ordersync/backend/internal/storage"
)

// Orchestrator 串联一次完整的同步：
// 窗口计算 → 邮件拉取 → 相关性分类 → 结构化抽取 → 去重 → 调和入库，
// 最后在整个流程可观察地完成后推进检查点。
//
// 失败语义：
//   - 分类阶段重试耗尽：整次同步失败，检查点不动，下次重试同一窗口；
//   - 单封邮件抽取失败：跳过该邮件，计入摘要；
//   - 单个订单存储失败：逐条记入摘要，检查点照常推进
//     （这些邮件确实被处理过了，检查点跟踪的是摄取进度，不是写库成败）。
type Orchestrator struct {
	mail        mailsource.MailSource
	windows     *WindowBuilder
	classifier  *Classifier
	extractor   *Extractor
	reconciler  *Reconciler
	checkpoints storage.CheckpointRepository
	metrics     *monitoring.Metrics
	log         *zap.Logger
	now         func() time.Time
}

// NewOrchestrator 创建同步编排器。
// 所有外部协作方都在构造时显式注入，没有进程级单例，
// 测试中可以替换为确定性的假实现。
func NewOrchestrator(
	mail mailsource.MailSource,
	windows *WindowBuilder,
	classifier *Classifier,
	extractor *Extractor,
	reconciler *Reconciler,
	checkpoints storage.CheckpointRepository,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		mail:        mail,
		windows:     windows,
		classifier:  classifier,
		extractor:   extractor,
		reconciler:  reconciler,
		checkpoints: checkpoints,
		metrics:     metrics,
		log:         log,
		now:         time.Now,
	}
}

// RunPass 为一个用户执行一次同步。
// 返回错误表示整次同步失败且检查点未推进；
// 摘要中的逐订单错误不构成整体失败。
func (o *Orchestrator) RunPass(ctx context.Context, userID string) (*domain.SyncSummary, error) {
	startedAt := o.now().UTC()
	summary := &domain.SyncSummary{
		UserID:         userID,
		RelevantEmails: []domain.RelevantEmail{},
		Errors:         []domain.OrderError{},
		StartedAt:      startedAt,
	}

	lastSyncedAt, err := o.checkpoints.GetLastSyncedAt(userID)
	if err != nil {
		o.metrics.RecordSyncPass("checkpoint_error", o.now().Sub(startedAt), 0, 0, 0, 0)
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	query := o.windows.Build(lastSyncedAt)
	o.log.Info("sync pass started",
		zap.String("user_id", userID),
		zap.Time("window_start", query.Start),
		zap.Time("window_end", query.End),
		zap.Bool("first_sync", lastSyncedAt == nil),
	)

	messages, err := o.mail.Search(ctx, userID, query)
	if err != nil {
		o.metrics.RecordSyncPass("fetch_error", o.now().Sub(startedAt), 0, 0, 0, 0)
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	summary.MessagesSeen = len(messages)

	if len(messages) == 0 {
		// 窗口内没有邮件：返回全零摘要，检查点保持不变
		summary.CompletedAt = o.now().UTC()
		o.metrics.RecordSyncPass("empty", summary.CompletedAt.Sub(startedAt), 0, 0, 0, 0)
		o.log.Info("sync pass found no messages", zap.String("user_id", userID))
		return summary, nil
	}

	relevant, audit, err := o.classifier.Classify(ctx, messages)
	if err != nil {
		// 分类是所有后续工作的前置条件，失败时不推进检查点，
		// 下一次同步重试同一窗口
		o.metrics.RecordSyncPass("classify_error", o.now().Sub(startedAt), len(messages), 0, 0, 0)
		return nil, err
	}
	summary.Relevant = len(relevant)
	summary.RelevantEmails = audit

	extracted, skipped := o.extractor.ExtractBatch(ctx, relevant)
	summary.Extracted = len(extracted)
	if skipped > 0 {
		o.log.Warn("some messages skipped during extraction",
			zap.String("user_id", userID),
			zap.Int("skipped", skipped),
		)
	}

	deduped := Deduplicate(extracted, o.log)
	summary.Deduplicated = len(deduped)

	stored, orderErrs := o.reconciler.Reconcile(userID, deduped)
	summary.Stored = stored
	summary.Errors = append(summary.Errors, orderErrs...)
	o.metrics.RecordReconcileErrors(len(orderErrs))

	// 整个流程已可观察地完成，推进检查点；
	// 逐订单的存储失败不阻止推进
	checkpointAt := o.now().UTC()
	if err := o.checkpoints.SetLastSyncedAt(userID, checkpointAt); err != nil {
		o.log.Error("failed to advance checkpoint",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		summary.Errors = append(summary.Errors, domain.OrderError{
			Message: fmt.Sprintf("advance checkpoint: %v", err),
		})
	} else {
		summary.CheckpointAdvanced = true
	}

	summary.CompletedAt = o.now().UTC()
	o.metrics.RecordSyncPass("completed", summary.CompletedAt.Sub(startedAt),
		summary.MessagesSeen, summary.Relevant, summary.Extracted, summary.Stored)

	o.log.Info("sync pass completed",
		zap.String("user_id", userID),
		zap.Int("messages_seen", summary.MessagesSeen),
		zap.Int("relevant", summary.Relevant),
		zap.Int("extracted", summary.Extracted),
		zap.Int("deduplicated", summary.Deduplicated),
		zap.Int("stored", summary.Stored),
		zap.Int("errors", len(summary.Errors)),
	)
	return summary, nil
}
