package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/storage"
)

// syncCheckpoint 每用户同步检查点的持久化模型
type syncCheckpoint struct {
	UserID       string    `gorm:"primaryKey;type:varchar(36)"`
	LastSyncedAt time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

func (syncCheckpoint) TableName() string { return "sync_checkpoints" }

// syncLock 每用户同步互斥锁的持久化模型
// 锁通过过期时间兜底，持有方崩溃后自动失效
type syncLock struct {
	UserID    string    `gorm:"primaryKey;type:varchar(36)"`
	ExpiresAt time.Time `gorm:"not null"`
}

func (syncLock) TableName() string { return "sync_locks" }

// PoolConfig 数据库连接池配置
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store 基于 GORM 的关系型数据库存储实现
type Store struct {
	db *gorm.DB
}

// NewStore 创建 PostgreSQL 存储实例
func NewStore(dsn string, pool PoolConfig) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn), pool)
}

// NewMySQLStore 创建 MySQL 存储实例
func NewMySQLStore(dsn string, pool PoolConfig) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn), pool)
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, pool PoolConfig) (*Store, error) {
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 静默模式
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		TranslateError: true, // 唯一键冲突映射为 gorm.ErrDuplicatedKey
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 25
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 5
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = 5 * time.Minute
	}

	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.StoredOrder{},
		&domain.StatusHistoryEntry{},
		&domain.ReturnInfo{},
		&syncCheckpoint{},
		&syncLock{},
	)
}

// ========== Order Repository ==========

// GetOrderByOrderID 按 (userID, orderID) 获取订单聚合，包含历史和退货子记录
func (s *Store) GetOrderByOrderID(userID, orderID string) (*domain.StoredOrder, error) {
	var order domain.StoredOrder
	err := s.db.
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC")
		}).
		Preload("Return").
		Where("user_id = ? AND order_id = ?", userID, orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// InsertOrder 插入新订单聚合，包含历史和退货子记录
func (s *Store) InsertOrder(order *domain.StoredOrder) error {
	err := s.db.Create(order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrOrderExists
		}
		return err
	}
	return nil
}

// UpdateOrder 在单个事务内覆盖订单标量字段、追加历史记录并整体覆盖退货子记录
func (s *Store) UpdateOrder(order *domain.StoredOrder, newHistory []domain.StatusHistoryEntry, returnUpsert *domain.ReturnInfo) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.StoredOrder{}).
			Where("id = ?", order.ID).
			Updates(map[string]any{
				"vendor":            order.Vendor,
				"total_amount":      order.TotalAmount,
				"currency":          order.Currency,
				"order_date":        order.OrderDate,
				"latest_status":     order.LatestStatus,
				"tracking_url":      order.TrackingURL,
				"email_received_at": order.EmailReceivedAt,
				"sender_address":    order.SenderAddress,
				"metadata":          order.Metadata,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrOrderNotFound
		}

		if len(newHistory) > 0 {
			for i := range newHistory {
				newHistory[i].StoredOrderID = order.ID
			}
			if err := tx.Create(&newHistory).Error; err != nil {
				return err
			}
		}

		if returnUpsert != nil {
			returnUpsert.StoredOrderID = order.ID
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "stored_order_id"}},
				UpdateAll: true,
			}).Create(returnUpsert).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// AppendStatusHistory 向既有订单追加历史记录，不改动标量字段
func (s *Store) AppendStatusHistory(storedOrderID string, entries []domain.StatusHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var count int64
	if err := s.db.Model(&domain.StoredOrder{}).Where("id = ?", storedOrderID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return storage.ErrOrderNotFound
	}

	for i := range entries {
		entries[i].StoredOrderID = storedOrderID
	}
	return s.db.Create(&entries).Error
}

// ListOrdersByUserID 返回指定用户的全部订单，按下单日期倒序
func (s *Store) ListOrdersByUserID(userID string) ([]domain.StoredOrder, error) {
	var orders []domain.StoredOrder
	err := s.db.
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC")
		}).
		Preload("Return").
		Where("user_id = ?", userID).
		Order("order_date DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ========== Checkpoint Repository ==========

// GetLastSyncedAt 返回用户上次同步完成的时间；从未同步过时返回 nil
func (s *Store) GetLastSyncedAt(userID string) (*time.Time, error) {
	var cp syncCheckpoint
	err := s.db.Where("user_id = ?", userID).First(&cp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	t := cp.LastSyncedAt
	return &t, nil
}

// SetLastSyncedAt 写入用户的同步检查点
func (s *Store) SetLastSyncedAt(userID string, t time.Time) error {
	cp := syncCheckpoint{UserID: userID, LastSyncedAt: t.UTC()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_synced_at", "updated_at"}),
	}).Create(&cp).Error
}

// ========== Sync Lock Repository ==========

// AcquireSyncLock 尝试获取用户的同步互斥锁
// 已过期的锁视为未持有，可被抢占
func (s *Store) AcquireSyncLock(userID string, ttl time.Duration) (bool, error) {
	acquired := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		// 清理过期锁后尝试插入
		if err := tx.Where("user_id = ? AND expires_at <= ?", userID, now).
			Delete(&syncLock{}).Error; err != nil {
			return err
		}

		lock := syncLock{UserID: userID, ExpiresAt: now.Add(ttl)}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock)
		if result.Error != nil {
			return result.Error
		}
		acquired = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// ReleaseSyncLock 释放用户的同步互斥锁
func (s *Store) ReleaseSyncLock(userID string) error {
	return s.db.Where("user_id = ?", userID).Delete(&syncLock{}).Error
}

// ========== Lifecycle ==========

// Health 检查数据库连接状态
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
