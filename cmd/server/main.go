package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	jwtpkg "ordersync/backend/internal/auth/jwt"
	"ordersync/backend/internal/config"
	"ordersync/backend/internal/health"
	"ordersync/backend/internal/logger"
	"ordersync/backend/internal/mailsource"
	"ordersync/backend/internal/mailsource/smtpsource"
	"ordersync/backend/internal/monitoring"
	"ordersync/backend/internal/oracle"
	"ordersync/backend/internal/pool"
	"ordersync/backend/internal/service"
	"ordersync/backend/internal/storage"
	"ordersync/backend/internal/storage/hybrid"
	"ordersync/backend/internal/storage/memory"
	"ordersync/backend/internal/storage/postgres"
	syncengine "ordersync/backend/internal/sync"
	httptransport "ordersync/backend/internal/transport/http"
	"ordersync/backend/internal/websocket"
)

// main 启动订单同步服务：HTTP API、WebSocket 推送，
// 以及开发模式下接收邮件的 SMTP 入口。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting order sync server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = initializeDatabaseStorage(cfg, log)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		// 内存存储（开发环境）
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 初始化健康检查
	healthChecker := health.NewHealthChecker(store, log)

	// 初始化语言模型客户端
	llm := oracle.NewClient(oracle.Config{
		BaseURL:           cfg.Oracle.BaseURL,
		APIKey:            cfg.Oracle.APIKey,
		Model:             cfg.Oracle.Model,
		Timeout:           cfg.Oracle.Timeout,
		RequestsPerSecond: cfg.Oracle.RequestsPerSecond,
	}, log)

	// 初始化邮件源
	// 配置了服务商地址时走 REST 检索；否则启动本地 SMTP 缓存（开发模式）
	var mail mailsource.MailSource
	var smtpServer *gosmtp.Server
	if cfg.Mail.ProviderBaseURL != "" {
		mail = mailsource.NewProviderClient(cfg.Mail.ProviderBaseURL, cfg.Mail.ProviderAPIKey, 30*time.Second)
		log.Info("using mail provider", zap.String("base_url", cfg.Mail.ProviderBaseURL))
	} else {
		spool := smtpsource.NewSpool(log)
		mail = spool

		smtpServer = gosmtp.NewServer(smtpsource.NewBackend(spool))
		smtpServer.Addr = cfg.Mail.SMTPBindAddr
		smtpServer.Domain = cfg.Mail.SMTPDomain
		smtpServer.AllowInsecureAuth = cfg.Log.Development
		smtpServer.ReadTimeout = 10 * time.Second
		smtpServer.WriteTimeout = 10 * time.Second
		smtpServer.MaxMessageBytes = 10 * 1024 * 1024 // 10MB
		smtpServer.MaxRecipients = 50
		log.Info("using local SMTP spool (development mode)",
			zap.String("address", cfg.Mail.SMTPBindAddr))
	}

	// 组装同步引擎
	classifier := syncengine.NewClassifier(llm, cfg.Sync.MaxRetries, cfg.Sync.RetryBase, log)
	extractor := syncengine.NewExtractor(llm, syncengine.ExtractorConfig{
		MaxRetries:      cfg.Sync.MaxRetries,
		RetryBase:       cfg.Sync.RetryBase,
		GroupSize:       cfg.Sync.ExtractGroup,
		GroupPause:      cfg.Sync.GroupPause,
		DefaultCurrency: cfg.Sync.DefaultCurrency,
	}, log)
	reconciler := syncengine.NewReconciler(store, log)
	windows := syncengine.NewWindowBuilder(cfg.Sync.FirstSyncWindow)
	orchestrator := syncengine.NewOrchestrator(mail, windows, classifier, extractor, reconciler, store, metrics, log)

	// 初始化认证
	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer)

	// 创建 WebSocket Hub
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, log)

	// 后台同步协程池
	workers := pool.NewWorkerPool(4, 64, log)

	// 初始化服务层
	orderService := service.NewOrderService(store, log)
	syncService := service.NewSyncService(
		orchestrator,
		store,
		store,
		workers,
		wsHub,
		cfg.Sync.MinInterval,
		cfg.Sync.LockTTL,
		log,
	)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		OrderService:  orderService,
		SyncService:   syncService,
		JWTManager:    jwtManager,
		WebSocketHub:  wsHub,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Logger:        log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// 协程池
	workers.Start(groupCtx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine（仅开发模式）
	if smtpServer != nil {
		group.Go(func() error {
			log.Info("starting SMTP server",
				zap.String("address", cfg.Mail.SMTPBindAddr),
				zap.String("domain", cfg.Mail.SMTPDomain),
			)
			if err := smtpServer.ListenAndServe(); err != nil {
				log.Error("SMTP server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		if smtpServer != nil {
			if err := smtpServer.Close(); err != nil {
				log.Warn("SMTP server close warning", zap.Error(err))
			}
		}

		workers.Stop()

		if err := store.Close(); err != nil {
			log.Warn("store close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeDatabaseStorage 初始化数据库存储（SQL + Redis 混合）
func initializeDatabaseStorage(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	log.Info("initializing database storage",
		zap.String("database_type", cfg.Database.Type),
		zap.String("redis_address", cfg.Redis.Address),
	)

	store, err := hybrid.NewStore(
		cfg.Database.Type,
		cfg.Database.DSN,
		postgres.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		},
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hybrid store: %w", err)
	}

	log.Info("database storage initialized successfully",
		zap.String("database_type", cfg.Database.Type),
	)

	return store, nil
}
