package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	jwtpkg "ordersync/backend/internal/auth/jwt"
	"ordersync/backend/internal/config"
	"ordersync/backend/internal/health"
	"ordersync/backend/internal/middleware"
	"ordersync/backend/internal/monitoring"
	"ordersync/backend/internal/service"
	"ordersync/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	OrderService  *service.OrderService
	SyncService   *service.SyncService
	JWTManager    *jwtpkg.Manager
	WebSocketHub  *websocket.Hub
	HealthChecker *health.HealthChecker
	Metrics       *monitoring.Metrics
	Logger        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 * 1024 * 1024))

	if deps.Metrics != nil {
		mm := middleware.NewMonitoringMiddleware(deps.Metrics)
		router.Use(mm.HTTPMetrics())
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	orderHandler := NewOrderHandler(deps.OrderService)
	syncHandler := NewSyncHandler(deps.SyncService)
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.HealthChecker != nil {
		router.GET("/live", gin.WrapH(deps.HealthChecker.Handler()))
		router.GET("/ready", gin.WrapH(deps.HealthChecker.Handler()))
	}

	// Prometheus 指标
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Order Routes ==========
		orderRoutes := v1.Group("/orders")
		orderRoutes.Use(jwtAuth.RequireAuth())
		{
			orderRoutes.GET("", orderHandler.listOrders)
		}

		// ========== Sync Routes ==========
		syncRoutes := v1.Group("/sync")
		syncRoutes.Use(jwtAuth.RequireAuth())
		{
			syncRoutes.POST("", syncHandler.triggerSync)
			syncRoutes.GET("/status", syncHandler.syncStatus)
		}

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}
	}

	return router
}
