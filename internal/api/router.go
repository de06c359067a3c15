package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/wfunc/undercover-game/internal/config"
	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"github.com/wfunc/undercover-game/internal/middleware"
	"github.com/wfunc/undercover-game/internal/service"
	ws "github.com/wfunc/undercover-game/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RouterConfig 路由配置
type RouterConfig struct {
	Mode         string
	AllowOrigins []string
	WebSocket    config.WebSocketConfig
}

// Router API路由器
type Router struct {
	engine         *gin.Engine
	db             *gorm.DB
	services       *service.Services
	roomHandler    *RoomHandler
	wsHandler      *WebSocketHandler
	authMiddleware *middleware.AuthMiddleware
	wsPath         string
	log            *zap.Logger
}

// NewRouter 创建路由器，db 为空时健康检查跳过数据库
func NewRouter(cfg RouterConfig, db *gorm.DB, services *service.Services, hub *ws.Hub, tokens middleware.TokenValidator, log *zap.Logger) *Router {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())
	engine.Use(cors.New(corsConfig(cfg.AllowOrigins)))

	wsPath := cfg.WebSocket.Path
	if wsPath == "" {
		wsPath = "/ws"
	}

	router := &Router{
		engine:         engine,
		db:             db,
		services:       services,
		roomHandler:    NewRoomHandler(services.Rooms, services.Stats),
		wsHandler:      NewWebSocketHandler(hub, services.Rooms, cfg.WebSocket, log),
		authMiddleware: middleware.NewAuthMiddleware(tokens),
		wsPath:         wsPath,
		log:            log,
	}

	router.setupRoutes()
	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Access-Token", middleware.RequestIDKey},
		ExposeHeaders: []string{middleware.RequestIDKey},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		rooms := v1.Group("/rooms")
		{
			rooms.POST("", r.roomHandler.CreateRoom)
			rooms.GET("/:code", r.roomHandler.GetRoom)
			rooms.POST("/:code/join", r.roomHandler.JoinRoom)
			rooms.GET("/:code/results", r.roomHandler.ListResults)
		}

		v1.GET("/stats", r.roomHandler.GetStats)
	}

	// WebSocket路由，令牌决定房间和玩家
	r.engine.GET(r.wsPath, r.authMiddleware.RequirePlayer(), r.wsHandler.Connect)

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		middleware.AbortWithError(c, apperrors.New(apperrors.ErrNotFound, "接口不存在"))
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	if r.db != nil {
		sqlDB, err := r.db.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "数据库连接失败",
			})
			return
		}

		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "数据库ping失败",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	})
}

// Handler 返回http处理器
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
