package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/undercover-game/internal/api"
	"github.com/wfunc/undercover-game/internal/config"
	"github.com/wfunc/undercover-game/internal/database"
	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"github.com/wfunc/undercover-game/internal/game"
	"github.com/wfunc/undercover-game/internal/logger"
	"github.com/wfunc/undercover-game/internal/repository"
	"github.com/wfunc/undercover-game/internal/service"
	"github.com/wfunc/undercover-game/internal/utils"
	ws "github.com/wfunc/undercover-game/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db       *gorm.DB
	hub      *ws.Hub
	registry *game.Registry
	http     *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 初始化组件并开始监听
func (s *Server) Start() error {
	s.logger.Info("正在启动谁是卧底服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initDatabase(); err != nil {
		return err
	}
	if err := s.initGame(); err != nil {
		return err
	}

	tokens := utils.NewTokenManager(
		s.cfg.Security.JWT.Secret,
		time.Duration(s.cfg.Security.JWT.ExpireHours)*time.Hour,
		s.cfg.Security.JWT.Issuer,
	)

	services := service.NewServices(service.Dependencies{
		Registry:  s.registry,
		Tokens:    tokens,
		Results:   repository.NewGameResultRepository(s.db),
		Snapshots: repository.NewRoomSnapshotRepository(s.db),
		Online:    s.hub,
		Logger:    logger.WithModule("service"),
	})

	router := api.NewRouter(api.RouterConfig{
		Mode:         ginMode(s.cfg.Server.Mode),
		AllowOrigins: s.cfg.Server.AllowOrigins,
		WebSocket:    s.cfg.WebSocket,
	}, s.db, services, s.hub, tokens, logger.WithModule("api"))

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Fatal("HTTP服务异常退出", zap.Error(err))
		}
	}()

	// 只有日志级别支持热更新，其余配置需要重启
	config.Watch(func(newCfg *config.Config) {
		logger.SetLevel(newCfg.Log.Level)
		s.logger.Info("配置已更新", zap.String("log_level", logger.Level()))
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", addr),
		zap.String("websocket", s.cfg.WebSocket.Path),
		zap.Int("go_routines", runtime.NumGoroutine()),
	)
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	log := logger.WithModule("database")

	db, err := database.Open(&s.cfg.Database, log)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db, s.cfg.Database.DSN, log); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	s.db = db
	database.DB = db
	return nil
}

// initGame 组装房间注册表和WebSocket网关，并恢复未过期的房间
func (s *Server) initGame() error {
	gameLog := logger.WithModule("game")

	var persister game.RoomPersister
	switch s.cfg.Storage.Backend {
	case "memory":
		persister = game.NewMemoryRoomPersister()
	default:
		persister = game.NewDatabaseRoomPersister(repository.NewRoomSnapshotRepository(s.db))
	}
	persister = game.NewRetryingPersister(persister, s.cfg.Storage.RetryTimes, s.cfg.Storage.RetryInterval, gameLog)

	var recorder game.ResultRecorder
	if s.cfg.Storage.RecordResults {
		recorder = game.NewDatabaseResultRecorder(repository.NewGameResultRepository(s.db))
	}

	s.hub = ws.NewHub(ws.OptionsFromConfig(&s.cfg.WebSocket), logger.WithModule("websocket"))
	s.registry = game.NewRegistry(game.RegistryConfig{
		Deps: game.Dependencies{
			Persister: persister,
			Notifier:  s.hub,
			Recorder:  recorder,
			Rules:     game.RulesFromConfig(&s.cfg.Game),
			Logger:    gameLog,
		},
		MaxRooms:        s.cfg.Game.MaxRooms,
		CleanupInterval: s.cfg.Game.CleanupInterval,
	})
	s.hub.SetDispatcher(s.registry)

	recovered, err := s.registry.Recover(s.ctx)
	if err != nil {
		// 恢复失败不阻止启动，新房间仍可创建
		gameLog.Error("恢复房间失败", zap.Error(err))
	} else {
		gameLog.Info("房间恢复完成", zap.Int("rooms", recovered))
	}

	s.registry.Start(s.ctx)
	return nil
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
}

// Shutdown 优雅关闭：先断开连接，再停定时任务，最后关闭HTTP和数据库
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 关闭连接时不发送离开指令，房间快照保留到下次启动恢复
	s.hub.Shutdown()
	s.registry.Stop()
	s.cancel()

	var shutdownErr error
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP服务关闭超时", zap.Error(err))
		shutdownErr = err
	}

	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
		if shutdownErr == nil {
			shutdownErr = err
		}
	}
	return shutdownErr
}

// ginMode 配置中的运行模式映射到gin模式
func ginMode(mode string) string {
	switch mode {
	case "production", "release":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("谁是卧底游戏服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
