package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/missionflow/api/handlers"
	"github.com/BaSui01/missionflow/config"
	"github.com/BaSui01/missionflow/internal/database"
	"github.com/BaSui01/missionflow/internal/metrics"
	"github.com/BaSui01/missionflow/internal/server"
	"github.com/BaSui01/missionflow/internal/telemetry"
	"github.com/BaSui01/missionflow/internal/tlsutil"
	"github.com/BaSui01/missionflow/mission"
	"github.com/BaSui01/missionflow/session"
	"github.com/BaSui01/missionflow/toolkit"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 MissionFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *database.PoolManager
	db     *gorm.DB

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 领域组件
	registry *toolkit.Registry
	service  *mission.StateTransitionService
	queries  *mission.Queries
	runner   *mission.ToolRunner
	sessions *session.Service

	// Handlers
	healthHandler  *handlers.HealthHandler
	missionHandler *handlers.MissionHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 遥测
	otelProviders *telemetry.Providers

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers, pool *database.PoolManager) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
		pool:          pool,
		db:            pool.DB(),
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("missionflow", s.logger)
	s.pool.WithMetrics(s.cfg.Database.Driver, s.metricsCollector)

	// 2. 初始化领域组件（注册表、会话、状态机、执行驱动）
	if err := s.initEngine(); err != nil {
		return fmt.Errorf("failed to init engine: %w", err)
	}

	// 3. 初始化 Handlers
	s.initHandlers()

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// instrumentedSessions 在会话挂接上记录指标。
type instrumentedSessions struct {
	inner     *session.Service
	collector *metrics.Collector
}

func (i *instrumentedSessions) LinkMission(ctx context.Context, userID, missionID string) error {
	err := i.inner.LinkMission(ctx, userID, missionID)
	i.collector.RecordSessionLink(err == nil)
	return err
}

// initEngine 初始化工具注册表、会话服务与状态转换服务
func (s *Server) initEngine() error {
	registry, err := toolkit.NewBuiltinRegistry(s.logger)
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}
	s.registry = registry

	// 会话服务可选:Redis 不可用时任务不挂会话,引擎核心不受影响
	sessionCfg := session.Config{
		Addr:       s.cfg.Redis.Addr,
		Password:   s.cfg.Redis.Password,
		DB:         s.cfg.Redis.DB,
		SessionTTL: s.cfg.Session.TTL,
		PoolSize:   s.cfg.Redis.PoolSize,
	}
	sessions, err := session.NewService(sessionCfg, s.logger)
	if err != nil {
		s.logger.Warn("session service unavailable, missions will not be linked to sessions", zap.Error(err))
	} else {
		s.sessions = sessions
	}

	opts := mission.ServiceOptions{
		Metrics: s.metricsCollector,
		Logger:  s.logger,
	}
	if s.sessions != nil {
		opts.Sessions = &instrumentedSessions{inner: s.sessions, collector: s.metricsCollector}
	}

	s.service = mission.NewStateTransitionService(s.db, s.registry, opts)
	s.queries = mission.NewQueries(s.db, s.logger)
	s.runner = mission.NewToolRunner(s.service, s.queries, s.registry, s.logger).
		WithMetrics(s.metricsCollector)

	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	// 数据库健康检查
	s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("database", s.pool.Ping))

	// 会话服务健康检查（Redis 可用时）
	if s.sessions != nil {
		s.healthHandler.RegisterCheck(handlers.NewSessionHealthCheck("session", func(ctx context.Context) error {
			_, err := s.sessions.Active(ctx, "healthcheck")
			if err == session.ErrNoActiveSession {
				return nil
			}
			return err
		}))
	}

	s.missionHandler = handlers.NewMissionHandler(s.service, s.queries, s.runner, s.registry, s.logger)

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 任务生命周期 API
	s.missionHandler.RegisterRoutes(mux)

	// 构建中间件链
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	}
	if s.cfg.Server.JWT.Enabled {
		middlewares = append(middlewares, JWTAuth(s.cfg.Server.JWT, skipAuthPaths, s.logger))
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		middlewares = append(middlewares, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger))
	}
	handler := Chain(mux, middlewares...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	if s.cfg.Server.TLSEnabled {
		serverConfig.TLSConfig = tlsutil.DefaultTLSConfig()
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if s.cfg.Server.TLSEnabled {
		if err := s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile); err != nil {
			return err
		}
	} else {
		if err := s.httpManager.Start(); err != nil {
			return err
		}
	}

	s.logger.Info("HTTP server started",
		zap.Int("port", s.cfg.Server.HTTPPort),
		zap.Bool("tls", s.cfg.Server.TLSEnabled),
	)
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭会话服务
	if s.sessions != nil {
		if err := s.sessions.Close(); err != nil {
			s.logger.Error("Session service shutdown error", zap.Error(err))
		}
	}

	// 4. 刷写遥测数据
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 5. 关闭数据库连接池
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("Database pool shutdown error", zap.Error(err))
		}
	}

	// 6. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
