// Package api 开通 HTTP API
//
// 供机器人和支付前端调用：开通试用、支付确认、恢复访问、撤销访问、获取链接。
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"ghostline-core/internal/config/schema"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/core/metrics"
	"ghostline-core/internal/health"
	"ghostline-core/internal/models"
	"ghostline-core/internal/xray/xrayconf"
)

// Provisioner 开通服务
type Provisioner interface {
	ActivateTrial(ctx context.Context, userID string) (string, error)
	ActivatePaid(ctx context.Context, userID string, plan models.Plan) (string, error)
	ActivateAccess(ctx context.Context, userID string) (string, error)
	Deprovision(ctx context.Context, userID string) (bool, error)
	Link(ctx context.Context, userID string) (string, error)
}

// ClientRegistry 代理配置中的客户端条目
type ClientRegistry interface {
	AddAccounts(ctx context.Context, userIDs []string) ([]string, error)
	FindActive(ctx context.Context, userID string) (*xrayconf.ClientEntry, error)
}

// Deps API 依赖
type Deps struct {
	Provision Provisioner
	Clients   ClientRegistry
	Health    *health.HealthManager
	Checker   *health.CompositeHealthChecker
	Metrics   metrics.Metrics
	Logger    corelog.Logger
}

// Server 开通 API 服务器
type Server struct {
	config  schema.APIConfig
	deps    Deps
	router  *mux.Router
	server  *http.Server
	limiter *rate.Limiter
	logger  corelog.Logger
}

// NewServer 创建 API 服务器
func NewServer(cfg schema.APIConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = corelog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMemoryMetrics()
	}
	if deps.Checker == nil {
		deps.Checker = health.NewCompositeHealthChecker(5 * time.Second)
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		router: mux.NewRouter(),
		logger: logger.WithField(corelog.FieldComponent, "api"),
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = int(cfg.RateLimitRPS) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second, // 开通请求包含一次远程写入和代理重启
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler 返回路由，供测试和嵌入使用
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	// 探针和指标不需要认证
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	if h := metrics.Handler(s.deps.Metrics); h != nil {
		s.router.Handle("/metrics", h).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.recoverMiddleware)
	api.Use(s.loggingMiddleware)
	api.Use(s.authMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/users/{userId}/trial", s.handleActivateTrial).Methods(http.MethodPost)
	api.HandleFunc("/users/{userId}/subscriptions", s.handleActivatePaid).Methods(http.MethodPost)
	api.HandleFunc("/users/{userId}/access", s.handleActivateAccess).Methods(http.MethodPost)
	api.HandleFunc("/users/{userId}/access", s.handleDeprovision).Methods(http.MethodDelete)
	api.HandleFunc("/users/{userId}/link", s.handleGetLink).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}/client", s.handleGetClient).Methods(http.MethodGet)
	api.HandleFunc("/accounts", s.handleAddAccounts).Methods(http.MethodPost)
}

// Run 监听并服务，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定 listener 上服务
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Infof("provisioning API listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Infof("provisioning API shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
