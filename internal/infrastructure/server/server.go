package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/chatbubble/internal/api/http"
	"github.com/GriffinCanCode/chatbubble/internal/api/middleware"
	"github.com/GriffinCanCode/chatbubble/internal/api/ws"
	"github.com/GriffinCanCode/chatbubble/internal/domain/frame"
	"github.com/GriffinCanCode/chatbubble/internal/domain/geometry"
	"github.com/GriffinCanCode/chatbubble/internal/domain/widget"
	"github.com/GriffinCanCode/chatbubble/internal/infrastructure/config"
	"github.com/GriffinCanCode/chatbubble/internal/infrastructure/logging"
	"github.com/GriffinCanCode/chatbubble/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatbubble/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/chatbubble/internal/probe"
	"github.com/GriffinCanCode/chatbubble/internal/proxy"
	"github.com/GriffinCanCode/chatbubble/internal/report"
)

// SessionPath is where host pages open a widget session
const SessionPath = "/widget/ws"

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	proxy   *proxy.Proxy
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	if cfg.Logging.Level != "" {
		logCfg.Level = cfg.Logging.Level
	}
	logCfg.File = cfg.Logging.File
	logCfg.MaxSizeMB = cfg.Logging.MaxSizeMB
	logCfg.MaxBackups = cfg.Logging.MaxBackups
	logCfg.MaxAgeDays = cfg.Logging.MaxAgeDays
	logCfg.Compress = cfg.Logging.Compress

	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return New(cfg, logger)
}

// New builds the server around an existing logger
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	preload, _ := widget.ParsePreloadPolicy(cfg.Widget.Preload)

	logger.Info("Initializing chat widget server",
		zap.String("addr", cfg.Addr()),
		zap.String("chat_path", cfg.Widget.ChatPath),
		zap.Stringer("preload", preload),
	)

	metrics := monitoring.NewMetrics()

	px, err := newProxy(cfg, logger.Logger, metrics)
	if err != nil {
		return nil, err
	}

	logger.Info("Upstream selected", zap.String("upstream", px.Route().Upstream))

	reporter := report.NewReporter(logger.Logger, metrics)
	checker := probe.NewGuardedChecker(
		probe.NewChecker(probe.ClientConfig{
			Timeout:            cfg.Upstream.Timeout,
			InsecureSkipVerify: cfg.Upstream.InsecureSkipVerify,
			Retries:            1,
			Logger:             logger.Logger,
		}),
		resilience.New(resilience.Settings{
			Threshold: 3,
			Cooldown:  30 * time.Second,
			OnStateChange: func(from, to resilience.State) {
				logger.Warn("Upstream check breaker changed state",
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
	)

	reliability := reliabilityFor(cfg)
	layout := geometry.DefaultLayout()
	copyText := widget.DefaultCopy()

	handlers := apihttp.NewHandlers(apihttp.Options{
		Widget: apihttp.WidgetConfig{
			ChatURL:         reliability.TargetURL,
			Preload:         preload.String(),
			Layout:          layout,
			Reliability:     apihttp.ReliabilityFrom(reliability),
			Copy:            copyText,
			FrameIntervalMs: cfg.Widget.FrameInterval.Milliseconds(),
			SessionPath:     SessionPath,
		},
		Origin:   px.Route().Upstream,
		Checker:  checker,
		Reporter: reporter,
		Metrics:  metrics,
		Logger:   logger.Logger,
	})

	wsHandler := ws.NewHandler(ws.Options{
		Session: widget.Options{
			Layout:        layout,
			Reliability:   reliability,
			Preload:       preload,
			Copy:          copyText,
			Reporter:      reporter,
			Logger:        logger.Logger,
			FrameInterval: cfg.Widget.FrameInterval,
		},
		AllowOrigins: cfg.CORS.AllowOrigins,
		Metrics:      metrics,
		Logger:       logger.Logger,
	})

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger.Logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSConfigFor(cfg.CORS.AllowOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	// Register routes
	handlers.Register(router)
	router.GET(SessionPath, wsHandler.HandleConnection)

	// Everything else is forwarded when the route matches
	router.NoRoute(px.Handler(), func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		proxy:   px,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

func newProxy(cfg *config.Config, logger *zap.Logger, metrics *monitoring.Metrics) (*proxy.Proxy, error) {
	route := proxy.DefaultRoute()
	if cfg.Upstream.RoutesFile != "" {
		loaded, err := proxy.LoadRouteFile(cfg.Upstream.RoutesFile, route)
		if err != nil {
			return nil, err
		}
		route = loaded
	}
	// Explicitly set environment wins over the route file
	if cfg.Upstream.Origin != "" {
		route.Upstream = cfg.Upstream.Origin
	}
	if len(cfg.Upstream.Prefixes) > 0 {
		route.Prefixes = cfg.Upstream.Prefixes
	}

	opts := []proxy.Option{
		proxy.WithLogger(logger),
		proxy.WithRecorder(metrics),
		proxy.WithTransport(proxy.NewTransport(proxy.TransportConfig{
			Timeout:            cfg.Upstream.Timeout,
			InsecureSkipVerify: cfg.Upstream.InsecureSkipVerify,
		})),
	}
	if path := cfg.Inject.StylesheetPath; path != "" {
		css, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read stylesheet: %w", err)
		}
		opts = append(opts, proxy.WithStyle(string(css), proxy.HeadInjector{Title: cfg.Inject.DocumentTitle}))
	}
	return proxy.New(route, opts...)
}

func reliabilityFor(cfg *config.Config) frame.Settings {
	s := frame.DefaultSettings(cfg.Widget.ChatPath)
	s.LoadTimeout = cfg.Widget.LoadTimeout
	s.MaxRetries = cfg.Widget.MaxRetries
	s.BackoffBase = cfg.Widget.BackoffBase
	s.ReloadDelay = cfg.Widget.ReloadDelay
	return s
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's metrics
func (s *Server) Metrics() *monitoring.Metrics {
	return s.metrics
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Addr()
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...", zap.Duration("timeout", s.config.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// Close flushes buffered logs
func (s *Server) Close() error {
	s.logger.Info("Server stopped")
	_ = s.logger.Sync()
	return nil
}
