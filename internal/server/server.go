package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/fintrack/internal/access"
	authdomain "github.com/smallbiznis/fintrack/internal/auth/domain"
	"github.com/smallbiznis/fintrack/internal/auth/session"
	"github.com/smallbiznis/fintrack/internal/clock"
	"github.com/smallbiznis/fintrack/internal/config"
	ledgerdomain "github.com/smallbiznis/fintrack/internal/ledger/domain"
	licensedomain "github.com/smallbiznis/fintrack/internal/license/domain"
	"github.com/smallbiznis/fintrack/internal/observability"
	obslogger "github.com/smallbiznis/fintrack/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/fintrack/internal/observability/metrics"
	obstracing "github.com/smallbiznis/fintrack/internal/observability/tracing"
	"github.com/smallbiznis/fintrack/internal/ratelimit"
	recurringdomain "github.com/smallbiznis/fintrack/internal/recurring/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log, obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, log, httpMetrics)
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http.server.listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http.server.failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	clock     clock.Clock
	authsvc   authdomain.Service
	gate      *access.Gate
	license   licensedomain.Service
	ledger    ledgerdomain.Service
	recurring recurringdomain.Service
	sessions  *session.Manager
	limiter   *ratelimit.LoginLimiter
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Log       *zap.Logger
	Clock     clock.Clock
	Authsvc   authdomain.Service
	Gate      *access.Gate
	License   licensedomain.Service
	Ledger    ledgerdomain.Service
	Recurring recurringdomain.Service
	Sessions  *session.Manager
	Limiter   *ratelimit.LoginLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		log:       p.Log.Named("http.server"),
		clock:     p.Clock,
		authsvc:   p.Authsvc,
		gate:      p.Gate,
		license:   p.License,
		ledger:    p.Ledger,
		recurring: p.Recurring,
		sessions:  p.Sessions,
		limiter:   p.Limiter,
	}

	svc.registerAuthRoutes()
	svc.registerLicenseRoutes()
	svc.registerRecurringRoutes()
	svc.registerLedgerRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/login", s.LoginRateLimit(), s.Login)
	auth.POST("/logout", s.SessionRequired(), s.Logout)
	auth.POST("/license", s.SessionRequired(), s.SubmitLicense)
	auth.GET("/me", s.SessionRequired(), s.Me)
}

func (s *Server) registerLicenseRoutes() {
	license := s.engine.Group("/api/license", s.SessionRequired())

	license.GET("/status", s.LicenseStatus)
	license.POST("/revalidate", s.RequireRole(authdomain.Role.CanManageLicense), s.RevalidateLicense)
	license.POST("/deactivate", s.RequireRole(authdomain.Role.CanManageLicense), s.DeactivateLicense)
	license.POST("/cache/clear", s.RequireRole(authdomain.Role.CanManageLicense), s.ClearLicenseCache)
}

func (s *Server) registerRecurringRoutes() {
	recurring := s.engine.Group("/api/recurring", s.SessionRequired())

	recurring.GET("", s.ListRecurring)
	recurring.POST("", s.RequireRole(authdomain.Role.CanEditEntries), s.CreateRecurring)
	recurring.GET("/upcoming", s.ListUpcoming)
	recurring.POST("/process", s.RequireRole(authdomain.Role.CanEditEntries), s.ProcessRecurring)
	recurring.POST("/:id/toggle", s.RequireRole(authdomain.Role.CanEditEntries), s.ToggleRecurring)
	recurring.PUT("/:id", s.RequireRole(authdomain.Role.CanEditEntries), s.UpdateRecurring)
	recurring.DELETE("/:id", s.RequireRole(authdomain.Role.CanEditEntries), s.DeleteRecurring)
}

func (s *Server) registerLedgerRoutes() {
	api := s.engine.Group("/api", s.SessionRequired())

	api.GET("/transactions", s.ListTransactions)
	api.POST("/transactions", s.RequireRole(authdomain.Role.CanEditEntries), s.CreateTransaction)
	api.DELETE("/transactions/:id", s.RequireRole(authdomain.Role.CanEditEntries), s.DeleteTransaction)

	api.GET("/categories", s.ListCategories)
	api.POST("/categories", s.RequireRole(authdomain.Role.CanEditEntries), s.CreateCategory)

	api.GET("/summary", s.RequireRole(authdomain.Role.CanViewReports), s.Summary)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
