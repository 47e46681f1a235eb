package main

import (
	"net/http"
	"time"

	"github.com/dhawalhost/riskregister/internal/audit"
	"github.com/dhawalhost/riskregister/internal/config"
	"github.com/dhawalhost/riskregister/internal/dashboard"
	"github.com/dhawalhost/riskregister/internal/department"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/dhawalhost/riskregister/internal/lifecycle"
	"github.com/dhawalhost/riskregister/internal/policy"
	"github.com/dhawalhost/riskregister/internal/register"
	"github.com/dhawalhost/riskregister/internal/risk"
	"github.com/dhawalhost/riskregister/pkg/middleware"
	"github.com/dhawalhost/riskregister/pkg/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

// server bundles the router with the background work it depends on.
type server struct {
	router  *gin.Engine
	limiter *middleware.IPRateLimiter
}

// newServer wires stores, services and handlers over db.
func newServer(cfg config.Config, db *sqlx.DB, log *zap.Logger, reg *prometheus.Registry) *server {
	metrics := observability.NewMetrics(reg)

	risks := risk.NewStore(db)
	recorder := audit.NewRecorder(audit.NewStore(db), log.Named("audit"), metrics.AuditWriteFailures)
	engine := policy.NewEngine(policy.Config{
		Recorder:  recorder,
		Logger:    log.Named("policy"),
		Decisions: metrics.Decisions,
	})

	departments := department.NewService(department.NewStore(db), log.Named("department"))
	identities := identity.NewService(identity.NewStore(db), departments, log.Named("identity"))
	registerSvc := register.NewService(register.Config{
		Risks:       risks,
		Departments: departments,
		Engine:      engine,
		Machine:     lifecycle.DefaultMachine(),
		Recorder:    recorder,
		Logger:      log.Named("register"),
		Tracer:      observability.Tracer("riskregister/register"),
		Mutations:   metrics.Mutations,
	})
	auditSvc := audit.NewService(audit.NewStore(db))
	dashboardSvc := dashboard.NewService(dashboard.NewStore(db), risks, log.Named("dashboard"))

	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst, limiterIdle)

	r := gin.New()
	r.Use(gin.Recovery())
	if len(cfg.HTTP.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.HTTP.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowHeaders:     []string{"Authorization", "Content-Type", middleware.DefaultIdentityHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	r.Use(observability.PrometheusMiddleware(metrics))
	r.Use(middleware.SecurityHeadersMiddleware())

	r.GET("/health", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			log.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(observability.PrometheusHandler(reg)))

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(limiter))
	api.Use(middleware.IdentityExtractor(middleware.IdentityConfig{
		Resolver:    identities,
		SigningKey:  []byte(cfg.Auth.JWTSigningKey),
		TrustHeader: cfg.Auth.TrustIdentityHeader,
		Logger:      log.Named("auth"),
	}))

	identity.NewHTTPHandler(identities, log).RegisterRoutes(api)
	department.NewHTTPHandler(departments, log).RegisterRoutes(api)
	register.NewHTTPHandler(registerSvc, log).RegisterRoutes(api)
	audit.NewHTTPHandler(auditSvc, log).RegisterRoutes(api)
	dashboard.NewHTTPHandler(dashboardSvc, log).RegisterRoutes(api)

	return &server{router: r, limiter: limiter}
}
