package httpapi

import (
	"time"

	"cashback-controlplane/pkg/config"
	"cashback-controlplane/pkg/health"
	"cashback-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine, NewAPIGroup),
	fx.Invoke(registerHealthEndpoint),
)

// NewEngine builds the gin engine shared by every service handler.
func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), accessLog(), middleware.Error())
	return r
}

// APIGroup is the route group behind bearer authentication.
type APIGroup struct {
	*gin.RouterGroup
}

func NewAPIGroup(r *gin.Engine, cfg *config.Config, resolver middleware.PrincipalResolver) APIGroup {
	return APIGroup{RouterGroup: r.Group("/", middleware.Auth(middleware.AuthConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
	}, resolver))}
}

func registerHealthEndpoint(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "/healthz" || route == "/readyz" || route == "/metrics" {
			return
		}

		zap.L().Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
