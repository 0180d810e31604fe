package http

import (
	"net/http"
	"time"

	"meetrelay/internal/core/ports"
	"meetrelay/internal/core/services"
	"meetrelay/internal/infrastructure/middleware"
	"meetrelay/internal/infrastructure/monitoring"
	"meetrelay/pkg/config"
	"meetrelay/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps is everything the HTTP surface is built from. Gateway and
// Metrics are optional.
type RouterDeps struct {
	Config     *config.Config
	Relay      ports.SignalingRelay
	Authorizer ports.ChannelAuthorizer
	Auth       services.AuthService
	Users      ports.UserRepository
	Health     *monitoring.HealthChecker
	Gateway    http.Handler
	Metrics    http.Handler
	Logger     *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	sugar := d.Logger.Sugar()

	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(sugar),
		middleware.RequestIDMiddleware(logger.NewContextLogger(d.Logger)),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(sugar),
	)

	NewHealthHandler(d.Health).SetupRoutes(router)
	if d.Metrics != nil {
		router.GET(d.Config.Monitoring.MetricsPath, gin.WrapH(d.Metrics))
	}
	if d.Gateway != nil {
		router.GET(d.Config.Signal.Path, gin.WrapH(d.Gateway))
	}

	authed := router.Group("/",
		middleware.AuthMiddleware(d.Auth),
		middleware.NewHTTPRateLimitMiddleware(d.Config),
	)
	NewBroadcastingHandler(d.Authorizer).SetupRoutes(authed)

	api := router.Group("/api/v1")
	NewAuthHandler(d.Auth, d.Users, d.Config.Auth.AccessTokenTTL).SetupRoutes(api)

	protected := api.Group("",
		middleware.AuthMiddleware(d.Auth),
		middleware.NewHTTPRateLimitMiddleware(d.Config),
	)
	NewMeetingHandler(d.Relay).SetupRoutes(protected)

	backend := api.Group("", middleware.ServiceAuthMiddleware(d.Auth))
	NewReportHandler(d.Relay, d.Logger.Sugar()).SetupRoutes(backend)

	return router
}

// NewServer wraps the router with the configured timeouts.
func NewServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
}
