package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"meetrelay/internal/core/ports"
	"meetrelay/internal/core/services"
	httphandlers "meetrelay/internal/handlers/http"
	"meetrelay/internal/infrastructure/broadcast"
	"meetrelay/internal/infrastructure/monitoring"
	"meetrelay/internal/infrastructure/repositories"
	"meetrelay/pkg/circuitbreaker"
	"meetrelay/pkg/config"
	"meetrelay/pkg/distributed"
	"meetrelay/pkg/retry"
	"meetrelay/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the websocket gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, zapLogger, err := opts.load()
			if err != nil {
				return err
			}
			defer zapLogger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, zapLogger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}

	repoFactory, err := repositories.NewRepositoryFactory(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open repositories: %w", err)
	}
	defer repoFactory.Close()
	store := repoFactory.Store()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := monitoring.NewPrometheusCollector(registry)

	// Background workers stop with runCtx; the HTTP server drains first.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	hub := broadcast.NewHub()
	transport, err := newTransport(runCtx, cfg, hub, repoFactory, log)
	if err != nil {
		return err
	}
	broadcaster := broadcast.NewReliableBroadcaster(transport, cfg.Broadcast.PublishTimeout, circuitbreaker.Config{
		FailureThreshold: cfg.Broadcast.BreakerFailures,
		Cooldown:         cfg.Broadcast.BreakerCooldown,
		HalfOpenProbes:   1,
	}, log)

	peers := services.NewPeerRegistry(store.Sessions, log,
		services.WithMultipleSessions(cfg.Relay.AllowMultipleSessions),
	)
	authorizer := services.NewChannelAuthorizer(store.Meetings, peers, collector, log)
	relay := services.NewSignalingRelay(store, peers, authorizer, broadcaster, collector, log, services.RelayConfig{
		MaxMessageLength:    cfg.Relay.MaxMessageLength,
		MaxSignalBytes:      cfg.Relay.MaxSignalBytes,
		StrictSignals:       cfg.Relay.StrictSignals,
		MessageHistoryLimit: cfg.Relay.MessageHistoryLimit,
	})
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)

	var sweeper *services.SessionSweeper
	if cfg.Sessions.IdleTimeout > 0 {
		sweeper, err = services.NewSessionSweeper(store.Sessions, relay, cfg.Sessions.IdleTimeout, cfg.Sessions.SweepSchedule, log)
		if err != nil {
			return err
		}
		if client := repoFactory.RedisClient(); client != nil {
			sweeper.SetGuard(distributed.NewLockManager(client, "meetrelay:lock:"))
		}
		sweeper.Start()
	}

	gatewayCfg := broadcast.GatewayConfig{
		PingInterval:    cfg.Signal.PingInterval,
		PongTimeout:     cfg.Signal.PongTimeout,
		WriteTimeout:    cfg.Signal.WriteTimeout,
		SendBuffer:      cfg.Signal.SendBuffer,
		AllowedOrigins:  cfg.Signal.AllowedOrigins,
		MaxMessageBytes: cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
	}
	if cfg.RateLimiting.Enabled {
		ws := cfg.RateLimiting.WebSocket
		gatewayCfg.MessagesPerSecond = ws.MessagesPerSecond
		gatewayCfg.Burst = ws.Burst
		gatewayCfg.MaxConnections = ws.MaxConcurrent
	}
	gateway := broadcast.NewGateway(hub, authService, authorizer, collector, gatewayCfg, log)

	health := monitoring.NewHealthChecker()
	health.AddStoreCheck(store.Meetings, 2*time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, 2*time.Second)
	}
	health.AddBreakerCheck("broadcast", broadcaster.State)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	deps := httphandlers.RouterDeps{
		Config:     cfg,
		Relay:      relay,
		Authorizer: authorizer,
		Auth:       authService,
		Users:      store.Users,
		Health:     health,
		Gateway:    gateway,
		Logger:     zapLogger,
	}
	if cfg.Monitoring.PrometheusEnabled {
		deps.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}
	srv := httphandlers.NewServer(cfg, httphandlers.NewRouter(deps))

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting meetrelay",
			"address", cfg.Server.Address,
			"gateway_path", cfg.Signal.Path,
			"broadcast_driver", cfg.Broadcast.Driver,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
		log.Errorw("server failed", "error", runErr)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}
	if sweeper != nil {
		sweeper.Stop(shutdownCtx)
	}
	cancelRun()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("failed to flush traces", "error", err)
	}

	log.Info("meetrelay stopped")
	return runErr
}

// newTransport picks the broadcaster behind the circuit breaker. The redis
// driver needs a live client and starts its subscription loop on ctx.
func newTransport(ctx context.Context, cfg *config.Config, hub *broadcast.Hub, factory *repositories.RepositoryFactory, log *zap.SugaredLogger) (ports.Broadcaster, error) {
	if cfg.Broadcast.Driver != "redis" {
		return broadcast.NewLocalBroadcaster(hub), nil
	}

	client := factory.RedisClient()
	if client == nil {
		return nil, fmt.Errorf("broadcast.driver=redis requires a reachable redis")
	}

	policy := retry.DefaultPolicy()
	policy.Attempts = cfg.Broadcast.PublishRetries + 1
	b := broadcast.NewRedisBroadcaster(client, hub, cfg.Broadcast.ChannelPrefix, policy, log)

	go func() {
		if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("redis subscription stopped, remote events are no longer delivered", "error", err)
		}
	}()
	return b, nil
}
