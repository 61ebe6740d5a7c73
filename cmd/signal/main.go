package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/services"
	httphandlers "callrelay/internal/handlers/http"
	"callrelay/internal/infrastructure/middleware"
	"callrelay/internal/infrastructure/monitoring"
	"callrelay/internal/infrastructure/repositories"
	wsserver "callrelay/internal/infrastructure/signal"
	webrtcinfra "callrelay/internal/infrastructure/webrtc"
	"callrelay/pkg/config"
	"callrelay/pkg/logger"
	"callrelay/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		os.Getenv("CALLRELAY_CONFIG"),
		"configs/config.yaml",
		"/etc/callrelay/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	loadedFrom := ""

	for _, path := range configPaths {
		if path == "" {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err = config.Load(path)
		loadedFrom = path
		break
	}
	if loadedFrom == "" {
		// Defaults plus environment overrides
		cfg, err = config.Load("")
	}
	if err != nil {
		logger.New("info", "json").Sugar().Fatalw("invalid configuration", "path", loadedFrom, "error", err)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if loadedFrom != "" {
		log.Infow("loaded config", "path", loadedFrom)
	} else {
		log.Info("no config file found, using defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		Environment: "production",
		SampleRate:  1.0,
	})
	if err != nil {
		log.Fatalw("failed to initialise tracing", "error", err)
	}

	pairingMode, _ := domain.ParsePairingMode(cfg.Signal.Pairing)
	iceServers, err := webrtcinfra.ICEServers(cfg.WebRTC.ICEServers)
	if err != nil {
		log.Fatalw("invalid ICE server configuration", "error", err)
	}
	greeting, err := webrtcinfra.Greeting{Pairing: pairingMode, ICEServers: iceServers}.Marshal()
	if err != nil {
		log.Fatalw("failed to encode greeting", "error", err)
	}

	repoFactory := repositories.NewRepositoryFactory(ctx, cfg, log)
	registry := repoFactory.CreateConnectionRegistry()
	events := repoFactory.CreateEventPublisher()

	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)

	wsOpts := wsserver.Options{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		SendBufferSize: cfg.Signal.SendBufferSize,
		MaxMessageSize: cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		MaxConnections: cfg.RateLimiting.WebSocket.MaxConcurrent,
		AllowedOrigins: cfg.Signal.AllowedOrigins,
		Metrics:        collector,
		Logger:         log,
	}
	if cfg.RateLimiting.Enabled {
		wsOpts.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		wsOpts.Burst = cfg.RateLimiting.WebSocket.Burst
	}
	ws := wsserver.NewWebSocketServer(wsOpts)

	pairing, err := services.NewPairingStrategy(pairingMode, registry)
	if err != nil {
		log.Fatalw("failed to create pairing strategy", "error", err)
	}
	relay := services.NewRelayService(registry, ws, collector, log)
	sessions := services.NewSessionService(registry, pairing, relay, services.SessionOptions{
		OfferInitiator: domain.OfferInitiator(cfg.Signal.OfferInitiator),
		Events:         events,
		Metrics:        collector,
		Logger:         log,
	})
	contextLogger := logger.NewContextLogger(zapLogger)
	ws.SetHandler(services.NewDispatcher(sessions, relay, services.DispatcherOptions{
		Greeting: greeting,
		Metrics:  collector,
		Logger:   contextLogger,
	}))

	if bus := repoFactory.EventBus(); bus != nil {
		go func() {
			err := bus.Subscribe(ctx, func(e *domain.Event) error {
				log.Debugw("remote lifecycle event", "instance_id", e.InstanceID, "type", e.Type, "connection_id", e.ConnectionID)
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warnw("event subscription ended", "error", err)
			}
		}()
	}

	health := monitoring.NewHealthChecker()
	health.AddCapacityCheck("websocket", ws.ConnectionCount, cfg.RateLimiting.WebSocket.MaxConcurrent, time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, 2*time.Second)
	}

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.RequestLogger(contextLogger),
		middleware.NewHTTPRateLimitMiddleware(cfg, cfg.Signal.Path, "/health", "/ready", "/metrics"),
		middleware.ErrorHandlerMiddleware(log),
	)

	router.GET(cfg.Signal.Path, gin.WrapF(ws.HandleWebSocket))
	httphandlers.NewSignalHandler(registry, sessions, pairingMode, iceServers, health, repoFactory.InstanceID()).SetupRoutes(router)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Hijacked websocket connections are not subject to WriteTimeout.
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting signaling server",
			"address", cfg.Server.Address,
			"path", cfg.Signal.Path,
			"pairing", pairingMode,
			"offer_initiator", cfg.Signal.OfferInitiator,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	ws.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	}

	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("signaling server stopped")
}
