// Package app wires Flightline's eight components together and runs the
// process in one of three modes: api (HTTP operator surface), worker
// (canary monitor loop + delivery engine), or all (both in one process).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/flightline-dev/flightline/internal/config"
	"github.com/flightline-dev/flightline/internal/httpserver"
	"github.com/flightline-dev/flightline/internal/platform"
	"github.com/flightline-dev/flightline/internal/telemetry"
	"github.com/flightline-dev/flightline/pkg/canary"
	"github.com/flightline-dev/flightline/pkg/delivery"
	"github.com/flightline-dev/flightline/pkg/idempotency"
	"github.com/flightline-dev/flightline/pkg/metricsource"
	"github.com/flightline-dev/flightline/pkg/notify"
	"github.com/flightline-dev/flightline/pkg/partner"
	"github.com/flightline-dev/flightline/pkg/router"
	"github.com/flightline-dev/flightline/pkg/tokenstore"
)

// Run is the process entry point. It connects to infrastructure, wires
// every component, and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting flightline", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, "flightline", "dev", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	deps, err := wire(ctx, cfg, policy, db, rdb, logger)
	if err != nil {
		return fmt.Errorf("wiring components: %w", err)
	}

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, deps)
	case "worker":
		return runWorker(ctx, logger, deps)
	case "all":
		return runAll(ctx, cfg, logger, db, rdb, metricsReg, deps)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// components bundles every wired service, shared between api and worker
// modes so "all" mode can start both without wiring twice.
type components struct {
	canaryService   *canary.Service
	canaryMonitor   *canary.Monitor
	deliveryService *delivery.Service
	deliveryEngine  *delivery.Engine
}

// wire constructs every Flightline component from config, policy, and
// infrastructure handles. This is the single place component lifetimes
// and dependencies are decided.
func wire(ctx context.Context, cfg *config.Config, policy *config.Policy, db *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) (*components, error) {
	trafficRouter := router.New(ctx, db, rdb, logger)
	metricClient := metricsource.NewClient(cfg.PrometheusURL, "", 5*time.Second)
	idemCache := idempotency.New(rdb, logger, nil)

	dispatcher := wireNotifications(policy, cfg, logger)

	tokens, err := wireTokenStore(db, cfg)
	if err != nil {
		return nil, fmt.Errorf("wiring token store: %w", err)
	}

	clients, err := wirePartnerClients(cfg, tokens, idemCache, logger)
	if err != nil {
		return nil, fmt.Errorf("wiring partner clients: %w", err)
	}

	deliveryCfg := delivery.Config{Concurrency: cfg.DeliveryConcurrency, BatchSize: cfg.DeliveryBatchSize, MaxAttempts: cfg.DeliveryMaxAttempts}
	if pollInterval, err := time.ParseDuration(cfg.DeliveryPollInterval); err == nil {
		deliveryCfg.PollInterval = pollInterval
	} else {
		return nil, fmt.Errorf("parsing delivery poll interval %q: %w", cfg.DeliveryPollInterval, err)
	}

	deliveryStore := delivery.NewStore(db)
	deliveryService := delivery.NewService(deliveryStore, clients, idemCache, dispatcher, deliveryCfg, logger)
	deliveryEngine := delivery.NewEngine(deliveryStore, deliveryService, deliveryCfg, logger)

	canaryStore := canary.NewStore()
	canaryService := canary.NewService(canaryStore, policy, trafficRouter, metricClient, dispatcher, logger)

	monitorInterval, err := time.ParseDuration(cfg.MonitorInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing monitor interval %q: %w", cfg.MonitorInterval, err)
	}
	deploymentRetention, err := time.ParseDuration(cfg.DeploymentRetention)
	if err != nil {
		return nil, fmt.Errorf("parsing deployment retention %q: %w", cfg.DeploymentRetention, err)
	}
	canaryMonitor := canary.NewMonitor(canaryService, canaryStore, monitorInterval, deploymentRetention, logger)

	return &components{
		canaryService:   canaryService,
		canaryMonitor:   canaryMonitor,
		deliveryService: deliveryService,
		deliveryEngine:  deliveryEngine,
	}, nil
}

// wireTokenStore builds the provider token store with an OAuth2
// client-credentials exchanger per configured partner kind.
func wireTokenStore(db *pgxpool.Pool, cfg *config.Config) (*tokenstore.Store, error) {
	exchangers := make(map[string]tokenstore.Exchanger)
	for _, kind := range cfg.PartnerKinds() {
		clientID, clientSecret, tokenURL, ok := cfg.PartnerOAuthCredential(kind)
		if !ok {
			continue
		}
		exchangers[kind] = tokenstore.NewOAuth2Exchanger(clientID, clientSecret, tokenURL, nil)
	}
	return tokenstore.New(db, exchangers), nil
}

// wirePartnerClients builds one HTTPClient per configured partner kind and
// registers it by kind — the polymorphic dispatch point spec.md §4.E
// describes.
func wirePartnerClients(cfg *config.Config, tokens *tokenstore.Store, cache *idempotency.Cache, logger *slog.Logger) (*partner.Registry, error) {
	registry := partner.NewRegistry()
	tokenSource := tokens.AsTokenSource()

	for _, kind := range cfg.PartnerKinds() {
		endpoint, ok := cfg.PartnerEndpoints[kind]
		if !ok {
			continue
		}
		signingSecret := cfg.PartnerSigningSecrets[kind]
		rps, burst := cfg.PartnerRateLimit(kind)

		client := partner.NewHTTPClient(kind, endpoint, signingSecret,
			partner.RateLimitConfig{RPS: rps, Burst: burst},
			tokenSource, cache, partner.NoopRedactor{}, logger)
		registry.Register(client)
		logger.Info("partner client registered", "kind", kind, "endpoint", endpoint)
	}

	return registry, nil
}

// wireNotifications builds the Notification Fan-out dispatcher from the
// policy document's channel/event configuration and the process's secret
// configuration.
func wireNotifications(policy *config.Policy, cfg *config.Config, logger *slog.Logger) *notify.Dispatcher {
	registry := notify.NewRegistry()

	if s := policy.Notifications.Slack; s != nil && s.Enabled {
		for _, ch := range s.Channels {
			registry.Register(notify.NewSlackChannel(cfg.SlackBotToken, ch.Name, ch.Events))
		}
	}
	if pd := policy.Notifications.PagerDuty; pd != nil && pd.Enabled {
		routingKey := pd.IntegrationKey
		if routingKey == "" {
			routingKey = cfg.PagerDutyRoutingKey
		}
		registry.Register(notify.NewPagerDutyChannel(routingKey, pd.Events))
	}
	if e := policy.Notifications.Email; e != nil && e.Enabled {
		registry.Register(notify.NewEmailChannel(cfg.SMTPAddr, cfg.SMTPFrom, e.Recipients, e.Events))
	}

	return notify.NewDispatcher(registry, logger)
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, deps *components) error {
	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)

	canaryHandler := canary.NewHandler(deps.canaryService, logger)
	srv.APIRouter.Mount("/deployments", canaryHandler.Routes())

	deliveryHandler := delivery.NewHandler(deps.deliveryService, logger)
	srv.APIRouter.Mount("/deliveries", deliveryHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, logger *slog.Logger, deps *components) error {
	logger.Info("worker started")

	deps.deliveryEngine.Start(ctx)
	deps.canaryMonitor.StartMonitoring(ctx)

	<-ctx.Done()
	logger.Info("worker shutting down")
	deps.canaryMonitor.StopMonitoring()
	deps.deliveryEngine.Stop()
	return nil
}

// runAll starts the worker loops in the background and serves the
// operator API in the foreground, for single-process deployments.
func runAll(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, deps *components) error {
	deps.deliveryEngine.Start(ctx)
	deps.canaryMonitor.StartMonitoring(ctx)
	defer deps.canaryMonitor.StopMonitoring()
	defer deps.deliveryEngine.Stop()

	return runAPI(ctx, cfg, logger, db, rdb, metricsReg, deps)
}
