package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/platform"
	"edgestream/internal/core/ports"
	"edgestream/internal/core/services"
	httphandlers "edgestream/internal/handlers/http"
	snapshotinfra "edgestream/internal/infrastructure/backup"
	"edgestream/internal/infrastructure/distributed"
	"edgestream/internal/infrastructure/loadbalancer"
	"edgestream/internal/infrastructure/monitoring"
	"edgestream/internal/infrastructure/repositories"
	"edgestream/pkg/backup"
	"edgestream/pkg/config"
	distlock "edgestream/pkg/distributed"
	"edgestream/pkg/logger"
	"edgestream/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg := loadConfig(*configPath)

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		zapLogger = zap.NewExample()
		zapLogger.Warn("invalid logging config, using example logger", zap.Error(err))
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instanceID := uuid.NewString()
	repoFactory := repositories.NewRepositoryFactory(cfg, log)

	sessionRepo := repoFactory.CreateSessionRepository()
	bandwidthRepo := repoFactory.CreateBandwidthRepository()
	analyticsRepo := repoFactory.CreateAnalyticsRepository()

	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)

	edges, err := loadbalancer.NewEdgeSelector(cfg.CDN.EdgeSelection, cfg.CDN.EdgeLocations)
	if err != nil {
		log.Fatalw("invalid edge configuration", "error", err)
	}

	var publisher ports.EventPublisher = distributed.NopPublisher{}
	var bus *distributed.EventBus
	if client := repoFactory.RedisClient(); client != nil {
		bus = distributed.NewEventBus(client, instanceID, distributed.BusConfig{
			Channel:       cfg.Redis.EventChannel,
			BatchSize:     cfg.Analytics.PublishBatchSize,
			BatchInterval: cfg.Analytics.PublishInterval,
		}, log)
		publisher = bus
		go func() {
			err := bus.Subscribe(ctx, func(ev *distributed.Event) error {
				collector.RecordRemoteEvent(string(ev.Type))
				log.Debugw("peer edge event",
					"type", ev.Type,
					"instance_id", ev.InstanceID,
					"session_id", ev.SessionID,
					"edge_location", ev.EdgeLocation,
				)
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warnw("event subscription ended", "error", err)
			}
		}()
	}

	sessionCfg := services.SessionConfig{
		TTL:           cfg.Sessions.TTL,
		SweepInterval: cfg.Sessions.SweepInterval,
		MaxSessions:   cfg.Sessions.MaxSessions,
	}
	if client := repoFactory.RedisClient(); client != nil {
		sessionCfg.SweepLock = distlock.NewLock(client, "edgestream:lock:session-sweep", cfg.Sessions.SweepInterval)
	}

	ladder := domain.DefaultLadder
	sessions := services.NewSessionService(sessionRepo, sessionCfg, collector, log)
	bandwidth := services.NewBandwidthService(bandwidthRepo, ladder, collector, log)
	qoe := services.NewQoEService(sessions, analyticsRepo, ladder, log)
	analytics := services.NewAnalyticsService(analyticsRepo, sessions, bandwidth, qoe, publisher, cfg.Analytics.MaxEventsPerRequest, collector, log)
	manifests := services.NewManifestService(ladder, platform.NewRegistry(), sessions, bandwidth, edges, publisher, cfg.CDN.VariantCacheTTL, collector, log)
	segments := services.NewSegmentService(ladder, sessions, edges, cfg.CDN.SegmentCacheSecs, collector, log)
	auth := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.CDNSigningKey, cfg.Auth.SessionTokenTTL, ladder, log)

	sessions.OnEvict(bandwidth.Forget)
	sessions.OnEvict(analytics.Forget)

	var snapshots *snapshotinfra.Scheduler
	if cfg.Snapshots.Enabled && !repoFactory.UsingRedis() {
		snapshots = setupSnapshots(ctx, cfg, sessionRepo, bandwidthRepo, log)
	}

	sessions.Start(ctx)

	health := monitoring.NewHealthChecker()
	health.AddSessionStoreCheck(sessionRepo, 2*time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, 2*time.Second)
	}
	if !health.IsReady(ctx) {
		log.Warnw("dependencies not ready at startup; /ready will report 503 until they recover")
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httphandlers.NewRouter(cfg, httphandlers.Services{
		Manifests: manifests,
		Segments:  segments,
		Analytics: analytics,
		Bandwidth: bandwidth,
		Auth:      auth,
		Sessions:  sessions,
		Edges:     edges,
		Health:    health,
		Collector: collector,
		Gatherer:  prometheus.DefaultGatherer,
	}, zapLogger)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting edge server",
			"address", cfg.Server.Address,
			"instance_id", instanceID,
			"edge_locations", edges.Locations(),
			"redis", repoFactory.UsingRedis(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	cancel()
	sessions.Stop()
	manifests.Stop()
	if snapshots != nil {
		snapshots.Stop(shutdownCtx)
	}
	if bus != nil {
		if err := bus.Close(); err != nil {
			log.Warnw("failed to close event bus", "error", err)
		}
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repositories", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("failed to flush traces", "error", err)
	}

	log.Info("edge server stopped")
}

func loadConfig(explicit string) *config.Config {
	paths := []string{"configs/config.yaml", "config.yaml"}
	if explicit != "" {
		paths = []string{explicit}
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := config.Load(path)
		if err != nil {
			// a present but invalid file is fatal
			zap.NewExample().Fatal("failed to load config", zap.String("path", path), zap.Error(err))
		}
		return cfg
	}

	cfg, err := config.Load("")
	if err != nil {
		return config.DefaultConfig()
	}
	return cfg
}

// setupSnapshots restores the newest snapshot into the memory stores and starts the
// periodic writer. Failures disable snapshots rather than the server.
func setupSnapshots(
	ctx context.Context,
	cfg *config.Config,
	sessionRepo ports.SessionRepository,
	bandwidthRepo ports.BandwidthRepository,
	log *zap.SugaredLogger,
) *snapshotinfra.Scheduler {
	var (
		storage backup.Storage
		err     error
	)
	switch cfg.Snapshots.Storage {
	case "s3":
		storage, err = backup.NewS3Storage(backup.S3Config{
			Endpoint:        cfg.Snapshots.S3.Endpoint,
			Region:          cfg.Snapshots.S3.Region,
			Bucket:          cfg.Snapshots.S3.Bucket,
			Prefix:          cfg.Snapshots.S3.Prefix,
			AccessKeyID:     cfg.Snapshots.S3.AccessKeyID,
			SecretAccessKey: cfg.Snapshots.S3.SecretAccessKey,
			UsePathStyle:    cfg.Snapshots.S3.UsePathStyle,
		})
	default:
		storage, err = backup.NewFileStorage(cfg.Snapshots.Dir)
	}
	if err != nil {
		log.Errorw("session snapshots disabled", "storage", cfg.Snapshots.Storage, "error", err)
		return nil
	}

	svc := backup.NewService(storage, "sessions")
	restorer := snapshotinfra.NewRestoreService(svc, sessionRepo, bandwidthRepo, log)
	if _, err := restorer.RestoreLatest(ctx, snapshotinfra.RestoreOptions{MaxIdle: cfg.Sessions.TTL}); err != nil {
		log.Warnw("failed to restore session snapshot", "error", err)
	}

	scheduler := snapshotinfra.NewScheduler(svc, sessionRepo, bandwidthRepo, snapshotinfra.Config{
		Interval: cfg.Snapshots.Interval,
		Retain:   cfg.Snapshots.Retain,
	}, log)
	scheduler.Start(ctx)
	return scheduler
}
