package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/jobstore/internal/api"
	"github.com/timmy/jobstore/internal/api/handler"
	"github.com/timmy/jobstore/internal/api/middleware"
	"github.com/timmy/jobstore/internal/config"
	"github.com/timmy/jobstore/internal/flowstore"
	"github.com/timmy/jobstore/internal/logger"
	"github.com/timmy/jobstore/internal/logstore"
	"github.com/timmy/jobstore/internal/metrics"
	"github.com/timmy/jobstore/internal/queue"
	"github.com/timmy/jobstore/internal/repository"
	"github.com/timmy/jobstore/internal/service"
	"github.com/timmy/jobstore/internal/storage"
)

type bucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

func main() {
	log := logger.NewDefault()
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	store := repository.NewStore(db)

	ctx := context.Background()

	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	if b, ok := objectStorage.(bucketEnsurer); ok {
		if err := b.EnsureBucket(ctx); err != nil {
			log.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}
	dataFiles := storage.NewDataFiles(objectStorage, cfg.Storage.Prefix)

	health := map[string]handler.Pinger{"database": store}

	var dispatcher queue.Dispatcher
	if cfg.Queue.RedisAddr == "" {
		log.Warn("No broker configured, chunks are kept in memory")
		dispatcher = queue.NewMemoryDispatcher()
	} else {
		rd, err := queue.NewRedisDispatcher(&queue.RedisConfig{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
			MaxLen:   cfg.Queue.MaxLen,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize broker")
		}
		defer rd.Close()
		dispatcher = rd
		health["broker"] = rd
	}

	collector := metrics.NewCollector()

	flowStore := flowstore.NewClient(&flowstore.Config{
		BaseURL:    cfg.FlowStore.BaseURL,
		Timeout:    cfg.FlowStore.Timeout,
		RetryCount: cfg.FlowStore.RetryCount,
	})
	logStore := logstore.NewClient(cfg.LogStore.BaseURL, cfg.LogStore.Timeout)

	jobService := service.NewJobService(
		store,
		service.NewReferenceResolver(flowStore),
		dataFiles,
		dispatcher,
		collector,
		&service.JobConfig{
			ChunkSize:             cfg.Partitioning.ChunkSize,
			VerifyByteSize:        cfg.Partitioning.VerifyByteSize,
			ProcessingDestination: cfg.Queue.ProcessingDestination,
			SinkPrefix:            cfg.Queue.SinkPrefix,
		},
	)
	chunkService := service.NewChunkService(store, dispatcher, collector, cfg.Queue.SinkPrefix)
	retentionService := service.NewRetentionService(store, dataFiles, logStore, collector, &service.RetentionConfig{
		Interval:           cfg.Retention.Interval,
		SuperTransientDays: cfg.Retention.SuperTransientDays,
		AccTestDays:        cfg.Retention.AccTestDays,
		TransientDays:      cfg.Retention.TransientDays,
		TestDays:           cfg.Retention.TestDays,
		ExpirationDays:     cfg.Retention.ExpirationDays,
		AbandonedAfterDays: cfg.Retention.AbandonedAfterDays,
	})

	deps := &api.Deps{
		Jobs:      jobService,
		Chunks:    chunkService,
		Retention: retentionService,
		Health:    health,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = collector.Handler()
		deps.MetricsPath = cfg.Metrics.Path
	}
	router := api.SetupRouter(deps, cfg.Server.Mode)

	runCtx, stopRetention := context.WithCancel(ctx)
	defer stopRetention()
	if cfg.Retention.Enabled {
		go retentionService.Run(runCtx)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting job store")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stopRetention()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}
