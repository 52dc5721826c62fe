// Package main wires together the scrape service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/webintel/webintel/internal/api"
	gcsblob "github.com/webintel/webintel/internal/blob/gcs"
	localblob "github.com/webintel/webintel/internal/blob/local"
	memoryblob "github.com/webintel/webintel/internal/blob/memory"
	"github.com/webintel/webintel/internal/clock/system"
	"github.com/webintel/webintel/internal/collector"
	"github.com/webintel/webintel/internal/config"
	"github.com/webintel/webintel/internal/controller"
	"github.com/webintel/webintel/internal/embed"
	"github.com/webintel/webintel/internal/extractor"
	"github.com/webintel/webintel/internal/hash/sha256"
	"github.com/webintel/webintel/internal/id/uuid"
	"github.com/webintel/webintel/internal/logging"
	"github.com/webintel/webintel/internal/metrics"
	"github.com/webintel/webintel/internal/progress"
	"github.com/webintel/webintel/internal/progress/sinks"
	pubsubpublisher "github.com/webintel/webintel/internal/publisher/pubsub"
	"github.com/webintel/webintel/internal/scrape"
	"github.com/webintel/webintel/internal/seed"
	memorystore "github.com/webintel/webintel/internal/store/memory"
	"github.com/webintel/webintel/internal/store/postgres"
	"github.com/webintel/webintel/internal/vecindex"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	jobs, pages, closeStores, err := buildStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build stores: %w", err)
	}
	defer closeStores()

	blob, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build blob store: %w", err)
	}

	hubSinks := []progress.Sink{sinks.NewLogSink(logger.Named("progress"))}
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("prometheus sink: %w", err)
	}
	hubSinks = append(hubSinks, promSink)

	var pubsubClient *pubsub.Client
	if cfg.PubSub.Enabled {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client: %w", err)
		}
		defer func() { _ = pubsubClient.Close() }()
		pub := pubsubpublisher.New(pubsubClient)
		defer pub.Close()
		hubSinks = append(hubSinks, sinks.NewPublisherSink(pub, cfg.PubSub.Topic, logger.Named("pubsub")))
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("hub")}, hubSinks...)

	var renderer collector.Renderer
	if cfg.Headless.Enabled {
		headless := cfg.Headless
		if headless.UserAgent == "" {
			headless.UserAgent = cfg.Web.UserAgent
		}
		chromedpRenderer, rendererErr := collector.NewChromedpRenderer(headless, logger.Named("headless"))
		if rendererErr != nil {
			logger.Warn("headless renderer init failed", zap.Error(rendererErr))
		} else {
			renderer = chromedpRenderer
			defer chromedpRenderer.Close()
		}
	}
	web := collector.NewWeb(cfg.Web, renderer, collector.NewHeuristicDetector(cfg.Detector), logger.Named("web"))
	registry := collector.NewRegistry(web)

	embedder := embed.NewHashingEmbedder(cfg.Embedding.Dimension)
	index := vecindex.New(embedder.Dimension())

	ctrl := controller.New(controller.Deps{
		Jobs:       jobs,
		Pages:      pages,
		Collectors: registry,
		Extractor:  extractor.New(logger.Named("extractor")),
		Embedder:   embedder,
		Index:      index,
		Blob:       blob,
		Hasher:     sha256.New(),
		Clock:      system.New(),
		IDs:        uuid.New(),
		Retry:      scrape.NewExponentialRetryPolicy(),
		Seeds:      seed.NewStatic(cfg.Crawl.Seeds),
		Emitter:    hub,
		Logger:     logger.Named("controller"),
	}, controller.Config{
		Workers:        cfg.Crawl.Workers,
		StopGrace:      cfg.Crawl.StopGrace,
		SearchLimit:    cfg.Search.DefaultLimit,
		MaxSearchLimit: cfg.Search.MaxLimit,
	})

	if err := index.LoadSnapshot(ctx, blob, vecindex.SnapshotPath); err != nil {
		logger.Info("index snapshot unavailable, rebuilding from page store", zap.Error(err))
		if err := ctrl.RebuildIndex(ctx); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
	} else {
		metrics.SetVectorIndexSize(index.Len())
	}
	if err := ctrl.Recover(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	apiServer := api.NewServer(ctrl, pages, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("http server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := ctrl.Close(shutdownCtx); err != nil {
		logger.Error("controller shutdown error", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub shutdown error", zap.Error(err))
	}
	if _, err := index.Snapshot(shutdownCtx, blob, vecindex.SnapshotPath); err != nil {
		logger.Warn("index snapshot write failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func buildStores(ctx context.Context, cfg config.Config) (scrape.JobStore, scrape.PageStore, func(), error) {
	switch cfg.Store.Provider {
	case config.ProviderPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, nil, nil, err
		}
		return postgres.NewJobStore(pool), postgres.NewPageStore(pool), pool.Close, nil
	default:
		return memorystore.NewJobStore(), memorystore.NewPageStore(), func() {}, nil
	}
}

func buildBlobStore(ctx context.Context, cfg config.Config) (scrape.BlobStore, error) {
	switch cfg.Blob.Provider {
	case config.ProviderLocal:
		return localblob.New(cfg.Blob.Local)
	case config.ProviderGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage client: %w", err)
		}
		return gcsblob.New(client, cfg.Blob.GCS)
	default:
		return memoryblob.NewBlobStore(), nil
	}
}
