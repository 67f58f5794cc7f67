package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"aiart/internal/adapter/repo"
	"aiart/internal/http/handlers"
	httpapi "aiart/internal/http/httpapi"
	"aiart/internal/infra"
	"aiart/internal/pipeline"
	"aiart/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare image storage")
	}

	observer, err := infra.NewPrometheusObserver("aiart", prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register metrics")
	}

	images := repo.NewImageRepository(infra.NewSQLRunner(dbpool, logger))
	controller := buildController(cfg, logger, observer)
	service := pipeline.NewService(controller, images, store, logger)

	app := &handlers.App{Images: service, Logger: logger, BaseURL: cfg.StorageBaseURL}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          infra.Component(logger, "http"),
		OwnerSecret:     cfg.OwnerSecret,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StorageDir:      store.BasePath(),
		StoragePrefix:   "/images",
		Gatherer:        prometheus.DefaultGatherer,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("sanitizer", cfg.Sanitizer).
			Str("topic_enricher", cfg.TopicEnricher).
			Str("image_provider", cfg.ImageProvider).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPWriteTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
