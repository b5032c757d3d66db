package main

import (
	"log"

	"github.com/keepsakehq/keepsake/capture"
	"github.com/keepsakehq/keepsake/config"
	"github.com/keepsakehq/keepsake/database"
	"github.com/keepsakehq/keepsake/events"
	"github.com/keepsakehq/keepsake/handler"
	"github.com/keepsakehq/keepsake/pkg/metrics"
	"github.com/keepsakehq/keepsake/repository"
	"github.com/keepsakehq/keepsake/router"
	"github.com/keepsakehq/keepsake/service"
	"github.com/keepsakehq/keepsake/storage"
	"github.com/keepsakehq/keepsake/transcribe"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.LoadConfig()

	metrics.StartMetricsServer(cfg.Server.MetricsPort)
	log.Printf("Prometheus metrics server started on :%s", cfg.Server.MetricsPort)

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	db := database.InitDB(cfg)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	storyRepo := repository.NewStorySessionRepository(db)
	assetRepo := repository.NewStoryAssetRepository(db)

	store, err := storage.NewMinIOStore(cfg)
	if err != nil {
		log.Fatalf("failed to create object store: %v", err)
	}

	provider := transcribe.NewWhisperProvider(cfg, logger)
	orchestrator := transcribe.NewOrchestrator(store, provider, logger)

	publisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	defer publisher.Close()

	storyService := service.NewStoryService(storyRepo, assetRepo, store, orchestrator, publisher, logger)

	source := capture.NewFFmpegSource(cfg.Capture.FFmpegBinaryPath)
	enumerator := capture.NewFFmpegEnumerator(cfg.Capture.FFmpegBinaryPath)
	captureManager := service.NewCaptureManager(source, capture.FFmpegProber{}, storyService, logger)
	defer captureManager.CloseAll()

	storyHandler := handler.NewStoryHandler(storyService, logger)
	captureHandler := handler.NewCaptureHandler(captureManager, enumerator, logger)
	transcribeHandler := handler.NewTranscribeHandler(provider, logger)

	r := router.Setup(cfg.Server.JWTSecret, storyHandler, captureHandler, transcribeHandler)

	log.Printf("Keepsake server listening on %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
