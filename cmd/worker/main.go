/**
 * Document Segmentation Worker - Main Entry Point
 *
 * Splits scanned batches into documents using a catalog of fuzzy text
 * templates.
 *
 * Architecture:
 * - Redis list consumer (default) or Asynq server for the job queue
 * - Page text from inline payloads, OCR text folders, Tesseract or the
 *   remote OCR service, or PDF text layers
 * - Template-driven segmentation with audit reports per batch
 * - PostgreSQL persistence for job status and document groups
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/docsegment-worker/internal/catalog"
	"github.com/adverant/nexus/docsegment-worker/internal/clients"
	"github.com/adverant/nexus/docsegment-worker/internal/config"
	"github.com/adverant/nexus/docsegment-worker/internal/logging"
	"github.com/adverant/nexus/docsegment-worker/internal/pages"
	"github.com/adverant/nexus/docsegment-worker/internal/processor"
	"github.com/adverant/nexus/docsegment-worker/internal/queue"
	"github.com/adverant/nexus/docsegment-worker/internal/storage"
)

// consumer is the lifecycle shared by both queue backends
type consumer struct {
	start func() error
	stop  func() error
}

func main() {
	logger := logging.NewLogger("Worker")

	// Load environment variables
	if err := godotenv.Load(".env.docsegment"); err != nil {
		logger.Warn(".env.docsegment not found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		logger.Warn("Invalid logging configuration, keeping defaults", "error", err)
	}

	logger.Info("Document segmentation worker starting",
		"queueBackend", cfg.QueueBackend,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"ocrEngine", cfg.OCREngine,
		"env", cfg.AppEnv)

	// Template catalog
	cat, err := catalog.Load(cfg.TemplatesPath,
		catalog.WithThreshold(cfg.FuzzyThreshold),
		catalog.WithSelectionThreshold(cfg.SelectionThreshold))
	if err != nil {
		logger.Error("Failed to load template catalog", "path", cfg.TemplatesPath, "error", err)
		os.Exit(1)
	}
	logger.Info("Template catalog loaded", "templates", len(cat.Templates()))

	// OCR
	recognizer, err := pages.RecognizerFromConfig(cfg)
	if err != nil {
		logger.Error("Failed to initialize OCR", "error", err)
		os.Exit(1)
	}
	if cfg.OCREngine == config.OCREngineService {
		checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := clients.NewOCRClient(cfg.OCRServiceURL, cfg.OCRAPIKeys).HealthCheck(checkCtx); err != nil {
			logger.Warn("OCR service health check failed", "url", cfg.OCRServiceURL, "error", err)
		}
		cancel()
	}

	// Storage
	logger.Info("Connecting to PostgreSQL...")
	storageManager, err := storage.NewStorageManager(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to initialize storage manager", "error", err)
		os.Exit(1)
	}
	if err := healthCheck(storageManager); err != nil {
		logger.Error("Storage is not healthy", "error", err)
		storageManager.Close()
		os.Exit(1)
	}
	logger.Info("Storage manager initialized")

	// Artifact storage for report files
	var artifacts processor.ArtifactUploader
	if cfg.ArtifactAPIURL != "" {
		artifactClient := clients.NewArtifactClient(cfg.ArtifactAPIURL)
		checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := artifactClient.HealthCheck(checkCtx); err != nil {
			logger.Warn("Artifact API health check failed, uploads may fail", "url", cfg.ArtifactAPIURL, "error", err)
		}
		cancel()
		artifacts = artifactClient
	}

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Catalog:        cat,
		Recognizer:     recognizer,
		OCRConcurrency: cfg.OCRConcurrency,
		CleanText:      cfg.CleanOCRText,
		OutputDir:      cfg.OutputDir,
		Store:          storageManager,
		Artifacts:      artifacts,
		Logger:         logging.NewLogger("DocumentProcessor"),
	})
	if err != nil {
		logger.Error("Failed to initialize document processor", "error", err)
		storageManager.Close()
		os.Exit(1)
	}

	// Queue consumer
	logger.Info("Connecting to Redis queue...")
	queueConsumer, err := newConsumer(cfg, proc)
	if err != nil {
		logger.Error("Failed to initialize queue consumer", "error", err)
		storageManager.Close()
		os.Exit(1)
	}

	if err := queueConsumer.start(); err != nil {
		logger.Error("Failed to start queue consumer", "error", err)
		storageManager.Close()
		os.Exit(1)
	}

	logger.Info("Document segmentation worker is READY",
		"queue", cfg.QueueName,
		"templates", len(cat.Templates()),
		"fuzzyThreshold", cfg.FuzzyThreshold,
		"ocr", recognizer.Name())

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())

	if err := queueConsumer.stop(); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	} else {
		logger.Info("Queue consumer stopped")
	}

	if err := storageManager.Close(); err != nil {
		logger.Error("Error closing storage manager", "error", err)
	} else {
		logger.Info("Storage manager closed")
	}

	logger.Info("Shutdown complete")
}

func newConsumer(cfg *config.Config, proc processor.DocumentProcessorInterface) (*consumer, error) {
	switch cfg.QueueBackend {
	case config.QueueBackendAsynq:
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			return nil, err
		}
		return &consumer{
			start: func() error { return c.Start(context.Background()) },
			stop:  func() error { return c.Stop(context.Background()) },
		}, nil

	default:
		c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			return nil, err
		}
		return &consumer{start: c.Start, stop: c.Stop}, nil
	}
}

func healthCheck(sm *storage.StorageManager) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sm.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
