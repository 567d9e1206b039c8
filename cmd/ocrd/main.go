// ocrd is the OCR worker daemon: it connects to the document store, registers
// the engine adapters, and drains the per-tier job queues. New work is picked
// up by rescanning for PENDING documents, so upload frontends only need to
// write rows and files.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/pbt-labs/pbt-ocr/constants"
	"github.com/pbt-labs/pbt-ocr/internal/common"
	"github.com/pbt-labs/pbt-ocr/internal/engine"
	"github.com/pbt-labs/pbt-ocr/internal/engine/accurate"
	"github.com/pbt-labs/pbt-ocr/internal/engine/fast"
	"github.com/pbt-labs/pbt-ocr/internal/engine/precision"
	"github.com/pbt-labs/pbt-ocr/internal/pipeline"
	"github.com/pbt-labs/pbt-ocr/internal/queue"
	"github.com/pbt-labs/pbt-ocr/internal/raster"
	"github.com/pbt-labs/pbt-ocr/internal/repository"
	"github.com/pbt-labs/pbt-ocr/internal/storage"
)

const rescanInterval = 10 * time.Second

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.HealthCheck(ctx, pool, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	docsRepo := repository.NewDocumentRepository(pool, logger)
	settingsRepo := repository.NewSettingsRepository(pool, logger)

	store, err := storage.NewLocal(cfg.Storage.RootDir, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	rasterizer := raster.NewRasterizer(raster.Config{
		Pdftoppm: cfg.OCR.Pdftoppm,
		MaxPages: cfg.OCR.MaxPages,
	}, logger)

	registry := buildRegistry(ctx, cfg, rasterizer, logger)

	executor := pipeline.NewExecutor(registry, logger)
	processor := pipeline.NewProcessor(docsRepo, settingsRepo, store, executor, rasterizer, logger)

	jobs := queue.NewPool(processor.ProcessDocument, logger,
		queue.WithWorkers(queue.QueueFast, cfg.Queue.FastWorkers),
		queue.WithWorkers(queue.QueueAccurate, cfg.Queue.AccurateWorkers),
		queue.WithWorkers(queue.QueuePrecision, cfg.Queue.PrecisionWorkers),
		queue.WithDepth(cfg.Queue.Depth),
	)
	jobs.Start(ctx)

	go rescanPending(ctx, docsRepo, jobs, logger)

	logger.Info("ocrd started",
		"fast_workers", cfg.Queue.FastWorkers,
		"accurate_workers", cfg.Queue.AccurateWorkers,
		"precision_workers", cfg.Queue.PrecisionWorkers,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	jobs.Shutdown(shutdownCtx)
}

func buildRegistry(ctx context.Context, cfg *common.Config, rasterizer *raster.Rasterizer, logger *slog.Logger) *engine.Registry {
	registry := engine.NewRegistry(logger)

	fastAdapter := fast.New(fast.Config{
		Language:    cfg.OCR.Language,
		DPI:         cfg.OCR.DPI,
		TessdataDir: cfg.OCR.TessdataDir,
	}, rasterizer, logger)
	registry.Register(fastAdapter, true)

	accAdapter, err := accurate.New(accurate.Config{
		BaseURL:  common.AccurateEngineURL(),
		Language: cfg.OCR.Language,
		DPI:      cfg.OCR.DPI,
	}, rasterizer, logger)
	if err != nil {
		logger.Error("failed to build accurate adapter", "error", err)
		os.Exit(1)
	}
	registry.Register(accAdapter, accAdapter.Available())

	vlmAdapter := precision.New(precision.Config{
		BaseURL:   cfg.VLM.BaseURL,
		Model:     cfg.VLM.Model,
		MaxTokens: cfg.VLM.MaxTokens,
		Timeout:   cfg.VLM.Timeout,
		DPI:       cfg.OCR.DPI,
	}, rasterizer, logger)
	vlmAvailable := vlmAdapter.Available()
	if vlmAvailable {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := vlmAdapter.HealthCheck(probeCtx); err != nil {
			logger.Warn("vlm endpoint unreachable, precision tier disabled", "error", err)
			vlmAvailable = false
		}
		cancel()
	}
	registry.Register(vlmAdapter, vlmAvailable)

	return registry
}

// rescanPending enqueues PENDING documents. Documents stay PENDING until a
// worker picks them up, so a short-lived memory of what was already enqueued
// prevents duplicates while a lane is backed up.
func rescanPending(ctx context.Context, docs repository.DocumentRepository, jobs queue.Enqueuer, logger *slog.Logger) {
	seen := make(map[uuid.UUID]time.Time)
	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	scan := func() {
		status := constants.StatusPending
		pending, err := docs.List(ctx, &status, 500, 0)
		if err != nil {
			logger.Error("pending rescan failed", "error", err)
			return
		}
		cutoff := time.Now().Add(-30 * time.Minute)
		for id, at := range seen {
			if at.Before(cutoff) {
				delete(seen, id)
			}
		}
		for _, doc := range pending {
			if _, ok := seen[doc.ID]; ok {
				continue
			}
			queueID := queue.RouteQueue(doc.DeclaredMode)
			if err := jobs.Enqueue(ctx, queueID, doc.ID); err != nil {
				logger.Warn("enqueue failed", "doc_id", doc.ID, "error", err)
				continue
			}
			seen[doc.ID] = time.Now()
		}
	}

	scan()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scan()
		}
	}
}
