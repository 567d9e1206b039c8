// runocr uploads a single file and processes it synchronously, bypassing the
// queue. Useful for smoke-testing a deployment and for batch scripting.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pbt-labs/pbt-ocr/constants"
	"github.com/pbt-labs/pbt-ocr/internal/common"
	"github.com/pbt-labs/pbt-ocr/internal/documents"
	"github.com/pbt-labs/pbt-ocr/internal/engine"
	"github.com/pbt-labs/pbt-ocr/internal/engine/accurate"
	"github.com/pbt-labs/pbt-ocr/internal/engine/fast"
	"github.com/pbt-labs/pbt-ocr/internal/engine/precision"
	"github.com/pbt-labs/pbt-ocr/internal/export"
	"github.com/pbt-labs/pbt-ocr/internal/pipeline"
	"github.com/pbt-labs/pbt-ocr/internal/raster"
	"github.com/pbt-labs/pbt-ocr/internal/repository"
	"github.com/pbt-labs/pbt-ocr/internal/storage"
)

// noopEnqueuer satisfies the upload path; processing happens inline.
type noopEnqueuer struct{}

func (noopEnqueuer) Enqueue(ctx context.Context, queueID string, documentID uuid.UUID) error {
	return nil
}

func main() {
	var (
		file       = flag.String("file", "", "path of the PDF or image to process (required)")
		title      = flag.String("title", "", "document title (defaults to the filename)")
		mode       = flag.String("mode", "AUTO", "OCR mode: FAST, ACCURATE, PRECISION, or AUTO")
		importance = flag.String("importance", "MEDIUM", "importance: LOW, MEDIUM, or HIGH")
		docType    = flag.String("doctype", "", "document type, e.g. contract")
		exportFmt  = flag.String("export", "", "write the result next to the input: md, json, html, or xlsx")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *file == "" {
		logger.Error("usage", "cmd", "runocr -file <path> [-mode AUTO] [-export md]")
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	docsRepo := repository.NewDocumentRepository(pool, logger)
	settingsRepo := repository.NewSettingsRepository(pool, logger)

	store, err := storage.NewLocal(cfg.Storage.RootDir, logger)
	if err != nil {
		logger.Error("init storage", "error", err)
		os.Exit(1)
	}

	rasterizer := raster.NewRasterizer(raster.Config{
		Pdftoppm: cfg.OCR.Pdftoppm,
		MaxPages: cfg.OCR.MaxPages,
	}, logger)

	registry := engine.NewRegistry(logger)
	registry.Register(fast.New(fast.Config{
		Language:    cfg.OCR.Language,
		DPI:         cfg.OCR.DPI,
		TessdataDir: cfg.OCR.TessdataDir,
	}, rasterizer, logger), true)

	accAdapter, err := accurate.New(accurate.Config{
		BaseURL:  common.AccurateEngineURL(),
		Language: cfg.OCR.Language,
		DPI:      cfg.OCR.DPI,
	}, rasterizer, logger)
	if err != nil {
		logger.Error("build accurate adapter", "error", err)
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
	registry.Register(vlmAdapter, vlmAdapter.Available())

	processor := pipeline.NewProcessor(docsRepo, settingsRepo, store,
		pipeline.NewExecutor(registry, logger), rasterizer, logger)
	svc := documents.NewService(docsRepo, store, noopEnqueuer{}, logger)

	src, err := os.Open(*file)
	if err != nil {
		logger.Error("open input", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	var docTypePtr *string
	if *docType != "" {
		docTypePtr = docType
	}
	doc, err := svc.Upload(ctx, documents.UploadRequest{
		Title:      *title,
		Filename:   filepath.Base(*file),
		DocType:    docTypePtr,
		Importance: constants.Importance(*importance),
		Mode:       constants.OCRMode(*mode),
		Content:    src,
	})
	if err != nil {
		logger.Error("upload failed", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	if err := processor.ProcessDocument(ctx, doc.ID); err != nil {
		logger.Error("processing failed",
			"doc_id", doc.ID, "error", err, "duration_ms", time.Since(start).Milliseconds())
		os.Exit(1)
	}

	done, err := docsRepo.GetByID(ctx, doc.ID)
	if err != nil {
		logger.Error("reload document", "error", err)
		os.Exit(1)
	}
	logger.Info("processing OK",
		"doc_id", done.ID,
		"status", done.Status,
		"pages", done.PageCount,
		"resolved_mode", done.ResolvedMode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if *exportFmt != "" {
		res, err := export.NewService(docsRepo, logger).Export(ctx, doc.ID, export.Format(*exportFmt))
		if err != nil {
			logger.Error("export failed", "error", err)
			os.Exit(1)
		}
		out := filepath.Join(filepath.Dir(*file), res.Filename)
		if err := os.WriteFile(out, res.Data, 0o644); err != nil {
			logger.Error("write export", "error", err)
			os.Exit(1)
		}
		logger.Info("export written", "path", out, "bytes", len(res.Data))
	}
}
