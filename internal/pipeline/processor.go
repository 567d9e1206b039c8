// Package pipeline drives one document through OCR: tier resolution,
// fallback, engine invocation, normalization, and persistence. One call to
// ProcessDocument is one processing attempt.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/pbt-labs/pbt-ocr/constants"
	"github.com/pbt-labs/pbt-ocr/internal/common"
	"github.com/pbt-labs/pbt-ocr/internal/entity"
	"github.com/pbt-labs/pbt-ocr/internal/normalize"
	"github.com/pbt-labs/pbt-ocr/internal/raster"
	"github.com/pbt-labs/pbt-ocr/internal/repository"
	"github.com/pbt-labs/pbt-ocr/internal/storage"
)

const thumbnailDim = 320

// Processor is the queue handler for document jobs.
type Processor struct {
	docs     repository.DocumentRepository
	settings repository.SettingsRepository
	store    storage.Storage
	executor *Executor
	raster   *raster.Rasterizer
	logger   *slog.Logger
}

func NewProcessor(
	docs repository.DocumentRepository,
	settings repository.SettingsRepository,
	store storage.Storage,
	executor *Executor,
	r *raster.Rasterizer,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		docs:     docs,
		settings: settings,
		store:    store,
		executor: executor,
		raster:   r,
		logger:   logger,
	}
}

// ProcessDocument runs one processing attempt for a document. A missing
// document aborts silently: the job may be a leftover for a deleted row, and
// there is nothing to mark failed. Every other error marks the document
// FAILED and is returned to the queue.
func (p *Processor) ProcessDocument(ctx context.Context, docID uuid.UUID) error {
	doc, err := p.docs.GetByID(ctx, docID)
	if err != nil {
		if errors.Is(err, common.ErrDocumentNotFound) {
			p.logger.Warn("pipeline.document.missing", "doc_id", docID)
			return nil
		}
		return err
	}

	if err := p.docs.MarkProcessing(ctx, docID); err != nil {
		return err
	}
	p.logger.Info("pipeline.document.start",
		"doc_id", docID,
		"declared_mode", doc.DeclaredMode,
		"status", constants.StatusProcessing,
	)

	if err := p.process(ctx, doc); err != nil {
		if markErr := p.docs.MarkFailed(ctx, docID, err.Error()); markErr != nil {
			p.logger.Error("pipeline.mark_failed.error", "doc_id", docID, "error", markErr)
		}
		return err
	}
	return nil
}

func (p *Processor) process(ctx context.Context, doc *entity.Document) error {
	// Settings are re-read per attempt so operator changes made between
	// enqueue and execution take effect.
	settings, err := p.settings.Get(ctx)
	if err != nil {
		p.logger.Warn("pipeline.settings.unavailable", "doc_id", doc.ID, "error", err)
		settings = entity.DefaultSettings()
	}

	workDir, err := os.MkdirTemp("", "ocr-job-*")
	if err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			p.logger.Warn("pipeline.workdir.cleanup_failed", "dir", workDir, "error", err)
		}
	}()

	localPath, err := p.store.DownloadToLocal(ctx, doc.FilePath, workDir)
	if err != nil {
		return err
	}

	outcome, err := p.executor.Execute(ctx, *doc, localPath, settings.PrecisionThreshold)
	if err != nil {
		return err
	}

	// resolvedMode exists only for Auto documents: a declared tier was never
	// resolved, and the per-page engine metadata already records the tier
	// that actually ran.
	var resolved *constants.OCRMode
	if outcome.Recommendation != nil {
		if err := p.docs.SaveResolution(ctx, doc.ID, outcome.ActualTier, outcome.Recommendation.Score); err != nil {
			return err
		}
		tier := outcome.ActualTier
		resolved = &tier
	}

	pages := make([]entity.Page, 0, len(outcome.Pages))
	blocks := make([][]entity.Block, 0, len(outcome.Pages))
	for _, res := range outcome.Pages {
		page, pageBlocks, err := normalize.Page(res, outcome.EngineName, outcome.ActualTier)
		if err != nil {
			return err
		}
		pages = append(pages, page)
		blocks = append(blocks, pageBlocks)
	}

	if err := p.archivePageImages(ctx, doc, settings.OCRDefaultDPI, localPath, workDir, pages); err != nil {
		// Archival images are a convenience; their absence should not fail
		// a document whose text extraction succeeded.
		p.logger.Warn("pipeline.page_images.skipped", "doc_id", doc.ID, "error", err)
	}

	if err := p.docs.SavePages(ctx, doc.ID, pages, blocks); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := p.docs.MarkCompleted(ctx, doc.ID, len(pages), resolved, now); err != nil {
		return err
	}
	p.logger.Info("pipeline.document.completed",
		"doc_id", doc.ID,
		"pages", len(pages),
		"requested_tier", outcome.RequestedTier,
		"actual_tier", outcome.ActualTier,
	)
	return nil
}

// archivePageImages renders the source once more for storage and fills in
// each page's ImagePath.
func (p *Processor) archivePageImages(ctx context.Context, doc *entity.Document, dpi int, localPath, workDir string, pages []entity.Page) error {
	if p.raster == nil {
		return nil
	}
	rendered, err := p.raster.Render(ctx, localPath, workDir, dpi)
	if err != nil {
		return err
	}
	byPageNo := make(map[int]raster.PageImage, len(rendered))
	for _, r := range rendered {
		byPageNo[r.PageNo] = r
	}

	for i := range pages {
		r, ok := byPageNo[pages[i].PageNo]
		if !ok {
			continue
		}
		data, err := os.ReadFile(r.Path)
		if err != nil {
			return err
		}
		path, err := p.store.UploadPageImage(ctx, data, doc.ID, pages[i].PageNo)
		if err != nil {
			return err
		}
		pages[i].ImagePath = path

		img, err := raster.LoadImage(r.Path)
		if err != nil {
			return err
		}
		thumb, err := raster.Thumbnail(img, thumbnailDim)
		if err != nil {
			return err
		}
		if _, err := p.store.UploadThumbnail(ctx, thumb, doc.ID, pages[i].PageNo); err != nil {
			return err
		}
	}
	return nil
}
