// Package documents implements the document lifecycle service: upload,
// listing, reprocess, deletion, and statistics. Processing itself happens in
// the pipeline; this service only moves documents into and out of the queue.
package documents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/pbt-labs/pbt-ocr/constants"
	"github.com/pbt-labs/pbt-ocr/internal/common"
	"github.com/pbt-labs/pbt-ocr/internal/entity"
	"github.com/pbt-labs/pbt-ocr/internal/queue"
	"github.com/pbt-labs/pbt-ocr/internal/repository"
	"github.com/pbt-labs/pbt-ocr/internal/storage"
)

// UploadRequest carries one incoming document.
type UploadRequest struct {
	Title      string
	Filename   string
	Department string
	DocType    *string
	Importance constants.Importance
	Mode       constants.OCRMode
	Content    io.Reader
}

type Service struct {
	docs   repository.DocumentRepository
	store  storage.Storage
	jobs   queue.Enqueuer
	logger *slog.Logger

	// pageCount is swappable so tests do not need real PDF fixtures.
	pageCount func(path string) (int, error)
}

func NewService(docs repository.DocumentRepository, store storage.Storage, jobs queue.Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		docs:      docs,
		store:     store,
		jobs:      jobs,
		logger:    logger,
		pageCount: api.PageCountFile,
	}
}

// Upload validates and stores a new document, then enqueues it on its
// provisional queue. Auto documents land on the fast queue; the worker
// re-routes them when the mode is resolved at execution time.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*entity.Document, error) {
	ext := constants.NormalizeExt(filepath.Ext(req.Filename))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return nil, fmt.Errorf("%w: extension %q", common.ErrUnsupportedFileType, ext)
	}
	if req.Mode == "" {
		req.Mode = constants.ModeAuto
	}
	if req.Importance == "" {
		req.Importance = constants.ImportanceMedium
	}
	if req.Title == "" {
		req.Title = req.Filename
	}

	// Spool to a temp file so the page count and the storage write read the
	// same bytes.
	tmp, err := os.CreateTemp("", "upload-*."+ext)
	if err != nil {
		return nil, err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()
	if _, err := io.Copy(tmp, req.Content); err != nil {
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	pageCount, err := s.countPages(ext, tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	docID := uuid.New()
	path, size, err := s.store.SaveOriginal(ctx, docID, req.Filename, tmp)
	if err != nil {
		return nil, err
	}

	doc := &entity.Document{
		ID:               docID,
		Title:            req.Title,
		OriginalFilename: req.Filename,
		FilePath:         path,
		FileSize:         size,
		MimeType:         mimeForExt(ext),
		Department:       req.Department,
		DocType:          req.DocType,
		Importance:       req.Importance,
		DeclaredMode:     req.Mode,
		Status:           constants.StatusPending,
		PageCount:        &pageCount,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}

	queueID := queue.RouteQueue(doc.DeclaredMode)
	if err := s.jobs.Enqueue(ctx, queueID, doc.ID); err != nil {
		return nil, err
	}
	s.logger.Info("documents.uploaded",
		"doc_id", doc.ID,
		"filename", req.Filename,
		"pages", pageCount,
		"mode", doc.DeclaredMode,
		"queue", queueID,
	)
	return doc, nil
}

// Reprocess tears down a document's processed pages and blocks, resets its
// processing fields, and re-enqueues it. The stored original is kept.
func (s *Service) Reprocess(ctx context.Context, id uuid.UUID) error {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.docs.DeletePagesForDocument(ctx, id); err != nil {
		return err
	}
	if err := s.docs.ResetForReprocess(ctx, id); err != nil {
		return err
	}

	queueID := queue.RouteQueue(doc.DeclaredMode)
	if err := s.jobs.Enqueue(ctx, queueID, id); err != nil {
		return err
	}
	s.logger.Info("documents.reprocess", "doc_id", id, "queue", queueID)
	return nil
}

// Delete removes the document row, its pages and blocks, and every stored
// file.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.docs.DeletePagesForDocument(ctx, id); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteDocumentFiles(ctx, id); err != nil {
		return err
	}
	return nil
}

// MarkReview flags a completed document for human curation. The pipeline
// never sets this status.
func (s *Service) MarkReview(ctx context.Context, id uuid.UUID) error {
	return s.docs.SetStatus(ctx, id, constants.StatusReview)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	return s.docs.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status *constants.DocumentStatus, limit, offset int) ([]entity.Document, error) {
	return s.docs.List(ctx, status, limit, offset)
}

func (s *Service) Statistics(ctx context.Context) (repository.Statistics, error) {
	return s.docs.Statistics(ctx)
}

func (s *Service) countPages(ext, path string) (int, error) {
	if constants.MapExtToFormat(ext) == constants.PDF {
		return s.pageCount(path)
	}
	return 1, nil
}

func mimeForExt(ext string) string {
	switch ext {
	case "pdf":
		return "application/pdf"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "tiff", "tif":
		return "image/tiff"
	}
	return "application/octet-stream"
}
