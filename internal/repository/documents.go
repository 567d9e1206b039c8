package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pbt-labs/pbt-ocr/constants"
	"github.com/pbt-labs/pbt-ocr/internal/common"
	"github.com/pbt-labs/pbt-ocr/internal/entity"
)

// Statistics is the per-status document count summary.
type Statistics struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Review     int `json:"review"`
}

// DocumentRepository persists documents and their processed pages/blocks.
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	List(ctx context.Context, status *constants.DocumentStatus, limit, offset int) ([]entity.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Statistics(ctx context.Context) (Statistics, error)

	// Lifecycle transitions. resolvedMode is nil unless the document was
	// declared Auto and concretized at execution time.
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, pageCount int, resolvedMode *constants.OCRMode, processedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	SetStatus(ctx context.Context, id uuid.UUID, status constants.DocumentStatus) error

	// SaveResolution records the outcome of Auto mode resolution.
	SaveResolution(ctx context.Context, id uuid.UUID, mode constants.OCRMode, score int) error

	// ResetForReprocess returns a document to PENDING and clears every
	// processing artifact field.
	ResetForReprocess(ctx context.Context, id uuid.UUID) error

	// SavePages writes pages and their blocks in one transaction, in
	// increasing page and block order. blocks[i] belongs to pages[i].
	SavePages(ctx context.Context, docID uuid.UUID, pages []entity.Page, blocks [][]entity.Block) error

	// DeletePagesForDocument tears down all pages and blocks of a
	// document.
	DeletePagesForDocument(ctx context.Context, docID uuid.UUID) error

	ListPages(ctx context.Context, docID uuid.UUID) ([]entity.Page, error)
	ListBlocks(ctx context.Context, pageID uuid.UUID) ([]entity.Block, error)
}

type documentRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewDocumentRepository(pool *pgxpool.Pool, log *slog.Logger) DocumentRepository {
	if log == nil {
		log = slog.Default()
	}
	return &documentRepo{pool: pool, log: log}
}

const documentColumns = `id, title, original_filename, file_path, file_size, mime_type,
	department, doc_type, importance, declared_mode, resolved_mode, status,
	page_count, precision_score, error_message, created_at, processed_at`

func (r *documentRepo) Create(ctx context.Context, doc *entity.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		doc.ID, doc.Title, doc.OriginalFilename, doc.FilePath, doc.FileSize, doc.MimeType,
		doc.Department, doc.DocType, doc.Importance, doc.DeclaredMode, doc.ResolvedMode, doc.Status,
		doc.PageCount, doc.PrecisionScore, doc.ErrorMessage, doc.CreatedAt, doc.ProcessedAt,
	)
	if err != nil {
		r.log.Error("document.create.failed", "doc_id", doc.ID, "error", err)
		return fmt.Errorf("create document: %w", err)
	}
	r.log.Info("document.created", "doc_id", doc.ID, "mode", doc.DeclaredMode, "status", doc.Status)
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (r *documentRepo) List(ctx context.Context, status *constants.DocumentStatus, limit, offset int) ([]entity.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows pgx.Rows
		err  error
	)
	if status != nil {
		rows, err = r.pool.Query(ctx, `
			SELECT `+documentColumns+` FROM documents
			WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			*status, limit, offset)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+documentColumns+` FROM documents
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *documentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrDocumentNotFound
	}
	r.log.Info("document.deleted", "doc_id", id)
	return nil
}

func (r *documentRepo) Statistics(ctx context.Context) (Statistics, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return Statistics{}, fmt.Errorf("document statistics: %w", err)
	}
	defer rows.Close()

	var stats Statistics
	for rows.Next() {
		var status constants.DocumentStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Statistics{}, fmt.Errorf("scan statistics: %w", err)
		}
		stats.Total += n
		switch status {
		case constants.StatusPending:
			stats.Pending = n
		case constants.StatusProcessing:
			stats.Processing = n
		case constants.StatusCompleted:
			stats.Completed = n
		case constants.StatusFailed:
			stats.Failed = n
		case constants.StatusReview:
			stats.Review = n
		}
	}
	return stats, rows.Err()
}

func (r *documentRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, `UPDATE documents SET status = $2, error_message = NULL WHERE id = $1`, constants.StatusProcessing)
}

func (r *documentRepo) MarkCompleted(ctx context.Context, id uuid.UUID, pageCount int, resolvedMode *constants.OCRMode, processedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, page_count = $3, resolved_mode = $4, processed_at = $5, error_message = NULL
		WHERE id = $1`,
		id, constants.StatusCompleted, pageCount, resolvedMode, processedAt)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrDocumentNotFound
	}
	logMode := ""
	if resolvedMode != nil {
		logMode = string(*resolvedMode)
	}
	r.log.Info("document.completed", "doc_id", id, "page_count", pageCount, "resolved_mode", logMode)
	return nil
}

func (r *documentRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents SET status = $2, error_message = $3 WHERE id = $1`,
		id, constants.StatusFailed, message)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrDocumentNotFound
	}
	r.log.Warn("document.failed", "doc_id", id, "error", message)
	return nil
}

func (r *documentRepo) SetStatus(ctx context.Context, id uuid.UUID, status constants.DocumentStatus) error {
	return r.setStatus(ctx, id, `UPDATE documents SET status = $2 WHERE id = $1`, status)
}

func (r *documentRepo) setStatus(ctx context.Context, id uuid.UUID, query string, status constants.DocumentStatus) error {
	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("set status %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrDocumentNotFound
	}
	return nil
}

func (r *documentRepo) SaveResolution(ctx context.Context, id uuid.UUID, mode constants.OCRMode, score int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents SET resolved_mode = $2, precision_score = $3 WHERE id = $1`,
		id, mode, score)
	if err != nil {
		return fmt.Errorf("save resolution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrDocumentNotFound
	}
	return nil
}

func (r *documentRepo) ResetForReprocess(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, page_count = 0, error_message = NULL, resolved_mode = NULL, processed_at = NULL
		WHERE id = $1`,
		id, constants.StatusPending)
	if err != nil {
		return fmt.Errorf("reset for reprocess: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrDocumentNotFound
	}
	r.log.Info("document.reset", "doc_id", id)
	return nil
}

func (r *documentRepo) SavePages(ctx context.Context, docID uuid.UUID, pages []entity.Page, blocks [][]entity.Block) error {
	if len(pages) != len(blocks) {
		return fmt.Errorf("%w: pages/blocks length mismatch", common.ErrInvalidInput)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save pages: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range pages {
		p := &pages[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.DocumentID = docID
		_, err := tx.Exec(ctx, `
			INSERT INTO pages (id, document_id, page_no, image_path, width, height,
				raw_text, confidence, layout_score, engine_metadata)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			p.ID, p.DocumentID, p.PageNo, p.ImagePath, p.Width, p.Height,
			p.RawText, p.Confidence, p.LayoutScore, p.EngineMetadata)
		if err != nil {
			return fmt.Errorf("insert page %d: %w", p.PageNo, err)
		}

		for j := range blocks[i] {
			b := &blocks[i][j]
			if b.ID == uuid.Nil {
				b.ID = uuid.New()
			}
			b.PageID = p.ID
			_, err := tx.Exec(ctx, `
				INSERT INTO blocks (id, page_id, block_order, block_type, bbox, text, "table", confidence)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				b.ID, b.PageID, b.Order, b.Type,
				[]float64{b.BBox[0], b.BBox[1], b.BBox[2], b.BBox[3]},
				b.Text, b.Table, b.Confidence)
			if err != nil {
				return fmt.Errorf("insert block %d of page %d: %w", b.Order, p.PageNo, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save pages: %w", err)
	}
	r.log.Info("document.pages_saved", "doc_id", docID, "pages", len(pages))
	return nil
}

func (r *documentRepo) DeletePagesForDocument(ctx context.Context, docID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin page teardown: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM blocks WHERE page_id IN (SELECT id FROM pages WHERE document_id = $1)`, docID); err != nil {
		return fmt.Errorf("delete blocks: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM pages WHERE document_id = $1`, docID); err != nil {
		return fmt.Errorf("delete pages: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit page teardown: %w", err)
	}
	r.log.Info("document.pages_deleted", "doc_id", docID)
	return nil
}

func (r *documentRepo) ListPages(ctx context.Context, docID uuid.UUID) ([]entity.Page, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, page_no, image_path, width, height,
			raw_text, confidence, layout_score, engine_metadata
		FROM pages WHERE document_id = $1 ORDER BY page_no`, docID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []entity.Page
	for rows.Next() {
		var p entity.Page
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.PageNo, &p.ImagePath, &p.Width, &p.Height,
			&p.RawText, &p.Confidence, &p.LayoutScore, &p.EngineMetadata); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (r *documentRepo) ListBlocks(ctx context.Context, pageID uuid.UUID) ([]entity.Block, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, page_id, block_order, block_type, bbox, text, "table", confidence
		FROM blocks WHERE page_id = $1 ORDER BY block_order`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []entity.Block
	for rows.Next() {
		var b entity.Block
		var bbox []float64
		if err := rows.Scan(&b.ID, &b.PageID, &b.Order, &b.Type, &bbox, &b.Text, &b.Table, &b.Confidence); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		if len(bbox) == 4 {
			b.BBox = [4]float64{bbox[0], bbox[1], bbox[2], bbox[3]}
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func scanDocument(row pgx.Row) (*entity.Document, error) {
	var d entity.Document
	err := row.Scan(&d.ID, &d.Title, &d.OriginalFilename, &d.FilePath, &d.FileSize, &d.MimeType,
		&d.Department, &d.DocType, &d.Importance, &d.DeclaredMode, &d.ResolvedMode, &d.Status,
		&d.PageCount, &d.PrecisionScore, &d.ErrorMessage, &d.CreatedAt, &d.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
