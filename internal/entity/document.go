package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/pbt-labs/pbt-ocr/constants"
)

// Document represents a document row for data transfer between layers.
//
// ResolvedMode is nil until an AUTO document is concretized by the executor,
// then holds the tier that actually ran for the lifetime of that processing
// attempt. It is never AUTO.
type Document struct {
	ID               uuid.UUID                `json:"id"`
	Title            string                   `json:"title"`
	OriginalFilename string                   `json:"original_filename"`
	FilePath         string                   `json:"file_path"`
	FileSize         int64                    `json:"file_size"`
	MimeType         string                   `json:"mime_type"`
	Department       string                   `json:"department,omitempty"`
	DocType          *string                  `json:"doc_type,omitempty"`
	Importance       constants.Importance     `json:"importance"`
	DeclaredMode     constants.OCRMode        `json:"ocr_mode"`
	ResolvedMode     *constants.OCRMode       `json:"resolved_mode,omitempty"`
	Status           constants.DocumentStatus `json:"status"`
	PageCount        *int                     `json:"page_count,omitempty"`
	PrecisionScore   *int                     `json:"precision_score,omitempty"`
	ErrorMessage     *string                  `json:"error_message,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
	ProcessedAt      *time.Time               `json:"processed_at,omitempty"`
}

// Page represents one canonical page of a processed document.
// PageNo is 1-based and contiguous within a document.
type Page struct {
	ID             uuid.UUID `json:"id"`
	DocumentID     uuid.UUID `json:"document_id"`
	PageNo         int       `json:"page_no"`
	ImagePath      string    `json:"image_path,omitempty"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	RawText        string    `json:"raw_text"`
	Confidence     float64   `json:"confidence"`
	LayoutScore    float64   `json:"layout_score"`
	EngineMetadata []byte    `json:"engine_metadata,omitempty"`
}

// Block is a single reading-order unit on a page. Order is 0-based and
// contiguous within its page. Table is set iff Type is TABLE.
type Block struct {
	ID         uuid.UUID           `json:"id"`
	PageID     uuid.UUID           `json:"page_id"`
	Order      int                 `json:"block_order"`
	Type       constants.BlockType `json:"block_type"`
	BBox       [4]float64          `json:"bbox"`
	Text       *string             `json:"text,omitempty"`
	Table      [][]string          `json:"table,omitempty"`
	Confidence float64             `json:"confidence"`
}
