// Package engine defines the adapter contract shared by the three OCR tiers
// and the process-wide capability registry the executor consults.
package engine

import (
	"context"

	"github.com/pbt-labs/pbt-ocr/constants"
)

// Block is one engine-native layout unit, pre-normalization. Type is the
// engine's free-form tag; the normalizer maps it onto the closed BlockType
// set.
type Block struct {
	Text         string     `json:"text"`
	BBox         [4]float64 `json:"bbox"` // [x1, y1, x2, y2] normalized
	Confidence   float64    `json:"confidence"`
	Type         string     `json:"type"`
	Table        [][]string `json:"table,omitempty"`
	ReadingOrder int        `json:"reading_order"`
}

// PageResult is the engine-native output for a single page.
type PageResult struct {
	PageNo      int     `json:"page_no"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Blocks      []Block `json:"blocks"`
	RawText     string  `json:"raw_text"`
	Markdown    string  `json:"markdown,omitempty"`
	HTML        string  `json:"html,omitempty"`
	Confidence  float64 `json:"confidence"`
	LayoutScore float64 `json:"layout_score"`
}

// Adapter runs one engine tier over a whole document. Process receives the
// path of the downloaded source file and returns one PageResult per page in
// increasing page order. A returned error is a processing failure; adapter
// availability is declared once at registration, not via errors.
type Adapter interface {
	Name() string
	Tier() constants.OCRMode
	Process(ctx context.Context, localPath string) ([]PageResult, error)
}
