// Package accurate implements the deep-learning layout OCR tier. The
// detector+recognizer runs as a separate service; this adapter posts page
// images to it and assembles its line-level output into blocks.
package accurate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pbt-labs/pbt-ocr/constants"
	"github.com/pbt-labs/pbt-ocr/internal/common"
	"github.com/pbt-labs/pbt-ocr/internal/engine"
	"github.com/pbt-labs/pbt-ocr/internal/markdown"
	"github.com/pbt-labs/pbt-ocr/internal/raster"
)

const (
	EngineName = "layout-recognizer"

	// Lines the recognizer reports below this confidence are dropped
	// before block assembly.
	minLineConfidence = 0.3

	defaultLayoutScore = 0.85
)

// Config tunes the accurate adapter. An empty BaseURL means the recognizer
// service is not deployed and the tier registers unavailable.
type Config struct {
	BaseURL  string
	Language string
	DPI      int
	Timeout  time.Duration
}

type Adapter struct {
	cfg        Config
	raster     *raster.Rasterizer
	httpClient *http.Client
	logger     *slog.Logger
	schema     *jsonschema.Schema
}

// line mirrors one element of the recognizer's "lines" array. BBox is in
// page pixel coordinates.
type line struct {
	Text         string     `json:"text"`
	BBox         [4]float64 `json:"bbox"`
	Confidence   float64    `json:"confidence"`
	ReadingOrder int        `json:"reading_order"`
}

type recognizeResponse struct {
	Lines       []line   `json:"lines"`
	LayoutScore *float64 `json:"layout_score,omitempty"`
}

func New(cfg Config, r *raster.Rasterizer, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	schema, err := compileSchema(BuildLayoutResponseSchema())
	if err != nil {
		return nil, fmt.Errorf("compile layout response schema: %w", err)
	}

	return &Adapter{
		cfg:        cfg,
		raster:     r,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		schema:     schema,
	}, nil
}

func (a *Adapter) Name() string            { return EngineName }
func (a *Adapter) Tier() constants.OCRMode { return constants.ModeAccurate }

// Available reports whether a recognizer endpoint is configured. Checked once
// at startup when the adapter registers.
func (a *Adapter) Available() bool {
	return a.cfg.BaseURL != ""
}

// Process rasterizes the source and sends each page to the recognizer.
func (a *Adapter) Process(ctx context.Context, localPath string) ([]engine.PageResult, error) {
	if a.cfg.BaseURL == "" {
		return nil, common.ErrAdapterUnavailable
	}

	tmpDir, err := os.MkdirTemp("", "ocr-accurate-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			a.logger.Warn("accurate.tmpdir.cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	pages, err := a.raster.Render(ctx, localPath, tmpDir, a.cfg.DPI)
	if err != nil {
		return nil, err
	}

	results := make([]engine.PageResult, 0, len(pages))
	for _, p := range pages {
		res, err := a.recognizePage(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("accurate ocr page %d: %w", p.PageNo, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (a *Adapter) recognizePage(ctx context.Context, p raster.PageImage) (engine.PageResult, error) {
	imgBytes, err := os.ReadFile(p.Path)
	if err != nil {
		return engine.PageResult{}, fmt.Errorf("read page image: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"image":    base64.StdEncoding.EncodeToString(imgBytes),
		"language": a.cfg.Language,
	})
	if err != nil {
		return engine.PageResult{}, fmt.Errorf("marshal recognize request: %w", err)
	}

	raw, err := a.post(ctx, a.cfg.BaseURL+"/ocr", payload)
	if err != nil {
		return engine.PageResult{}, err
	}

	if err := a.validate(raw); err != nil {
		return engine.PageResult{}, fmt.Errorf("%w: %v", common.ErrMalformedEngineOut, err)
	}
	var resp recognizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return engine.PageResult{}, fmt.Errorf("%w: decode: %v", common.ErrMalformedEngineOut, err)
	}

	blocks, rawText, pageConf := assembleLines(resp.Lines, p.Width, p.Height)
	md := markdown.FromLines(blockTexts(blocks))
	layoutScore := defaultLayoutScore
	if resp.LayoutScore != nil {
		layoutScore = *resp.LayoutScore
	}

	return engine.PageResult{
		PageNo:      p.PageNo,
		Width:       p.Width,
		Height:      p.Height,
		Blocks:      blocks,
		RawText:     rawText,
		Markdown:    md,
		HTML:        markdown.RenderHTML(md),
		Confidence:  pageConf,
		LayoutScore: layoutScore,
	}, nil
}

func (a *Adapter) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", common.ErrEngineTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrEngineHTTP, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", common.ErrEngineHTTP, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", common.ErrEngineHTTP, resp.StatusCode, truncate(raw, 512))
	}

	a.logger.Debug("accurate.recognize.ok",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"bytes", len(raw))
	return raw, nil
}

func (a *Adapter) validate(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return a.schema.Validate(v)
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	schemaJSON, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("layout_response.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile("layout_response.json")
}

// assembleLines turns kept recognizer lines into one block per line, in
// reading order, with bboxes normalized by the page dimensions. It also
// returns the concatenated raw text and the mean confidence of kept lines.
func assembleLines(lines []line, pageW, pageH int) ([]engine.Block, string, float64) {
	if pageW <= 0 || pageH <= 0 {
		return nil, "", 0
	}

	kept := make([]line, 0, len(lines))
	for _, l := range lines {
		if l.Confidence < minLineConfidence {
			continue
		}
		kept = append(kept, l)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].ReadingOrder < kept[j].ReadingOrder
	})

	blocks := make([]engine.Block, 0, len(kept))
	var texts bytes.Buffer
	var confSum float64
	for i, l := range kept {
		blocks = append(blocks, engine.Block{
			Text: l.Text,
			BBox: [4]float64{
				l.BBox[0] / float64(pageW),
				l.BBox[1] / float64(pageH),
				l.BBox[2] / float64(pageW),
				l.BBox[3] / float64(pageH),
			},
			Confidence:   l.Confidence,
			Type:         "text",
			ReadingOrder: i,
		})
		if texts.Len() > 0 {
			texts.WriteByte('\n')
		}
		texts.WriteString(l.Text)
		confSum += l.Confidence
	}

	if len(kept) == 0 {
		return blocks, "", 0
	}
	return blocks, texts.String(), confSum / float64(len(kept))
}

func blockTexts(blocks []engine.Block) []string {
	texts := make([]string, len(blocks))
	for i, b := range blocks {
		texts[i] = b.Text
	}
	return texts
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
