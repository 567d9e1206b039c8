// Package precision implements the vision-language OCR tier. Each page is
// sent as a size-capped JPEG to a chat-completions endpoint with a
// structured-OCR prompt; the model's Markdown reply is segmented into layout
// blocks.
package precision

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
	"strings"
	"time"

	"github.com/pbt-labs/pbt-ocr/constants"
	"github.com/pbt-labs/pbt-ocr/internal/common"
	"github.com/pbt-labs/pbt-ocr/internal/engine"
	"github.com/pbt-labs/pbt-ocr/internal/markdown"
	"github.com/pbt-labs/pbt-ocr/internal/raster"
)

const (
	EngineName = "vlm"

	// Payload cap: longest image side after downscale, and the JPEG
	// re-encode quality.
	maxImageDim = 2048
	jpegQuality = 95

	// The model reports no per-block scores; normalized output carries a
	// fixed confidence and layout score instead.
	blockConfidence = 0.95
	layoutScore     = 0.9
)

const layoutPrompt = `You are a document OCR engine. Transcribe ALL text visible in this page image into Markdown.
Rules:
- Preserve the reading order of the page.
- Render section titles as Markdown headers (#, ##, ...).
- Render tables as Markdown pipe tables with a dash separator row.
- Render bullet points as Markdown list items (- item).
- Separate paragraphs with a blank line.
- Transcribe text exactly as written, including Korean. Do not translate.
- Output ONLY the Markdown transcription, no commentary.`

// Config for the VLM adapter. An empty BaseURL means no endpoint is deployed
// and the tier registers unavailable.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	DPI         int
}

type Adapter struct {
	cfg        Config
	raster     *raster.Rasterizer
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg Config, r *raster.Rasterizer, logger *slog.Logger) *Adapter {
	if cfg.Model == "" {
		cfg.Model = "qwen3-vl"
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:        cfg,
		raster:     r,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (a *Adapter) Name() string            { return EngineName }
func (a *Adapter) Tier() constants.OCRMode { return constants.ModePrecision }

// Available reports whether an endpoint is configured.
func (a *Adapter) Available() bool {
	return a.cfg.BaseURL != ""
}

// HealthCheck verifies the endpoint answers its model listing. Used once at
// startup to decide availability; the registry is not re-probed afterwards.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.cfg.BaseURL == "" {
		return common.ErrAdapterUnavailable
	}
	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vlm health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vlm health check: status %d", resp.StatusCode)
	}
	return nil
}

// Process rasterizes the source and transcribes each page through the model.
func (a *Adapter) Process(ctx context.Context, localPath string) ([]engine.PageResult, error) {
	if a.cfg.BaseURL == "" {
		return nil, common.ErrAdapterUnavailable
	}

	tmpDir, err := os.MkdirTemp("", "ocr-precision-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			a.logger.Warn("precision.tmpdir.cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	pages, err := a.raster.Render(ctx, localPath, tmpDir, a.cfg.DPI)
	if err != nil {
		return nil, err
	}

	results := make([]engine.PageResult, 0, len(pages))
	for _, p := range pages {
		res, err := a.transcribePage(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("precision ocr page %d: %w", p.PageNo, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (a *Adapter) transcribePage(ctx context.Context, p raster.PageImage) (engine.PageResult, error) {
	start := time.Now()

	dataURL, err := a.encodePage(p.Path)
	if err != nil {
		return engine.PageResult{}, err
	}

	body := map[string]any{
		"model":       a.cfg.Model,
		"temperature": a.cfg.Temperature,
		"max_tokens":  a.cfg.MaxTokens,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": layoutPrompt},
					{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
				},
			},
		},
	}

	endpoint := strings.TrimRight(a.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := a.post(ctx, endpoint, body)
	if err != nil {
		return engine.PageResult{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return engine.PageResult{}, fmt.Errorf("%w: decode: %v", common.ErrMalformedEngineOut, err)
	}
	if len(cc.Choices) == 0 {
		return engine.PageResult{}, fmt.Errorf("%w: no choices in response", common.ErrMalformedEngineOut)
	}

	md := strings.TrimSpace(cc.Choices[0].Message.Content)
	blocks := markdown.ParseBlocks(md)

	a.logger.Info("vlm.page.ok",
		"page_no", p.PageNo,
		"blocks", len(blocks),
		"markdown_len", len(md),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return engine.PageResult{
		PageNo:      p.PageNo,
		Width:       p.Width,
		Height:      p.Height,
		Blocks:      blocks,
		RawText:     md,
		Markdown:    md,
		HTML:        markdown.RenderHTML(md),
		Confidence:  blockConfidence,
		LayoutScore: layoutScore,
	}, nil
}

// encodePage loads the page image and re-encodes it as a capped JPEG data
// URL for the multimodal message.
func (a *Adapter) encodePage(path string) (string, error) {
	img, err := raster.LoadImage(path)
	if err != nil {
		return "", err
	}
	jpg, err := raster.EncodeJPEGCapped(img, maxImageDim, jpegQuality)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpg), nil
}

func (a *Adapter) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

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
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", common.ErrEngineHTTP, resp.StatusCode, truncate(raw, 512))
	}
	return raw, nil
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
