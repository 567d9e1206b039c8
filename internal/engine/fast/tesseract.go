// Package fast implements the CPU word-box OCR tier on top of tesseract.
// It is the cheapest tier and the floor of the fallback chain: it has no
// external runtime dependency, so it always registers available.
package fast

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/pbt-labs/pbt-ocr/constants"
	"github.com/pbt-labs/pbt-ocr/internal/engine"
	"github.com/pbt-labs/pbt-ocr/internal/raster"
)

const EngineName = "tesseract"

// Config tunes the fast adapter.
type Config struct {
	Language    string // tesseract language spec, e.g. "kor+eng"
	DPI         int
	TessdataDir string
}

// Adapter runs per-page tesseract recognition and groups the word stream
// into text blocks by tesseract's own layout block index.
type Adapter struct {
	cfg           Config
	raster        *raster.Rasterizer
	logger        *slog.Logger
	clientFactory func() *gosseract.Client
}

func New(cfg Config, r *raster.Rasterizer, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Language == "" {
		cfg.Language = "kor+eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	return &Adapter{cfg: cfg, raster: r, logger: logger, clientFactory: gosseract.NewClient}
}

func (a *Adapter) Name() string            { return EngineName }
func (a *Adapter) Tier() constants.OCRMode { return constants.ModeFast }

// Process rasterizes the source and recognizes each page.
func (a *Adapter) Process(ctx context.Context, localPath string) ([]engine.PageResult, error) {
	tmpDir, err := os.MkdirTemp("", "ocr-fast-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			a.logger.Warn("fast.tmpdir.cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	pages, err := a.raster.Render(ctx, localPath, tmpDir, a.cfg.DPI)
	if err != nil {
		return nil, err
	}

	results := make([]engine.PageResult, 0, len(pages))
	for _, p := range pages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		res, err := a.recognizePage(p)
		if err != nil {
			return nil, fmt.Errorf("fast ocr page %d: %w", p.PageNo, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (a *Adapter) recognizePage(p raster.PageImage) (engine.PageResult, error) {
	c := a.clientFactory()
	defer c.Close()

	if err := c.SetImage(p.Path); err != nil {
		return engine.PageResult{}, fmt.Errorf("set image: %w", err)
	}
	if langs := strings.Split(a.cfg.Language, "+"); len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return engine.PageResult{}, fmt.Errorf("set language: %w", err)
		}
	}
	if a.cfg.TessdataDir != "" {
		if err := c.SetTessdataPrefix(a.cfg.TessdataDir); err != nil {
			return engine.PageResult{}, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}

	rawText, err := c.Text()
	if err != nil {
		return engine.PageResult{}, fmt.Errorf("recognize: %w", err)
	}

	boxes, err := c.GetBoundingBoxesVerbose()
	if err != nil {
		return engine.PageResult{}, fmt.Errorf("bounding boxes: %w", err)
	}

	blocks, pageConf := groupWords(boxes, p.Width, p.Height)
	return engine.PageResult{
		PageNo:     p.PageNo,
		Width:      p.Width,
		Height:     p.Height,
		Blocks:     blocks,
		RawText:    rawText,
		Confidence: pageConf,
	}, nil
}

// word is the slice of a tesseract bounding box the grouper needs; having
// our own type keeps the grouping logic testable without a tesseract
// runtime.
type word struct {
	Text       string
	BlockNum   int
	Confidence float64 // 0..100 as reported by tesseract
	X1, Y1     int
	X2, Y2     int
}

func groupWords(boxes []gosseract.BoundingBox, pageW, pageH int) ([]engine.Block, float64) {
	words := make([]word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, word{
			Text:       strings.TrimSpace(b.Word),
			BlockNum:   b.BlockNum,
			Confidence: b.Confidence,
			X1:         b.Box.Min.X,
			Y1:         b.Box.Min.Y,
			X2:         b.Box.Max.X,
			Y2:         b.Box.Max.Y,
		})
	}
	return assembleBlocks(words, pageW, pageH)
}

// assembleBlocks groups adjacent words that share a layout block index into
// contiguous text blocks. A block's bbox is the union of its member word
// boxes normalized to [0,1]; its confidence is the mean word confidence.
// Page confidence is the mean over all included words (0 if none).
func assembleBlocks(words []word, pageW, pageH int) ([]engine.Block, float64) {
	if pageW <= 0 || pageH <= 0 {
		return nil, 0
	}

	var blocks []engine.Block
	var cur *engine.Block
	var curConfs []float64
	var curTexts []string
	curBlockNum := -1

	var allConfSum float64
	var allConfN int

	flush := func() {
		if cur == nil || len(curTexts) == 0 {
			cur = nil
			return
		}
		cur.Text = strings.Join(curTexts, " ")
		cur.Confidence = mean(curConfs) / 100.0
		cur.ReadingOrder = len(blocks)
		blocks = append(blocks, *cur)
		cur = nil
	}

	for _, w := range words {
		if w.BlockNum != curBlockNum {
			flush()
			curBlockNum = w.BlockNum
			curConfs = nil
			curTexts = nil
		}
		if w.Text == "" || w.Confidence <= 0 {
			continue
		}

		bbox := [4]float64{
			float64(w.X1) / float64(pageW),
			float64(w.Y1) / float64(pageH),
			float64(w.X2) / float64(pageW),
			float64(w.Y2) / float64(pageH),
		}
		if cur == nil {
			cur = &engine.Block{Type: "text", BBox: bbox}
		} else {
			cur.BBox = [4]float64{
				min(cur.BBox[0], bbox[0]),
				min(cur.BBox[1], bbox[1]),
				max(cur.BBox[2], bbox[2]),
				max(cur.BBox[3], bbox[3]),
			}
		}
		curTexts = append(curTexts, w.Text)
		curConfs = append(curConfs, w.Confidence)
		allConfSum += w.Confidence
		allConfN++
	}
	flush()

	if allConfN == 0 {
		return blocks, 0
	}
	return blocks, allConfSum / float64(allConfN) / 100.0
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
