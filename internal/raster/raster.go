// Package raster turns source documents into per-page images for the OCR
// adapters. PDFs are rendered with pdftoppm; plain images pass through as a
// single page.
package raster

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"

	"github.com/pbt-labs/pbt-ocr/constants"
)

// PageImage is one rendered page on local disk.
type PageImage struct {
	PageNo int // 1-based
	Path   string
	Width  int
	Height int
}

// Config tunes the rasterizer.
type Config struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	MaxPages int    // 0 = no limit
}

// Rasterizer renders source files into page images.
type Rasterizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewRasterizer(cfg Config, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	return &Rasterizer{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Render produces one PageImage per page of the source file at the given
// DPI. Page files are written under workDir; the caller owns the directory.
func (r *Rasterizer) Render(ctx context.Context, path, workDir string, dpi int) ([]PageImage, error) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		return r.renderPDF(ctx, path, workDir, dpi)
	case constants.IMAGE:
		return r.singleImage(path)
	default:
		return nil, fmt.Errorf("rasterize: unsupported extension %q", ext)
	}
}

func (r *Rasterizer) renderPDF(ctx context.Context, path, workDir string, dpi int) ([]PageImage, error) {
	prefix := filepath.Join(workDir, "page")
	// pdftoppm -r <dpi> -png <in.pdf> <workDir>/page
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", dpi), "-png", path, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w (%s)", err, strings.TrimSpace(string(errb)))
	}

	// pdftoppm names pages prefix-1.png, prefix-2.png, ... with zero padding
	// for larger documents; lexicographic order matches page order there.
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if r.cfg.MaxPages > 0 && len(matches) > r.cfg.MaxPages {
		matches = matches[:r.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images for %s", path)
	}

	pages := make([]PageImage, 0, len(matches))
	for i, m := range matches {
		w, h, err := imageDims(m)
		if err != nil {
			return nil, err
		}
		pages = append(pages, PageImage{PageNo: i + 1, Path: m, Width: w, Height: h})
	}
	return pages, nil
}

func (r *Rasterizer) singleImage(path string) ([]PageImage, error) {
	w, h, err := imageDims(path)
	if err != nil {
		return nil, err
	}
	return []PageImage{{PageNo: 1, Path: path, Width: w, Height: h}}, nil
}

func imageDims(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}
