package accurate

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pbt-labs/pbt-ocr/internal/common"
	"github.com/pbt-labs/pbt-ocr/internal/raster"
)

func TestAssembleLines_DropsLowConfidenceAndSorts(t *testing.T) {
	lines := []line{
		{Text: "second", BBox: [4]float64{0, 500, 1000, 550}, Confidence: 0.9, ReadingOrder: 1},
		{Text: "noise", BBox: [4]float64{0, 0, 10, 10}, Confidence: 0.2, ReadingOrder: 2},
		{Text: "first", BBox: [4]float64{0, 100, 1000, 150}, Confidence: 0.8, ReadingOrder: 0},
	}

	blocks, rawText, conf := assembleLines(lines, 1000, 1000)
	if len(blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2", len(blocks))
	}
	if blocks[0].Text != "first" || blocks[1].Text != "second" {
		t.Errorf("order = %q, %q", blocks[0].Text, blocks[1].Text)
	}
	if blocks[0].ReadingOrder != 0 || blocks[1].ReadingOrder != 1 {
		t.Errorf("reading order = %d, %d", blocks[0].ReadingOrder, blocks[1].ReadingOrder)
	}
	if rawText != "first\nsecond" {
		t.Errorf("rawText = %q", rawText)
	}
	if math.Abs(conf-0.85) > 1e-9 {
		t.Errorf("confidence = %v, want 0.85", conf)
	}
	if math.Abs(blocks[0].BBox[1]-0.1) > 1e-9 || math.Abs(blocks[0].BBox[3]-0.15) > 1e-9 {
		t.Errorf("bbox = %v, want y normalized by page height", blocks[0].BBox)
	}
}

func TestAssembleLines_AllDropped(t *testing.T) {
	blocks, rawText, conf := assembleLines([]line{{Text: "x", Confidence: 0.1}}, 100, 100)
	if len(blocks) != 0 || rawText != "" || conf != 0 {
		t.Errorf("got %d blocks, %q, %v; want empty result", len(blocks), rawText, conf)
	}
}

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	a, err := New(Config{BaseURL: baseURL, Language: "kor+eng"}, (*raster.Rasterizer)(nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func writePageImage(t *testing.T) raster.PageImage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page-1.png")
	if err := os.WriteFile(path, []byte("not-a-real-png"), 0o644); err != nil {
		t.Fatal(err)
	}
	return raster.PageImage{PageNo: 1, Path: path, Width: 1000, Height: 2000}
}

func TestRecognizePage_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ocr" {
			t.Errorf("path = %q, want /ocr", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"lines": [
				{"text": "hello", "bbox": [0, 0, 500, 100], "confidence": 0.9, "reading_order": 0},
				{"text": "world", "bbox": [0, 200, 500, 300], "confidence": 0.7, "reading_order": 1}
			],
			"layout_score": 0.91
		}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	res, err := a.recognizePage(context.Background(), writePageImage(t))
	if err != nil {
		t.Fatalf("recognizePage: %v", err)
	}
	if len(res.Blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2", len(res.Blocks))
	}
	if res.LayoutScore != 0.91 {
		t.Errorf("layout score = %v, want 0.91", res.LayoutScore)
	}
	if res.Markdown == "" || res.HTML == "" {
		t.Errorf("markdown/html renderings missing: %q / %q", res.Markdown, res.HTML)
	}
	if res.RawText != "hello\nworld" {
		t.Errorf("rawText = %q", res.RawText)
	}
}

func TestRecognizePage_DefaultLayoutScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lines": []}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	res, err := a.recognizePage(context.Background(), writePageImage(t))
	if err != nil {
		t.Fatalf("recognizePage: %v", err)
	}
	if res.LayoutScore != defaultLayoutScore {
		t.Errorf("layout score = %v, want %v", res.LayoutScore, defaultLayoutScore)
	}
}

func TestRecognizePage_SchemaViolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// bbox has three elements instead of four
		w.Write([]byte(`{"lines": [{"text": "x", "bbox": [0, 0, 1], "confidence": 0.9, "reading_order": 0}]}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	_, err := a.recognizePage(context.Background(), writePageImage(t))
	if !errors.Is(err, common.ErrMalformedEngineOut) {
		t.Fatalf("err = %v, want ErrMalformedEngineOut", err)
	}
}

func TestRecognizePage_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "recognizer overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	_, err := a.recognizePage(context.Background(), writePageImage(t))
	if !errors.Is(err, common.ErrEngineHTTP) {
		t.Fatalf("err = %v, want ErrEngineHTTP", err)
	}
}

func TestProcess_UnconfiguredBaseURL(t *testing.T) {
	a := newTestAdapter(t, "")
	if a.Available() {
		t.Error("Available() = true without a base URL")
	}
	_, err := a.Process(context.Background(), "/tmp/doc.pdf")
	if !errors.Is(err, common.ErrAdapterUnavailable) {
		t.Fatalf("err = %v, want ErrAdapterUnavailable", err)
	}
}
