package precision

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pbt-labs/pbt-ocr/internal/common"
	"github.com/pbt-labs/pbt-ocr/internal/raster"
)

func writePNG(t *testing.T, w, h int) raster.PageImage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page-1.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return raster.PageImage{PageNo: 1, Path: path, Width: w, Height: h}
}

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func TestTranscribePage_ParsesMarkdownReply(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(chatReply("# Title\n\nBody paragraph.\n\n- item one\n- item two")))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL, Model: "qwen3-vl"}, nil, nil)
	res, err := a.transcribePage(context.Background(), writePNG(t, 40, 20))
	if err != nil {
		t.Fatalf("transcribePage: %v", err)
	}

	if len(res.Blocks) != 3 {
		t.Fatalf("len(blocks) = %d, want 3 (header, text, list)", len(res.Blocks))
	}
	if res.Blocks[0].Type != "header" || res.Blocks[2].Type != "list" {
		t.Errorf("block types = %q, %q, %q", res.Blocks[0].Type, res.Blocks[1].Type, res.Blocks[2].Type)
	}
	if res.Confidence != blockConfidence || res.LayoutScore != layoutScore {
		t.Errorf("confidence/layout = %v/%v", res.Confidence, res.LayoutScore)
	}
	if !strings.Contains(res.HTML, "<h1>") {
		t.Errorf("html = %q, want rendered header", res.HTML)
	}

	if gotBody["model"] != "qwen3-vl" {
		t.Errorf("request model = %v", gotBody["model"])
	}
	msgs, ok := gotBody["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("messages = %v", gotBody["messages"])
	}
	content := msgs[0].(map[string]any)["content"].([]any)
	imagePart := content[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(imagePart, "data:image/jpeg;base64,") {
		t.Errorf("image url prefix = %q", imagePart[:30])
	}
}

func TestTranscribePage_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL}, nil, nil)
	_, err := a.transcribePage(context.Background(), writePNG(t, 10, 10))
	if !errors.Is(err, common.ErrMalformedEngineOut) {
		t.Fatalf("err = %v, want ErrMalformedEngineOut", err)
	}
}

func TestTranscribePage_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL}, nil, nil)
	_, err := a.transcribePage(context.Background(), writePNG(t, 10, 10))
	if !errors.Is(err, common.ErrEngineHTTP) {
		t.Fatalf("err = %v, want ErrEngineHTTP", err)
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.Write([]byte(`{"data": []}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL}, nil, nil)
	if err := a.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}

	unconfigured := New(Config{}, nil, nil)
	if err := unconfigured.HealthCheck(context.Background()); !errors.Is(err, common.ErrAdapterUnavailable) {
		t.Errorf("err = %v, want ErrAdapterUnavailable", err)
	}
}

func TestProcess_UnconfiguredBaseURL(t *testing.T) {
	a := New(Config{}, nil, nil)
	if a.Available() {
		t.Error("Available() = true without a base URL")
	}
	_, err := a.Process(context.Background(), "/tmp/doc.pdf")
	if !errors.Is(err, common.ErrAdapterUnavailable) {
		t.Fatalf("err = %v, want ErrAdapterUnavailable", err)
	}
}
