package raster

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"
)

func TestEncodeJPEGCapped(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		maxDim       int
		wantW, wantH int
	}{
		{name: "wide image scaled", w: 4096, h: 2048, maxDim: 2048, wantW: 2048, wantH: 1024},
		{name: "tall image scaled", w: 1000, h: 4000, maxDim: 2048, wantW: 512, wantH: 2048},
		{name: "small image untouched", w: 800, h: 600, maxDim: 2048, wantW: 800, wantH: 600},
		{name: "exact fit untouched", w: 2048, h: 100, maxDim: 2048, wantW: 2048, wantH: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
			data, err := EncodeJPEGCapped(src, tt.maxDim, 95)
			if err != nil {
				t.Fatalf("EncodeJPEGCapped: %v", err)
			}
			cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if cfg.Width != tt.wantW || cfg.Height != tt.wantH {
				t.Errorf("dims = %dx%d, want %dx%d", cfg.Width, cfg.Height, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestThumbnailNeverUpscales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 64, 48))
	data, err := Thumbnail(src, 256)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Errorf("dims = %dx%d, want 64x48", cfg.Width, cfg.Height)
	}
}
