package entity

import "time"

// Settings is the read-only snapshot of global OCR settings. Workers re-read
// it when a job is picked up, so operator changes made between enqueue and
// execution take effect (two-phase routing).
type Settings struct {
	PrecisionThreshold int           `json:"precision_threshold"`
	VLMBaseURL         string        `json:"vlm_base_url"`
	VLMModel           string        `json:"vlm_model"`
	VLMMaxTokens       int           `json:"vlm_max_tokens"`
	VLMTimeout         time.Duration `json:"vlm_timeout"`
	OCRLanguage        string        `json:"ocr_language"`
	OCRDefaultDPI      int           `json:"ocr_default_dpi"`
}

// DefaultSettings mirrors the seed row created when the settings table is
// empty.
func DefaultSettings() Settings {
	return Settings{
		PrecisionThreshold: 60,
		VLMModel:           "qwen3-vl",
		VLMMaxTokens:       8192,
		VLMTimeout:         120 * time.Second,
		OCRLanguage:        "kor+eng",
		OCRDefaultDPI:      200,
	}
}
