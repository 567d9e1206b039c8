package accurate

// BuildLayoutResponseSchema returns the JSON-Schema (draft 2020-12 subset)
// that recognizer responses must satisfy before block assembly. Validating
// up front turns a drifting service contract into a MalformedEngineOutput
// instead of a silent mis-parse.
func BuildLayoutResponseSchema() map[string]any {
	line := map[string]any{
		"type":                 "object",
		"additionalProperties": true,
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
			"bbox": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "number"},
				"minItems": 4,
				"maxItems": 4,
			},
			"confidence":    map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"reading_order": map[string]any{"type": "integer", "minimum": 0},
		},
		"required": []string{"text", "bbox", "confidence", "reading_order"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": true,
		"properties": map[string]any{
			"lines": map[string]any{
				"type":  "array",
				"items": line,
			},
			"layout_score": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"lines"},
	}
}
