// Package decision implements the OCR mode recommendation engine.
//
// Recommend is a pure function of document metadata: override rules are
// checked first and short-circuit scoring entirely, then a precision score
// is accumulated and compared against the configured thresholds.
package decision

import (
	"fmt"
	"strings"

	"github.com/pbt-labs/pbt-ocr/constants"
	"github.com/pbt-labs/pbt-ocr/internal/entity"
)

// accurateThreshold is the fixed lower score bound for the ACCURATE tier.
const accurateThreshold = 30

// DefaultPrecisionRequiredTypes lists document types that always demand
// precision OCR, with their localized equivalents.
var DefaultPrecisionRequiredTypes = []string{
	"contract", "financial", "legal", "research",
	"계약", "재무", "법무", "연구",
}

// Recommendation is the outcome of a mode decision.
type Recommendation struct {
	Mode    constants.OCRMode `json:"recommended_mode"`
	Score   int               `json:"precision_score"`
	Reasons []string          `json:"reasons"`
}

// Config tunes the decision engine. PrecisionThreshold comes from the
// settings snapshot; the type set is deployment-fixed.
type Config struct {
	PrecisionRequiredTypes []string
	PrecisionThreshold     int
}

// DefaultConfig returns the engine configuration used when no settings
// snapshot is available.
func DefaultConfig() Config {
	return Config{
		PrecisionRequiredTypes: DefaultPrecisionRequiredTypes,
		PrecisionThreshold:     60,
	}
}

// Engine recommends an OCR tier for a document. It performs no I/O.
type Engine struct {
	threshold int
	required  map[string]struct{}
}

// NewEngine builds an engine from cfg, falling back to defaults for zero
// values.
func NewEngine(cfg Config) *Engine {
	if cfg.PrecisionThreshold <= 0 {
		cfg.PrecisionThreshold = 60
	}
	if len(cfg.PrecisionRequiredTypes) == 0 {
		cfg.PrecisionRequiredTypes = DefaultPrecisionRequiredTypes
	}
	required := make(map[string]struct{}, len(cfg.PrecisionRequiredTypes))
	for _, t := range cfg.PrecisionRequiredTypes {
		required[strings.ToLower(t)] = struct{}{}
	}
	return &Engine{threshold: cfg.PrecisionThreshold, required: required}
}

// Recommend returns the tier recommendation for doc. Identical inputs always
// yield identical outputs.
func (e *Engine) Recommend(doc entity.Document) Recommendation {
	// Override: force precision.
	if doc.DocType != nil && e.isPrecisionRequired(*doc.DocType) {
		return Recommendation{
			Mode:    constants.ModePrecision,
			Score:   100,
			Reasons: []string{fmt.Sprintf("document type %q requires precision OCR", *doc.DocType)},
		}
	}
	if doc.Importance == constants.ImportanceHigh {
		return Recommendation{
			Mode:    constants.ModePrecision,
			Score:   100,
			Reasons: []string{"importance High requires precision OCR"},
		}
	}

	// Override: force fast. Exactly 200 pages does not trigger this and
	// falls through to scoring.
	if doc.Importance == constants.ImportanceLow && doc.PageCount != nil && *doc.PageCount > 200 {
		return Recommendation{
			Mode:    constants.ModeFast,
			Score:   0,
			Reasons: []string{fmt.Sprintf("importance Low with %d pages (>200) suits fast OCR", *doc.PageCount)},
		}
	}

	// Score accumulation. The High and precision-type terms are unreachable
	// behind the overrides above; they stay to document the full rubric.
	var reasons []string
	score := 0
	switch doc.Importance {
	case constants.ImportanceHigh:
		score += 30
		reasons = append(reasons, "importance High (+30)")
	case constants.ImportanceMedium:
		score += 15
		reasons = append(reasons, "importance Medium (+15)")
	}
	if doc.DocType != nil && e.isPrecisionRequired(*doc.DocType) {
		score += 25
		reasons = append(reasons, fmt.Sprintf("document type %s (+25)", *doc.DocType))
	}
	if doc.PageCount != nil && *doc.PageCount > 100 {
		score -= 15
		reasons = append(reasons, fmt.Sprintf("page count %dp (-15)", *doc.PageCount))
	}

	var mode constants.OCRMode
	switch {
	case score >= e.threshold:
		mode = constants.ModePrecision
		reasons = append(reasons, fmt.Sprintf("total score %d >= precision threshold %d", score, e.threshold))
	case score >= accurateThreshold:
		mode = constants.ModeAccurate
		reasons = append(reasons, fmt.Sprintf("total score %d >= accurate threshold %d", score, accurateThreshold))
	default:
		mode = constants.ModeFast
		reasons = append(reasons, fmt.Sprintf("total score %d < accurate threshold %d", score, accurateThreshold))
	}

	return Recommendation{Mode: mode, Score: score, Reasons: reasons}
}

func (e *Engine) isPrecisionRequired(docType string) bool {
	_, ok := e.required[strings.ToLower(strings.TrimSpace(docType))]
	return ok
}
