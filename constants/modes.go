package constants

// OCRMode selects the engine tier used to process a document.
// Tiers are ordered by increasing cost and accuracy.
type OCRMode string

// Stable values (store these exact strings in DB).
const (
	ModeFast      OCRMode = "FAST"      // CPU word-box engine
	ModeAccurate  OCRMode = "ACCURATE"  // deep-learning layout engine
	ModePrecision OCRMode = "PRECISION" // vision-language engine (GPU)
	ModeAuto      OCRMode = "AUTO"      // resolved to a concrete tier at execution time
)

// IsConcrete reports whether the mode names an actual engine tier.
func (m OCRMode) IsConcrete() bool {
	switch m {
	case ModeFast, ModeAccurate, ModePrecision:
		return true
	}
	return false
}

// Downgrade returns the next cheaper tier in the fallback chain
// PRECISION -> ACCURATE -> FAST. FAST has no cheaper tier and
// downgrades to itself.
func (m OCRMode) Downgrade() (OCRMode, bool) {
	switch m {
	case ModePrecision:
		return ModeAccurate, true
	case ModeAccurate:
		return ModeFast, true
	}
	return ModeFast, false
}

// Importance is the operator-declared business importance of a document.
type Importance string

const (
	ImportanceLow    Importance = "LOW"
	ImportanceMedium Importance = "MEDIUM"
	ImportanceHigh   Importance = "HIGH"
)
