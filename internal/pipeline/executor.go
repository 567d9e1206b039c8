package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pbt-labs/pbt-ocr/constants"
	"github.com/pbt-labs/pbt-ocr/internal/decision"
	"github.com/pbt-labs/pbt-ocr/internal/engine"
	"github.com/pbt-labs/pbt-ocr/internal/entity"
)

// Outcome is the result of one engine execution. RequestedTier is the tier
// the document asked for after Auto resolution; ActualTier is the tier that
// ran, which differs when the fallback chain downgraded.
type Outcome struct {
	RequestedTier  constants.OCRMode
	ActualTier     constants.OCRMode
	EngineName     string
	Recommendation *decision.Recommendation
	Pages          []engine.PageResult
}

// Executor resolves a document's effective tier, walks the fallback chain
// over the capability registry, and invokes the selected adapter once.
type Executor struct {
	registry *engine.Registry
	logger   *slog.Logger
}

func NewExecutor(registry *engine.Registry, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: registry, logger: logger}
}

// Resolve returns the effective tier for doc. A concrete declared mode wins;
// Auto consults the decision engine with the current precision threshold.
func (e *Executor) Resolve(doc entity.Document, precisionThreshold int) (constants.OCRMode, *decision.Recommendation) {
	if doc.DeclaredMode.IsConcrete() {
		return doc.DeclaredMode, nil
	}
	eng := decision.NewEngine(decision.Config{PrecisionThreshold: precisionThreshold})
	rec := eng.Recommend(doc)
	e.logger.Info("pipeline.mode.resolved",
		"doc_id", doc.ID,
		"mode", rec.Mode,
		"score", rec.Score,
		"reasons", rec.Reasons,
	)
	return rec.Mode, &rec
}

// Execute runs OCR for doc against localPath. Unavailable tiers downgrade
// along PRECISION -> ACCURATE -> FAST before the adapter is invoked; each
// downgrade is logged with the requested and actual tier. Once an adapter is
// invoked, its errors propagate as processing failures and never re-enter
// the fallback chain.
func (e *Executor) Execute(ctx context.Context, doc entity.Document, localPath string, precisionThreshold int) (*Outcome, error) {
	requested, rec := e.Resolve(doc, precisionThreshold)

	tier := requested
	for {
		adapter, available := e.registry.Lookup(tier)
		if available {
			if tier != requested {
				e.logger.Warn("pipeline.tier.downgraded",
					"doc_id", doc.ID,
					"requested_tier", requested,
					"actual_tier", tier,
				)
			}
			pages, err := adapter.Process(ctx, localPath)
			if err != nil {
				return nil, fmt.Errorf("engine %s: %w", adapter.Name(), err)
			}
			e.logger.Info("pipeline.execute.ok",
				"doc_id", doc.ID,
				"engine", adapter.Name(),
				"tier", tier,
				"pages", len(pages),
			)
			return &Outcome{
				RequestedTier:  requested,
				ActualTier:     tier,
				EngineName:     adapter.Name(),
				Recommendation: rec,
				Pages:          pages,
			}, nil
		}

		next, ok := tier.Downgrade()
		if !ok {
			return nil, fmt.Errorf("no available adapter for tier %s or below", requested)
		}
		tier = next
	}
}
