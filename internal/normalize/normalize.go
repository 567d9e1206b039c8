// Package normalize converts engine-native page output into the canonical
// Page/Block schema. All three tiers funnel through here, so downstream code
// (persistence, export) never sees engine-specific shapes.
package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pbt-labs/pbt-ocr/constants"
	"github.com/pbt-labs/pbt-ocr/internal/engine"
	"github.com/pbt-labs/pbt-ocr/internal/entity"
)

// engineMetadata is the audit envelope stored with each page: the unmodified
// engine payload plus the tier that actually produced it. The actual tier can
// differ from the declared one when Auto resolution or fallback rerouted the
// document.
type engineMetadata struct {
	Engine       string            `json:"engine"`
	Tier         constants.OCRMode `json:"tier"`
	NormalizedAt time.Time         `json:"normalized_at"`
	Raw          engine.PageResult `json:"raw"`
}

// Page converts one engine page into a canonical Page and its Blocks.
// engineName and tier identify the adapter that actually ran.
//
// Rules applied to every block:
//   - bbox coordinates are clamped into [0,1]
//   - blocks whose clamped bbox has no area (x1>=x2 or y1>=y2) are discarded
//   - free-form engine type tags map onto the closed BlockType set,
//     unrecognized tags become TEXT
//   - a TABLE block without cell data is downgraded to TEXT, or discarded
//     when it has no text either
//   - order is reassigned as a contiguous 0-based sequence after filtering
func Page(res engine.PageResult, engineName string, tier constants.OCRMode) (entity.Page, []entity.Block, error) {
	meta, err := json.Marshal(engineMetadata{
		Engine:       engineName,
		Tier:         tier,
		NormalizedAt: time.Now().UTC(),
		Raw:          res,
	})
	if err != nil {
		return entity.Page{}, nil, fmt.Errorf("marshal engine metadata: %w", err)
	}

	page := entity.Page{
		PageNo:         res.PageNo,
		Width:          res.Width,
		Height:         res.Height,
		RawText:        res.RawText,
		Confidence:     clamp01(res.Confidence),
		LayoutScore:    clamp01(res.LayoutScore),
		EngineMetadata: meta,
	}

	blocks := make([]entity.Block, 0, len(res.Blocks))
	for _, b := range res.Blocks {
		bbox := [4]float64{
			clamp01(b.BBox[0]),
			clamp01(b.BBox[1]),
			clamp01(b.BBox[2]),
			clamp01(b.BBox[3]),
		}
		if bbox[0] >= bbox[2] || bbox[1] >= bbox[3] {
			continue
		}

		blockType := constants.MapBlockType(b.Type)
		if blockType == constants.BlockTable && len(b.Table) == 0 {
			if b.Text == "" {
				continue
			}
			blockType = constants.BlockText
		}
		nb := entity.Block{
			Order:      len(blocks),
			Type:       blockType,
			BBox:       bbox,
			Confidence: clamp01(b.Confidence),
		}
		if blockType == constants.BlockTable {
			nb.Table = b.Table
		}
		if b.Text != "" {
			text := b.Text
			nb.Text = &text
		}
		blocks = append(blocks, nb)
	}

	return page, blocks, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
