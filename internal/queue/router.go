// Package queue routes documents to per-tier execution queues and drains
// them with independently sized worker pools.
package queue

import "github.com/pbt-labs/pbt-ocr/constants"

// Queue identifiers. One queue per engine tier.
const (
	QueueFast      = "fast_ocr"
	QueueAccurate  = "accurate_ocr"
	QueuePrecision = "precision_ocr"
)

// RouteQueue maps an OCR mode to its execution queue. AUTO is provisionally
// routed to the cheapest queue; the concrete tier is resolved inside the
// executor when the worker picks the job up, so settings changed between
// enqueue and execution still apply. Unrecognized modes route to fast_ocr.
func RouteQueue(mode constants.OCRMode) string {
	switch mode {
	case constants.ModeFast:
		return QueueFast
	case constants.ModeAccurate:
		return QueueAccurate
	case constants.ModePrecision:
		return QueuePrecision
	case constants.ModeAuto:
		return QueueFast
	default:
		return QueueFast
	}
}
