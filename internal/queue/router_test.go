package queue

import (
	"testing"

	"github.com/pbt-labs/pbt-ocr/constants"
)

func TestRouteQueue(t *testing.T) {
	tests := []struct {
		mode constants.OCRMode
		want string
	}{
		{constants.ModeFast, QueueFast},
		{constants.ModeAccurate, QueueAccurate},
		{constants.ModePrecision, QueuePrecision},
		{constants.ModeAuto, QueueFast},
		{constants.OCRMode("BOGUS"), QueueFast},
		{constants.OCRMode(""), QueueFast},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := RouteQueue(tt.mode); got != tt.want {
				t.Errorf("RouteQueue(%q) = %q, want %q", tt.mode, got, tt.want)
			}
		})
	}
}
