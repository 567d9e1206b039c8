package engine

import (
	"log/slog"
	"sync"

	"github.com/pbt-labs/pbt-ocr/constants"
)

// Registry is the process-wide capability map from tier to adapter. It is
// populated once at startup: each adapter reports whether its runtime
// dependency initialized (VLM endpoint configured, recognizer service
// reachable), and the executor queries availability without exception-driven
// probing afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[constants.OCRMode]registration
	logger  *slog.Logger
}

type registration struct {
	adapter   Adapter
	available bool
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[constants.OCRMode]registration),
		logger:  logger,
	}
}

// Register records an adapter and its availability for its tier.
func (r *Registry) Register(a Adapter, available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[a.Tier()] = registration{adapter: a, available: available}
	r.logger.Info("engine.registered", "tier", a.Tier(), "engine", a.Name(), "available", available)
}

// Lookup returns the adapter for a tier and whether it is available. A tier
// with no registration at all is reported unavailable.
func (r *Registry) Lookup(tier constants.OCRMode) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[tier]
	if !ok {
		return nil, false
	}
	return reg.adapter, reg.available
}

// Available reports whether the tier has a usable adapter.
func (r *Registry) Available(tier constants.OCRMode) bool {
	_, ok := r.Lookup(tier)
	return ok
}
