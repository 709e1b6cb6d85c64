package detectors

import (
	"fmt"
	"slices"
	"sync"
)

// Strategy describes how to build a detector for one run.
type Strategy struct {
	Algorithm Algorithm
	// New returns a fresh detector; runs never share detector state.
	New func(seed int64) Detector
	// Available reports whether the strategy can run in this build.
	// A nil Available means always available.
	Available func() bool
}

// Registry maps algorithms to strategies and resolves unavailable ones to a
// fallback.
type Registry struct {
	mu         sync.RWMutex
	strategies map[Algorithm]Strategy
	fallback   Algorithm
}

// NewRegistry creates an empty registry that falls back to the given
// algorithm when a requested strategy is unavailable.
func NewRegistry(fallback Algorithm) *Registry {
	return &Registry{
		strategies: make(map[Algorithm]Strategy),
		fallback:   fallback,
	}
}

// Register adds or replaces a strategy.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Algorithm] = s
}

// Algorithms returns the registered algorithms in a stable order.
func (r *Registry) Algorithms() []Algorithm {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Algorithm, 0, len(r.strategies))
	for a := range r.strategies {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Available reports whether a registered algorithm can run.
func (r *Registry) Available(a Algorithm) bool {
	r.mu.RLock()
	s, ok := r.strategies[a]
	r.mu.RUnlock()
	return ok && (s.Available == nil || s.Available())
}

// Resolve returns the strategy for a. When a is registered but unavailable
// the fallback strategy is returned and fellBack is true.
func (r *Registry) Resolve(a Algorithm) (s Strategy, fellBack bool, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[a]
	if !ok {
		return Strategy{}, false, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, a)
	}
	if s.Available == nil || s.Available() {
		return s, false, nil
	}

	fb, ok := r.strategies[r.fallback]
	if !ok || a == r.fallback || (fb.Available != nil && !fb.Available()) {
		return Strategy{}, false, fmt.Errorf("%w: %q has no usable fallback", ErrUnavailable, a)
	}
	return fb, true, nil
}
