package accessibility

import (
	"fmt"
	"sync"
)

// DetectedElement is a flat summary of an indexed element, used by debug overlays.
type DetectedElement struct {
	Index int    `json:"index"`
	Role  string `json:"role"`
	Label string `json:"label"`
	Rect  Rect   `json:"rect"`
}

// ScreenAnalysis is the product of one perception cycle. Its index map is a
// single-generation token: once the reader produces a newer analysis, every
// lookup against this one fails with ErrStaleAnalysis.
type ScreenAnalysis struct {
	UIRepresentation string            `json:"ui_representation"`
	AppName          string            `json:"app_name"`
	Elements         []DetectedElement `json:"elements"`
	Generation       uint64            `json:"generation"`

	mu    sync.RWMutex
	index map[int]Element
	stale bool
}

func newScreenAnalysis(generation uint64) *ScreenAnalysis {
	return &ScreenAnalysis{
		Generation: generation,
		index:      make(map[int]Element),
	}
}

// Lookup resolves an index to the live element it was assigned to.
func (s *ScreenAnalysis) Lookup(index int) (Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stale {
		return nil, fmt.Errorf("index %d in generation %d: %w", index, s.Generation, ErrStaleAnalysis)
	}
	el, ok := s.index[index]
	if !ok {
		return nil, fmt.Errorf("index %d: %w", index, ErrIndexNotFound)
	}
	return el, nil
}

// Len reports how many elements were indexed.
func (s *ScreenAnalysis) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Stale reports whether a newer cycle has replaced this analysis.
func (s *ScreenAnalysis) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// invalidate drops every live handle so nothing outlives the cycle.
func (s *ScreenAnalysis) invalidate() {
	s.mu.Lock()
	s.stale = true
	s.index = nil
	s.mu.Unlock()
}
