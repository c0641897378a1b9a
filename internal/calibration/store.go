// Package calibration stores the baseline distance recorded for each sensor
// angle while calibration mode is active.
package calibration

import (
	"sort"
	"sync"
)

// Entry is the baseline recorded at one angle.
type Entry struct {
	Angle    float64 `json:"angle"`
	Baseline float64 `json:"baseline"`
}

// Store maps an exact angle value to the last distance recorded there while
// calibrating. Angles are not bucketed: a repeated reading at the same angle
// overwrites the previous baseline. A Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	active    bool
	baselines map[float64]float64
}

// NewStore returns an empty store with calibration mode off.
func NewStore() *Store {
	return &Store{baselines: make(map[float64]float64)}
}

// SetMode turns calibration mode on or off.
func (s *Store) SetMode(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

// Toggle flips calibration mode and returns the new mode.
func (s *Store) Toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = !s.active
	return s.active
}

// Active reports whether calibration mode is on.
func (s *Store) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// RecordIfCalibrating upserts the baseline for angle when calibration mode
// is on and reports whether it did. The mode check and the write happen
// under one lock, so a concurrent SetMode(false) cannot slip between them.
func (s *Store) RecordIfCalibrating(angle, distance float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	s.baselines[angle] = distance
	return true
}

// BaselineFor returns the baseline recorded at angle.
func (s *Store) BaselineFor(angle float64) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[angle]
	return b, ok
}

// Len returns the number of recorded baselines.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.baselines)
}

// Clear drops every baseline. The mode is left unchanged.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.baselines)
}

// Snapshot returns the baselines sorted by angle.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.baselines))
	for a, b := range s.baselines {
		out = append(out, Entry{Angle: a, Baseline: b})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Angle < out[j].Angle })
	return out
}
