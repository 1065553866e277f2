// Package stream holds the accepted signal state: the single active signal
// and a short newest-first history.
//
// Candidates are deduplicated by timestamp only. A candidate whose timestamp
// equals the active signal's timestamp is dropped even when its content
// differs; two distinct signals produced within the same timestamp
// granularity therefore collapse into the first one.
package stream

import (
	"sync"

	"trading-signalsv1/internal/strategy"
)

// DefaultHistorySize is the number of accepted signals retained.
const DefaultHistorySize = 5

// Stream tracks the active signal and a capped history.
//
// Thread-safe for concurrent reads; Offer calls are serialized.
type Stream struct {
	mu      sync.RWMutex
	active  *strategy.Signal
	history []strategy.Signal // newest first
	size    int

	accepted uint64
	dropped  uint64
}

// New creates a stream keeping at most size signals of history.
func New(size int) *Stream {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &Stream{
		history: make([]strategy.Signal, 0, size),
		size:    size,
	}
}

// Offer proposes a candidate. It is accepted when there is no active signal
// or its timestamp differs from the active one; accepted signals become
// active and are prepended to history. Returns whether it was accepted.
func (s *Stream) Offer(sig strategy.Signal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && s.active.Timestamp.Equal(sig.Timestamp) {
		s.dropped++
		return false
	}

	active := sig
	s.active = &active

	if len(s.history) < s.size {
		s.history = append(s.history, strategy.Signal{})
	}
	copy(s.history[1:], s.history[:len(s.history)-1])
	s.history[0] = sig

	s.accepted++
	return true
}

// Active returns the current active signal. ok is false if none exists.
func (s *Stream) Active() (sig strategy.Signal, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return strategy.Signal{}, false
	}
	return *s.active, true
}

// History returns a copy of the retained signals, newest first.
func (s *Stream) History() []strategy.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]strategy.Signal, len(s.history))
	copy(out, s.history)
	return out
}

// Stats returns the number of accepted and dropped candidates.
func (s *Stream) Stats() (accepted, dropped uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accepted, s.dropped
}
