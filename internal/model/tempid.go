package model

import (
	"sync"
	"time"
)

// TempIDSource issues temporary client-side message ids for optimistic
// sends. IDs are the current epoch milliseconds, bumped by one when two
// sends land in the same millisecond, so they are strictly increasing
// within a session and cannot collide with each other.
type TempIDSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewTempIDSource creates a source using the wall clock.
func NewTempIDSource() *TempIDSource {
	return &TempIDSource{now: time.Now}
}

// Next returns the next temporary id.
func (s *TempIDSource) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.now().UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}
