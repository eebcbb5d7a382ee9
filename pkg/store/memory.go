package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default in-process Store. One mutex guards all four
// maps; every check-then-act sequence runs inside it.
type MemoryStore struct {
	mu       sync.Mutex
	opts     Options
	windows  map[string][]time.Time
	blocks   map[string]BlockEntry
	failed   map[string]FailedLoginEntry
	activity map[string][]ActivityRecord
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:     opts,
		windows:  make(map[string][]time.Time),
		blocks:   make(map[string]BlockEntry),
		failed:   make(map[string]FailedLoginEntry),
		activity: make(map[string][]ActivityRecord),
	}
}

func (s *MemoryStore) CountRequests(_ context.Context, addr string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pruneWindowLocked(addr, now)), nil
}

func (s *MemoryStore) ReserveRequest(_ context.Context, addr string, now time.Time, max int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := s.pruneWindowLocked(addr, now)
	if len(window) >= max {
		return false, nil
	}
	s.windows[addr] = append(window, now)
	return true, nil
}

// pruneWindowLocked drops timestamps older than the window and stores the
// trimmed slice back. Caller holds the lock.
func (s *MemoryStore) pruneWindowLocked(addr string, now time.Time) []time.Time {
	window := s.windows[addr]
	if len(window) == 0 {
		return window
	}

	cutoff := now.Add(-s.opts.WindowDuration)
	// Timestamps are appended in order; find the first one still in range.
	keep := 0
	for keep < len(window) && window[keep].Before(cutoff) {
		keep++
	}
	if keep > 0 {
		window = append(window[:0:0], window[keep:]...)
		if len(window) == 0 {
			delete(s.windows, addr)
		} else {
			s.windows[addr] = window
		}
	}
	return window
}

func (s *MemoryStore) GetBlock(_ context.Context, addr string, now time.Time) (*BlockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.blocks[addr]
	if !ok {
		return nil, nil
	}
	if entry.Expired(now) {
		delete(s.blocks, addr)
		return nil, nil
	}
	out := entry
	return &out, nil
}

func (s *MemoryStore) SetBlock(_ context.Context, entry BlockEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[entry.Address] = entry
	return nil
}

func (s *MemoryStore) RemoveBlock(_ context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, addr)
	return nil
}

func (s *MemoryStore) IncrementFailedLogins(_ context.Context, addr string, now time.Time) (FailedLoginEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.failed[addr]
	if !ok || now.Sub(entry.LastAttempt) > s.opts.FailedLoginTTL {
		entry = FailedLoginEntry{FirstAttempt: now}
	}
	entry.Count++
	entry.LastAttempt = now
	s.failed[addr] = entry
	return entry, nil
}

func (s *MemoryStore) FailedLoginCount(_ context.Context, addr string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.failed[addr]
	if !ok {
		return 0, nil
	}
	if now.Sub(entry.LastAttempt) > s.opts.FailedLoginTTL {
		delete(s.failed, addr)
		return 0, nil
	}
	return entry.Count, nil
}

func (s *MemoryStore) ResetFailedLogins(_ context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failed, addr)
	return nil
}

func (s *MemoryStore) AppendActivity(_ context.Context, addr string, rec ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := append(s.activity[addr], rec)
	if over := len(ring) - s.opts.ActivityCapacity; over > 0 {
		ring = append(ring[:0:0], ring[over:]...)
	}
	s.activity[addr] = ring
	return nil
}

func (s *MemoryStore) RecentActivity(_ context.Context, addr string) ([]ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := s.activity[addr]
	out := make([]ActivityRecord, len(ring))
	for i, rec := range ring {
		out[len(ring)-1-i] = rec
	}
	return out, nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for addr := range s.windows {
		s.pruneWindowLocked(addr, now)
	}
	for addr, entry := range s.blocks {
		if entry.Expired(now) {
			delete(s.blocks, addr)
		}
	}
	for addr, entry := range s.failed {
		if now.Sub(entry.LastAttempt) > s.opts.FailedLoginTTL {
			delete(s.failed, addr)
		}
	}
	return nil
}
