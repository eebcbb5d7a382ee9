package store

import (
	"context"
	"time"
)

// BlockEntry is an active block placed on a network address. A block is
// logically expired once now passes ExpiresAt; expired entries are dropped
// lazily on read and physically removed by the janitor sweep.
type BlockEntry struct {
	Address   string    `json:"address"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e BlockEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// FailedLoginEntry tallies failed logins from one address. The counter is
// evicted after FailedLoginTTL of inactivity.
type FailedLoginEntry struct {
	Count        int       `json:"count"`
	FirstAttempt time.Time `json:"first_attempt"`
	LastAttempt  time.Time `json:"last_attempt"`
}

// ActivityRecord is one entry in the bounded per-address suspicious
// activity ring.
type ActivityRecord struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// Options fixes the retention parameters of a store at construction.
type Options struct {
	// Sliding window for request counting.
	WindowDuration time.Duration
	// Idle time after which failed-login counters are evicted.
	FailedLoginTTL time.Duration
	// Ring capacity of the per-address activity log.
	ActivityCapacity int
}

// Store holds the shared mutable security state: request windows, the block
// registry, failed-login counters and activity rings. Implementations must
// be safe under concurrent callers, and every read must discard out-of-range
// entries before evaluating a threshold, so behavior does not depend on the
// janitor running.
type Store interface {
	// CountRequests returns the number of requests recorded for addr within
	// the trailing window ending at now.
	CountRequests(ctx context.Context, addr string, now time.Time) (int, error)
	// ReserveRequest appends now to addr's window iff the in-window count is
	// below max. Check and append are one atomic step, so concurrent callers
	// racing the limit can never over-admit.
	ReserveRequest(ctx context.Context, addr string, now time.Time, max int) (bool, error)

	// GetBlock returns the active block for addr, or nil when the address is
	// not blocked or the block has expired.
	GetBlock(ctx context.Context, addr string, now time.Time) (*BlockEntry, error)
	// SetBlock inserts or overwrites the block for entry.Address.
	SetBlock(ctx context.Context, entry BlockEntry) error
	// RemoveBlock lifts the block on addr, if any.
	RemoveBlock(ctx context.Context, addr string) error

	// IncrementFailedLogins bumps the counter for addr, starting a fresh one
	// when the previous counter has gone idle past FailedLoginTTL.
	IncrementFailedLogins(ctx context.Context, addr string, now time.Time) (FailedLoginEntry, error)
	// FailedLoginCount returns the live count for addr, zero once idle past
	// FailedLoginTTL.
	FailedLoginCount(ctx context.Context, addr string, now time.Time) (int, error)
	// ResetFailedLogins discards the counter for addr.
	ResetFailedLogins(ctx context.Context, addr string) error

	// AppendActivity pushes a record onto addr's ring, evicting the oldest
	// entry at capacity.
	AppendActivity(ctx context.Context, addr string, rec ActivityRecord) error
	// RecentActivity returns addr's ring, newest first.
	RecentActivity(ctx context.Context, addr string) ([]ActivityRecord, error)

	// Sweep evicts expired blocks, idle failed-login counters and empty
	// windows. It only bounds memory; correctness never depends on it.
	Sweep(ctx context.Context, now time.Time) error
}
