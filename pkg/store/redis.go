package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	windowKeyPattern   = "shield:window:%s"
	blockKeyPattern    = "shield:block:%s"
	failLogKeyPattern  = "shield:faillog:%s"
	activityKeyPattern = "shield:activity:%s"
)

// RedisStore keeps the shared state in Redis so several engine instances can
// converge on one view of an abusive address. Windows are sorted sets scored
// by timestamp, blocks and failed-login counters are JSON values with TTLs,
// activity rings are capped lists. Redis TTLs bound memory, so Sweep is a
// no-op here.
//
// The window reserve is a count-then-add pipeline, not a transaction over
// the count; strict admission atomicity under races is the MemoryStore's
// guarantee.
type RedisStore struct {
	client       *redis.Client
	opts         Options
	uuidProvider func() uuid.UUID
}

type RedisStoreOpts struct {
	UuidProvider func() uuid.UUID
}

func NewRedisStore(client *redis.Client, opts Options, storeOpts *RedisStoreOpts) *RedisStore {
	uuidProvider := uuid.New
	if storeOpts != nil && storeOpts.UuidProvider != nil {
		uuidProvider = storeOpts.UuidProvider
	}
	return &RedisStore{
		client:       client,
		opts:         opts,
		uuidProvider: uuidProvider,
	}
}

func (s *RedisStore) CountRequests(ctx context.Context, addr string, now time.Time) (int, error) {
	key := fmt.Sprintf(windowKeyPattern, addr)
	windowStart := now.Add(-s.opts.WindowDuration)

	count, err := s.client.ZCount(ctx, key,
		strconv.FormatInt(windowStart.UnixNano(), 10),
		strconv.FormatInt(now.UnixNano(), 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count requests for %s: %w", addr, err)
	}
	return int(count), nil
}

func (s *RedisStore) ReserveRequest(ctx context.Context, addr string, now time.Time, max int) (bool, error) {
	count, err := s.CountRequests(ctx, addr, now)
	if err != nil {
		return false, err
	}
	if count >= max {
		return false, nil
	}

	key := fmt.Sprintf(windowKeyPattern, addr)
	windowStart := now.Add(-s.opts.WindowDuration)
	member := fmt.Sprintf("%d:%s", now.UnixNano(), s.uuidProvider().String())

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: member,
	})
	pipe.Expire(ctx, key, s.opts.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to record request for %s: %w", addr, err)
	}
	return true, nil
}

func (s *RedisStore) GetBlock(ctx context.Context, addr string, now time.Time) (*BlockEntry, error) {
	key := fmt.Sprintf(blockKeyPattern, addr)
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block for %s: %w", addr, err)
	}

	var entry BlockEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block for %s: %w", addr, err)
	}
	if entry.Expired(now) {
		return nil, nil
	}
	return &entry, nil
}

func (s *RedisStore) SetBlock(ctx context.Context, entry BlockEntry) error {
	key := fmt.Sprintf(blockKeyPattern, entry.Address)
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal block for %s: %w", entry.Address, err)
	}

	ttl := entry.ExpiresAt.Sub(entry.BlockedAt)
	if err := s.client.Set(ctx, key, string(raw), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set block for %s: %w", entry.Address, err)
	}
	return nil
}

func (s *RedisStore) RemoveBlock(ctx context.Context, addr string) error {
	key := fmt.Sprintf(blockKeyPattern, addr)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to remove block for %s: %w", addr, err)
	}
	return nil
}

func (s *RedisStore) IncrementFailedLogins(ctx context.Context, addr string, now time.Time) (FailedLoginEntry, error) {
	key := fmt.Sprintf(failLogKeyPattern, addr)

	entry := FailedLoginEntry{FirstAttempt: now}
	raw, err := s.client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return FailedLoginEntry{}, fmt.Errorf("failed to get failed-login counter for %s: %w", addr, err)
	}
	if err == nil {
		var stored FailedLoginEntry
		if err := json.Unmarshal([]byte(raw), &stored); err == nil &&
			now.Sub(stored.LastAttempt) <= s.opts.FailedLoginTTL {
			entry = stored
		}
	}

	entry.Count++
	entry.LastAttempt = now

	out, err := json.Marshal(entry)
	if err != nil {
		return FailedLoginEntry{}, fmt.Errorf("failed to marshal failed-login counter for %s: %w", addr, err)
	}
	if err := s.client.Set(ctx, key, string(out), s.opts.FailedLoginTTL).Err(); err != nil {
		return FailedLoginEntry{}, fmt.Errorf("failed to set failed-login counter for %s: %w", addr, err)
	}
	return entry, nil
}

func (s *RedisStore) FailedLoginCount(ctx context.Context, addr string, now time.Time) (int, error) {
	key := fmt.Sprintf(failLogKeyPattern, addr)
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get failed-login counter for %s: %w", addr, err)
	}

	var entry FailedLoginEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return 0, fmt.Errorf("failed to unmarshal failed-login counter for %s: %w", addr, err)
	}
	if now.Sub(entry.LastAttempt) > s.opts.FailedLoginTTL {
		return 0, nil
	}
	return entry.Count, nil
}

func (s *RedisStore) ResetFailedLogins(ctx context.Context, addr string) error {
	key := fmt.Sprintf(failLogKeyPattern, addr)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to reset failed-login counter for %s: %w", addr, err)
	}
	return nil
}

func (s *RedisStore) AppendActivity(ctx context.Context, addr string, rec ActivityRecord) error {
	key := fmt.Sprintf(activityKeyPattern, addr)
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal activity record for %s: %w", addr, err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, string(raw))
	pipe.LTrim(ctx, key, 0, int64(s.opts.ActivityCapacity-1))
	pipe.Expire(ctx, key, s.opts.FailedLoginTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append activity for %s: %w", addr, err)
	}
	return nil
}

func (s *RedisStore) RecentActivity(ctx context.Context, addr string) ([]ActivityRecord, error) {
	key := fmt.Sprintf(activityKeyPattern, addr)
	items, err := s.client.LRange(ctx, key, 0, int64(s.opts.ActivityCapacity-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get activity for %s: %w", addr, err)
	}

	records := make([]ActivityRecord, 0, len(items))
	for _, item := range items {
		var rec ActivityRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Sweep is a no-op; Redis key TTLs already bound memory.
func (s *RedisStore) Sweep(context.Context, time.Time) error {
	return nil
}
