// Package core provides the business logic and service layer for the optilab solve system.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/optilab/optilab-api/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// SetTTL updates the TTL for an existing key.
	// Returns true if the key exists and TTL was updated.
	SetTTL(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	// This is useful for implementing distributed locks and deduplication.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// JobStatusCache holds polled job status snapshots in the cache so the status
// endpoint does not hit Postgres on every poll tick. The database stays
// authoritative: a cache miss is answered from the job row and the snapshot
// is written back.
type JobStatusCache struct {
	cache       CacheRepository
	activeTTL   time.Duration
	terminalTTL time.Duration
}

// JobStatusCacheConfig holds configuration for job status snapshot caching.
type JobStatusCacheConfig struct {
	// ActiveTTL bounds how long a queued/running snapshot may live so
	// abandoned jobs do not pin keys forever.
	ActiveTTL time.Duration `json:"active_ttl"`
	// TerminalTTL bounds how long completed/failed/cancelled snapshots are
	// kept for late pollers before the store self-cleans.
	TerminalTTL time.Duration `json:"terminal_ttl"`
}

// DefaultJobStatusCacheConfig returns a JobStatusCacheConfig with sensible defaults.
func DefaultJobStatusCacheConfig() JobStatusCacheConfig {
	return JobStatusCacheConfig{
		ActiveTTL:   24 * time.Hour,
		TerminalTTL: time.Hour,
	}
}

// NewJobStatusCache creates a new JobStatusCache.
func NewJobStatusCache(cache CacheRepository, cfg JobStatusCacheConfig) *JobStatusCache {
	if cfg.ActiveTTL <= 0 {
		cfg.ActiveTTL = DefaultJobStatusCacheConfig().ActiveTTL
	}
	if cfg.TerminalTTL <= 0 {
		cfg.TerminalTTL = DefaultJobStatusCacheConfig().TerminalTTL
	}
	return &JobStatusCache{
		cache:       cache,
		activeTTL:   cfg.ActiveTTL,
		terminalTTL: cfg.TerminalTTL,
	}
}

// Put stores a status snapshot for a job, choosing the TTL by whether the
// status is terminal.
func (s *JobStatusCache) Put(ctx context.Context, snap *model.JobStatusSnapshot) error {
	if snap == nil || snap.JobID == "" {
		return nil
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal status snapshot: %w", err)
	}

	ttl := s.activeTTL
	if snap.Status.Terminal() {
		ttl = s.terminalTTL
	}

	return s.cache.Set(ctx, s.statusKey(snap.JobID), payload, ttl)
}

// Get retrieves the cached status snapshot for a job.
// Returns nil without error on a cache miss.
func (s *JobStatusCache) Get(ctx context.Context, jobID string) (*model.JobStatusSnapshot, error) {
	if jobID == "" {
		return nil, nil
	}

	raw, err := s.cache.Get(ctx, s.statusKey(jobID))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var snap model.JobStatusSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// A corrupt snapshot is treated as a miss; the caller rebuilds it
		// from the job row.
		return nil, nil
	}
	return &snap, nil
}

// Delete removes the cached status snapshot for a job.
func (s *JobStatusCache) Delete(ctx context.Context, jobID string) error {
	if jobID == "" {
		return nil
	}

	_, err := s.cache.Delete(ctx, s.statusKey(jobID))
	return err
}

// statusKey generates a cache key for a job status snapshot.
func (s *JobStatusCache) statusKey(jobID string) string {
	return "solve:status:" + jobID
}
