package data

import (
	"context"
	"errors"
	"sync"
	"time"
)

// memoryCacheSweepAt is the entry count that triggers an inline sweep of
// expired entries on write.
const memoryCacheSweepAt = 1024

type memoryCacheEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryCacheRepo implements the CacheRepository interface with an in-process
// map. It backs single-node deployments and tests where Redis is not running.
type MemoryCacheRepo struct {
	mu           sync.RWMutex
	entries      map[string]memoryCacheEntry
	timeProvider TimeProvider
}

// NewMemoryCacheRepo creates a new MemoryCacheRepo.
func NewMemoryCacheRepo() *MemoryCacheRepo {
	return &MemoryCacheRepo{
		entries:      make(map[string]memoryCacheEntry),
		timeProvider: &RealTimeProvider{},
	}
}

// NewMemoryCacheRepoWithTimeProvider creates a MemoryCacheRepo with a custom time provider (useful for tests).
func NewMemoryCacheRepoWithTimeProvider(tp TimeProvider) *MemoryCacheRepo {
	return &MemoryCacheRepo{
		entries:      make(map[string]memoryCacheEntry),
		timeProvider: tp,
	}
}

// Set stores a value with the given key and TTL. A TTL of 0 never expires.
func (r *MemoryCacheRepo) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= memoryCacheSweepAt {
		r.evictExpiredLocked()
	}

	r.entries[key] = memoryCacheEntry{
		value:     append([]byte(nil), value...),
		expiresAt: r.expiry(ttl),
	}
	return nil
}

// Get retrieves a value by key. Returns nil if the key doesn't exist or has expired.
func (r *MemoryCacheRepo) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if r.expired(entry) {
		r.mu.Lock()
		delete(r.entries, key)
		r.mu.Unlock()
		return nil, nil
	}

	return append([]byte(nil), entry.value...), nil
}

// Delete removes a key. Returns true if the key existed.
func (r *MemoryCacheRepo) Delete(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		return false, nil
	}
	delete(r.entries, key)
	return !r.expired(entry), nil
}

// Exists checks if a key exists and has not expired.
func (r *MemoryCacheRepo) Exists(ctx context.Context, key string) (bool, error) {
	v, err := r.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// SetTTL updates the TTL for an existing key. Returns true if the key exists.
func (r *MemoryCacheRepo) SetTTL(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || r.expired(entry) {
		delete(r.entries, key)
		return false, nil
	}

	entry.expiresAt = r.expiry(ttl)
	r.entries[key] = entry
	return true, nil
}

// SetIfNotExists atomically sets a key only if it doesn't already exist.
func (r *MemoryCacheRepo) SetIfNotExists(
	_ context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	actualTTL := ttl
	if ttl <= 0 {
		actualTTL = time.Second // Minimum TTL of 1 second, matching the Redis implementation
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[key]; ok && !r.expired(entry) {
		return false, nil
	}

	r.entries[key] = memoryCacheEntry{
		value:     append([]byte(nil), value...),
		expiresAt: r.expiry(actualTTL),
	}
	return true, nil
}

// Health always reports healthy for the in-process cache.
func (r *MemoryCacheRepo) Health(_ context.Context) error {
	return nil
}

// Len returns the number of live entries, sweeping expired ones first.
func (r *MemoryCacheRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictExpiredLocked()
	return len(r.entries)
}

func (r *MemoryCacheRepo) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return r.timeProvider.Now().Add(ttl)
}

func (r *MemoryCacheRepo) expired(entry memoryCacheEntry) bool {
	return !entry.expiresAt.IsZero() && r.timeProvider.Now().After(entry.expiresAt)
}

func (r *MemoryCacheRepo) evictExpiredLocked() {
	for key, entry := range r.entries {
		if r.expired(entry) {
			delete(r.entries, key)
		}
	}
}
