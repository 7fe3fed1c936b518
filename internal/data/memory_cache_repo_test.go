package data

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optilab/optilab-api/internal/testutil"
)

func TestMemoryCacheRepo_Set_Get_Delete(t *testing.T) {
	clock := NewFixedTimeProvider(testutil.TestTime())
	repo := NewMemoryCacheRepoWithTimeProvider(clock)
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		key := "test:key:1"
		value := []byte("test value")

		err := repo.Set(ctx, key, value, 5*time.Minute)
		require.NoError(t, err)

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, value, result)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		key := "test:key:copy"
		value := []byte("immutable")

		err := repo.Set(ctx, key, value, time.Minute)
		require.NoError(t, err)

		// Mutating the caller's slice must not reach the stored entry.
		value[0] = 'X'

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("immutable"), result)

		// Nor must mutating a returned slice.
		result[0] = 'Y'

		again, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("immutable"), again)
	})

	t.Run("get non-existent key", func(t *testing.T) {
		result, err := repo.Get(ctx, "non:existent:key")
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("expired key is a miss", func(t *testing.T) {
		key := "test:key:expiring"

		err := repo.Set(ctx, key, []byte("short lived"), time.Minute)
		require.NoError(t, err)

		clock.AddTime(2 * time.Minute)

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("zero ttl means no expiry", func(t *testing.T) {
		key := "test:key:forever"

		err := repo.Set(ctx, key, []byte("durable"), 0)
		require.NoError(t, err)

		clock.AddTime(365 * 24 * time.Hour)

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("durable"), result)
	})

	t.Run("delete existing key", func(t *testing.T) {
		key := "test:key:2"

		err := repo.Set(ctx, key, []byte("to be deleted"), time.Minute)
		require.NoError(t, err)

		deleted, err := repo.Delete(ctx, key)
		require.NoError(t, err)
		assert.True(t, deleted)

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("delete non-existent key", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, "non:existent:key")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("delete expired key reports false", func(t *testing.T) {
		key := "test:key:stale"

		err := repo.Set(ctx, key, []byte("stale"), time.Minute)
		require.NoError(t, err)

		clock.AddTime(2 * time.Minute)

		deleted, err := repo.Delete(ctx, key)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("exists", func(t *testing.T) {
		key := "test:key:3"

		exists, err := repo.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists)

		err = repo.Set(ctx, key, []byte("exists test"), time.Minute)
		require.NoError(t, err)

		exists, err = repo.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, exists)

		clock.AddTime(2 * time.Minute)

		exists, err = repo.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("set TTL extends expiry", func(t *testing.T) {
		key := "test:key:4"

		err := repo.Set(ctx, key, []byte("ttl test"), time.Minute)
		require.NoError(t, err)

		updated, err := repo.SetTTL(ctx, key, 10*time.Minute)
		require.NoError(t, err)
		assert.True(t, updated)

		clock.AddTime(5 * time.Minute)

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("ttl test"), result)
	})

	t.Run("set TTL on non-existent key", func(t *testing.T) {
		updated, err := repo.SetTTL(ctx, "non:existent:key", time.Minute)
		require.NoError(t, err)
		assert.False(t, updated)
	})

	t.Run("set TTL on expired key", func(t *testing.T) {
		key := "test:key:ttl-expired"

		err := repo.Set(ctx, key, []byte("gone"), time.Minute)
		require.NoError(t, err)

		clock.AddTime(2 * time.Minute)

		updated, err := repo.SetTTL(ctx, key, time.Hour)
		require.NoError(t, err)
		assert.False(t, updated)

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("set TTL zero clears expiry", func(t *testing.T) {
		key := "test:key:pinned"

		err := repo.Set(ctx, key, []byte("pinned"), time.Minute)
		require.NoError(t, err)

		updated, err := repo.SetTTL(ctx, key, 0)
		require.NoError(t, err)
		assert.True(t, updated)

		clock.AddTime(365 * 24 * time.Hour)

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("pinned"), result)
	})

	t.Run("set if not exists - new key", func(t *testing.T) {
		key := "test:key:5"
		value := []byte("setnx test")

		wasSet, err := repo.SetIfNotExists(ctx, key, value, time.Minute)
		require.NoError(t, err)
		assert.True(t, wasSet)

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, value, result)
	})

	t.Run("set if not exists - existing key", func(t *testing.T) {
		key := "test:key:6"
		originalValue := []byte("original value")

		err := repo.Set(ctx, key, originalValue, time.Minute)
		require.NoError(t, err)

		wasSet, err := repo.SetIfNotExists(ctx, key, []byte("new value"), time.Minute)
		require.NoError(t, err)
		assert.False(t, wasSet)

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, originalValue, result)
	})

	t.Run("set if not exists applies minimum ttl", func(t *testing.T) {
		key := "test:key:setnx-min-ttl"

		// A non-positive TTL is clamped to one second rather than living forever.
		wasSet, err := repo.SetIfNotExists(ctx, key, []byte("lock"), 0)
		require.NoError(t, err)
		assert.True(t, wasSet)

		clock.AddTime(2 * time.Second)

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("set if not exists wins after expiry", func(t *testing.T) {
		key := "test:key:setnx-retake"

		wasSet, err := repo.SetIfNotExists(ctx, key, []byte("first"), time.Minute)
		require.NoError(t, err)
		assert.True(t, wasSet)

		clock.AddTime(2 * time.Minute)

		wasSet, err = repo.SetIfNotExists(ctx, key, []byte("second"), time.Minute)
		require.NoError(t, err)
		assert.True(t, wasSet)

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), result)
	})

	t.Run("health check", func(t *testing.T) {
		err := repo.Health(ctx)
		assert.NoError(t, err)
	})
}

func TestMemoryCacheRepo_Validation(t *testing.T) {
	repo := NewMemoryCacheRepo()
	ctx := context.Background()

	t.Run("empty key validation", func(t *testing.T) {
		err := repo.Set(ctx, "", []byte("value"), time.Minute)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key cannot be empty")

		_, err = repo.Get(ctx, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key cannot be empty")

		_, err = repo.Delete(ctx, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key cannot be empty")

		_, err = repo.Exists(ctx, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key cannot be empty")

		_, err = repo.SetTTL(ctx, "", time.Minute)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key cannot be empty")

		_, err = repo.SetIfNotExists(ctx, "", []byte("value"), time.Minute)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key cannot be empty")
	})
}

func TestMemoryCacheRepo_LenSweepsExpired(t *testing.T) {
	clock := NewFixedTimeProvider(testutil.TestTime())
	repo := NewMemoryCacheRepoWithTimeProvider(clock)
	ctx := context.Background()

	for i := range 10 {
		err := repo.Set(ctx, fmt.Sprintf("sweep:%d", i), []byte("v"), time.Minute)
		require.NoError(t, err)
	}
	err := repo.Set(ctx, "sweep:keeper", []byte("v"), time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 11, repo.Len())

	clock.AddTime(2 * time.Minute)

	assert.Equal(t, 1, repo.Len())
}
