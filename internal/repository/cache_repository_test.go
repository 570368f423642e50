package repository

import (
	"context"
	"testing"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/uniportal-api/pkg/errors"
)

func TestMemoryCacheRepositoryRoundTrip(t *testing.T) {
	repo := NewMemoryCacheRepository(gocache.New(time.Minute, time.Minute))
	ctx := context.Background()

	var dest map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "reg:stats", &dest), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "reg:stats", map[string]int{"PENDING": 2}, time.Minute))
	require.NoError(t, repo.Get(ctx, "reg:stats", &dest))
	assert.Equal(t, 2, dest["PENDING"])
}

func TestMemoryCacheRepositoryDeleteByPattern(t *testing.T) {
	repo := NewMemoryCacheRepository(gocache.New(time.Minute, time.Minute))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "reg:stats", 1, time.Minute))
	require.NoError(t, repo.Set(ctx, "reg:pending", 2, time.Minute))
	require.NoError(t, repo.Set(ctx, "other:key", 3, time.Minute))

	require.NoError(t, repo.DeleteByPattern(ctx, "reg:*"))

	var v int
	assert.ErrorIs(t, repo.Get(ctx, "reg:stats", &v), appErrors.ErrCacheMiss)
	assert.ErrorIs(t, repo.Get(ctx, "reg:pending", &v), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Get(ctx, "other:key", &v))
	assert.Equal(t, 3, v)
}

func TestCacheRepositoryWithoutClientIsNoop(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()
	var v int
	assert.ErrorIs(t, repo.Get(ctx, "k", &v), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "k", 1, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "k*"))
	assert.NoError(t, repo.Ping(ctx))
}
