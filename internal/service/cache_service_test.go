package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
)

type fakeCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
}

func (r *fakeCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return r.getErr
	}
	raw, ok := r.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *fakeCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = map[string][]byte{}
	}
	r.entries[key] = raw
	return nil
}

func (r *fakeCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range r.entries {
		if key == pattern || (strings.HasSuffix(pattern, "*") && strings.HasPrefix(key, prefix)) {
			delete(r.entries, key)
		}
	}
	return nil
}

func TestCacheRememberLoadsOnceThenHits(t *testing.T) {
	repo := &fakeCacheRepo{}
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	calls := 0
	load := func(context.Context) (interface{}, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	var first []string
	hit, err := svc.Remember(context.Background(), "board", 0, &first, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"a", "b"}, first)
	assert.Contains(t, repo.entries, cacheNamespace+"board")

	var second []string
	hit, err = svc.Remember(context.Background(), "board", 0, &second, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	require.NoError(t, svc.Invalidate(context.Background(), "board"))
	_, err = svc.Remember(context.Background(), "board", 0, &second, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCacheRememberDegradesOnBackendFailure(t *testing.T) {
	repo := &fakeCacheRepo{getErr: errors.New("redis down")}
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	var out int
	hit, err := svc.Remember(context.Background(), "n", 0, &out, func(context.Context) (interface{}, error) { return 7, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, out)
}

func TestCacheRememberPropagatesLoadError(t *testing.T) {
	svc := NewCacheService(&fakeCacheRepo{}, nil, time.Minute, zap.NewNop(), true)

	var out int
	_, err := svc.Remember(context.Background(), "n", 0, &out, func(context.Context) (interface{}, error) {
		return nil, errors.New("query failed")
	})
	require.Error(t, err)
}

func TestCacheDisabledAlwaysLoads(t *testing.T) {
	repo := &fakeCacheRepo{}
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), false)
	calls := 0
	load := func(context.Context) (interface{}, error) {
		calls++
		return "v", nil
	}

	var out string
	for i := 0; i < 2; i++ {
		hit, err := svc.Remember(context.Background(), "k", 0, &out, load)
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, "v", out)
	assert.Equal(t, 2, calls)
	assert.Empty(t, repo.entries)
}
