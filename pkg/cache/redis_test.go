package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerlearn/peerlearn-api/pkg/config"
)

func TestOptionsFromDiscreteFields(t *testing.T) {
	opts, err := Options(config.RedisConfig{Host: "cache", Port: 6380, Password: "pw", DB: 2, PoolSize: 30})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 30, opts.PoolSize)
	assert.Equal(t, 5, opts.MaxRetries)
}

func TestOptionsPreferURL(t *testing.T) {
	opts, err := Options(config.RedisConfig{URL: "redis://:secret@redis.internal:6379/4", Host: "ignored", Port: 1})
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 4, opts.DB)

	_, err = Options(config.RedisConfig{URL: "http://nope"})
	assert.Error(t, err)
}
