package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Port 1 on loopback is never listening, so every command fails fast.
func unreachable(t *testing.T) *RedisClient {
	t.Helper()
	rc, err := NewRedisClient(&Config{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	require.NotNil(t, rc)
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func TestRedisClient_UnreachableReturnsErrors(t *testing.T) {
	rc := unreachable(t)
	ctx := context.Background()

	_, err := rc.Get(ctx, "inventory:product:P-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)

	assert.Error(t, rc.Set(ctx, "k", []byte("v"), time.Second))
	assert.Error(t, rc.DeletePattern(ctx, "inventory:list:*"))
}

func TestRedisClient_DeleteWithoutKeysIsNoop(t *testing.T) {
	rc := unreachable(t)
	assert.NoError(t, rc.Delete(context.Background()))
}
