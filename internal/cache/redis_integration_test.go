//go:build integration

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestRedisStore_DynamicCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewRedisStore(RedisConfig{Addr: startRedis(t), Prefix: "test:"})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(ctx, NameLLM)
	assert.ErrorIs(t, err, ErrCacheMiss)

	src := FingerprintFunc(func() string { return "f1" })
	c, err := New[payload](ctx, NameLLM, src, store)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "k", payload{Name: "Ada"}))

	reloaded, err := New[payload](ctx, NameLLM, src, store)
	require.NoError(t, err)
	got, ok := reloaded.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "Ada", got.Name)

	require.NoError(t, store.Delete(ctx, NameLLM))
	_, err = store.Load(ctx, NameLLM)
	assert.ErrorIs(t, err, ErrCacheMiss)
}
