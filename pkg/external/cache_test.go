package external

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPayloadCache(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	cache := NewPayloadCacheWithClient(client, "https://example.test/catalog.json", time.Hour)

	_, _, ok, err := cache.GetPayload(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "empty cache must miss")

	payload := []byte(`{"4": {"LENGUAJES": {"contents": ["Lee cuentos"]}}}`)
	require.NoError(t, cache.SetPayload(ctx, payload))

	got, cachedAt, ok, err := cache.GetPayload(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(payload), string(got))
	assert.WithinDuration(t, time.Now(), cachedAt, time.Minute)

	assert.Error(t, cache.SetPayload(ctx, []byte("{not json")))

	require.NoError(t, cache.Invalidate(ctx))
	_, _, ok, err = cache.GetPayload(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPayloadCacheDropsCorruptedEntries(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	cache := NewPayloadCacheWithClient(client, "https://example.test/other.json", time.Hour)

	require.NoError(t, client.Set(ctx, payloadKey("https://example.test/other.json"), "garbage", time.Hour).Err())

	_, _, ok, err := cache.GetPayload(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := client.Exists(ctx, payloadKey("https://example.test/other.json")).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestPayloadKeyIsPerSource(t *testing.T) {
	a := payloadKey("https://example.test/a.json")
	b := payloadKey("https://example.test/b.json")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, payloadKey("https://example.test/a.json"))
	assert.Contains(t, a, "curriculum:catalog:")
}
