package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("integração com Redis pulada em -short")
	}

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	addr, err := c.PortEndpoint(ctx, "6379/tcp", "")
	require.NoError(t, err)
	return addr
}

func TestRedisLocker_ExclusiveAndOwnedRelease(t *testing.T) {
	client, err := NewRedisClient(startRedis(t), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	l := NewRedisLocker(client)
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "cash-session:close:s1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "cash-session:close:s1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "segundo acquire não pode pegar a trava")

	require.NoError(t, release(ctx))

	release2, ok, err := l.Acquire(ctx, "cash-session:close:s1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// release antigo não apaga a trava de outro dono
	require.NoError(t, release(ctx))
	_, ok, err = l.Acquire(ctx, "cash-session:close:s1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release2(ctx))
}

func TestRedisLocker_Expires(t *testing.T) {
	client, err := NewRedisClient(startRedis(t), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	l := NewRedisLocker(client)
	ctx := context.Background()

	_, ok, err := l.Acquire(ctx, "k", 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok, err := l.Acquire(ctx, "k", time.Minute)
		return err == nil && ok
	}, 2*time.Second, 50*time.Millisecond)
}
