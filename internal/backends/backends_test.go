package backends

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/perfharness/internal/config"
)

func TestInitializationError(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&InitializationError{Backend: Neo4j, Err: cause})

	assert.Contains(t, err.Error(), "neo4j")
	assert.ErrorIs(t, err, cause)

	var initErr *InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, Neo4j, initErr.Backend)
}

func TestOpen_UnconfiguredBackends(t *testing.T) {
	set := Open(context.Background(), &config.Settings{}, zap.NewNop())

	assert.Empty(t, set.Available())
	assert.Empty(t, set.Counters())
	require.Len(t, set.Unavailable, 3)
	for _, name := range []string{Postgres, Neo4j, Redis} {
		assert.ErrorIs(t, set.Unavailable[name], ErrNotConfigured)
	}
	assert.Contains(t, set.UnavailableReasons()[Redis], "not configured")
	assert.NoError(t, set.Close(context.Background()))
}

func TestOpen_InvalidRedisURL(t *testing.T) {
	set := Open(context.Background(), &config.Settings{
		Redis: config.RedisConfig{URL: "not-a-url://"},
	}, nil)

	var initErr *InitializationError
	require.ErrorAs(t, set.Unavailable[Redis], &initErr)
	assert.Equal(t, Redis, initErr.Backend)
	assert.NotErrorIs(t, initErr, ErrNotConfigured)
}

func TestParseConnectedClients(t *testing.T) {
	t.Run("parses info payload", func(t *testing.T) {
		info := "# Clients\r\nconnected_clients:17\r\ncluster_connections:0\r\nblocked_clients:0\r\n"
		n, err := ParseConnectedClients(info)
		require.NoError(t, err)
		assert.Equal(t, 17, n)
	})

	t.Run("missing field", func(t *testing.T) {
		_, err := ParseConnectedClients("# Clients\r\nblocked_clients:0\r\n")
		assert.Error(t, err)
	})

	t.Run("garbage value", func(t *testing.T) {
		_, err := ParseConnectedClients("connected_clients:many")
		assert.Error(t, err)
	})
}

func TestOpen_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping backend tests in short mode")
	}
	dsn := os.Getenv("PERF_TEST_POSTGRES_DSN")
	redisURL := os.Getenv("PERF_TEST_REDIS_URL")
	if dsn == "" && redisURL == "" {
		t.Skip("PERF_TEST_POSTGRES_DSN / PERF_TEST_REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	set := Open(ctx, &config.Settings{
		Postgres: config.PostgresConfig{DSN: dsn, Pool: config.PoolConfig{MaxConns: 4, CommandTimeout: 5 * time.Second}},
		Redis:    config.RedisConfig{URL: redisURL, Pool: config.PoolConfig{MaxConns: 4}},
	}, zap.NewNop())
	defer func() { _ = set.Close(ctx) }()

	for _, c := range set.Counters() {
		n, err := c.ConnectionCount(ctx)
		require.NoError(t, err, c.Name())
		assert.GreaterOrEqual(t, n, 1, c.Name())
	}
}
