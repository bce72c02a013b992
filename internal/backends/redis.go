package backends

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/FairForge/perfharness/internal/config"
)

// RedisClient is the cache backend over a go-redis connection pool.
type RedisClient struct {
	client *redis.Client
}

// NewRedis parses the URL, sizes the pool and pings the server.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.URL == "" {
		return nil, &InitializationError{Backend: Redis, Err: ErrNotConfigured}
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, &InitializationError{Backend: Redis, Err: fmt.Errorf("parse url: %w", err)}
	}
	if cfg.Pool.MaxConns > 0 {
		opts.PoolSize = cfg.Pool.MaxConns
	}
	if cfg.Pool.MinConns > 0 {
		opts.MinIdleConns = cfg.Pool.MinConns
	}
	if cfg.Pool.CommandTimeout > 0 {
		opts.ReadTimeout = cfg.Pool.CommandTimeout
		opts.WriteTimeout = cfg.Pool.CommandTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &InitializationError{Backend: Redis, Err: fmt.Errorf("ping: %w", err)}
	}
	return &RedisClient{client: client}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Name returns the backend identifier.
func (r *RedisClient) Name() string { return Redis }

// Client exposes the go-redis client to workload generators.
func (r *RedisClient) Client() *redis.Client { return r.client }

// Close closes the pool.
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// ConnectionCount reads connected_clients from INFO clients.
func (r *RedisClient) ConnectionCount(ctx context.Context) (int, error) {
	info, err := r.client.Info(ctx, "clients").Result()
	if err != nil {
		return 0, fmt.Errorf("backends: redis info: %w", err)
	}
	return ParseConnectedClients(info)
}

// ParseConnectedClients extracts connected_clients from an INFO payload.
func ParseConnectedClients(info string) (int, error) {
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		value, ok := strings.CutPrefix(line, "connected_clients:")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("backends: parse connected_clients: %w", err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("backends: connected_clients missing from info")
}
