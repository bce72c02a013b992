package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by LoadFromEnv.
const EnvPrefix = "PERF"

// NewViper returns a viper instance bound to PERF_* environment variables with
// every default registered.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("target.url", "http://localhost:8000")
	v.SetDefault("target.http_timeout", 30*time.Second)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.pool.min_conns", 5)
	v.SetDefault("postgres.pool.max_conns", 20)
	v.SetDefault("postgres.pool.command_timeout", 30*time.Second)
	v.SetDefault("postgres.pool.connection_cap", 80)

	v.SetDefault("neo4j.uri", "")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.pool.min_conns", 1)
	v.SetDefault("neo4j.pool.max_conns", 50)
	v.SetDefault("neo4j.pool.command_timeout", 30*time.Second)
	v.SetDefault("neo4j.pool.connection_cap", 100)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool.min_conns", 5)
	v.SetDefault("redis.pool.max_conns", 20)
	v.SetDefault("redis.pool.command_timeout", 5*time.Second)
	v.SetDefault("redis.pool.connection_cap", 500)

	v.SetDefault("monitoring.prometheus_url", "")
	v.SetDefault("monitoring.throughput_query", `sum(rate(http_requests_total[1m]))`)
	v.SetDefault("monitoring.error_rate_query",
		`sum(rate(http_requests_total{status=~"5.."}[1m])) / sum(rate(http_requests_total[1m]))`)
	v.SetDefault("monitoring.active_user_query",
		`SELECT COUNT(DISTINCT user_id) FROM chat_messages WHERE created_at > NOW() - INTERVAL '5 minutes'`)
	v.SetDefault("monitoring.sample_interval", 5*time.Second)
	v.SetDefault("monitoring.probe_timeout", 10*time.Second)
	v.SetDefault("monitoring.cpu_threshold", 80.0)
	v.SetDefault("monitoring.memory_threshold", 85.0)
	v.SetDefault("monitoring.listen_addr", "")
	v.SetDefault("monitoring.export_compressed", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	return v
}

// LoadFromEnv builds Settings from the given viper instance (or a fresh
// env-bound one when v is nil) and validates them.
func LoadFromEnv(v *viper.Viper) (*Settings, error) {
	if v == nil {
		v = NewViper()
	}

	s := &Settings{
		Target: TargetConfig{
			URL:         strings.TrimRight(v.GetString("target.url"), "/"),
			HTTPTimeout: v.GetDuration("target.http_timeout"),
		},
		Postgres: PostgresConfig{
			DSN:  v.GetString("postgres.dsn"),
			Pool: poolFrom(v, "postgres"),
		},
		Neo4j: Neo4jConfig{
			URI:      v.GetString("neo4j.uri"),
			User:     v.GetString("neo4j.user"),
			Password: v.GetString("neo4j.password"),
			Database: v.GetString("neo4j.database"),
			Pool:     poolFrom(v, "neo4j"),
		},
		Redis: RedisConfig{
			URL:  v.GetString("redis.url"),
			Pool: poolFrom(v, "redis"),
		},
		Monitoring: MonitoringConfig{
			PrometheusURL:    v.GetString("monitoring.prometheus_url"),
			ThroughputQuery:  v.GetString("monitoring.throughput_query"),
			ErrorRateQuery:   v.GetString("monitoring.error_rate_query"),
			ActiveUserQuery:  v.GetString("monitoring.active_user_query"),
			SampleInterval:   v.GetDuration("monitoring.sample_interval"),
			ProbeTimeout:     v.GetDuration("monitoring.probe_timeout"),
			CPUThreshold:     v.GetFloat64("monitoring.cpu_threshold"),
			MemoryThreshold:  v.GetFloat64("monitoring.memory_threshold"),
			ListenAddr:       v.GetString("monitoring.listen_addr"),
			ExportCompressed: v.GetBool("monitoring.export_compressed"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func poolFrom(v *viper.Viper, prefix string) PoolConfig {
	return PoolConfig{
		MinConns:       v.GetInt(prefix + ".pool.min_conns"),
		MaxConns:       v.GetInt(prefix + ".pool.max_conns"),
		CommandTimeout: v.GetDuration(prefix + ".pool.command_timeout"),
		ConnectionCap:  v.GetInt(prefix + ".pool.connection_cap"),
	}
}
