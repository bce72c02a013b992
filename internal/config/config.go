package config

import (
	"errors"
	"fmt"
	"time"
)

// Settings is the process-level configuration sourced from the environment.
type Settings struct {
	Target     TargetConfig     `yaml:"target"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Neo4j      Neo4jConfig      `yaml:"neo4j"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Log        LogConfig        `yaml:"log"`
}

// TargetConfig identifies the monitored service.
type TargetConfig struct {
	URL         string        `yaml:"url" default:"http://localhost:8000"`
	HTTPTimeout time.Duration `yaml:"http_timeout" default:"30s"`
}

// PoolConfig bounds a backend connection pool.
type PoolConfig struct {
	MinConns       int           `yaml:"min_conns"`
	MaxConns       int           `yaml:"max_conns"`
	CommandTimeout time.Duration `yaml:"command_timeout" default:"30s"`
	ConnectionCap  int           `yaml:"connection_cap"`
}

type PostgresConfig struct {
	DSN  string     `yaml:"dsn"`
	Pool PoolConfig `yaml:"pool"`
}

type Neo4jConfig struct {
	URI      string     `yaml:"uri"`
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	Database string     `yaml:"database"`
	Pool     PoolConfig `yaml:"pool"`
}

type RedisConfig struct {
	URL  string     `yaml:"url"`
	Pool PoolConfig `yaml:"pool"`
}

// MonitoringConfig drives the performance sampler.
type MonitoringConfig struct {
	PrometheusURL    string        `yaml:"prometheus_url"`
	ThroughputQuery  string        `yaml:"throughput_query"`
	ErrorRateQuery   string        `yaml:"error_rate_query"`
	ActiveUserQuery  string        `yaml:"active_user_query"`
	SampleInterval   time.Duration `yaml:"sample_interval" default:"5s"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout" default:"10s"`
	CPUThreshold     float64       `yaml:"cpu_threshold" default:"80"`
	MemoryThreshold  float64       `yaml:"memory_threshold" default:"85"`
	ListenAddr       string        `yaml:"listen_addr"`
	ExportCompressed bool          `yaml:"export_compressed"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"json"`
}

// Validate checks that the settings are usable.
func (s *Settings) Validate() error {
	if s.Target.URL == "" {
		return errors.New("config: target url is required")
	}
	if s.Monitoring.SampleInterval <= 0 {
		return fmt.Errorf("config: sample interval must be positive, got %v", s.Monitoring.SampleInterval)
	}
	for name, limit := range map[string]float64{
		"cpu":    s.Monitoring.CPUThreshold,
		"memory": s.Monitoring.MemoryThreshold,
	} {
		if limit < 0 || limit > 100 {
			return fmt.Errorf("config: %s threshold must be within [0, 100], got %v", name, limit)
		}
	}
	for name, p := range map[string]PoolConfig{
		"postgres": s.Postgres.Pool,
		"neo4j":    s.Neo4j.Pool,
		"redis":    s.Redis.Pool,
	} {
		if p.MinConns < 0 || p.MaxConns < 0 {
			return fmt.Errorf("config: %s pool sizes must be non-negative", name)
		}
		if p.MaxConns > 0 && p.MinConns > p.MaxConns {
			return fmt.Errorf("config: %s pool min %d exceeds max %d", name, p.MinConns, p.MaxConns)
		}
	}
	return nil
}

// ConnectionCaps returns the configured per-backend connection caps, skipping unset ones.
func (s *Settings) ConnectionCaps() map[string]int {
	caps := make(map[string]int)
	if s.Postgres.Pool.ConnectionCap > 0 {
		caps["postgres"] = s.Postgres.Pool.ConnectionCap
	}
	if s.Neo4j.Pool.ConnectionCap > 0 {
		caps["neo4j"] = s.Neo4j.Pool.ConnectionCap
	}
	if s.Redis.Pool.ConnectionCap > 0 {
		caps["redis"] = s.Redis.Pool.ConnectionCap
	}
	return caps
}
