package backends

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/FairForge/perfharness/internal/config"
)

// Neo4jClient is the graph backend. Queries run in session-scoped managed transactions.
type Neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
}

// NewNeo4j builds the driver and verifies connectivity.
func NewNeo4j(ctx context.Context, cfg config.Neo4jConfig) (*Neo4jClient, error) {
	if cfg.URI == "" {
		return nil, &InitializationError{Backend: Neo4j, Err: ErrNotConfigured}
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(c *neo4j.Config) {
			if cfg.Pool.MaxConns > 0 {
				c.MaxConnectionPoolSize = cfg.Pool.MaxConns
			}
			if cfg.Pool.CommandTimeout > 0 {
				c.ConnectionAcquisitionTimeout = cfg.Pool.CommandTimeout
			}
		})
	if err != nil {
		return nil, &InitializationError{Backend: Neo4j, Err: fmt.Errorf("create driver: %w", err)}
	}

	c := &Neo4jClient{driver: driver, database: cfg.Database, timeout: cfg.Pool.CommandTimeout}

	verifyCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, &InitializationError{Backend: Neo4j, Err: fmt.Errorf("verify connectivity: %w", err)}
	}
	return c, nil
}

// Name returns the backend identifier.
func (c *Neo4jClient) Name() string { return Neo4j }

// Close closes the driver.
func (c *Neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Read runs cypher in a read transaction and returns the collected records.
func (c *Neo4jClient) Read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	return c.run(ctx, neo4j.AccessModeRead, cypher, params)
}

// Write runs cypher in a write transaction.
func (c *Neo4jClient) Write(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	return c.run(ctx, neo4j.AccessModeWrite, cypher, params)
}

func (c *Neo4jClient) run(ctx context.Context, mode neo4j.AccessMode, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: c.database})
	defer func() { _ = session.Close(ctx) }()

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	}

	var (
		out any
		err error
	)
	if mode == neo4j.AccessModeWrite {
		out, err = session.ExecuteWrite(ctx, work)
	} else {
		out, err = session.ExecuteRead(ctx, work)
	}
	if err != nil {
		return nil, err
	}
	records, _ := out.([]*neo4j.Record)
	return records, nil
}

// ConnectionCount asks the server for its open connections.
func (c *Neo4jClient) ConnectionCount(ctx context.Context) (int, error) {
	records, err := c.Read(ctx,
		`CALL dbms.listConnections() YIELD connectionId RETURN count(connectionId) AS connections`, nil)
	if err != nil {
		return 0, fmt.Errorf("backends: neo4j connection count: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	v, ok := records[0].Get("connections")
	if !ok {
		return 0, fmt.Errorf("backends: neo4j connection count: missing column")
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("backends: neo4j connection count: unexpected type %T", v)
	}
	return int(n), nil
}

func (c *Neo4jClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
