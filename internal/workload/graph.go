package workload

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphStore is the slice of the neo4j client the generator needs.
type GraphStore interface {
	Read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)
	Write(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)
}

const (
	cypherNeighborhood = `MATCH (c:PerfConcept {id: $id})-[:RELATES_TO*1..%d]-(n:PerfConcept)
		RETURN DISTINCT n.id AS id LIMIT $limit`
	cypherPath = `MATCH (a:PerfConcept {id: $from}), (b:PerfConcept {id: $to}),
		p = shortestPath((a)-[:RELATES_TO*..%d]-(b)) RETURN length(p) AS hops`
	cypherMergeRelation = `MERGE (a:PerfConcept {id: $from})
		ON CREATE SET a.label = $label, a.created_at = timestamp()
		MERGE (b:PerfConcept {id: $to})
		MERGE (a)-[r:RELATES_TO]->(b)
		ON CREATE SET r.weight = $weight
		ON MATCH SET r.weight = $weight`
	maxGraphNodes = 10000
)

var conceptLabels = []string{"condition", "drug", "symptom", "procedure", "guideline"}

// Graph generates neighborhood and path traversals for reads and MERGEs for writes.
type Graph struct {
	store GraphStore
	rng   *source
}

// NewGraph returns a graph generator seeded with seed.
func NewGraph(store GraphStore, seed uint64) *Graph {
	return &Graph{store: store, rng: newSource(seed)}
}

func (g *Graph) Backend() string { return "neo4j" }

func (g *Graph) Read(ctx context.Context) error {
	depth := g.rng.intRange(1, 3)
	if g.rng.intN(2) == 0 {
		_, err := g.store.Read(ctx, withDepth(cypherNeighborhood, depth), map[string]any{
			"id":    int64(g.rng.intRange(1, maxGraphNodes)),
			"limit": int64(g.rng.intRange(10, 50)),
		})
		return err
	}
	_, err := g.store.Read(ctx, withDepth(cypherPath, depth+2), map[string]any{
		"from": int64(g.rng.intRange(1, maxGraphNodes)),
		"to":   int64(g.rng.intRange(1, maxGraphNodes)),
	})
	return err
}

func (g *Graph) Write(ctx context.Context) error {
	_, err := g.store.Write(ctx, cypherMergeRelation, map[string]any{
		"from":   int64(g.rng.intRange(1, maxGraphNodes)),
		"to":     int64(g.rng.intRange(1, maxGraphNodes)),
		"label":  g.rng.pick(conceptLabels),
		"weight": g.rng.float64(),
	})
	return err
}

func withDepth(cypher string, depth int) string {
	return fmt.Sprintf(cypher, depth)
}
