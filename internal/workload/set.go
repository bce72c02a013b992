package workload

import (
	"github.com/FairForge/perfharness/internal/backends"
)

// FromSet builds one generator per backend. Backends that failed to
// initialize map to a nil generator so the coordinator can report them.
func FromSet(set *backends.Set, seed uint64) map[string]Generator {
	gens := make(map[string]Generator, 3)

	if set.Postgres != nil {
		gens[backends.Postgres] = NewRelational(set.Postgres, seed)
	} else {
		gens[backends.Postgres] = nil
	}
	if set.Neo4j != nil {
		gens[backends.Neo4j] = NewGraph(set.Neo4j, seed+1)
	} else {
		gens[backends.Neo4j] = nil
	}
	if set.Redis != nil {
		gens[backends.Redis] = NewCache(set.Redis.Client(), seed+2)
	} else {
		gens[backends.Redis] = nil
	}
	return gens
}
