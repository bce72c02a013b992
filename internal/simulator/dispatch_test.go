package simulator

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskTable_Boundaries(t *testing.T) {
	table := NewTaskTable(nil)
	require.Equal(t, 100, table.Total())

	tests := []struct {
		draw int
		want Task
	}{
		{0, TaskQuery},
		{29, TaskQuery},
		{30, TaskFollowUp},
		{44, TaskFollowUp},
		{45, TaskStream},
		{55, TaskHealth},
		{60, TaskHealthDetailed},
		{63, TaskStatus},
		{64, TaskStatus},
		{65, TaskIdle},
		{99, TaskIdle},
	}
	for _, tt := range tests {
		got, ok := table.Lookup(tt.draw)
		if !ok {
			got = TaskIdle
		}
		assert.Equal(t, tt.want, got, "draw %d", tt.draw)
	}
}

func TestDispatchTable_DropsNonPositiveWeights(t *testing.T) {
	table := NewDispatchTable([]Weighted[string]{
		{Weight: 0, Value: "never"},
		{Weight: 3, Value: "a"},
		{Weight: -1, Value: "never"},
		{Weight: 1, Value: "b"},
	}, 0)

	assert.Equal(t, 4, table.Total())
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		v, ok := table.Pick(rng)
		require.True(t, ok)
		assert.NotEqual(t, "never", v)
	}
}

func TestTaskTable_DrawFrequencies(t *testing.T) {
	table := NewTaskTable(nil)
	rng := rand.New(rand.NewPCG(42, 7))

	const n = 100000
	counts := make(map[Task]int)
	for i := 0; i < n; i++ {
		counts[pickTask(table, rng)]++
	}

	assert.InDelta(t, 0.30, float64(counts[TaskQuery])/n, 0.01)
	assert.InDelta(t, 0.15, float64(counts[TaskFollowUp])/n, 0.01)
	assert.InDelta(t, 0.35, float64(counts[TaskIdle])/n, 0.01)
}

func TestPickPersona_SpawnWeights(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))

	const n = 50000
	counts := make(map[PersonaType]int)
	for i := 0; i < n; i++ {
		counts[pickPersona(rng)]++
	}

	assert.InDelta(t, 0.50, float64(counts[Novice])/n, 0.015)
	assert.InDelta(t, 0.35, float64(counts[Professional])/n, 0.015)
	assert.InDelta(t, 0.15, float64(counts[Researcher])/n, 0.015)
}

func TestPersona_NoviceModesRestricted(t *testing.T) {
	p, err := NewPersona(Novice)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(3, 4))

	seen := make(map[SearchMode]bool)
	for i := 0; i < 5000; i++ {
		seen[p.SearchMode(rng)] = true
	}
	assert.Equal(t, map[SearchMode]bool{ModeHybrid: true, ModeVector: true}, seen)

	r, err := NewPersona(Researcher)
	require.NoError(t, err)
	seen = make(map[SearchMode]bool)
	for i := 0; i < 5000; i++ {
		seen[r.SearchMode(rng)] = true
	}
	assert.Len(t, seen, 4)
}

func TestPersona_ThinkTimeWithinRange(t *testing.T) {
	p, err := NewPersona(Professional)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(5, 6))

	for i := 0; i < 1000; i++ {
		d := p.ThinkTime(rng, 1)
		assert.GreaterOrEqual(t, d, p.ThinkMin)
		assert.Less(t, d, p.ThinkMax)
	}
	assert.Less(t, p.ThinkTime(rng, 0.01), p.ThinkMin)
}

func TestNewPersona_Unknown(t *testing.T) {
	_, err := NewPersona("admin")
	assert.Error(t, err)
}
