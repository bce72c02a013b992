package simulator

import (
	"math/rand/v2"
	"sort"
)

// Task is one action a simulated user can take.
type Task string

const (
	TaskQuery          Task = "query"
	TaskFollowUp       Task = "follow_up"
	TaskStream         Task = "stream"
	TaskHealth         Task = "health"
	TaskHealthDetailed Task = "health_detailed"
	TaskStatus         Task = "status"
	TaskIdle           Task = "idle"
)

// Weighted pairs a value with its relative draw weight.
type Weighted[T any] struct {
	Weight int
	Value  T
}

type entry[T any] struct {
	cumulative int
	value      T
}

// DispatchTable selects a value with one uniform draw and a binary search over
// cumulative weights. When total exceeds the weight sum, the leftover mass
// selects nothing.
type DispatchTable[T any] struct {
	entries []entry[T]
	total   int
}

// NewDispatchTable builds a table from entries in order. Non-positive weights
// are dropped. A total below the weight sum is raised to it.
func NewDispatchTable[T any](items []Weighted[T], total int) *DispatchTable[T] {
	t := &DispatchTable[T]{}
	sum := 0
	for _, it := range items {
		if it.Weight <= 0 {
			continue
		}
		sum += it.Weight
		t.entries = append(t.entries, entry[T]{cumulative: sum, value: it.Value})
	}
	t.total = max(total, sum)
	return t
}

// Total is the size of the draw space.
func (t *DispatchTable[T]) Total() int { return t.total }

// Lookup maps a draw in [0, Total) to a value. ok is false for the leftover mass.
func (t *DispatchTable[T]) Lookup(draw int) (T, bool) {
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].cumulative > draw })
	if draw < 0 || i == len(t.entries) {
		var zero T
		return zero, false
	}
	return t.entries[i].value, true
}

// Pick draws uniformly and looks the result up.
func (t *DispatchTable[T]) Pick(rng *rand.Rand) (T, bool) {
	if t.total == 0 {
		var zero T
		return zero, false
	}
	return t.Lookup(rng.IntN(t.total))
}

// DefaultTaskWeights out of 100; the remaining 35 is idle think-time.
var DefaultTaskWeights = []Weighted[Task]{
	{Weight: 30, Value: TaskQuery},
	{Weight: 15, Value: TaskFollowUp},
	{Weight: 10, Value: TaskStream},
	{Weight: 5, Value: TaskHealth},
	{Weight: 3, Value: TaskHealthDetailed},
	{Weight: 2, Value: TaskStatus},
}

// NewTaskTable builds the per-user task table over a draw space of 100.
func NewTaskTable(weights []Weighted[Task]) *DispatchTable[Task] {
	if len(weights) == 0 {
		weights = DefaultTaskWeights
	}
	return NewDispatchTable(weights, 100)
}

func pickTask(t *DispatchTable[Task], rng *rand.Rand) Task {
	task, ok := t.Pick(rng)
	if !ok {
		return TaskIdle
	}
	return task
}
