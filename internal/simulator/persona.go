package simulator

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// PersonaType names a behavioral profile for a simulated user.
type PersonaType string

const (
	Novice       PersonaType = "novice"
	Professional PersonaType = "professional"
	Researcher   PersonaType = "researcher"
)

// SearchMode is one of the retrieval strategies the monitored service accepts.
type SearchMode string

const (
	ModeHybrid  SearchMode = "hybrid"
	ModeVector  SearchMode = "vector"
	ModeKeyword SearchMode = "keyword"
	ModeGraph   SearchMode = "graph"
)

// preferredModeBias is the chance a persona uses its first-listed mode outright.
const preferredModeBias = 0.6

// Persona is one simulated user's profile. SessionID is owned for the
// persona's lifetime and is empty until session-init succeeds.
type Persona struct {
	Type      PersonaType
	Queries   []string
	Modes     []SearchMode
	ThinkMin  time.Duration
	ThinkMax  time.Duration
	UserID    string
	SessionID string
}

type profile struct {
	weight   int
	queries  []string
	modes    []SearchMode
	thinkMin time.Duration
	thinkMax time.Duration
}

var profiles = map[PersonaType]profile{
	Novice: {
		weight: 50,
		queries: []string{
			"what is high blood pressure",
			"is ibuprofen safe with coffee",
			"what causes migraines",
			"how long does a cold last",
			"what does a normal heart rate look like",
		},
		modes:    []SearchMode{ModeHybrid, ModeVector},
		thinkMin: 3 * time.Second,
		thinkMax: 8 * time.Second,
	},
	Professional: {
		weight: 35,
		queries: []string{
			"first-line treatment for community acquired pneumonia",
			"drug interactions between warfarin and amiodarone",
			"pediatric dosing for amoxicillin",
			"management of diabetic ketoacidosis",
			"contraindications for beta blockers in asthma",
		},
		modes:    []SearchMode{ModeHybrid, ModeVector, ModeKeyword},
		thinkMin: 1 * time.Second,
		thinkMax: 4 * time.Second,
	},
	Researcher: {
		weight: 15,
		queries: []string{
			"recent trials comparing SGLT2 inhibitors and GLP-1 agonists",
			"mechanisms of antimicrobial resistance in klebsiella",
			"biomarkers predicting sepsis mortality",
			"genetic variants associated with statin myopathy",
			"meta-analysis of early mobilization in ICU patients",
		},
		modes:    []SearchMode{ModeGraph, ModeHybrid, ModeVector, ModeKeyword},
		thinkMin: 2 * time.Second,
		thinkMax: 6 * time.Second,
	},
}

// personaOrder fixes iteration order so seeded spawns are reproducible.
var personaOrder = []PersonaType{Novice, Professional, Researcher}

// AllowedModes returns the search modes a persona type may use, preferred first.
func AllowedModes(t PersonaType) []SearchMode {
	return append([]SearchMode(nil), profiles[t].modes...)
}

// NewPersona builds a persona of the given type with a fresh user id.
func NewPersona(t PersonaType) (*Persona, error) {
	p, ok := profiles[t]
	if !ok {
		return nil, fmt.Errorf("simulator: unknown persona %q", t)
	}
	return &Persona{
		Type:     t,
		Queries:  p.queries,
		Modes:    p.modes,
		ThinkMin: p.thinkMin,
		ThinkMax: p.thinkMax,
		UserID:   uuid.NewString(),
	}, nil
}

// Query draws a query from the persona's pool.
func (p *Persona) Query(rng *rand.Rand) string {
	return p.Queries[rng.IntN(len(p.Queries))]
}

// SearchMode returns the preferred mode most of the time and otherwise any allowed mode.
func (p *Persona) SearchMode(rng *rand.Rand) SearchMode {
	if rng.Float64() < preferredModeBias {
		return p.Modes[0]
	}
	return p.Modes[rng.IntN(len(p.Modes))]
}

// ThinkTime draws a pause uniformly from the persona's range, multiplied by scale.
func (p *Persona) ThinkTime(rng *rand.Rand, scale float64) time.Duration {
	span := p.ThinkMax - p.ThinkMin
	d := p.ThinkMin
	if span > 0 {
		d += time.Duration(rng.Int64N(int64(span)))
	}
	return time.Duration(float64(d) * scale)
}

// personaTable draws persona types by their spawn weights.
var personaTable = func() *DispatchTable[PersonaType] {
	entries := make([]Weighted[PersonaType], 0, len(personaOrder))
	for _, t := range personaOrder {
		entries = append(entries, Weighted[PersonaType]{Weight: profiles[t].weight, Value: t})
	}
	return NewDispatchTable(entries, 0)
}()

func pickPersona(rng *rand.Rand) PersonaType {
	t, _ := personaTable.Pick(rng)
	return t
}
