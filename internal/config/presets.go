// internal/config/presets.go
package config

import (
	"fmt"
	"sort"
)

// Preset maps a command-surface shortcut onto scenarios plus overrides.
type Preset struct {
	Name        string
	Description string
	Scenarios   []string
	Override    Override
}

var presets = map[string]Preset{
	"quick": {
		Name:        "quick",
		Description: "Quick baseline check",
		Scenarios:   []string{"baseline"},
		Override:    Override{Duration: "60s", Users: 10, SpawnRate: 2},
	},
	"peak": {
		Name:        "peak",
		Description: "Peak usage simulation",
		Scenarios:   []string{"peak"},
		Override:    Override{Duration: "300s", Users: 100, SpawnRate: 10},
	},
	"stress": {
		Name:        "stress",
		Description: "Stress test to find breaking points",
		Scenarios:   []string{"stress"},
		Override:    Override{Duration: "600s", Users: 300, SpawnRate: 25},
	},
	"full": {
		Name:        "full",
		Description: "Full stress suite across every mix",
		Scenarios:   []string{"read_heavy", "write_heavy", "balanced", "burst_load"},
		Override:    Override{Duration: "60s"},
	},
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("config: unknown preset %q", name)
	}
	p.Scenarios = append([]string(nil), p.Scenarios...)
	return p, nil
}

// PresetNames lists the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
