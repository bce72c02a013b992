package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ScenarioFile is the on-disk layout accepted by LoadScenarioFile.
type ScenarioFile struct {
	Scenarios []ScenarioConfig `yaml:"scenarios"`
}

// LoadScenarioFile parses a YAML scenario file and registers every entry,
// replacing built-ins that share a name.
func LoadScenarioFile(r *Registry, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read scenario file: %w", err)
	}
	return LoadScenarios(r, data)
}

// LoadScenarios registers the scenarios in a YAML document.
func LoadScenarios(r *Registry, data []byte) ([]string, error) {
	var file ScenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse scenario file: %w", err)
	}

	names := make([]string, 0, len(file.Scenarios))
	for _, sc := range file.Scenarios {
		if err := r.Register(sc); err != nil {
			return names, err
		}
		names = append(names, sc.Name)
	}
	return names, nil
}
