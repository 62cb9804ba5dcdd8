package exports

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Module is one entry from the hierarchy file.
type Module struct {
	Name               string `yaml:"name"`
	Abbrev             string `yaml:"abbrev"`
	Level              string `yaml:"level"`
	RequirementsModule string `yaml:"requirements_module"`
	TestsModule        string `yaml:"tests_module"`
	ParentAbbrev       string `yaml:"parent_abbrev,omitempty"`
}

type hierarchyFile struct {
	Modules []Module `yaml:"modules"`
}

// LoadHierarchy parses the module hierarchy from the given YAML file.
func LoadHierarchy(path string) ([]Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hierarchy file: %w", err)
	}
	var hf hierarchyFile
	if err := yaml.Unmarshal(data, &hf); err != nil {
		return nil, fmt.Errorf("unmarshal hierarchy file: %w", err)
	}
	for i, m := range hf.Modules {
		if m.Abbrev == "" {
			return nil, fmt.Errorf("hierarchy module %d: abbrev is required", i)
		}
	}
	return hf.Modules, nil
}
