package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/copper-cli/internal/model"
)

// LoadMaterials reads tracked materials from a YAML file with a top-level
// "materials" list.
func LoadMaterials(path string) ([]model.MaterialConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read materials %s", path)
	}

	var wrapper struct {
		Materials []model.MaterialConfig `yaml:"materials"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "config: parse materials")
	}

	seen := make(map[string]bool, len(wrapper.Materials))
	for i, m := range wrapper.Materials {
		if m.Region == "" || m.Name == "" {
			return nil, eris.Errorf("config: material %d needs name and region", i)
		}
		if m.ID == "" {
			wrapper.Materials[i].ID = m.Region + "/" + m.Name
		}
		id := wrapper.Materials[i].ID
		if seen[id] {
			return nil, eris.Errorf("config: duplicate material id %q", id)
		}
		seen[id] = true
	}
	return wrapper.Materials, nil
}
