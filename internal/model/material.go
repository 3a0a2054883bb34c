package model

// MaterialConfig describes one commodity variant to track. It is read-only
// input to the ingestion pipeline.
type MaterialConfig struct {
	ID     string `json:"id" yaml:"id" mapstructure:"id"`
	Name   string `json:"name" yaml:"name" mapstructure:"name"`
	Region string `json:"region" yaml:"region" mapstructure:"region"`
	Spec   string `json:"spec" yaml:"spec" mapstructure:"spec"`
	Unit   string `json:"unit" yaml:"unit" mapstructure:"unit"`
	Active bool   `json:"active" yaml:"active" mapstructure:"active"`
}

// ActiveMaterials returns the active subset of materials in order.
func ActiveMaterials(materials []MaterialConfig) []MaterialConfig {
	var out []MaterialConfig
	for _, m := range materials {
		if m.Active {
			out = append(out, m)
		}
	}
	return out
}

// DefaultMaterials is the single tracked variant used when none is configured.
func DefaultMaterials() []MaterialConfig {
	return []MaterialConfig{{
		ID:     "1",
		Name:   "电解铜",
		Region: "上海",
		Spec:   "#1电解铜",
		Unit:   "元/吨",
		Active: true,
	}}
}
