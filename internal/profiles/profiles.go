// Package profiles manages YAML-based corpus profiles.
// A profile names an input corpus together with the pipeline settings used to cluster it.
package profiles

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/graphtag/internal/config"
)

// Profile describes a named corpus and its pipeline overrides.
// Empty strings and nil numbers leave the corresponding config setting untouched;
// an explicit threshold_percentile: 0 keeps every edge.
type Profile struct {
	ThresholdPercentile *float64 `yaml:"threshold_percentile"`
	Workers             *int     `yaml:"workers"`
	Name                string   `yaml:"name"`
	Description         string   `yaml:"description"`
	InputDir            string   `yaml:"input_dir"`
	Pattern             string   `yaml:"pattern"`
	OutputDir           string   `yaml:"output_dir"`
}

// File is the top-level YAML structure.
type File struct {
	Profiles []Profile `yaml:"profiles"`
}

// Registry holds loaded profiles, keyed by name.
type Registry struct {
	byName map[string]*Profile
	order  []string // definition order
}

// Load reads the YAML file at path and returns a Registry.
// If the file does not exist, Load returns an empty Registry.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Registry{byName: make(map[string]*Profile)}, nil
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	r := &Registry{
		byName: make(map[string]*Profile, len(f.Profiles)),
	}
	for i := range f.Profiles {
		p := &f.Profiles[i]
		if p.Name == "" {
			return nil, fmt.Errorf("profile %d has no name", i)
		}
		if _, dup := r.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate profile %q", p.Name)
		}
		r.byName[p.Name] = p
		r.order = append(r.order, p.Name)
	}
	return r, nil
}

// Get returns a profile by name. Returns (nil, false) if not found.
func (r *Registry) Get(name string) (*Profile, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// All returns all profiles in definition order.
func (r *Registry) All() []*Profile {
	result := make([]*Profile, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.byName[name])
	}
	return result
}

// Names returns a sorted list of profile names.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}

// Apply returns a copy of cfg with the profile's set fields applied.
func (p *Profile) Apply(cfg *config.Config) *config.Config {
	out := *cfg
	if p.InputDir != "" {
		out.InputDir = p.InputDir
	}
	if p.Pattern != "" {
		out.Pattern = p.Pattern
	}
	if p.OutputDir != "" {
		out.OutputDir = p.OutputDir
	}
	if p.ThresholdPercentile != nil {
		out.ThresholdPercentile = *p.ThresholdPercentile
	}
	if p.Workers != nil {
		out.Workers = *p.Workers
	}
	return &out
}
