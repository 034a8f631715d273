package channel

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/bancho/internal/game/ruleset"
)

type catalogFile struct {
	Channels []catalogEntry `yaml:"channels"`
}

type catalogEntry struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	AutoJoin    bool     `yaml:"auto_join"`
	Privileges  []string `yaml:"privileges"`
}

// DefaultCatalog is used when no catalog file is configured.
func DefaultCatalog() []Definition {
	return []Definition{
		{Name: "#osu", Topic: "main osu! channel", AutoJoin: true, Privileges: ruleset.PrivNormal},
		{Name: "#lobby", Topic: "main osu! lobby channel"},
	}
}

// LoadCatalog reads channel definitions from a YAML file.
//
// Precondition: path must name a readable YAML file.
// Postcondition: Returns at least one definition, or an error naming the
// offending entry.
func LoadCatalog(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading channel catalog %q: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes YAML channel definitions. An empty privileges list
// marks a channel that is never offered at login.
func ParseCatalog(data []byte) ([]Definition, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing channel catalog: %w", err)
	}
	if len(f.Channels) == 0 {
		return nil, fmt.Errorf("channel catalog defines no channels")
	}

	seen := make(map[string]bool, len(f.Channels))
	defs := make([]Definition, 0, len(f.Channels))
	for i, e := range f.Channels {
		if e.Name == "" || e.Name[0] != '#' {
			return nil, fmt.Errorf("channel %d: name %q must start with '#'", i, e.Name)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("channel %q defined twice", e.Name)
		}
		seen[e.Name] = true

		var mask ruleset.Privileges
		for _, name := range e.Privileges {
			p, ok := ruleset.ParsePrivilege(name)
			if !ok {
				return nil, fmt.Errorf("channel %q: unknown privilege %q", e.Name, name)
			}
			mask |= p
		}
		defs = append(defs, Definition{
			Name:       e.Name,
			Topic:      e.Description,
			AutoJoin:   e.AutoJoin,
			Privileges: mask,
		})
	}
	return defs, nil
}
