package plugins

import (
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Manifest lists the plugins to load, in order.
type Manifest struct {
	Plugins []Entry `toml:"plugin"`
}

// Entry is one [[plugin]] table.
type Entry struct {
	Name     string         `toml:"name"`
	Aliases  []string       `toml:"aliases"`
	Disabled bool           `toml:"disabled"`
	Settings map[string]any `toml:"settings"`
}

// Names returns the runtime names the entry registers: its name followed by
// its aliases.
func (e Entry) Names() []string {
	return append([]string{e.Name}, e.Aliases...)
}

// LoadManifest decodes the manifest at path. Unknown keys are rejected.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	meta, err := toml.DecodeFile(path, &m)
	if err != nil {
		return nil, errors.Wrapf(err, "load plugin manifest %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, errors.Errorf("load plugin manifest %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	for i := range m.Plugins {
		e := &m.Plugins[i]
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			return nil, errors.Errorf("load plugin manifest %s: plugin %d has no name", path, i)
		}
		aliases := e.Aliases[:0]
		for _, a := range e.Aliases {
			if a = strings.TrimSpace(a); a != "" {
				aliases = append(aliases, a)
			}
		}
		e.Aliases = aliases
	}
	return &m, nil
}
