package effect

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Library holds effect templates keyed by ID. Items and abilities reference templates
// by ID; granting copies a template onto a subject.
type Library struct {
	defs map[string]*Effect
}

// NewLibrary creates an empty Library.
func NewLibrary() *Library {
	return &Library{defs: make(map[string]*Effect)}
}

// Register adds def to the library, overwriting any existing entry with the same ID.
//
// Precondition: def must not be nil and def.ID must not be empty.
func (l *Library) Register(def *Effect) {
	l.defs[def.ID] = def
}

// Get returns a copy of the template for id, or (nil, false) if not found.
func (l *Library) Get(id string) (*Effect, bool) {
	d, ok := l.defs[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// All returns every template sorted by ID.
func (l *Library) All() []*Effect {
	out := make([]*Effect, 0, len(l.defs))
	for _, d := range l.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDirectory reads every *.yaml file in dir, parses each as an Effect template,
// validates it against policies, and returns a populated Library.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Library, or an error if any file fails to parse or validate.
func LoadDirectory(dir string, policies *Registry) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading effect dir %q: %w", dir, err)
	}
	lib := NewLibrary()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var def Effect
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if def.ID == "" {
			def.ID = strings.TrimSuffix(e.Name(), ".yaml")
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("validating %q: %w", path, err)
		}
		if def.Duration.Selected == "" {
			def.Duration.Selected = PolicyNone
		}
		if _, ok := policies.Lookup(def.Duration.Selected); !ok {
			return nil, fmt.Errorf("validating %q: unknown duration policy %q", path, def.Duration.Selected)
		}
		lib.Register(&def)
	}
	return lib, nil
}
