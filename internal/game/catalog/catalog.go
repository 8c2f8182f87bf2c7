// Package catalog maps symbolic change keys onto concrete statistic paths.
//
// The catalog is built once at startup and is immutable afterwards; a *Catalog is safe for
// concurrent use by any number of resolvers.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/stats"
)

//go:embed default.yaml
var defaultCatalog []byte

// Polarity records whether a change value is negated before combination.
type Polarity int

const (
	// PolarityUnset defers to the legacy key text rule.
	PolarityUnset Polarity = iota
	PolarityPositive
	PolarityNegative
)

// UnmarshalYAML decodes "positive" or "negative".
func (p *Polarity) UnmarshalYAML(node *yaml.Node) error {
	switch strings.ToLower(strings.TrimSpace(node.Value)) {
	case "", "unset":
		*p = PolarityUnset
	case "positive":
		*p = PolarityPositive
	case "negative":
		*p = PolarityNegative
	default:
		return fmt.Errorf("line %d: unknown polarity %q", node.Line, node.Value)
	}
	return nil
}

// LegacyNegates reports whether key names a penalty under the historical naming rule:
// the key contains "banes", or contains "reduce" (any case) without mentioning health.
func LegacyNegates(key string) bool {
	if strings.Contains(key, "banes") {
		return true
	}
	return strings.Contains(strings.ToLower(key), "reduce") && !strings.Contains(key, "health")
}

// Option is one symbolic key as declared in the catalog file.
type Option struct {
	Path     string      `yaml:"path"`
	Label    string      `yaml:"label"`
	Kind     stats.Kind  `yaml:"kind,omitempty"`
	Mode     effect.Mode `yaml:"mode,omitempty"`
	Polarity Polarity    `yaml:"polarity,omitempty"`
}

// Category groups options under a header.
type Category struct {
	Header  string            `yaml:"header"`
	Options map[string]Option `yaml:"options"`
}

// Entry is the flattened, resolved view of one symbolic key.
type Entry struct {
	Key      string
	Category string
	Path     string
	Label    string
	// Kind is KindUnknown when the schema decides.
	Kind stats.Kind
	// Mode is the default combination mode for changes that leave Mode unset.
	Mode   effect.Mode
	Negate bool
}

// Catalog is the flattened symbolic key table.
type Catalog struct {
	categories map[string]Category
	entries    map[string]Entry
}

// Default returns the embedded catalog.
//
// Postcondition: Returns a non-nil Catalog; panics only if the embedded file is malformed.
func Default() *Catalog {
	c, err := Load(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic("catalog: invalid embedded catalog: " + err.Error())
	}
	return c
}

// LoadFile reads a catalog file from disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog %q: %w", path, err)
	}
	defer f.Close()
	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %q: %w", path, err)
	}
	return c, nil
}

// Load parses and flattens a catalog document.
//
// Postcondition: Returns an error if any option lacks a path or a key appears in two categories.
func Load(r io.Reader) (*Catalog, error) {
	var cats map[string]Category
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cats); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return build(cats)
}

func build(cats map[string]Category) (*Catalog, error) {
	c := &Catalog{categories: make(map[string]Category, len(cats)), entries: make(map[string]Entry)}
	ids := make([]string, 0, len(cats))
	for id := range cats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		cat := cats[id]
		c.categories[id] = cat
		for key, opt := range cat.Options {
			if opt.Path == "" {
				return nil, fmt.Errorf("catalog %s: option %q has no path", id, key)
			}
			if prev, dup := c.entries[key]; dup {
				return nil, fmt.Errorf("catalog %s: option %q already declared in %s", id, key, prev.Category)
			}
			mode := opt.Mode
			if mode == effect.ModeUnset {
				mode = effect.ModeAdd
			}
			negate := LegacyNegates(key)
			switch opt.Polarity {
			case PolarityPositive:
				negate = false
			case PolarityNegative:
				negate = true
			}
			label := opt.Label
			if label == "" {
				label = key
			}
			c.entries[key] = Entry{
				Key:      key,
				Category: id,
				Path:     opt.Path,
				Label:    label,
				Kind:     opt.Kind,
				Mode:     mode,
				Negate:   negate,
			}
		}
	}
	return c, nil
}

// Merge returns a new catalog holding c's categories with override's categories replacing
// any of the same id.
func (c *Catalog) Merge(override *Catalog) (*Catalog, error) {
	cats := make(map[string]Category, len(c.categories)+len(override.categories))
	for id, cat := range c.categories {
		cats[id] = cat
	}
	for id, cat := range override.categories {
		cats[id] = cat
	}
	return build(cats)
}

// Entry returns the flattened entry for key.
func (c *Catalog) Entry(key string) (Entry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

// Path returns the concrete statistic path for key.
func (c *Catalog) Path(key string) (string, bool) {
	e, ok := c.entries[key]
	return e.Path, ok
}

// Label returns the display label for key, or key itself when unknown.
func (c *Catalog) Label(key string) string {
	if e, ok := c.entries[key]; ok {
		return e.Label
	}
	return key
}

// Keys returns every symbolic key in lexicographic order.
func (c *Catalog) Keys() []string {
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Header returns the header of category id.
func (c *Catalog) Header(id string) (string, bool) {
	cat, ok := c.categories[id]
	return cat.Header, ok
}

// Validate checks that every entry addresses a field in at least one of schemas and that
// any declared kind matches the schema.
func (c *Catalog) Validate(schemas stats.Schemas) error {
	var problems []string
	for _, key := range c.Keys() {
		e := c.entries[key]
		found := false
		for _, sc := range schemas {
			kind, ok := sc.FieldType(e.Path)
			if !ok {
				continue
			}
			found = true
			if e.Kind != stats.KindUnknown && e.Kind != kind {
				problems = append(problems, fmt.Sprintf("%s: kind %s does not match %s field %s (%s)", key, e.Kind, sc.Type(), e.Path, kind))
			}
		}
		if !found {
			problems = append(problems, fmt.Sprintf("%s: path %s is not declared by any schema", key, e.Path))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("catalog validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
