// Package actions is the catalog of actions an execution backend offers to
// AutomatedTask nodes. Canvasflow never runs actions; it only checks that a
// node names one that exists and passes params its schema accepts.
package actions

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rendis/canvasflow/pkg/schema"
)

// Spec describes one action. Params is a JSON Schema for the node's
// config.params block; nil accepts anything.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// Info is a summary of a cataloged action for listing.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Catalog is a thread-safe set of action specs keyed by name.
type Catalog struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{specs: make(map[string]Spec)}
}

// Register adds an action. Returns error on duplicate or empty name.
func (c *Catalog) Register(spec Spec) error {
	if spec.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "action name is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.specs[spec.Name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", spec.Name)
	}
	c.specs[spec.Name] = spec
	return nil
}

// RegisterPlugin bulk-registers actions under a prefixed namespace.
// Each action name becomes "prefix.originalName" (e.g. "github.create_issue").
func (c *Catalog) RegisterPlugin(prefix string, specs []Spec) (int, error) {
	if prefix == "" {
		return 0, schema.NewError(schema.ErrCodeValidation, "plugin prefix is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	registered := 0
	for _, s := range specs {
		if s.Name == "" {
			return registered, schema.NewErrorf(schema.ErrCodeValidation, "plugin %q has an action without a name", prefix)
		}
		s.Name = fmt.Sprintf("%s.%s", prefix, s.Name)
		if _, exists := c.specs[s.Name]; exists {
			return registered, schema.NewErrorf(schema.ErrCodeConflict, "plugin action %q already registered", s.Name)
		}
		c.specs[s.Name] = s
		registered++
	}
	return registered, nil
}

// Get retrieves an action by name.
func (c *Catalog) Get(name string) (Spec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	spec, ok := c.specs[name]
	if !ok {
		return Spec{}, schema.NewErrorf(schema.ErrCodeNotFound, "action %q not registered", name)
	}
	return spec, nil
}

// Has checks if an action is registered.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.specs[name]
	return ok
}

// ParamsSchema returns the params JSON Schema of an action, or nil when the
// action is unknown or accepts any params.
func (c *Catalog) ParamsSchema(name string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if spec, ok := c.specs[name]; ok && spec.Params != nil {
		return spec.Params
	}
	return nil
}

// List returns info for all registered actions, sorted by name.
func (c *Catalog) List() []Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]Info, 0, len(c.specs))
	for _, s := range c.specs {
		infos = append(infos, Info{Name: s.Name, Description: s.Description})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Count returns the number of registered actions.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.specs)
}

// catalogFile is the on-disk form of a catalog:
//
//	{"actions": [{"name": "http.request"}], "plugins": {"github": [{"name": "create_issue"}]}}
type catalogFile struct {
	Actions []Spec            `json:"actions"`
	Plugins map[string][]Spec `json:"plugins,omitempty"`
}

// Parse builds a Catalog from its JSON form. Plugins are registered in
// prefix order so conflicts are reported deterministically.
func Parse(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "action catalog is not valid JSON").WithCause(err)
	}

	c := NewCatalog()
	for _, s := range f.Actions {
		if err := c.Register(s); err != nil {
			return nil, err
		}
	}

	prefixes := make([]string, 0, len(f.Plugins))
	for p := range f.Plugins {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	for _, p := range prefixes {
		if _, err := c.RegisterPlugin(p, f.Plugins[p]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read action catalog: %w", err)
	}
	return Parse(raw)
}
