// Package patches contains the registry of built-in patches and the state
// shared between them during a run.
package patches

import (
	"fmt"
	"sort"
	"strings"
)

// Compatibility is a package supported by a patch. If Versions is empty, all
// versions are supported.
type Compatibility struct {
	Package  string   `yaml:"Package" json:"package"`
	Versions []string `yaml:"Versions,omitempty" json:"versions,omitempty"`
}

// Info describes a patch.
type Info struct {
	ID          string
	Name        string
	Description string
	// Compatibility lists the supported packages. If empty, the patch supports
	// any package.
	Compatibility []Compatibility
	// DependsOn lists the IDs of the patches which must be applied first.
	DependsOn []string
}

// Supports checks if the patch supports the package version. An empty version
// matches any version.
func (i Info) Supports(pkg, version string) bool {
	if len(i.Compatibility) == 0 {
		return true
	}
	for _, c := range i.Compatibility {
		if c.Package != pkg {
			continue
		}
		if len(c.Versions) == 0 || version == "" {
			return true
		}
		for _, v := range c.Versions {
			if v == version {
				return true
			}
		}
	}
	return false
}

// Patch is a registered patch.
type Patch struct {
	Info
	Apply func(*Context) error
}

var registry = map[string]*Patch{}

// Register registers a patch. It panics if the ID is already registered.
func Register(p *Patch) {
	if p.ID == "" || p.Apply == nil {
		panic("patch must have an ID and an Apply function")
	}
	if _, ok := registry[p.ID]; ok {
		panic("attempt to register duplicate patch " + p.ID)
	}
	registry[p.ID] = p
}

// Get gets a patch.
func Get(id string) (*Patch, bool) {
	p, ok := registry[id]
	return p, ok
}

// List returns all registered patches sorted by ID.
func List() []*Patch {
	ps := make([]*Patch, 0, len(registry))
	for _, p := range registry {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool {
		return ps[i].ID < ps[j].ID
	})
	return ps
}

// Resolve returns the patches with the specified IDs and their dependencies,
// with each patch after its dependencies.
func Resolve(ids []string) ([]*Patch, error) {
	var ps []*Patch
	done := map[string]bool{}
	active := map[string]bool{}

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		if done[id] {
			return nil
		}
		path = append(path, id)
		if active[id] {
			return fmt.Errorf("dependency cycle: %s", strings.Join(path, " -> "))
		}
		p, ok := registry[id]
		if !ok {
			if len(path) > 1 {
				return fmt.Errorf("no patch called '%s' (required by '%s')", id, path[len(path)-2])
			}
			return fmt.Errorf("no patch called '%s'", id)
		}
		active[id] = true
		for _, dep := range p.DependsOn {
			if err := visit(dep, path); err != nil {
				return err
			}
		}
		active[id] = false
		done[id] = true
		ps = append(ps, p)
		return nil
	}

	for _, id := range ids {
		if err := visit(id, nil); err != nil {
			return nil, fmt.Errorf("Resolve: %w", err)
		}
	}
	return ps, nil
}
