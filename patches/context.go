package patches

import (
	"fmt"

	"github.com/pgaskin/smalipatch/patchlib"
	"github.com/pgaskin/smalipatch/prefxml"
	"github.com/pgaskin/smalipatch/smali"
	"github.com/pgaskin/smalipatch/workdir"
)

// Context is the state of a patch run. It must only be used for a single run.
type Context struct {
	Patcher  *patchlib.Patcher
	Dir      *workdir.Dir
	Registry *prefxml.Registry

	// Package and Version identify the app being patched. An empty version
	// disables the version check.
	Package string
	Version string

	// Log is used to log debugging messages.
	Log func(format string, a ...interface{})

	values map[string]interface{}
}

// NewContext loads the classes from dir and creates a Context for patching
// them.
func NewContext(dir *workdir.Dir, pkg, version string) (*Context, error) {
	c, err := smali.LoadCorpus(dir)
	if err != nil {
		return nil, fmt.Errorf("NewContext: %w", err)
	}
	return &Context{
		Patcher:  patchlib.NewPatcher(c),
		Dir:      dir,
		Registry: prefxml.NewRegistry(),
		Package:  pkg,
		Version:  version,
		Log:      func(format string, a ...interface{}) {},
		values:   map[string]interface{}{},
	}, nil
}

// Corpus returns the classes being patched.
func (c *Context) Corpus() *smali.Corpus {
	return c.Patcher.Corpus()
}

// Set stores a value for other patches (e.g. a resolved resource id).
func (c *Context) Set(key string, v interface{}) {
	c.values[key] = v
}

// Value gets a value stored by Set.
func (c *Context) Value(key string) (interface{}, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Check checks if a patch supports the app being patched.
func (c *Context) Check(i Info) error {
	if !i.Supports(c.Package, c.Version) {
		if c.Version == "" {
			return fmt.Errorf("patch '%s' does not support %s", i.ID, c.Package)
		}
		return fmt.Errorf("patch '%s' does not support %s %s", i.ID, c.Package, c.Version)
	}
	return nil
}

// Run applies patches in order. It stops at the first error.
func (c *Context) Run(ps []*Patch) error {
	for n, p := range ps {
		c.Log("checking compatibility of patch `%s`\n", p.ID)
		if err := c.Check(p.Info); err != nil {
			fmt.Printf("  Error: %v\n", err)
			return err
		}
		fmt.Printf("  [%d/%d] Applying patch `%s`\n", n+1, len(ps), p.ID)
		if err := p.Apply(c); err != nil {
			err = fmt.Errorf("could not apply patch '%s': %w", p.ID, err)
			c.Log("%v\n", err)
			fmt.Printf("    Error: %v\n", err)
			return err
		}
	}
	return nil
}

// Commit writes the modified classes back to the tree, returning the number of
// classes written.
func (c *Context) Commit() int {
	return c.Corpus().Store(c.Dir)
}
