// Package resourceid resolves resource ids from the public resource table.
package resourceid

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/beevik/etree"
	"github.com/pgaskin/smalipatch/patches"
	"github.com/pgaskin/smalipatch/patches/youtube"
	"github.com/pgaskin/smalipatch/workdir"
)

// ID is the ID of the patch which loads the resource table.
const ID = "resource-id"

// Path is the path of the public resource table.
const Path = "res/values/public.xml"

// ErrNotFound is returned when a resource doesn't exist.
var ErrNotFound = errors.New("no such resource")

type key struct {
	typ  string
	name string
}

// Table maps resource types and names to ids.
type Table struct {
	ids map[key]int64
}

// Parse parses a public.xml file.
func Parse(buf []byte) (*Table, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(buf); err != nil {
		return nil, fmt.Errorf("parse resource table: %w", err)
	}
	root := doc.SelectElement("resources")
	if root == nil {
		return nil, fmt.Errorf("parse resource table: no resources element")
	}
	t := &Table{ids: map[key]int64{}}
	for i, e := range root.SelectElements("public") {
		typ, name, id := e.SelectAttrValue("type", ""), e.SelectAttrValue("name", ""), e.SelectAttrValue("id", "")
		if typ == "" || name == "" {
			return nil, fmt.Errorf("parse resource table: entry %d: missing type or name", i+1)
		}
		v, err := strconv.ParseInt(id, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("parse resource table: entry %d: invalid id for %s/%s: %w", i+1, typ, name, err)
		}
		t.ids[key{typ, name}] = v
	}
	return t, nil
}

// Load loads the table from a tree.
func Load(d *workdir.Dir) (*Table, error) {
	buf, ok := d.Get(Path)
	if !ok {
		return nil, fmt.Errorf("Load: %s: %w", Path, workdir.ErrNotExist)
	}
	t, err := Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return t, nil
}

// Get gets the id of a resource.
func (t *Table) Get(typ, name string) (int64, error) {
	v, ok := t.ids[key{typ, name}]
	if !ok {
		return 0, fmt.Errorf("resource %s/%s: %w", typ, name, ErrNotFound)
	}
	return v, nil
}

// Len returns the number of resources.
func (t *Table) Len() int {
	return len(t.ids)
}

// FromContext gets the table loaded by the resource-id patch.
func FromContext(c *patches.Context) (*Table, error) {
	if v, ok := c.Value(ID); ok {
		if t, ok := v.(*Table); ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("resource table not loaded (did you forget to depend on %s?)", ID)
}

func init() {
	patches.Register(&patches.Patch{
		Info: patches.Info{
			ID:            ID,
			Name:          "Resource ids",
			Description:   "Resolves resource ids used by other patches.",
			Compatibility: youtube.Compatibility,
		},
		Apply: func(c *patches.Context) error {
			t, err := Load(c.Dir)
			if err != nil {
				return err
			}
			c.Log("loaded %d resource ids\n", t.Len())
			c.Set(ID, t)
			return nil
		},
	})
}
