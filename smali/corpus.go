package smali

import (
	"fmt"
	"sort"
)

// Tree is a set of files, as implemented by workdir.Dir.
type Tree interface {
	Glob(prefix, suffix string) []string
	Get(path string) ([]byte, bool)
	Put(path string, buf []byte)
}

// Corpus is an indexed set of classes.
type Corpus struct {
	classes []*Class
	byName  map[string]*Class
}

// NewCorpus creates a corpus from already-parsed classes.
func NewCorpus(classes ...*Class) *Corpus {
	c := &Corpus{byName: map[string]*Class{}}
	for _, cls := range classes {
		c.Add(cls)
	}
	return c
}

// LoadCorpus parses every class under the smali* directories of a tree. If a
// class is defined in more than one dex directory, the first one in path order
// is used.
func LoadCorpus(t Tree) (*Corpus, error) {
	c := NewCorpus()
	paths := t.Glob("smali", ".smali")
	sort.Strings(paths)
	for _, path := range paths {
		buf, _ := t.Get(path)
		cls, err := ParseClass(path, buf)
		if err != nil {
			return nil, fmt.Errorf("LoadCorpus: %w", err)
		}
		if c.Class(cls.Name) == nil {
			c.Add(cls)
		}
	}
	return c, nil
}

// Add adds a class, replacing any existing one with the same name.
func (c *Corpus) Add(cls *Class) {
	if old, ok := c.byName[cls.Name]; ok {
		for i, x := range c.classes {
			if x == old {
				c.classes[i] = cls
			}
		}
	} else {
		c.classes = append(c.classes, cls)
	}
	c.byName[cls.Name] = cls
}

// Class gets a class by its descriptor, or nil.
func (c *Corpus) Class(name string) *Class {
	return c.byName[name]
}

// Classes returns all classes in load order.
func (c *Corpus) Classes() []*Class {
	return c.classes
}

// Methods returns all methods of all classes in load order.
func (c *Corpus) Methods() []*Method {
	var ms []*Method
	for _, cls := range c.classes {
		ms = append(ms, cls.Methods()...)
	}
	return ms
}

// Store writes the modified classes back to the tree, and returns the number
// of classes written.
func (c *Corpus) Store(t Tree) int {
	var n int
	for _, cls := range c.classes {
		if !cls.dirty {
			continue
		}
		t.Put(cls.Path, cls.Bytes())
		cls.dirty = false
		n++
	}
	return n
}
