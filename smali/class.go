// Package smali implements a line-preserving model of baksmali class files.
package smali

import (
	"fmt"
	"slices"
	"strings"
)

// Class is a parsed class file.
type Class struct {
	Path   string
	Name   string
	Super  string
	Access AccessFlags

	members []member
	eol     bool
	dirty   bool
}

type member struct {
	raw    string
	field  *Field
	method *Method
}

// Field is a field definition.
type Field struct {
	Name   string
	Type   string
	Access AccessFlags
	Value  string

	// lines is the original definition, including the annotations and .end
	// field if present.
	lines []string
}

// Reference returns the field reference relative to a class, e.g.
// Lcom/example/Foo;->bar:I.
func (f *Field) Reference(class string) string {
	return class + "->" + f.Name + ":" + f.Type
}

func (f *Field) String() string {
	s := ".field " + strings.TrimSpace(f.Access.FieldString()+" "+f.Name+":"+f.Type)
	if f.Value != "" {
		s += " = " + f.Value
	}
	return s
}

// ParseClass parses a class file.
func ParseClass(path string, buf []byte) (*Class, error) {
	c := &Class{Path: path}
	s := string(buf)
	if c.eol = strings.HasSuffix(s, "\n"); c.eol {
		s = s[:len(s)-1]
	}
	ls := strings.Split(s, "\n")

	for i := 0; i < len(ls); i++ {
		t := strings.TrimSpace(ls[i])
		switch {
		case strings.HasPrefix(t, ".class "):
			f := strings.Fields(t)
			flags, err := ParseAccessFlags(f[1 : len(f)-1])
			if err != nil {
				return nil, fmt.Errorf("parse class %s: %w", path, err)
			}
			c.Access, c.Name = flags, f[len(f)-1]
			c.members = append(c.members, member{raw: ls[i]})
		case strings.HasPrefix(t, ".super "):
			c.Super = strings.TrimSpace(strings.TrimPrefix(t, ".super"))
			c.members = append(c.members, member{raw: ls[i]})
		case strings.HasPrefix(t, ".field "):
			j := i + 1
			if j < len(ls) && strings.HasPrefix(strings.TrimSpace(ls[j]), ".annotation") {
				for j < len(ls) && strings.TrimSpace(ls[j]) != ".end field" {
					j++
				}
				if j == len(ls) {
					return nil, fmt.Errorf("parse class %s: line %d: unterminated field", path, i+1)
				}
				j++
			}
			fd, err := parseField(ls[i:j])
			if err != nil {
				return nil, fmt.Errorf("parse class %s: line %d: %w", path, i+1, err)
			}
			c.members = append(c.members, member{field: fd})
			i = j - 1
		case strings.HasPrefix(t, ".method "):
			j := i + 1
			for j < len(ls) && strings.TrimSpace(ls[j]) != ".end method" {
				j++
			}
			if j == len(ls) {
				return nil, fmt.Errorf("parse class %s: line %d: unterminated method", path, i+1)
			}
			m, err := parseMethod(ls[i : j+1])
			if err != nil {
				return nil, fmt.Errorf("parse class %s: line %d: %w", path, i+1, err)
			}
			m.Class = c
			c.members = append(c.members, member{method: m})
			i = j
		default:
			c.members = append(c.members, member{raw: ls[i]})
		}
	}

	if c.Name == "" {
		return nil, fmt.Errorf("parse class %s: missing .class directive", path)
	}
	return c, nil
}

func parseField(ls []string) (*Field, error) {
	t := strings.TrimSpace(ls[0])
	f := &Field{lines: ls}
	if d, v, ok := strings.Cut(t, " = "); ok {
		t, f.Value = d, strings.TrimSpace(v)
	}
	words := strings.Fields(t)
	if len(words) < 2 {
		return nil, fmt.Errorf("invalid field %#v", t)
	}
	name, typ, ok := strings.Cut(words[len(words)-1], ":")
	if !ok || name == "" || typ == "" {
		return nil, fmt.Errorf("invalid field %#v", t)
	}
	flags, err := ParseAccessFlags(words[1 : len(words)-1])
	if err != nil {
		return nil, fmt.Errorf("invalid field %#v: %w", t, err)
	}
	f.Name, f.Type, f.Access = name, typ, flags
	return f, nil
}

// Bytes serializes the class.
func (c *Class) Bytes() []byte {
	var b strings.Builder
	var first = true
	line := func(s string) {
		if !first {
			b.WriteByte('\n')
		}
		first = false
		b.WriteString(s)
	}
	for _, mb := range c.members {
		switch {
		case mb.field != nil:
			if mb.field.lines == nil {
				line(mb.field.String())
			}
			for _, l := range mb.field.lines {
				line(l)
			}
		case mb.method != nil:
			for _, l := range mb.method.lines() {
				line(l)
			}
		default:
			line(mb.raw)
		}
	}
	if c.eol {
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Dirty checks if the class was modified since it was parsed or stored.
func (c *Class) Dirty() bool {
	return c.dirty
}

// Fields returns the fields in definition order.
func (c *Class) Fields() []*Field {
	var fs []*Field
	for _, mb := range c.members {
		if mb.field != nil {
			fs = append(fs, mb.field)
		}
	}
	return fs
}

// Field returns the field with the specified name, or nil.
func (c *Class) Field(name string) *Field {
	for _, f := range c.Fields() {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// AddField adds a field after the last existing one, or before the first
// method if there aren't any. It does not check for duplicates.
func (c *Class) AddField(f *Field) {
	at := -1
	for i, mb := range c.members {
		if mb.field != nil {
			at = i + 1
		}
	}
	if at < 0 {
		at = len(c.members)
		for i, mb := range c.members {
			if mb.method != nil {
				at = i
				break
			}
		}
	}
	f.lines = nil
	add := []member{{field: f}}
	if at == len(c.members) || c.members[at].method != nil {
		add = append(add, member{raw: ""})
	}
	c.members = slices.Insert(c.members, at, add...)
	c.dirty = true
}

// Methods returns the methods in definition order.
func (c *Class) Methods() []*Method {
	var ms []*Method
	for _, mb := range c.members {
		if mb.method != nil {
			ms = append(ms, mb.method)
		}
	}
	return ms
}

// Method returns the first method matching the name and (if not nil) the
// parameter types.
func (c *Class) Method(name string, params []string) *Method {
	for _, m := range c.Methods() {
		if m.Name == name && (params == nil || slices.Equal(m.Params, params)) {
			return m
		}
	}
	return nil
}

// FindMethod returns the first method matching fn.
func (c *Class) FindMethod(fn func(*Method) bool) *Method {
	for _, m := range c.Methods() {
		if fn(m) {
			return m
		}
	}
	return nil
}
