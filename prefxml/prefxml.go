// Package prefxml edits Android preference screen documents.
package prefxml

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/pgaskin/smalipatch/workdir"
)

const (
	// SettingsKey is contained in the key of the screens which categories are
	// added to.
	SettingsKey = "revanced_extended_settings"
	// CategoryPrefix is the key prefix of a category screen.
	CategoryPrefix = "revanced_settings_"
	// AnchorKey is the key of the node which top-level entries are inserted
	// before.
	AnchorKey = "settings_header_about_youtube_music"
	// DefaultPackage is the package name used by an unmodified document.
	DefaultPackage = "com.google.android.apps.youtube.music"

	ScreenTag      = "PreferenceScreen"
	PreferenceTag  = "Preference"
	SwitchTag      = "com.google.android.apps.youtube.music.ui.preference.SwitchCompatPreference"
	IntentTag      = "intent"
	IntentActivity = "com.google.android.libraries.strictmode.penalties.notification.FullStackTraceActivity"

	attrKey          = "android:key"
	attrTitle        = "android:title"
	attrSummary      = "android:summary"
	attrDefault      = "android:defaultValue"
	attrDependency   = "android:dependency"
	attrDividerAbove = "app:allowDividerAbove"
	attrDividerBelow = "app:allowDividerBelow"
)

// ErrDanglingDependency is returned by Validate when a preference depends on a
// key which isn't a sibling or ancestor.
var ErrDanglingDependency = errors.New("dependency does not refer to a sibling or ancestor")

// Registry records the categories added during a run. It must not be shared
// between runs.
type Registry struct {
	added map[string]bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{added: map[string]bool{}}
}

// Added checks if a category was inserted.
func (r *Registry) Added(category string) bool {
	return r.added[category]
}

// Categories returns the inserted categories in sorted order.
func (r *Registry) Categories() []string {
	cs := make([]string, 0, len(r.added))
	for c := range r.added {
		cs = append(cs, c)
	}
	sort.Strings(cs)
	return cs
}

// Leaf describes a switch preference.
type Leaf struct {
	Key          string
	DefaultValue string
	// Dependency is the key of the preference which enables this one.
	Dependency string
	// NoSummary omits the summary string.
	NoSummary bool
}

// Predicate matches an element.
type Predicate func(*etree.Element) bool

// KeyEquals matches elements with the specified key.
func KeyEquals(key string) Predicate {
	return func(e *etree.Element) bool {
		return e.SelectAttrValue(attrKey, "") == key
	}
}

// Tree is a parsed preference document.
type Tree struct {
	doc *etree.Document
	// TargetPackage is the package intents are directed to.
	TargetPackage string
}

// Parse parses a preference document.
func Parse(buf []byte) (*Tree, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(buf); err != nil {
		return nil, fmt.Errorf("parse preferences: %w", err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("parse preferences: no root element")
	}
	return &Tree{doc: doc, TargetPackage: DefaultPackage}, nil
}

// Root returns the root element.
func (t *Tree) Root() *etree.Element {
	return t.doc.Root()
}

// Bytes validates and serializes the document with 4-space indentation.
func (t *Tree) Bytes() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.doc.Indent(4)
	buf, err := t.doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize preferences: %w", err)
	}
	return buf, nil
}

// Find returns the first element (depth-first) with the specified key, or nil.
func (t *Tree) Find(key string) *etree.Element {
	return t.find(KeyEquals(key))
}

func (t *Tree) find(fn Predicate) *etree.Element {
	var found *etree.Element
	walk(t.doc.Root(), func(e *etree.Element) bool {
		if fn(e) {
			found = e
			return false
		}
		return true
	})
	return found
}

// filter returns all elements with the specified tag whose key contains s.
func (t *Tree) filter(tag, s string) []*etree.Element {
	var es []*etree.Element
	walk(t.doc.Root(), func(e *etree.Element) bool {
		if e.Tag == tag && strings.Contains(e.SelectAttrValue(attrKey, ""), s) {
			es = append(es, e)
		}
		return true
	})
	return es
}

// walk visits elements depth-first until fn returns false.
func walk(e *etree.Element, fn func(*etree.Element) bool) bool {
	if !fn(e) {
		return false
	}
	for _, c := range e.ChildElements() {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func hasChild(e *etree.Element, key string) bool {
	for _, c := range e.ChildElements() {
		if c.SelectAttrValue(attrKey, "") == key {
			return true
		}
	}
	return false
}

// InsertCategory appends a category screen to every settings screen, unless
// the category was already added during the run. The category is only
// recorded if it was actually inserted.
func (t *Tree) InsertCategory(reg *Registry, category string) bool {
	if reg.Added(category) {
		return false
	}
	key := CategoryPrefix + category
	var inserted bool
	for _, e := range t.filter(ScreenTag, SettingsKey) {
		if hasChild(e, key) {
			continue
		}
		c := e.CreateElement(ScreenTag)
		c.CreateAttr(attrTitle, "@string/revanced_category_"+category)
		c.CreateAttr(attrKey, key)
		inserted = true
	}
	if inserted {
		reg.added[category] = true
	}
	return inserted
}

// InsertLeaf appends a switch preference to every screen for the category. A
// screen which already contains the key is skipped.
func (t *Tree) InsertLeaf(category string, leaf Leaf) int {
	var n int
	for _, e := range t.filter(ScreenTag, CategoryPrefix+category) {
		if hasChild(e, leaf.Key) {
			continue
		}
		c := e.CreateElement(SwitchTag)
		c.CreateAttr(attrTitle, "@string/"+leaf.Key+"_title")
		if !leaf.NoSummary {
			c.CreateAttr(attrSummary, "@string/"+leaf.Key+"_summary")
		}
		c.CreateAttr(attrKey, leaf.Key)
		c.CreateAttr(attrDefault, leaf.DefaultValue)
		if leaf.Dependency != "" {
			c.CreateAttr(attrDependency, leaf.Dependency)
		}
		n++
	}
	return n
}

// InsertLeafWithIntent appends a preference which opens another screen of the
// integrations to every screen for the category.
func (t *Tree) InsertLeafWithIntent(category, key, dependency string) int {
	var n int
	for _, e := range t.filter(ScreenTag, CategoryPrefix+category) {
		if hasChild(e, key) {
			continue
		}
		c := e.CreateElement(PreferenceTag)
		c.CreateAttr(attrTitle, "@string/"+key+"_title")
		c.CreateAttr(attrSummary, "@string/"+key+"_summary")
		c.CreateAttr(attrKey, key)
		if dependency != "" {
			c.CreateAttr(attrDependency, dependency)
		}
		i := c.CreateElement(IntentTag)
		i.CreateAttr("android:targetPackage", t.TargetPackage)
		i.CreateAttr("android:data", key)
		i.CreateAttr("android:targetClass", IntentActivity)
		n++
	}
	return n
}

// MoveSubtree moves a copy of the first element matching fn to the end of
// parent, then removes the original. If parent is nil, the element is moved
// to the end of its own parent.
func (t *Tree) MoveSubtree(fn Predicate, parent *etree.Element) bool {
	e := t.find(fn)
	if e == nil || e.Parent() == nil {
		return false
	}
	if parent == nil {
		parent = e.Parent()
	}
	for p := parent; p != nil; p = p.Parent() {
		if p == e {
			return false // can't move into itself
		}
	}
	c := e.Copy()
	old := e.Parent()
	parent.AddChild(c)
	old.RemoveChild(e)
	return true
}

// SortCategory moves a category screen after its siblings.
func (t *Tree) SortCategory(category string) bool {
	return t.MoveSubtree(KeyEquals(CategoryPrefix+category), nil)
}

// InsertBeforeAnchor inserts n before the anchor unless an element with the
// same key already exists, then makes the anchor the only element with a
// divider below it.
func (t *Tree) InsertBeforeAnchor(n *etree.Element) bool {
	anchor := t.find(func(e *etree.Element) bool {
		return e.SelectAttrValue(attrKey, "") == AnchorKey && e.SelectAttr(attrDividerBelow) != nil
	})
	if anchor == nil || anchor.Parent() == nil {
		return false
	}
	if key := n.SelectAttrValue(attrKey, ""); key == "" || t.Find(key) == nil {
		n.CreateAttr(attrDividerAbove, "false")
		anchor.Parent().InsertChildAt(anchor.Index(), n)
	}
	walk(t.doc.Root(), func(e *etree.Element) bool {
		if a := e.SelectAttr(attrDividerBelow); a != nil {
			if e == anchor {
				a.Value = "true"
			} else {
				a.Value = "false"
			}
		}
		return true
	})
	return true
}

// InsertScreen inserts a top-level screen entry before the anchor.
func (t *Tree) InsertScreen(key string) bool {
	e := etree.NewElement(ScreenTag)
	e.CreateAttr(attrTitle, "@string/"+key+"_title")
	e.CreateAttr(attrKey, key)
	return t.InsertBeforeAnchor(e)
}

// HookPreference inserts a top-level entry which opens fragment before the
// anchor.
func (t *Tree) HookPreference(key, fragment string) bool {
	e := etree.NewElement(PreferenceTag)
	e.CreateAttr("android:persistent", "false")
	e.CreateAttr(attrTitle, "@string/"+key+"_title")
	e.CreateAttr(attrKey, key)
	e.CreateAttr("android:fragment", fragment)
	return t.InsertBeforeAnchor(e)
}

// RetitleRootPackage replaces the quoted default package name everywhere in
// the serialized document.
func (t *Tree) RetitleRootPackage(pkg string) error {
	t.doc.Indent(4)
	buf, err := t.doc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("RetitleRootPackage(%s): %w", pkg, err)
	}
	buf = bytes.ReplaceAll(buf, []byte(`"`+DefaultPackage+`"`), []byte(`"`+pkg+`"`))
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(buf); err != nil {
		return fmt.Errorf("RetitleRootPackage(%s): %w", pkg, err)
	}
	t.doc, t.TargetPackage = doc, pkg
	return nil
}

// Validate checks that every dependency refers to the key of a sibling or an
// ancestor.
func (t *Tree) Validate() error {
	var err error
	walk(t.doc.Root(), func(e *etree.Element) bool {
		dep := e.SelectAttrValue(attrDependency, "")
		if dep == "" {
			return true
		}
		if e.Parent() != nil && hasChild(e.Parent(), dep) {
			return true
		}
		for p := e.Parent(); p != nil; p = p.Parent() {
			if p.SelectAttrValue(attrKey, "") == dep {
				return true
			}
		}
		err = fmt.Errorf("preference %#v depends on %#v: %w", e.SelectAttrValue(attrKey, ""), dep, ErrDanglingDependency)
		return false
	})
	return err
}

// Edit parses the document at path in dir, calls fn, and stores the result.
// Nothing is stored if fn returns an error.
func Edit(dir *workdir.Dir, path string, fn func(*Tree) error) error {
	return dir.Edit(path, func(buf []byte) ([]byte, error) {
		t, err := Parse(buf)
		if err != nil {
			return nil, err
		}
		if err := fn(t); err != nil {
			return nil, err
		}
		return t.Bytes()
	})
}
