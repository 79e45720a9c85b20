package smalipatch

import (
	"fmt"
	"reflect"

	"github.com/pgaskin/smalipatch/patches"
	"github.com/pgaskin/smalipatch/patches/music/settings"
	"github.com/pgaskin/smalipatch/patchlib"
	"github.com/pgaskin/smalipatch/smali"
	"gopkg.in/yaml.v3"
)

type Patch []*Instruction

type PatchNode []yaml.Node

func (p *PatchNode) ToInstructionNodes() ([]InstructionNode, error) {
	n := make([]InstructionNode, len(*p))
	for i, t := range *p {
		if err := t.DecodeStrict(&n[i]); err != nil {
			return n, fmt.Errorf("line %d: %w", t.Line, err)
		}
	}
	return n, nil
}

func (p *PatchNode) ToPatch() (Patch, error) {
	ns, err := p.ToInstructionNodes()
	if err != nil {
		return nil, err
	}
	pt := make(Patch, len(ns))
	for i, n := range ns {
		if pt[i], err = n.ToInstruction(); err != nil {
			return nil, err
		}
	}
	return pt, nil
}

type Instruction struct {
	Enabled                 *Enabled                 `yaml:"Enabled,omitempty"`
	Description             *Description             `yaml:"Description,omitempty"`
	PatchGroup              *PatchGroup              `yaml:"PatchGroup,omitempty"`
	Compatibility           *Compatibility           `yaml:"Compatibility,omitempty"`
	Fingerprint             *Fingerprint             `yaml:"Fingerprint,omitempty"`
	Method                  *Method                  `yaml:"Method,omitempty,flow"`
	AddInstructions         *AddInstructions         `yaml:"AddInstructions,omitempty"`
	ReplaceInstructions     *ReplaceInstructions     `yaml:"ReplaceInstructions,omitempty"`
	RemoveInstructions      *RemoveInstructions      `yaml:"RemoveInstructions,omitempty,flow"`
	AddStaticField          *AddStaticField          `yaml:"AddStaticField,omitempty,flow"`
	AddPreferenceCategory   *AddPreferenceCategory   `yaml:"AddPreferenceCategory,omitempty"`
	AddPreference           *AddPreference           `yaml:"AddPreference,omitempty"`
	AddPreferenceWithIntent *AddPreferenceWithIntent `yaml:"AddPreferenceWithIntent,omitempty"`
	SortPreferenceCategory  *SortPreferenceCategory  `yaml:"SortPreferenceCategory,omitempty"`
}

type InstructionNode map[string]yaml.Node

func (i InstructionNode) ToInstruction() (*Instruction, error) {
	if len(i) == 0 {
		return nil, fmt.Errorf("expected instruction, got nothing")
	}
	var found bool
	var n Instruction
	for name, node := range i {
		if found {
			return nil, fmt.Errorf("line %d: multiple types found in instruction, maybe you forgot a '-'", node.Line)
		} else if field := reflect.ValueOf(&n).Elem().FieldByName(name); !field.IsValid() {
			return nil, fmt.Errorf("line %d: unknown instruction type %#v", node.Line, name)
		} else if err := node.DecodeStrict(field.Addr().Interface()); err != nil {
			return nil, fmt.Errorf("line %d: error decoding instruction: %w", node.Line, err)
		} else {
			found = true
		}
	}
	return &n, nil
}

func (i InstructionNode) Line(def int) int {
	for _, node := range i {
		return node.Line
	}
	return def
}

func (i Instruction) ToSingleInstruction() interface{} {
	iv := reflect.ValueOf(i)
	for i := 0; i < iv.NumField(); i++ {
		if !iv.Field(i).IsNil() {
			return iv.Field(i).Elem().Interface()
		}
	}
	return nil
}

type Enabled bool
type Description string
type PatchGroup string

// Compatibility restricts a patch to specific packages.
type Compatibility []patches.Compatibility

// LocateInstruction selects the method which the following edits apply to.
type LocateInstruction interface {
	Locate(*patches.Context, func(string, ...interface{})) (*patchlib.MatchResult, error)
}

// EditInstruction is an edit of the located method. Consecutive edits are
// applied together.
type EditInstruction interface {
	ToEdit() (patchlib.Edit, error)
}

// PatchableInstruction is applied on its own.
type PatchableInstruction interface {
	ApplyTo(*patches.Context, func(string, ...interface{})) error
}

// Fingerprint locates a method by its shape.
type Fingerprint struct {
	Name          string    `yaml:"Name"`
	Class         string    `yaml:"Class,omitempty"`
	Method        string    `yaml:"Method,omitempty"`
	Access        []string  `yaml:"Access,omitempty,flow"`
	Params        []string  `yaml:"Params,omitempty,flow"`
	Return        string    `yaml:"Return,omitempty"`
	Opcodes       []string  `yaml:"Opcodes,omitempty"`
	Fuzzy         int       `yaml:"Fuzzy,omitempty"`
	Strings       []string  `yaml:"Strings,omitempty"`
	Literals      []int64   `yaml:"Literals,omitempty,flow"`
	AnchorString  string    `yaml:"AnchorString,omitempty"`
	AnchorLiteral *int64    `yaml:"AnchorLiteral,omitempty"`
	Captures      []Capture `yaml:"Captures,omitempty"`
}

type Capture struct {
	Name     string `yaml:"Name"`
	Offset   int    `yaml:"Offset,omitempty"`
	FromEnd  bool   `yaml:"FromEnd,omitempty"`
	Register int    `yaml:"Register,omitempty"`
}

func (f Fingerprint) ToFingerprint() (*patchlib.Fingerprint, error) {
	acc, err := smali.ParseAccessFlags(f.Access)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", f.Name, err)
	}
	fp := &patchlib.Fingerprint{
		Name:          f.Name,
		Opcodes:       f.Opcodes,
		Fuzzy:         f.Fuzzy,
		Strings:       f.Strings,
		Literals:      f.Literals,
		Access:        acc,
		Params:        f.Params,
		Return:        f.Return,
		Class:         f.Class,
		Method:        f.Method,
		AnchorString:  f.AnchorString,
		AnchorLiteral: f.AnchorLiteral,
	}
	for _, c := range f.Captures {
		fp.Captures = append(fp.Captures, patchlib.Capture(c))
	}
	if err := fp.Validate(); err != nil {
		return nil, err
	}
	return fp, nil
}

func (f Fingerprint) Locate(c *patches.Context, log func(string, ...interface{})) (*patchlib.MatchResult, error) {
	log("Fingerprint(%#v)", f.Name)
	fp, err := f.ToFingerprint()
	if err != nil {
		return nil, fmt.Errorf("Fingerprint: %w", err)
	}
	r, err := c.Patcher.Locate(fp)
	if err != nil {
		return nil, err
	}
	log("  -> %s [%d:%d] %v", r.Method.Reference(), r.Start, r.End, r.Registers)
	return r, nil
}

// Method locates a method by its class and descriptor (e.g. foo(I)V).
type Method struct {
	Class  string `yaml:"Class"`
	Method string `yaml:"Method"`
	Index  int    `yaml:"Index,omitempty"`
}

func (m Method) Locate(c *patches.Context, log func(string, ...interface{})) (*patchlib.MatchResult, error) {
	log("Method(%#v, %#v, %d)", m.Class, m.Method, m.Index)
	cls := c.Corpus().Class(m.Class)
	if cls == nil {
		return nil, fmt.Errorf("Method: no class %s", m.Class)
	}
	name, params, ret, err := smali.ParseMethodDescriptor(m.Method)
	if err != nil {
		return nil, fmt.Errorf("Method: %w", err)
	}
	mth := cls.Method(name, params)
	if mth == nil || mth.Return != ret {
		return nil, fmt.Errorf("Method: no method %s->%s", m.Class, m.Method)
	}
	return c.Patcher.At(mth, m.Index)
}

type AddInstructions struct {
	Offset int    `yaml:"Offset,omitempty"`
	Code   string `yaml:"Code"`
}

type ReplaceInstructions struct {
	Offset int    `yaml:"Offset,omitempty"`
	Count  int    `yaml:"Count,omitempty"`
	Code   string `yaml:"Code"`
}

type RemoveInstructions struct {
	Offset int `yaml:"Offset,omitempty"`
	Count  int `yaml:"Count,omitempty"`
}

// AddStaticField adds a static field to the located class, or to Class if set.
type AddStaticField struct {
	Class  string   `yaml:"Class,omitempty"`
	Name   string   `yaml:"Name"`
	Type   string   `yaml:"Type"`
	Access []string `yaml:"Access,omitempty,flow"`
}

func (a AddInstructions) ToEdit() (patchlib.Edit, error) {
	return patchlib.Insert{Offset: a.Offset, Code: a.Code}, nil
}

func (r ReplaceInstructions) ToEdit() (patchlib.Edit, error) {
	return patchlib.Replace{Offset: r.Offset, Count: r.Count, Code: r.Code}, nil
}

func (r RemoveInstructions) ToEdit() (patchlib.Edit, error) {
	return patchlib.Remove{Offset: r.Offset, Count: r.Count}, nil
}

func (a AddStaticField) ToEdit() (patchlib.Edit, error) {
	acc := smali.AccPublic
	if len(a.Access) != 0 {
		var err error
		if acc, err = smali.ParseAccessFlags(a.Access); err != nil {
			return nil, fmt.Errorf("AddStaticField: %w", err)
		}
	}
	return patchlib.AddField{
		Class:  a.Class,
		Name:   a.Name,
		Type:   a.Type,
		Access: acc | smali.AccStatic,
	}, nil
}

type AddPreferenceCategory string
type SortPreferenceCategory string

type AddPreference struct {
	Category   string `yaml:"Category"`
	Key        string `yaml:"Key"`
	Default    string `yaml:"Default"`
	Dependency string `yaml:"Dependency,omitempty"`
	NoSummary  bool   `yaml:"NoSummary,omitempty"`
}

type AddPreferenceWithIntent struct {
	Category   string `yaml:"Category"`
	Key        string `yaml:"Key"`
	Dependency string `yaml:"Dependency,omitempty"`
}

func (a AddPreferenceCategory) ApplyTo(c *patches.Context, log func(string, ...interface{})) error {
	log("AddPreferenceCategory(%#v)", a)
	return settings.AddCategory(c, string(a))
}

func (s SortPreferenceCategory) ApplyTo(c *patches.Context, log func(string, ...interface{})) error {
	log("SortPreferenceCategory(%#v)", s)
	return settings.SortCategory(c, string(s))
}

func (a AddPreference) ApplyTo(c *patches.Context, log func(string, ...interface{})) error {
	log("AddPreference(%#v)", a)
	if a.NoSummary {
		if a.Dependency != "" {
			return fmt.Errorf("AddPreference: a preference without a summary can't have a dependency")
		}
		return settings.AddPreferenceWithoutSummary(c, a.Category, a.Key, a.Default)
	}
	return settings.AddPreference(c, a.Category, a.Key, a.Default, a.Dependency)
}

func (a AddPreferenceWithIntent) ApplyTo(c *patches.Context, log func(string, ...interface{})) error {
	log("AddPreferenceWithIntent(%#v)", a)
	return settings.AddPreferenceWithIntent(c, a.Category, a.Key, a.Dependency)
}
