package patchlib

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pgaskin/smalipatch/smali"
)

// ErrInvalidEdit is returned by Apply when an edit can't be applied. When it
// is returned, nothing was changed.
var ErrInvalidEdit = errors.New("invalid edit")

// Edit is an operation for Apply. It is one of Insert, Replace, Remove, or
// AddField.
type Edit interface {
	edit()
}

// Insert inserts instructions before the instruction at Offset.
//
// Code is a template of one instruction per line. Blank lines and comments
// are ignored, labels (:name) are attached to the following instruction, and
// {{name}} is replaced with the captured register name.
type Insert struct {
	Offset int
	Code   string
}

// Replace replaces Count (or 1 if zero) instructions starting at Offset.
type Replace struct {
	Offset int
	Count  int
	Code   string
}

// Remove removes Count (or 1 if zero) instructions starting at Offset.
type Remove struct {
	Offset int
	Count  int
}

// AddField adds a field to a class (or the matched class if Class is empty).
// Adding a field with the same name and type as an existing one does nothing.
type AddField struct {
	Class  string
	Name   string
	Type   string
	Access smali.AccessFlags
}

func (Insert) edit()   {}
func (Replace) edit()  {}
func (Remove) edit()   {}
func (AddField) edit() {}

type newField struct {
	cls *smali.Class
	*smali.Field
}

// slot tracks the edits at an original instruction index.
type slot struct {
	before   []*smali.Instruction
	replaced bool // covered by a Replace or Remove
	with     []*smali.Instruction
}

// Apply applies edits to the matched method. Offsets are relative to the
// start of the match window, and always refer to the instructions as they
// were before any of the edits. Either all edits are applied, or none are.
func (p *Patcher) Apply(r *MatchResult, edits ...Edit) error {
	if err := p.apply(r, edits); err != nil {
		return fmt.Errorf("Apply(%s): %w", r.Method, err)
	}
	return nil
}

func (p *Patcher) apply(r *MatchResult, edits []Edit) error {
	m := r.Method
	if m.Revision() != r.rev {
		return fmt.Errorf("%w: match is stale (method was modified after it was located)", ErrInvalidEdit)
	}

	orig := m.Instructions()
	slots := make([]slot, len(orig)+1)
	var fields []newField
	var body bool

	invalid := func(i int, format string, a ...interface{}) error {
		return fmt.Errorf("edit %d: %s: %w", i+1, fmt.Sprintf(format, a...), ErrInvalidEdit)
	}

	for i, e := range edits {
		switch e := e.(type) {
		case Insert:
			at := r.Start + e.Offset
			if at < 0 || at > len(orig) {
				return invalid(i, "insert offset %d out of range", e.Offset)
			}
			if at < len(orig) && slots[at].replaced && slots[at].with == nil {
				return invalid(i, "insert offset %d is inside a replaced range", e.Offset)
			}
			insns, err := p.assemble(r, e.Code)
			if err != nil {
				return invalid(i, "%v", err)
			}
			slots[at].before = append(slots[at].before, insns...)
			body = true
		case Replace, Remove:
			var off, n int
			var code string
			if rp, ok := e.(Replace); ok {
				off, n, code = rp.Offset, rp.Count, rp.Code
			} else {
				rm := e.(Remove)
				off, n = rm.Offset, rm.Count
			}
			if n == 0 {
				n = 1
			}
			at := r.Start + off
			if n < 0 || at < 0 || at+n > len(orig) {
				return invalid(i, "range %d+%d out of range", off, n)
			}
			for j := at; j < at+n; j++ {
				if slots[j].replaced {
					return invalid(i, "range %d+%d overlaps another replacement", off, n)
				}
				if j != at && len(slots[j].before) != 0 {
					return invalid(i, "range %d+%d contains an insertion", off, n)
				}
			}
			insns := []*smali.Instruction{}
			if _, ok := e.(Replace); ok {
				var err error
				if insns, err = p.assemble(r, code); err != nil {
					return invalid(i, "%v", err)
				}
				if len(insns) == 0 {
					return invalid(i, "empty replacement (use Remove instead)")
				}
			}
			for j := at; j < at+n; j++ {
				slots[j].replaced = true
			}
			slots[at].with = insns
			body = true
		case AddField:
			cls := r.Class
			if e.Class != "" {
				if cls = p.corpus.Class(e.Class); cls == nil {
					return invalid(i, "no such class %s", e.Class)
				}
			}
			if e.Name == "" || e.Type == "" {
				return invalid(i, "field name and type are required")
			}
			if ts, err := smali.ParseTypeList(e.Type); err != nil || len(ts) != 1 || e.Type == "V" {
				return invalid(i, "invalid field type %#v", e.Type)
			}
			existing := cls.Field(e.Name)
			for _, f := range fields {
				if f.cls == cls && f.Name == e.Name {
					existing = f.Field
				}
			}
			if existing != nil {
				if existing.Type != e.Type {
					return invalid(i, "field %s already exists with type %s", e.Name, existing.Type)
				}
				continue
			}
			fields = append(fields, newField{cls, &smali.Field{
				Name:   e.Name,
				Type:   e.Type,
				Access: e.Access,
			}})
		default:
			return invalid(i, "unknown edit %T", e)
		}
	}

	var insns []*smali.Instruction
	var carry []string
	for i := range slots {
		for _, in := range slots[i].before {
			in.Prefix, carry = append(carry, in.Prefix...), nil
			insns = append(insns, in)
		}
		if i == len(orig) {
			break
		}
		s := slots[i]
		switch {
		case !s.replaced:
			in := *orig[i]
			in.Prefix, carry = append(carry, in.Prefix...), nil
			insns = append(insns, &in)
		case s.with != nil:
			carry = append(carry, orig[i].Prefix...)
			for _, in := range s.with {
				in.Prefix, carry = append(carry, in.Prefix...), nil
				insns = append(insns, in)
			}
		default:
			carry = append(carry, orig[i].Prefix...)
		}
	}

	if body && p.hook != nil {
		if err := p.hook(m.Reference(), instructionStrings(orig), instructionStrings(insns)); err != nil {
			return err
		}
	}
	for _, f := range fields {
		if p.hook != nil {
			if err := p.hook(f.cls.Name, nil, []string{f.String()}); err != nil {
				return err
			}
		}
	}

	if body {
		m.SetBody(insns, carry)
	}
	for _, f := range fields {
		f.cls.AddField(f.Field)
	}
	return nil
}

// assemble expands and assembles an instruction template.
func (p *Patcher) assemble(r *MatchResult, code string) ([]*smali.Instruction, error) {
	var kv []string
	for name, reg := range r.Registers {
		kv = append(kv, "{{"+name+"}}", reg)
	}
	code = strings.NewReplacer(kv...).Replace(code)

	var insns []*smali.Instruction
	var labels []string
	for n, line := range strings.Split(code, "\n") {
		t := strings.TrimSpace(line)
		switch {
		case t == "", strings.HasPrefix(t, "#"):
			continue
		case strings.Contains(t, "{{"):
			return nil, fmt.Errorf("line %d: unknown placeholder in %#v", n+1, t)
		case strings.HasPrefix(t, ":"):
			labels = append(labels, "    "+t)
			continue
		}
		in, err := smali.AssembleInstruction(t)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		for _, reg := range in.Registers() {
			if err := r.Method.CheckRegister(reg); err != nil {
				return nil, fmt.Errorf("line %d: %w", n+1, err)
			}
		}
		in.Prefix, labels = labels, nil
		insns = append(insns, in)
	}
	if len(labels) != 0 {
		return nil, fmt.Errorf("label %s is not followed by an instruction", strings.TrimSpace(labels[0]))
	}
	return insns, nil
}

func instructionStrings(insns []*smali.Instruction) []string {
	ss := make([]string, len(insns))
	for i, in := range insns {
		ss[i] = in.String()
	}
	return ss
}
