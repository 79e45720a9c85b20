// Package smalipatch reads smalipatch style patches.
package smalipatch

import (
	"fmt"

	"github.com/pgaskin/smalipatch/patches"
	"github.com/pgaskin/smalipatch/patchfile"
	"github.com/pgaskin/smalipatch/patchlib"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PatchSet represents a series of patches in the order they were defined.
type PatchSet struct {
	names   []string
	patches map[string]Patch
}

// Parse parses a PatchSet from a buf.
func Parse(buf []byte) (patchfile.PatchSet, error) {
	patchfile.Log("parsing patch file\n")
	var doc yaml.Node
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return nil, errors.Wrap(err, "error parsing patch file")
	}

	ps := &PatchSet{patches: map[string]Patch{}}
	if len(doc.Content) == 0 {
		return ps, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.Errorf("error parsing patch file: line %d: expected a map of patch names to instructions", root.Line)
	}

	patchfile.Log("parsing patch file: decoding instructions\n")
	for i := 0; i+1 < len(root.Content); i += 2 {
		name, node := root.Content[i].Value, root.Content[i+1]
		if _, ok := ps.patches[name]; ok {
			return nil, errors.Errorf("error parsing patch file: line %d: duplicate patch `%s`", root.Content[i].Line, name)
		}

		var pn PatchNode
		if err := node.DecodeStrict(&pn); err != nil {
			return nil, errors.Wrapf(err, "error parsing patch file: line %d: patch `%s`", node.Line, name)
		}

		p, err := pn.ToPatch()
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing patch file: patch `%s`", name)
		}
		patchfile.Log("  %s: %d instructions\n", name, len(p))

		ps.names = append(ps.names, name)
		ps.patches[name] = p
	}
	return ps, nil
}

// Names returns the names of the patches in order.
func (ps *PatchSet) Names() []string {
	return append([]string(nil), ps.names...)
}

// Description gets the description of a patch, if any.
func (ps *PatchSet) Description(name string) string {
	for _, i := range ps.patches[name] {
		if i.Description != nil {
			return string(*i.Description)
		}
	}
	return ""
}

// Enabled checks if a patch is enabled.
func (ps *PatchSet) Enabled(name string) bool {
	for _, i := range ps.patches[name] {
		if i.Enabled != nil {
			return bool(*i.Enabled)
		}
	}
	return false
}

// Validate validates the PatchSet.
func (ps *PatchSet) Validate() error {
	enabledPatchGroups := map[string]bool{}
	for _, n := range ps.names {
		ec := 0
		e := false
		pgc := 0
		pg := ""
		dc := 0
		cc := 0

		located, applied := false, false
		for _, i := range ps.patches[n] {
			switch v := i.ToSingleInstruction().(type) {
			case nil:
				return errors.Errorf("internal error while validating `%s` (you should report this as a bug)", n)
			case Enabled:
				ec++
				e = bool(v)
			case Description:
				dc++
			case PatchGroup:
				pgc++
				pg = string(v)
			case Compatibility:
				cc++
				if len(v) == 0 {
					return errors.Errorf("empty `Compatibility` option in `%s`", n)
				}
			case LocateInstruction:
				located, applied = true, false
			case EditInstruction:
				if applied {
					return errors.Errorf("edit after a preference instruction without a new `Fingerprint` or `Method` in `%s`", n)
				}
				if !located {
					return errors.Errorf("edit before `Fingerprint` or `Method` in `%s`", n)
				}
			case PatchableInstruction:
				if located {
					located, applied = false, true
				}
			}
		}
		patchfile.Log("  ec:%d, e:%t, pgc:%d, pg:%s, dc:%d, cc:%d\n", ec, e, pgc, pg, dc, cc)
		if ec < 1 {
			return errors.Errorf("no `Enabled` option in `%s`", n)
		} else if ec > 1 {
			return errors.Errorf("more than one `Enabled` option in `%s`", n)
		}
		if dc > 1 {
			return errors.Errorf("more than one `Description` option in `%s` (use comments to describe individual lines)", n)
		}
		if pgc > 1 {
			return errors.Errorf("more than one `PatchGroup` option in `%s`", n)
		}
		if cc > 1 {
			return errors.Errorf("more than one `Compatibility` option in `%s`", n)
		}
		if pg != "" && e {
			if _, ok := enabledPatchGroups[pg]; ok {
				return errors.Errorf("more than one patch enabled in PatchGroup `%s`", pg)
			}
			enabledPatchGroups[pg] = true
		}
	}
	patchfile.Log("  enabledPatchGroups:%v\n", enabledPatchGroups)
	return nil
}

// ApplyTo applies a PatchSet to a patch run.
func (ps *PatchSet) ApplyTo(c *patches.Context) error {
	patchfile.Log("validating patch file\n")
	err := ps.Validate()
	if err != nil {
		err = errors.Wrap(err, "invalid patch file")
		fmt.Printf("  Error: %v\n", err)
		return err
	}

	patchfile.Log("looping over patches\n")
	num, total := 0, len(ps.names)
	for _, n := range ps.names {
		num++
		if !ps.Enabled(n) {
			patchfile.Log("  skipping patch `%s`\n", n)
			fmt.Printf("  [%d/%d] Skipping disabled patch `%s`\n", num, total, n)
			continue
		}

		if err := c.Check(ps.info(n)); err != nil {
			fmt.Printf("  [%d/%d] Error: %v\n", num, total, err)
			return err
		}

		patchfile.Log("  applying patch `%s`\n", n)
		fmt.Printf("  [%d/%d] Applying patch `%s`\n", num, total, n)

		if err := ps.patches[n].applyTo(c); err != nil {
			patchfile.Log("could not apply patch: %v\n", err)
			fmt.Printf("    Error: could not apply patch: %v\n", err)
			return errors.Wrapf(err, "could not apply patch `%s`", n)
		}
	}
	return nil
}

func (ps *PatchSet) info(name string) patches.Info {
	i := patches.Info{
		ID:          name,
		Name:        name,
		Description: ps.Description(name),
	}
	for _, in := range ps.patches[name] {
		if in.Compatibility != nil {
			i.Compatibility = *in.Compatibility
		}
	}
	return i
}

// applyTo runs the instructions of a patch. The edits following a Fingerprint
// or Method are applied all at once when the next non-edit instruction (or
// the end of the patch) is reached.
func (p Patch) applyTo(c *patches.Context) error {
	log := func(format string, a ...interface{}) {
		patchfile.Log("    "+format+"\n", a...)
	}

	var r *patchlib.MatchResult
	var edits []patchlib.Edit
	flush := func() error {
		if len(edits) == 0 {
			return nil
		}
		log("Apply(%s, %d edits)", r.Method.Reference(), len(edits))
		err := c.Patcher.Apply(r, edits...)
		edits = nil
		return err
	}

	for _, i := range p {
		switch v := i.ToSingleInstruction().(type) {
		case Enabled, Description, PatchGroup, Compatibility:
			// not instructions
		case LocateInstruction:
			if err := flush(); err != nil {
				return err
			}
			m, err := v.Locate(c, log)
			if err != nil {
				return err
			}
			r = m
		case EditInstruction:
			if r == nil {
				return errors.Errorf("edit before `Fingerprint` or `Method`")
			}
			e, err := v.ToEdit()
			if err != nil {
				return err
			}
			log("%T(%#v)", v, v)
			edits = append(edits, e)
		case PatchableInstruction:
			if err := flush(); err != nil {
				return err
			}
			if err := v.ApplyTo(c, log); err != nil {
				return err
			}
			r = nil
		default:
			return errors.Errorf("invalid instruction: %#v", v)
		}
	}
	return flush()
}

// SetEnabled sets the Enabled state of a Patch in a PatchSet.
func (ps *PatchSet) SetEnabled(patch string, enabled bool) error {
	p, ok := ps.patches[patch]
	if !ok {
		if enabled {
			return errors.Errorf("could not set enabled state of '%s' to %t: no such patch", patch, enabled)
		}
		return nil
	}
	for _, i := range p {
		if i.Enabled != nil {
			*i.Enabled = Enabled(enabled)
			return nil
		}
	}
	return errors.Errorf("could not set enabled state of '%s' to %t: no Enabled instruction in patch", patch, enabled)
}

func init() {
	patchfile.RegisterFormat("smalipatch", Parse)
}
