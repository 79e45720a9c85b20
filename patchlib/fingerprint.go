package patchlib

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pgaskin/smalipatch/smali"
)

// Fingerprint describes the shape of a method and of an instruction window
// inside it. Zero-valued fields do not constrain the match.
type Fingerprint struct {
	Name string

	// Opcodes is the opcode skeleton of the match window. An empty string or
	// "*" matches any opcode, and a trailing "*" matches by prefix.
	Opcodes []string
	// Fuzzy is the number of skeleton slots which may mismatch.
	Fuzzy int

	// Strings and Literals must all be referenced somewhere in the method.
	Strings  []string
	Literals []int64

	// Access is a mask of flags which must all be set.
	Access smali.AccessFlags
	// Params are prefixes of the parameter types. If nil, the parameters
	// aren't checked; if empty, the method must not take any parameters.
	Params []string
	// Return is a prefix of the return type.
	Return string
	Class  string
	Method string

	// AnchorString and AnchorLiteral are used to choose between more than one
	// matching method. Exactly one candidate must reference it anywhere in its
	// body.
	AnchorString  string
	AnchorLiteral *int64

	Captures []Capture

	// Custom is an additional predicate on the method.
	Custom func(*smali.Method) bool
}

// Capture extracts a register from an instruction in the match window.
type Capture struct {
	Name string
	// Offset is relative to the start of the window, or to the end if FromEnd
	// is set.
	Offset  int
	FromEnd bool
	// Register is the index of the register operand (0 is register A, or
	// register C for an invoke).
	Register int
}

// Validate checks the fingerprint for obvious mistakes.
func (fp *Fingerprint) Validate() error {
	if fp.Name == "" {
		return errors.New("fingerprint has no name")
	}
	if fp.Fuzzy < 0 {
		return fmt.Errorf("fingerprint %s: fuzzy threshold must not be negative", fp.Name)
	}
	if fp.Fuzzy != 0 && fp.Fuzzy >= len(fp.Opcodes) {
		return fmt.Errorf("fingerprint %s: fuzzy threshold must be less than the number of opcodes", fp.Name)
	}
	for _, op := range fp.Opcodes {
		if op != "" && !strings.HasSuffix(op, "*") && !smali.IsOpcode(op) {
			return fmt.Errorf("fingerprint %s: unknown opcode %#v", fp.Name, op)
		}
	}
	if fp.AnchorString != "" && fp.AnchorLiteral != nil {
		return fmt.Errorf("fingerprint %s: only one anchor may be specified", fp.Name)
	}
	names := map[string]bool{}
	for _, c := range fp.Captures {
		if c.Name == "" {
			return fmt.Errorf("fingerprint %s: capture has no name", fp.Name)
		}
		if names[c.Name] {
			return fmt.Errorf("fingerprint %s: duplicate capture %#v", fp.Name, c.Name)
		}
		if c.Register < 0 {
			return fmt.Errorf("fingerprint %s: capture %s: register index must not be negative", fp.Name, c.Name)
		}
		names[c.Name] = true
	}
	return nil
}

// matchMethod checks the constraints which don't depend on the opcodes.
func (fp *Fingerprint) matchMethod(m *smali.Method) bool {
	if fp.Class != "" && (m.Class == nil || m.Class.Name != fp.Class) {
		return false
	}
	if fp.Method != "" && m.Name != fp.Method {
		return false
	}
	if !m.Access.Has(fp.Access) {
		return false
	}
	if !strings.HasPrefix(m.Return, fp.Return) {
		return false
	}
	if fp.Params != nil {
		if len(fp.Params) != len(m.Params) {
			return false
		}
		for i, p := range fp.Params {
			if !strings.HasPrefix(m.Params[i], p) {
				return false
			}
		}
	}
	if len(fp.Strings) != 0 || len(fp.Literals) != 0 {
		strs, lits := map[string]bool{}, map[int64]bool{}
		for _, in := range m.Instructions() {
			if s, ok := in.StringLiteral(); ok {
				strs[s] = true
			} else if l, ok := in.WideLiteral(); ok {
				lits[l] = true
			}
		}
		for _, s := range fp.Strings {
			if !strs[s] {
				return false
			}
		}
		for _, l := range fp.Literals {
			if !lits[l] {
				return false
			}
		}
	}
	if fp.Custom != nil && !fp.Custom(m) {
		return false
	}
	return true
}

// scan returns the first window where the opcode skeleton aligns.
func (fp *Fingerprint) scan(ops []string) (int, bool) {
	n := len(fp.Opcodes)
	for s := 0; s+n <= len(ops); s++ {
		var miss int
		for j, pat := range fp.Opcodes {
			if !smali.MatchOpcode(pat, ops[s+j]) {
				if miss++; miss > fp.Fuzzy {
					break
				}
			}
		}
		if miss <= fp.Fuzzy {
			return s, true
		}
	}
	return 0, false
}

// anchored checks if the anchor is referenced anywhere in the method.
func (fp *Fingerprint) anchored(m *smali.Method) bool {
	for _, in := range m.Instructions() {
		if fp.AnchorLiteral != nil {
			if l, ok := in.WideLiteral(); ok && l == *fp.AnchorLiteral {
				return true
			}
		} else if s, ok := in.StringLiteral(); ok && s == fp.AnchorString {
			return true
		}
	}
	return false
}

func (fp *Fingerprint) hasAnchor() bool {
	return fp.AnchorString != "" || fp.AnchorLiteral != nil
}
