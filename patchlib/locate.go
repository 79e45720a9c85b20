package patchlib

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pgaskin/smalipatch/smali"
)

var (
	// ErrNotFound is returned when no method matches a fingerprint.
	ErrNotFound = errors.New("no matching method")
	// ErrAmbiguous is returned when more than one method matches a fingerprint
	// and the anchor doesn't resolve it.
	ErrAmbiguous = errors.New("more than one matching method")
)

// LocateError is returned by Locate when a fingerprint doesn't resolve to
// exactly one method. It matches ErrNotFound or ErrAmbiguous with errors.Is.
type LocateError struct {
	Fingerprint string
	Err         error
	Candidates  []string
}

func (e *LocateError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("Locate(%s): %v", e.Fingerprint, e.Err)
	}
	return fmt.Sprintf("Locate(%s): %v (%s)", e.Fingerprint, e.Err, strings.Join(e.Candidates, ", "))
}

func (e *LocateError) Unwrap() error {
	return e.Err
}

// MatchResult is the location of a fingerprint match.
type MatchResult struct {
	Fingerprint string
	Class       *smali.Class
	Method      *smali.Method

	// Start and End are the instruction indexes of the match window (End is
	// inclusive).
	Start, End int
	// StartOffset and EndOffset are the code unit offsets of the first and
	// last instruction of the window.
	StartOffset, EndOffset int

	// Registers contains the captured registers by name.
	Registers map[string]string

	rev uint64
}

// Register gets a captured register.
func (r *MatchResult) Register(name string) (string, error) {
	reg, ok := r.Registers[name]
	if !ok {
		return "", fmt.Errorf("no captured register %#v", name)
	}
	return reg, nil
}

// Instruction returns the instruction at an offset relative to Start.
func (r *MatchResult) Instruction(offset int) *smali.Instruction {
	return r.Method.Instruction(r.Start + offset)
}

type candidate struct {
	m     *smali.Method
	start int
}

// Locate finds the unique method matching a fingerprint, and the first window
// in it where the opcode skeleton aligns.
func (p *Patcher) Locate(fp *Fingerprint) (*MatchResult, error) {
	if err := fp.Validate(); err != nil {
		return nil, fmt.Errorf("Locate: %w", err)
	}

	var cs []candidate
	for _, m := range p.corpus.Methods() {
		if !fp.matchMethod(m) {
			continue
		}
		if s, ok := fp.scan(p.opcodes(m)); ok {
			cs = append(cs, candidate{m, s})
		}
	}

	if len(cs) > 1 && fp.hasAnchor() {
		var anchored []candidate
		for _, c := range cs {
			if fp.anchored(c.m) {
				anchored = append(anchored, c)
			}
		}
		if len(anchored) == 1 {
			cs = anchored
		}
	}

	switch len(cs) {
	case 0:
		return nil, &LocateError{Fingerprint: fp.Name, Err: ErrNotFound}
	case 1:
	default:
		le := &LocateError{Fingerprint: fp.Name, Err: ErrAmbiguous}
		for _, c := range cs {
			le.Candidates = append(le.Candidates, c.m.Reference())
		}
		return nil, le
	}

	c := cs[0]
	end := c.start + len(fp.Opcodes) - 1
	if end < c.start {
		end = c.start
	}
	r := &MatchResult{
		Fingerprint: fp.Name,
		Class:       c.m.Class,
		Method:      c.m,
		Start:       c.start,
		End:         end,
		StartOffset: c.m.CodeOffset(c.start),
		EndOffset:   c.m.CodeOffset(end),
		Registers:   map[string]string{},
		rev:         c.m.Revision(),
	}
	for _, cp := range fp.Captures {
		i := r.Start + cp.Offset
		if cp.FromEnd {
			i = r.End + cp.Offset
		}
		in := c.m.Instruction(i)
		if in == nil {
			return nil, fmt.Errorf("Locate(%s): capture %s: no instruction at index %d of %s", fp.Name, cp.Name, i, c.m)
		}
		reg, err := in.Register(cp.Register)
		if err != nil {
			return nil, fmt.Errorf("Locate(%s): capture %s: %w", fp.Name, cp.Name, err)
		}
		r.Registers[cp.Name] = reg
	}
	return r, nil
}
