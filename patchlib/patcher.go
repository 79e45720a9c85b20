// Package patchlib provides common functions related to patching decompiled
// classes.
package patchlib

import (
	"fmt"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/pgaskin/smalipatch/smali"
)

// opcodeCacheSize is the number of method opcode skeletons kept between
// Locate calls.
const opcodeCacheSize = 8192

// Patcher locates code in a corpus and applies edits to it.
type Patcher struct {
	corpus *smali.Corpus
	hook   func(target string, find, replace []string) error
	ops    *lru.Cache[opcodeKey, []string]
}

type opcodeKey struct {
	m   *smali.Method
	rev uint64
}

// NewPatcher creates a new Patcher.
func NewPatcher(c *smali.Corpus) *Patcher {
	ops, err := lru.New[opcodeKey, []string](opcodeCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &Patcher{corpus: c, ops: ops}
}

// Corpus returns the corpus being patched.
func (p *Patcher) Corpus() *smali.Corpus {
	return p.corpus
}

// Hook sets a hook to be called right before every change. The target is a
// method or class reference, and find and replace are the lines being changed.
// If it returns an error, the change is not made and the error is passed on.
// If nil (the default), the hook will be removed. The find and replace
// arguments MUST NOT be modified by the hook.
func (p *Patcher) Hook(fn func(target string, find, replace []string) error) {
	p.hook = fn
}

// At returns a MatchResult for the instruction at index i of a method found by
// other means (e.g. the constructor of a matched class). Edit offsets are
// relative to i.
func (p *Patcher) At(m *smali.Method, i int) (*MatchResult, error) {
	if i < 0 || i > m.Len() {
		return nil, fmt.Errorf("At(%s, %d): index out of range (%d instructions)", m, i, m.Len())
	}
	return &MatchResult{
		Class:       m.Class,
		Method:      m,
		Start:       i,
		End:         i,
		StartOffset: m.CodeOffset(i),
		EndOffset:   m.CodeOffset(i),
		Registers:   map[string]string{},
		rev:         m.Revision(),
	}, nil
}

// opcodes returns the opcode skeleton of a method.
func (p *Patcher) opcodes(m *smali.Method) []string {
	k := opcodeKey{m, m.Revision()}
	if ops, ok := p.ops.Get(k); ok {
		return ops
	}
	ops := make([]string, m.Len())
	for i, in := range m.Instructions() {
		ops[i] = in.Opcode
	}
	p.ops.Add(k, ops)
	return ops
}
