package patchlib

import (
	"errors"
	"strings"
	"testing"

	"github.com/pgaskin/smalipatch/smali"
)

func listMatch(t *testing.T) (*Patcher, *MatchResult) {
	t.Helper()
	p := newTestPatcher(t)
	r, e := p.Locate(&Fingerprint{
		Name:     "List",
		Opcodes:  []string{"invoke-interface", "iget-object", "aget-object"},
		Captures: []Capture{{Name: "list", Register: 1}},
	})
	nerr(t, e)
	return p, r
}

func TestApplyOffsetTranslation(t *testing.T) {
	p, r := listMatch(t)
	nerr(t, p.Apply(r,
		Insert{Offset: 1, Code: "nop"},
		Replace{Offset: 2, Code: "aget-object v1, v0, p3"},
	))
	eq(t, opcodes(r.Method), []string{"invoke-interface", "nop", "iget-object", "aget-object", "return-void"}, "unexpected opcodes")
	eq(t, r.Method.Instruction(3).String(), "aget-object v1, v0, p3", "replace should target the instruction originally at offset 2")
	eq(t, r.Method.CodeOffset(2), 4, "unexpected code offset after insert")
}

func TestApplyOrder(t *testing.T) {
	p, r := listMatch(t)
	nerr(t, p.Apply(r,
		Insert{Offset: 1, Code: "const/4 v0, 0x1"},
		Insert{Offset: 1, Code: "const/4 v0, 0x2\nconst/4 v0, 0x3"},
		Replace{Offset: 1, Count: 2, Code: "nop"},
	))
	var ss []string
	for _, in := range r.Method.Instructions() {
		ss = append(ss, in.String())
	}
	eq(t, ss, []string{
		"invoke-interface {p0, p1}, La/List;->set([Ljava/lang/Object;)V",
		"const/4 v0, 0x1",
		"const/4 v0, 0x2",
		"const/4 v0, 0x3",
		"nop",
		"return-void",
	}, "unexpected instructions")
}

func TestApplyInvalid(t *testing.T) {
	for _, tc := range []struct {
		name  string
		edits []Edit
	}{
		{"UnknownOpcode", []Edit{Insert{Offset: 0, Code: "nop"}, Insert{Offset: 1, Code: "frobnicate v0"}}},
		{"BadRegister", []Edit{Insert{Offset: 0, Code: "const/4 v5, 0x0"}}},
		{"BadParameterRegister", []Edit{Insert{Offset: 0, Code: "move p4, p0"}}},
		{"MalformedRegister", []Edit{Insert{Offset: 0, Code: "invoke-static {v0, x1}, La;->b(II)V"}}},
		{"UnknownPlaceholder", []Edit{Insert{Offset: 0, Code: "invoke-static {{{nope}}}, La;->b(I)V"}}},
		{"DanglingLabel", []Edit{Insert{Offset: 0, Code: "nop\n:skip"}}},
		{"InsertAfterEnd", []Edit{Insert{Offset: 5}}},
		{"InsertBeforeStart", []Edit{Insert{Offset: -1, Code: "nop"}}},
		{"ReplaceAfterEnd", []Edit{Replace{Offset: 3, Count: 2, Code: "nop"}}},
		{"ReplaceEmpty", []Edit{Replace{Offset: 0, Code: "# nothing"}}},
		{"RemoveBeforeStart", []Edit{Remove{Offset: -1}}},
		{"RemoveNegative", []Edit{Remove{Offset: 1, Count: -1}}},
		{"Overlap", []Edit{Remove{Offset: 0, Count: 2}, Replace{Offset: 1, Code: "nop"}}},
		{"InsertInsideReplace", []Edit{Replace{Offset: 0, Count: 2, Code: "nop"}, Insert{Offset: 1, Code: "nop"}}},
		{"ReplaceAroundInsert", []Edit{Insert{Offset: 1, Code: "nop"}, Replace{Offset: 0, Count: 2, Code: "nop"}}},
		{"FieldTypeConflict", []Edit{AddField{Name: "current", Type: "I"}}},
		{"FieldNoClass", []Edit{AddField{Class: "La/Nope;", Name: "x", Type: "I"}}},
		{"FieldBadType", []Edit{AddField{Name: "x", Type: "IJ"}}},
		{"FieldVoid", []Edit{AddField{Name: "x", Type: "V"}}},
		{"FieldNoName", []Edit{AddField{Type: "I"}}},
		{"FieldPendingConflict", []Edit{AddField{Name: "x", Type: "I"}, AddField{Name: "x", Type: "J"}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, r := listMatch(t)
			before := string(r.Class.Bytes())
			rev := r.Method.Revision()
			e := p.Apply(r, tc.edits...)
			if !errors.Is(e, ErrInvalidEdit) {
				t.Fatalf("expected ErrInvalidEdit, got %v", e)
			}
			eq(t, r.Method.Revision(), rev, "revision should not change")
			eq(t, r.Class.Dirty(), false, "class should not be dirty")
			eq(t, string(r.Class.Bytes()), before, "class should not change")
		})
	}
}

func TestApplyValidRegisters(t *testing.T) {
	p, r := listMatch(t)
	nerr(t, p.Apply(r,
		Insert{Offset: 0, Code: "const/4 v4, 0x0\nmove p3, p0"},
		Insert{Offset: 4, Code: "nop"},
	))
	eq(t, r.Method.Len(), 7, "unexpected instruction count")
}

func TestApplyLabels(t *testing.T) {
	p := newTestPatcher(t)
	m := p.Corpus().Class("La/Quality;").Method("pick", nil)

	r, e := p.At(m, 0)
	nerr(t, e)
	nerr(t, p.Apply(r,
		Insert{Offset: 0, Code: "# skip the parser\n:skip_0\ngoto :skip_1\n:skip_1\nnop"},
		Remove{Offset: 4},
		Remove{Offset: 5},
	))
	out := string(m.Class.Bytes())
	for _, s := range []string{
		"    .locals 3\n\n    :skip_0\n    goto :skip_1\n    :skip_1\n    nop\n    invoke-static {p0}",
		"    const-string v2, \"QUALITY\"\n\n    :cond_0\n\n.end method\n",
	} {
		if !strings.Contains(out, s) {
			t.Errorf("output does not contain %q:\n%s", s, out)
		}
	}
	eq(t, opcodes(m), []string{"goto", "nop", "invoke-static", "move-result", "const/4", "const-string"}, "unexpected opcodes")
}

func TestApplyRemoveCarriesLabels(t *testing.T) {
	p := newTestPatcher(t)
	m := p.Corpus().Class("La/Quality;").Method("pick", nil)
	r, e := p.At(m, 4)
	nerr(t, e)
	nerr(t, p.Apply(r, Remove{}))
	if out := string(m.Class.Bytes()); !strings.Contains(out, "    :cond_0\n\n    return v0\n") {
		t.Errorf("label should move to the next instruction:\n%s", out)
	}
}

func TestApplyReplaceKeepsLabels(t *testing.T) {
	p := newTestPatcher(t)
	m := p.Corpus().Class("La/Quality;").Method("pick", nil)
	r, e := p.At(m, 4)
	nerr(t, e)
	nerr(t, p.Apply(r, Replace{Code: "sub-int v0, v0, v1"}))
	if out := string(m.Class.Bytes()); !strings.Contains(out, "    :cond_0\n    sub-int v0, v0, v1\n") {
		t.Errorf("label should stay on the replacement:\n%s", out)
	}
}

func TestAddFieldIdempotent(t *testing.T) {
	p := newTestPatcher(t)
	cls := p.Corpus().Class("La/Quality;")
	for i := 0; i < 3; i++ {
		r, e := p.At(cls.Method("pick", nil), 0)
		nerr(t, e)
		nerr(t, p.Apply(r,
			AddField{Name: "qualityClass", Type: "La/Quality;", Access: smali.AccPublic | smali.AccStatic},
			AddField{Name: "qualityClass", Type: "La/Quality;", Access: smali.AccPublic | smali.AccStatic},
			AddField{Class: "Lb/Other;", Name: "bridge", Type: "Ljava/lang/Object;", Access: smali.AccPublic | smali.AccStatic},
			AddField{Name: "current", Type: "Ljava/lang/String;"},
		))
	}
	eq(t, len(cls.Fields()), 2, "unexpected field count")
	eq(t, len(p.Corpus().Class("Lb/Other;").Fields()), 1, "unexpected field count")
	eq(t, strings.Count(string(cls.Bytes()), "qualityClass"), 1, "field should only be added once")
}
