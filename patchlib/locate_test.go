package patchlib

import (
	"errors"
	"testing"

	"github.com/pgaskin/smalipatch/smali"
)

func TestLocate(t *testing.T) {
	pick := []string{"invoke-static", "move-result", "const/4"}
	lit := func(v int64) *int64 { return &v }

	for _, tc := range []struct {
		name  string
		fp    Fingerprint
		class string
		start int
		err   error
	}{
		{"Unique", Fingerprint{Opcodes: pick, Strings: []string{"QUALITY"}}, "La/Quality;", 0, nil},
		{"Ambiguous", Fingerprint{Opcodes: pick}, "", 0, ErrAmbiguous},
		{"NotFound", Fingerprint{Opcodes: pick, Strings: []string{"NOPE"}}, "", 0, ErrNotFound},
		{"TooLong", Fingerprint{Opcodes: append(pick, "const-string", "add-int", "return", "nop")}, "", 0, ErrNotFound},
		{"Literal", Fingerprint{Opcodes: pick, Literals: []int64{1}}, "La/Quality;", 0, nil},
		{"Signature", Fingerprint{Opcodes: pick, Access: smali.AccPublic | smali.AccStatic, Params: []string{"Ljava/lang/"}, Return: "I", Strings: []string{"OTHER"}}, "Lb/Other;", 0, nil},
		{"WrongReturn", Fingerprint{Opcodes: pick, Return: "V"}, "", 0, ErrNotFound},
		{"NoParams", Fingerprint{Params: []string{}}, "", 0, ErrNotFound},
		{"WrongAccess", Fingerprint{Opcodes: pick, Access: smali.AccPrivate}, "", 0, ErrNotFound},
		{"AnchorInWindow", Fingerprint{Opcodes: append(pick, "const-string"), AnchorString: "QUALITY"}, "La/Quality;", 0, nil},
		{"AnchorOutsideWindow", Fingerprint{Opcodes: pick, AnchorString: "QUALITY"}, "La/Quality;", 0, nil},
		{"AnchorLiteral", Fingerprint{Opcodes: pick, AnchorLiteral: lit(2)}, "Lb/Other;", 0, nil},
		{"AnchorNoMatch", Fingerprint{Opcodes: pick, AnchorLiteral: lit(3)}, "", 0, ErrAmbiguous},
		{"Wildcard", Fingerprint{Opcodes: []string{"invoke-*", "", "*", "const-string"}, Strings: []string{"OTHER"}}, "Lb/Other;", 0, nil},
		{"FirstWindow", Fingerprint{Opcodes: []string{"", "const*"}, Class: "La/Quality;", Method: "pick"}, "La/Quality;", 1, nil},
		{"Fuzzy", Fingerprint{Opcodes: []string{"invoke-static", "move-result", "const/16"}, Fuzzy: 1, Strings: []string{"QUALITY"}}, "La/Quality;", 0, nil},
		{"NotFuzzy", Fingerprint{Opcodes: []string{"invoke-static", "move-result", "const/16"}, Strings: []string{"QUALITY"}}, "", 0, ErrNotFound},
		{"Custom", Fingerprint{Opcodes: pick, Custom: func(m *smali.Method) bool { return m.Class.Name == "Lb/Other;" }}, "Lb/Other;", 0, nil},
		{"NoOpcodes", Fingerprint{Method: "list"}, "La/Quality;", 0, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPatcher(t)
			tc.fp.Name = tc.name
			r, e := p.Locate(&tc.fp)
			if tc.err != nil {
				if !errors.Is(e, tc.err) {
					t.Fatalf("expected %v, got %v", tc.err, e)
				}
				var le *LocateError
				if !errors.As(e, &le) || le.Fingerprint != tc.name {
					t.Errorf("expected a LocateError for %s, got %#v", tc.name, e)
				}
				return
			}
			nerr(t, e)
			if r == nil {
				return
			}
			eq(t, r.Class.Name, tc.class, "unexpected class")
			eq(t, r.Start, tc.start, "unexpected start")
			if len(tc.fp.Opcodes) != 0 {
				eq(t, r.End, tc.start+len(tc.fp.Opcodes)-1, "unexpected end")
			}
			eq(t, r.StartOffset, r.Method.CodeOffset(r.Start), "unexpected start offset")
		})
	}
}

func TestLocateAmbiguousCandidates(t *testing.T) {
	p := newTestPatcher(t)
	_, e := p.Locate(&Fingerprint{Name: "Pick", Method: "pick"})
	var le *LocateError
	if !errors.As(e, &le) {
		t.Fatalf("expected LocateError, got %v", e)
	}
	eq(t, le.Candidates, []string{
		"La/Quality;->pick(Ljava/lang/String;)I",
		"Lb/Other;->pick(Ljava/lang/String;)I",
	}, "unexpected candidates")
	eq(t, le.Error(), "Locate(Pick): more than one matching method (La/Quality;->pick(Ljava/lang/String;)I, Lb/Other;->pick(Ljava/lang/String;)I)", "unexpected message")
}

func TestLocateOffsets(t *testing.T) {
	p := newTestPatcher(t)
	r, e := p.Locate(&Fingerprint{Name: "Pick", Opcodes: []string{"invoke-static", "move-result", "const/4"}, Strings: []string{"QUALITY"}})
	nerr(t, e)
	eq(t, r.StartOffset, 0, "unexpected start offset")
	eq(t, r.EndOffset, 4, "unexpected end offset")
}

func TestLocateCaptureErrors(t *testing.T) {
	p := newTestPatcher(t)
	_, e := p.Locate(&Fingerprint{Name: "A", Method: "list", Opcodes: []string{"invoke-interface"}, Captures: []Capture{{Name: "x", Register: 5}}})
	err(t, e)
	_, e = p.Locate(&Fingerprint{Name: "B", Method: "list", Opcodes: []string{"invoke-interface"}, Captures: []Capture{{Name: "x", Offset: 10}}})
	err(t, e)
	if errors.Is(e, ErrNotFound) || errors.Is(e, ErrAmbiguous) {
		t.Errorf("capture errors should not be reported as locate failures: %v", e)
	}
}

func TestFingerprintValidate(t *testing.T) {
	lit := int64(1)
	for _, fp := range []Fingerprint{
		{},
		{Name: "a", Fuzzy: -1},
		{Name: "a", Fuzzy: 1, Opcodes: []string{"nop"}},
		{Name: "a", Opcodes: []string{"frob"}},
		{Name: "a", AnchorString: "a", AnchorLiteral: &lit},
		{Name: "a", Captures: []Capture{{}}},
		{Name: "a", Captures: []Capture{{Name: "x"}, {Name: "x"}}},
		{Name: "a", Captures: []Capture{{Name: "x", Register: -1}}},
	} {
		err(t, fp.Validate())
		_, e := newTestPatcher(t).Locate(&fp)
		err(t, e)
	}
	nerr(t, (&Fingerprint{Name: "a", Opcodes: []string{"invoke-*", "", "*", "nop"}, Fuzzy: 1}).Validate())
}
