package smali

import (
	"fmt"
	"strings"
)

// AccessFlags is a set of access flags, using the dex encoding.
type AccessFlags uint32

const (
	AccPublic               AccessFlags = 0x1
	AccPrivate              AccessFlags = 0x2
	AccProtected            AccessFlags = 0x4
	AccStatic               AccessFlags = 0x8
	AccFinal                AccessFlags = 0x10
	AccSynchronized         AccessFlags = 0x20
	AccVolatile             AccessFlags = 0x40
	AccBridge               AccessFlags = 0x40
	AccTransient            AccessFlags = 0x80
	AccVarargs              AccessFlags = 0x80
	AccNative               AccessFlags = 0x100
	AccInterface            AccessFlags = 0x200
	AccAbstract             AccessFlags = 0x400
	AccStrict               AccessFlags = 0x800
	AccSynthetic            AccessFlags = 0x1000
	AccAnnotation           AccessFlags = 0x2000
	AccEnum                 AccessFlags = 0x4000
	AccConstructor          AccessFlags = 0x10000
	AccDeclaredSynchronized AccessFlags = 0x20000
)

// order matters for String, as bridge/volatile and varargs/transient share bits
var accessNames = []struct {
	name string
	flag AccessFlags
}{
	{"public", AccPublic},
	{"private", AccPrivate},
	{"protected", AccProtected},
	{"static", AccStatic},
	{"final", AccFinal},
	{"synchronized", AccSynchronized},
	{"volatile", AccVolatile},
	{"bridge", AccBridge},
	{"transient", AccTransient},
	{"varargs", AccVarargs},
	{"native", AccNative},
	{"interface", AccInterface},
	{"abstract", AccAbstract},
	{"strictfp", AccStrict},
	{"synthetic", AccSynthetic},
	{"annotation", AccAnnotation},
	{"enum", AccEnum},
	{"constructor", AccConstructor},
	{"declared-synchronized", AccDeclaredSynchronized},
}

// ParseAccessFlag parses a single access flag keyword.
func ParseAccessFlag(s string) (AccessFlags, error) {
	for _, a := range accessNames {
		if a.name == s {
			return a.flag, nil
		}
	}
	return 0, fmt.Errorf("unknown access flag %#v", s)
}

// ParseAccessFlags parses a list of access flag keywords.
func ParseAccessFlags(words []string) (AccessFlags, error) {
	var f AccessFlags
	for _, w := range words {
		v, err := ParseAccessFlag(w)
		if err != nil {
			return 0, err
		}
		f |= v
	}
	return f, nil
}

// Has checks if all flags in m are set.
func (f AccessFlags) Has(m AccessFlags) bool {
	return f&m == m
}

// String formats method-style flag keywords (bridge and varargs are used for
// the shared bits).
func (f AccessFlags) String() string {
	var s []string
	for _, a := range accessNames {
		if a.name == "volatile" || a.name == "transient" {
			continue
		}
		if f&a.flag != 0 {
			s = append(s, a.name)
		}
	}
	return strings.Join(s, " ")
}

// FieldString is like String, but uses field keywords for the shared bits.
func (f AccessFlags) FieldString() string {
	var s []string
	for _, a := range accessNames {
		if a.name == "bridge" || a.name == "varargs" {
			continue
		}
		if f&a.flag != 0 {
			s = append(s, a.name)
		}
	}
	return strings.Join(s, " ")
}
