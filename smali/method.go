package smali

import (
	"fmt"
	"strconv"
	"strings"
)

// Method is a method definition. The lines which aren't instructions are kept
// verbatim so an unmodified method serializes to exactly what was parsed.
type Method struct {
	Class  *Class
	Name   string
	Params []string
	Return string
	Access AccessFlags

	decl   string
	header []string
	insns  []*Instruction
	// trailer contains the lines after the last instruction, including the
	// .end method line.
	trailer []string

	registers int
	locals    bool

	rev uint64
}

// Descriptor returns the name and prototype, e.g. foo(ILjava/lang/String;)V.
func (m *Method) Descriptor() string {
	return m.Name + "(" + strings.Join(m.Params, "") + ")" + m.Return
}

// Reference returns the full method reference, e.g.
// Lcom/example/Foo;->foo(I)V.
func (m *Method) Reference() string {
	var c string
	if m.Class != nil {
		c = m.Class.Name
	}
	return c + "->" + m.Descriptor()
}

func (m *Method) String() string {
	return m.Reference()
}

// Instructions returns the instructions of the method. The returned slice must
// not be modified.
func (m *Method) Instructions() []*Instruction {
	return m.insns
}

// Len returns the number of instructions.
func (m *Method) Len() int {
	return len(m.insns)
}

// Instruction returns the instruction at index i, or nil if out of range.
func (m *Method) Instruction(i int) *Instruction {
	if i < 0 || i >= len(m.insns) {
		return nil
	}
	return m.insns[i]
}

// SetBody replaces the method body. The dangling lines (i.e. the labels and
// debug directives of removed trailing instructions) are kept after the last
// instruction.
func (m *Method) SetBody(insns []*Instruction, dangling []string) {
	m.insns = insns
	if len(dangling) != 0 {
		m.trailer = append(append([]string(nil), dangling...), m.trailer...)
	}
	m.touch()
}

// Revision is incremented every time the method body is changed.
func (m *Method) Revision() uint64 {
	return m.rev
}

func (m *Method) touch() {
	m.rev++
	if m.Class != nil {
		m.Class.dirty = true
	}
}

// IsStatic checks if the method has no this parameter.
func (m *Method) IsStatic() bool {
	return m.Access.Has(AccStatic)
}

// ParameterRegisters returns the number of registers used by the parameters,
// including this for instance methods.
func (m *Method) ParameterRegisters() int {
	var n int
	if !m.IsStatic() {
		n++
	}
	for _, p := range m.Params {
		if p == "J" || p == "D" {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// FrameSize returns the total number of registers in the method frame.
func (m *Method) FrameSize() int {
	if m.locals {
		return m.registers + m.ParameterRegisters()
	}
	return m.registers
}

// CodeOffset returns the offset in code units of the instruction at index i.
func (m *Method) CodeOffset(i int) int {
	var off int
	for _, in := range m.insns[:i] {
		off += in.Width()
	}
	return off
}

// CheckRegister checks if a register name is valid in the method's frame.
func (m *Method) CheckRegister(r string) error {
	if !isRegister(r) {
		return fmt.Errorf("malformed register %#v", r)
	}
	n, _ := strconv.Atoi(r[1:])
	switch r[0] {
	case 'v':
		if n >= m.FrameSize() {
			return fmt.Errorf("register %s out of range (frame size %d)", r, m.FrameSize())
		}
	case 'p':
		if n >= m.ParameterRegisters() {
			return fmt.Errorf("register %s out of range (%d parameter registers)", r, m.ParameterRegisters())
		}
	}
	return nil
}

func (m *Method) lines() []string {
	ls := make([]string, 0, 1+len(m.header)+len(m.insns)*2+len(m.trailer))
	ls = append(ls, m.decl)
	ls = append(ls, m.header...)
	for _, in := range m.insns {
		ls = append(ls, in.Prefix...)
		ls = append(ls, in.Raw)
	}
	return append(ls, m.trailer...)
}

var headerDirectives = []string{
	".registers", ".locals", ".param", ".end param", ".annotation", ".end annotation",
	".subannotation", ".end subannotation", ".prologue",
}

// parseMethod parses the lines from .method to .end method inclusively.
func parseMethod(ls []string) (*Method, error) {
	m := &Method{decl: ls[0]}

	words := strings.Fields(strings.TrimSpace(ls[0]))
	if len(words) < 2 || words[0] != ".method" {
		return nil, fmt.Errorf("parse method: invalid declaration %#v", ls[0])
	}
	flags, err := ParseAccessFlags(words[1 : len(words)-1])
	if err != nil {
		return nil, fmt.Errorf("parse method %#v: %w", words[len(words)-1], err)
	}
	m.Access = flags
	if m.Name, m.Params, m.Return, err = ParseMethodDescriptor(words[len(words)-1]); err != nil {
		return nil, fmt.Errorf("parse method: %w", err)
	}

	body := ls[1 : len(ls)-1]

	var i, depth int
	for ; i < len(body); i++ {
		t := strings.TrimSpace(body[i])
		if depth == 0 && t != "" && !hasAnyPrefix(t, headerDirectives) {
			break
		}
		switch {
		case strings.HasPrefix(t, ".annotation"), strings.HasPrefix(t, ".subannotation"):
			depth++
		case strings.HasPrefix(t, ".end annotation"), strings.HasPrefix(t, ".end subannotation"):
			depth--
		case depth == 0 && (strings.HasPrefix(t, ".registers ") || strings.HasPrefix(t, ".locals ")):
			f := strings.Fields(t)
			if len(f) != 2 {
				return nil, fmt.Errorf("parse method %s: invalid directive %#v", m.Descriptor(), t)
			}
			if m.registers, err = strconv.Atoi(f[1]); err != nil {
				return nil, fmt.Errorf("parse method %s: invalid register count: %w", m.Descriptor(), err)
			}
			m.locals = f[0] == ".locals"
		}
		m.header = append(m.header, body[i])
	}

	var prefix []string
	var payload bool
	for ; i < len(body); i++ {
		t := strings.TrimSpace(body[i])
		switch {
		case payload:
			payload = !strings.HasPrefix(t, ".end ")
			prefix = append(prefix, body[i])
		case t == "", t[0] == '.', t[0] == ':', t[0] == '#':
			payload = hasAnyPrefix(t, []string{".packed-switch", ".sparse-switch", ".array-data"})
			prefix = append(prefix, body[i])
		default:
			in := parseInstruction(body[i])
			if !IsOpcode(in.Opcode) {
				return nil, fmt.Errorf("parse method %s: unknown opcode %#v", m.Descriptor(), in.Opcode)
			}
			in.Prefix, prefix = prefix, nil
			m.insns = append(m.insns, in)
		}
	}
	m.trailer = append(prefix, ls[len(ls)-1])
	return m, nil
}

// ParseMethodDescriptor splits a method descriptor like foo(I[J)V.
func ParseMethodDescriptor(s string) (name string, params []string, ret string, err error) {
	o, c := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if o <= 0 || c < o || c == len(s)-1 {
		return "", nil, "", fmt.Errorf("invalid method descriptor %#v", s)
	}
	if params, err = ParseTypeList(s[o+1 : c]); err != nil {
		return "", nil, "", fmt.Errorf("invalid method descriptor %#v: %w", s, err)
	}
	return s[:o], params, s[c+1:], nil
}

// ParseTypeList splits concatenated type descriptors like ILjava/lang/String;[J.
func ParseTypeList(s string) ([]string, error) {
	var ts []string
	for i := 0; i < len(s); {
		j := i
		for j < len(s) && s[j] == '[' {
			j++
		}
		if j == len(s) {
			return nil, fmt.Errorf("incomplete array type %#v", s[i:])
		}
		switch s[j] {
		case 'L':
			e := strings.IndexByte(s[j:], ';')
			if e < 0 {
				return nil, fmt.Errorf("unterminated class type %#v", s[i:])
			}
			j += e
		case 'Z', 'B', 'S', 'C', 'I', 'J', 'F', 'D', 'V':
		default:
			return nil, fmt.Errorf("invalid type %#v", s[i:])
		}
		ts = append(ts, s[i:j+1])
		i = j + 1
	}
	return ts, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
