package smali

import (
	"fmt"
	"strconv"
	"strings"
)

// Instruction is a single decoded instruction in a method body.
type Instruction struct {
	// Prefix holds the non-instruction lines (labels, .line, .catch, payload
	// tables) which come directly before the instruction. They stay attached to
	// the instruction, so branches to a label keep targeting it.
	Prefix []string
	// Raw is the original line, including indentation.
	Raw string

	Opcode   string
	Operands string
}

// AssembleInstruction parses a single instruction line. The opcode must be a
// known Dalvik opcode, and the leading register operands must be well-formed.
func AssembleInstruction(text string) (*Instruction, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil, fmt.Errorf("AssembleInstruction: empty instruction")
	}
	in := parseInstruction("    " + t)
	if !IsOpcode(in.Opcode) {
		return nil, fmt.Errorf("AssembleInstruction(%#v): unknown opcode %#v", t, in.Opcode)
	}
	if strings.HasPrefix(in.Operands, "{") && !strings.Contains(in.Operands, "}") {
		return nil, fmt.Errorf("AssembleInstruction(%#v): unterminated register list", t)
	}
	for _, r := range in.Registers() {
		if !isRegister(r) {
			return nil, fmt.Errorf("AssembleInstruction(%#v): malformed register %#v", t, r)
		}
	}
	return in, nil
}

func parseInstruction(line string) *Instruction {
	t := strings.TrimSpace(line)
	in := &Instruction{Raw: line}
	if i := strings.IndexAny(t, " \t"); i >= 0 {
		in.Opcode, in.Operands = t[:i], strings.TrimSpace(t[i+1:])
	} else {
		in.Opcode = t
	}
	return in
}

// String returns the instruction text without indentation.
func (in *Instruction) String() string {
	if in.Operands == "" {
		return in.Opcode
	}
	return in.Opcode + " " + in.Operands
}

// Width returns the size of the instruction in code units.
func (in *Instruction) Width() int {
	return OpcodeWidth(in.Opcode)
}

// Registers returns the register operands in order. Register ranges
// ({v0 .. v3}) are expanded.
func (in *Instruction) Registers() []string {
	ops := in.Operands
	if strings.HasPrefix(ops, "{") {
		end := strings.IndexByte(ops, '}')
		if end < 0 {
			return nil
		}
		list := strings.TrimSpace(ops[1:end])
		if list == "" {
			return nil
		}
		if a, b, ok := strings.Cut(list, ".."); ok {
			return expandRange(strings.TrimSpace(a), strings.TrimSpace(b))
		}
		var regs []string
		for _, r := range strings.Split(list, ",") {
			regs = append(regs, strings.TrimSpace(r))
		}
		return regs
	}
	var regs []string
	for _, op := range splitOperands(ops) {
		if !isRegister(op) {
			break
		}
		regs = append(regs, op)
	}
	return regs
}

// Register returns the n-th register operand (0-based). For an invoke, n=1
// is what dexlib calls register D; for a two-register instruction, n=0 is
// register A.
func (in *Instruction) Register(n int) (string, error) {
	regs := in.Registers()
	if n < 0 || n >= len(regs) {
		return "", fmt.Errorf("instruction %#v has no register operand %d", in.String(), n)
	}
	return regs[n], nil
}

// StringLiteral returns the string referenced by a const-string.
func (in *Instruction) StringLiteral() (string, bool) {
	if in.Opcode != "const-string" && in.Opcode != "const-string/jumbo" {
		return "", false
	}
	ops := splitOperands(in.Operands)
	if len(ops) != 2 {
		return "", false
	}
	s, err := unquote(ops[1])
	if err != nil {
		return "", false
	}
	return s, true
}

// WideLiteral returns the numeric literal of a const or literal arithmetic
// instruction.
func (in *Instruction) WideLiteral() (int64, bool) {
	if !isLiteralOp(in.Opcode) {
		return 0, false
	}
	ops := splitOperands(stripComment(in.Operands))
	if len(ops) == 0 {
		return 0, false
	}
	return parseLiteral(ops[len(ops)-1])
}

// Reference returns the type, field or method reference of the instruction,
// if it has one.
func (in *Instruction) Reference() (string, bool) {
	ops := splitOperands(in.Operands)
	if len(ops) == 0 {
		return "", false
	}
	last := ops[len(ops)-1]
	if strings.HasPrefix(last, "L") || strings.HasPrefix(last, "[") {
		return last, true
	}
	return "", false
}

func isRegister(s string) bool {
	if len(s) < 2 || (s[0] != 'v' && s[0] != 'p') {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func expandRange(a, b string) []string {
	if !isRegister(a) || !isRegister(b) || a[0] != b[0] {
		return []string{a, b}
	}
	x, _ := strconv.Atoi(a[1:])
	y, _ := strconv.Atoi(b[1:])
	var regs []string
	for i := x; i <= y; i++ {
		regs = append(regs, fmt.Sprintf("%c%d", a[0], i))
	}
	return regs
}

// splitOperands splits on top-level commas, leaving quoted strings and
// register lists intact.
func splitOperands(s string) []string {
	var ops []string
	var cur strings.Builder
	var quoted, escaped bool
	var depth int
	for _, c := range s {
		switch {
		case escaped:
			escaped = false
		case quoted && c == '\\':
			escaped = true
		case c == '"':
			quoted = !quoted
		case !quoted && c == '{':
			depth++
		case !quoted && c == '}':
			depth--
		case !quoted && depth == 0 && c == ',':
			ops = append(ops, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteRune(c)
	}
	if t := strings.TrimSpace(cur.String()); t != "" || len(ops) != 0 {
		ops = append(ops, t)
	}
	return ops
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, '#'); i >= 0 && !strings.Contains(s, "\"") {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func parseLiteral(s string) (int64, bool) {
	s = strings.TrimRight(s, "LlTtSs")
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		return -int64(v), true
	}
	return int64(v), true
}

func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("not a string literal: %s", s)
	}
	return strconv.Unquote(strings.ReplaceAll(s, `\'`, `'`))
}
