package smali

import "strings"

// widths maps every Dalvik opcode mnemonic to its size in 16-bit code units.
var widths = map[string]int{}

func init() {
	add := func(w int, ops ...string) {
		for _, op := range ops {
			widths[op] = w
		}
	}
	typed := func(base string) []string {
		var r []string
		for _, s := range []string{"", "-wide", "-object", "-boolean", "-byte", "-char", "-short"} {
			r = append(r, base+s)
		}
		return r
	}
	arith := func(suffix string, types ...string) []string {
		var r []string
		for _, t := range types {
			ops := []string{"add", "sub", "mul", "div", "rem"}
			if t == "int" || t == "long" {
				ops = append(ops, "and", "or", "xor", "shl", "shr", "ushr")
			}
			for _, op := range ops {
				r = append(r, op+"-"+t+suffix)
			}
		}
		return r
	}

	// 10x, 12x, 11n, 11x, 10t
	add(1,
		"nop", "move", "move-wide", "move-object",
		"move-result", "move-result-wide", "move-result-object", "move-exception",
		"return-void", "return", "return-wide", "return-object",
		"const/4", "monitor-enter", "monitor-exit", "throw", "goto", "array-length",
		"neg-int", "not-int", "neg-long", "not-long", "neg-float", "neg-double",
		"int-to-long", "int-to-float", "int-to-double",
		"long-to-int", "long-to-float", "long-to-double",
		"float-to-int", "float-to-long", "float-to-double",
		"double-to-int", "double-to-long", "double-to-float",
		"int-to-byte", "int-to-char", "int-to-short",
	)
	add(1, arith("/2addr", "int", "long", "float", "double")...)

	// 22x, 21s, 21h, 21c, 22c, 21t, 22t, 20t, 23x, 22s, 22b
	add(2,
		"move/from16", "move-wide/from16", "move-object/from16",
		"const/16", "const/high16", "const-wide/16", "const-wide/high16",
		"const-string", "const-class", "check-cast", "instance-of", "new-instance", "new-array",
		"goto/16",
		"if-eq", "if-ne", "if-lt", "if-ge", "if-gt", "if-le",
		"if-eqz", "if-nez", "if-ltz", "if-gez", "if-gtz", "if-lez",
		"cmpl-float", "cmpg-float", "cmpl-double", "cmpg-double", "cmp-long",
		"const-method-handle", "const-method-type",
		"rsub-int", "add-int/lit16", "mul-int/lit16", "div-int/lit16", "rem-int/lit16",
		"and-int/lit16", "or-int/lit16", "xor-int/lit16",
		"add-int/lit8", "rsub-int/lit8", "mul-int/lit8", "div-int/lit8", "rem-int/lit8",
		"and-int/lit8", "or-int/lit8", "xor-int/lit8", "shl-int/lit8", "shr-int/lit8", "ushr-int/lit8",
	)
	for _, base := range []string{"aget", "aput", "iget", "iput", "sget", "sput"} {
		add(2, typed(base)...)
	}
	add(2, arith("", "int", "long", "float", "double")...)

	// 32x, 31i, 31c, 30t, 35c, 3rc, 31t
	add(3,
		"move/16", "move-wide/16", "move-object/16",
		"const", "const-wide/32", "const-string/jumbo", "goto/32",
		"filled-new-array", "filled-new-array/range", "fill-array-data",
		"packed-switch", "sparse-switch",
		"invoke-custom", "invoke-custom/range",
	)
	for _, kind := range []string{"virtual", "super", "direct", "static", "interface"} {
		add(3, "invoke-"+kind, "invoke-"+kind+"/range")
	}

	// 45cc, 4rcc
	add(4, "invoke-polymorphic", "invoke-polymorphic/range")

	// 51l
	add(5, "const-wide")
}

// IsOpcode checks if op is a known Dalvik opcode mnemonic.
func IsOpcode(op string) bool {
	_, ok := widths[op]
	return ok
}

// OpcodeWidth returns the size of an opcode in code units, or 0 if unknown.
func OpcodeWidth(op string) int {
	return widths[op]
}

// MatchOpcode checks an opcode against a pattern. An empty pattern or "*"
// matches anything, and a pattern ending with "*" matches by prefix.
func MatchOpcode(pattern, op string) bool {
	switch {
	case pattern == "" || pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(op, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == op
	}
}

func isLiteralOp(op string) bool {
	switch {
	case op == "const-string", op == "const-string/jumbo", op == "const-class",
		op == "const-method-handle", op == "const-method-type":
		return false
	case strings.HasPrefix(op, "const"):
		return true
	case strings.HasSuffix(op, "/lit8"), strings.HasSuffix(op, "/lit16"), op == "rsub-int":
		return true
	}
	return false
}
