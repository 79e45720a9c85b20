package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pgaskin/smalipatch/smali"
	"github.com/pgaskin/smalipatch/workdir"
)

type method struct {
	Class    string   `json:"class"`
	Method   string   `json:"method"`
	Access   string   `json:"access"`
	Opcodes  []string `json:"opcodes"`
	Strings  []string `json:"strings,omitempty"`
	Literals []int64  `json:"literals,omitempty"`
}

func main() {
	if len(os.Args) != 2 && len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "smalidump dumps the shape of every method in a decompiled application for writing fingerprints")
		fmt.Fprintln(os.Stderr, "Usage: smalidump TREE [CLASS_PREFIX]")
		os.Exit(1)
	}

	d, err := workdir.Open(os.Args[1])
	if err != nil {
		panic(err)
	}

	c, err := smali.LoadCorpus(d)
	if err != nil {
		panic(err)
	}

	var prefix string
	if len(os.Args) == 3 {
		prefix = os.Args[2]
	}

	f, err := os.Create("smalidump.out.json")
	if err != nil {
		panic(err)
	}

	fmt.Fprintf(f, "[\n")
	var n int
	for _, m := range c.Methods() {
		if !strings.HasPrefix(m.Class.Name, prefix) {
			continue
		}
		if n != 0 {
			fmt.Fprintf(f, ",\n")
		}
		buf, _ := json.Marshal(dump(m))
		f.Write(buf)
		n++
	}
	fmt.Fprintf(f, "]\n")

	f.Close()
	fmt.Printf("Dumped %d methods to smalidump.out.json\n", n)
	os.Exit(0)
}

func dump(m *smali.Method) method {
	d := method{
		Class:   m.Class.Name,
		Method:  m.Descriptor(),
		Access:  m.Access.String(),
		Opcodes: []string{},
	}
	for _, in := range m.Instructions() {
		d.Opcodes = append(d.Opcodes, in.Opcode)
		if s, ok := in.StringLiteral(); ok {
			d.Strings = append(d.Strings, s)
		} else if l, ok := in.WideLiteral(); ok {
			d.Literals = append(d.Literals, l)
		}
	}
	return d
}
