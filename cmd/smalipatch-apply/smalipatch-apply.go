// Command smalipatch-apply applies a single patch file to a decompiled
// application.
package main

import (
	"fmt"
	"os"
	"strings"

	wordwrap "github.com/mitchellh/go-wordwrap"
	"github.com/pgaskin/smalipatch/patches"
	"github.com/pgaskin/smalipatch/patchfile"
	"github.com/pgaskin/smalipatch/workdir"
	"github.com/spf13/pflag"

	_ "github.com/pgaskin/smalipatch/patchfile/smalipatch"
)

var version = "unknown"

// describer is implemented by patch sets which can list their patches.
type describer interface {
	Names() []string
	Description(string) string
	Enabled(string) bool
}

func errexit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	os.Exit(1)
}

func main() {
	input := pflag.StringP("input", "i", "", "the decompiled tree (directory or .tar.xz) to patch (required)")
	patchFile := pflag.StringP("patch-file", "p", "", "the file containing the patches (required)")
	output := pflag.StringP("output", "o", "", "the directory or .tar.gz to write the patched tree to (will be overwritten if exists) (required)")
	patchFormat := pflag.StringP("patch-format", "f", "smalipatch", fmt.Sprintf("the patch format (one of: %s)", strings.Join(patchfile.GetFormats(), ",")))
	pkg := pflag.StringP("package", "P", "", "the package name of the app, for checking compatibility")
	appVersion := pflag.StringP("app-version", "V", "", "the version of the app, for checking compatibility")
	list := pflag.BoolP("list", "l", false, "list the patches in the patch file and exit")
	verbose := pflag.BoolP("verbose", "v", false, "show verbose output from patchlib")
	help := pflag.BoolP("help", "h", false, "show this help text")
	pflag.Parse()

	if *help || pflag.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "Usage: smalipatch-apply [OPTIONS]\n")
		fmt.Fprintf(os.Stderr, "\nVersion: %s\n\nOptions:\n", version)
		pflag.PrintDefaults()
		os.Exit(1)
	}

	if *patchFile == "" || (!*list && (*input == "" || *output == "")) {
		errexit("Error: input, patch-file, and output flags are required. See --help for more info.\n")
	}

	if !sliceContains(patchfile.GetFormats(), *patchFormat) {
		errexit("Error: invalid format %s. See --help for more info.\n", *patchFormat)
	}

	if *verbose {
		patchfile.Log = func(format string, a ...interface{}) {
			fmt.Printf(format, a...)
		}
	} else {
		patchfile.Log = func(format string, a ...interface{}) {}
	}

	ps, err := patchfile.ReadFromFile(*patchFormat, *patchFile)
	if err != nil {
		errexit("Error: could not read patch file: %v\n", err)
	}

	err = ps.Validate()
	if err != nil {
		errexit("Error: could not validate patch file: %v\n", err)
	}

	if *list {
		d, ok := ps.(describer)
		if !ok {
			errexit("Error: format %s does not support listing patches\n", *patchFormat)
		}
		listPatches(d)
		os.Exit(0)
	}

	dir, err := workdir.Open(*input)
	if err != nil {
		errexit("Error: could not read input: %v\n", err)
	}

	c, err := patches.NewContext(dir, *pkg, *appVersion)
	if err != nil {
		errexit("Error: could not load classes: %v\n", err)
	}
	if *verbose {
		c.Log = func(format string, a ...interface{}) {
			fmt.Printf(format, a...)
		}
	}

	err = ps.ApplyTo(c)
	if err != nil {
		errexit("Error: could not apply patch file: %v\n", err)
	}

	n := c.Commit()

	os.RemoveAll(*output)
	if err := dir.Write(*output); err != nil {
		errexit("Error: could not write output: %v\n", err)
	}

	fmt.Printf("Successfully patched '%s' using '%s' to '%s' (%d classes changed)\n", *input, *patchFile, *output, n)
	os.Exit(0)
}

func listPatches(d describer) {
	for _, n := range d.Names() {
		state := "disabled"
		if d.Enabled(n) {
			state = "enabled"
		}
		fmt.Printf("%s (%s)\n", n, state)
		if desc := strings.TrimSpace(d.Description(n)); desc != "" {
			for _, l := range strings.Split(wordwrap.WrapString(desc, 70), "\n") {
				fmt.Printf("    %s\n", l)
			}
		}
	}
}

func sliceContains(arr []string, v string) bool {
	for _, i := range arr {
		if i == v {
			return true
		}
	}
	return false
}
