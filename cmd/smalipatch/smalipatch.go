// Command smalipatch applies patches to a decompiled application as specified
// by smalipatch.yaml.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/pgaskin/smalipatch/patches"
	"github.com/pgaskin/smalipatch/patches/music/settings"
	"github.com/pgaskin/smalipatch/patchfile"
	"github.com/pgaskin/smalipatch/workdir"
	"gopkg.in/yaml.v3"

	_ "github.com/pgaskin/smalipatch/patches/youtube/overridequality"
	_ "github.com/pgaskin/smalipatch/patches/youtube/resourceid"
	_ "github.com/pgaskin/smalipatch/patchfile/smalipatch"
)

var version = "unknown"

type config struct {
	Version       string                     `yaml:"version" json:"version"`
	Package       string                     `yaml:"package" json:"package"`
	In            string                     `yaml:"in" json:"in"`
	Out           string                     `yaml:"out" json:"out"`
	Log           string                     `yaml:"log" json:"log"`
	TargetPackage string                     `yaml:"targetPackage" json:"targetPackage"`
	Patches       stringSlice                `yaml:"patches" json:"patches"`
	PatchFormat   string                     `yaml:"patchFormat" json:"patchFormat"`
	PatchFiles    stringSlice                `yaml:"patchFiles" json:"patchFiles"`
	Overrides     map[string]map[string]bool `yaml:"overrides" json:"overrides"`
}

// stringSlice is a list of strings which can also be specified as a single
// string.
type stringSlice []string

func (s *stringSlice) UnmarshalYAML(n *yaml.Node) error {
	var str string
	if err := n.Decode(&str); err == nil {
		*s = []string{str}
		return nil
	}
	var ss []string
	if err := n.Decode(&ss); err != nil {
		return err
	}
	*s = ss
	return nil
}

// loadConfig reads and checks the config file.
func loadConfig(fn string) (*config, error) {
	buf, err := os.ReadFile(fn)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fn, err)
	}

	var n yaml.Node
	if err := yaml.Unmarshal(buf, &n); err != nil {
		return nil, fmt.Errorf("parse %s: %w", fn, err)
	}

	cfg := &config{PatchFormat: "smalipatch"}
	if err := n.DecodeStrict(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", fn, err)
	}

	if cfg.Package == "" || cfg.In == "" || cfg.Out == "" || cfg.Log == "" {
		return nil, errors.New("package, in, out, and log are required")
	}
	if _, ok := patchfile.GetFormat(cfg.PatchFormat); !ok {
		return nil, fmt.Errorf("invalid patch format %#v", cfg.PatchFormat)
	}
	for pf := range cfg.Overrides {
		var found bool
		for _, f := range cfg.PatchFiles {
			found = found || f == pf
		}
		if !found {
			return nil, fmt.Errorf("overrides for %s, which is not in patchFiles", pf)
		}
	}
	return cfg, nil
}

var log = func(format string, a ...interface{}) {}

func main() {
	fmt.Printf("smalipatch %s\n\n", version)

	_ = godotenv.Load()

	cfgfn := "./smalipatch.yaml"
	if fn := os.Getenv("SMALIPATCH_CONFIG"); fn != "" {
		cfgfn = fn
	}

	cfg, err := loadConfig(cfgfn)
	checkErr(err, "Could not load config")

	logf, err := os.Create(cfg.Log)
	checkErr(err, "Could not open and truncate log file")
	defer logf.Close()

	log = func(format string, a ...interface{}) {
		fmt.Fprintf(logf, format, a...)
	}
	patchfile.Log = func(format string, a ...interface{}) {
		fmt.Fprintf(logf, "        "+format, a...)
	}

	d, _ := os.Getwd()
	log("smalipatch %s\n\ndir:%s\ncfg: %#v\n\n", version, d, cfg)

	log("resolving patches\n")
	ps, err := patches.Resolve(cfg.Patches)
	checkErr(err, "Could not resolve patches")
	for _, p := range ps {
		log("  %s (depends on %v)\n", p.ID, p.DependsOn)
	}

	log("loading patch files\n")
	pfs := make([]patchfile.PatchSet, len(cfg.PatchFiles))
	for i, pfn := range cfg.PatchFiles {
		log("  loading patch file: %s\n", pfn)
		pf, err := patchfile.ReadFromFile(cfg.PatchFormat, pfn)
		checkErr(err, "Could not read and parse patch file "+pfn)

		ovs := cfg.Overrides[pfn]
		names := make([]string, 0, len(ovs))
		for n := range ovs {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			log("    override %s -> enabled:%t\n", n, ovs[n])
			err = pf.SetEnabled(n, ovs[n])
			checkErr(err, "Could not apply overrides for patch file "+pfn)
		}

		log("  validating patch file\n")
		err = pf.Validate()
		checkErr(err, "Invalid patch file "+pfn)
		pfs[i] = pf
	}

	log("opening input: %s\n", cfg.In)
	fmt.Printf("Reading %s\n", cfg.In)
	dir, err := workdir.Open(cfg.In)
	checkErr(err, "Could not open input")
	log("  %d files\n", len(dir.Paths()))

	log("loading classes\n")
	c, err := patches.NewContext(dir, cfg.Package, cfg.Version)
	checkErr(err, "Could not load classes")
	c.Log = func(format string, a ...interface{}) {
		log("    "+format, a...)
	}
	log("  %d classes\n", len(c.Corpus().Classes()))

	if cfg.TargetPackage != "" {
		log("setting target package: %s\n", cfg.TargetPackage)
		err = settings.SetMicroG(c, cfg.TargetPackage)
		checkErr(err, "Could not set target package")
	}

	if len(ps) != 0 {
		fmt.Printf("Applying %d patches\n", len(ps))
		err = c.Run(ps)
		checkErr(err, "Could not apply patches")
	}

	for i, pf := range pfs {
		fmt.Printf("Applying %s\n", cfg.PatchFiles[i])
		log("applying patch file: %s\n", cfg.PatchFiles[i])
		err = pf.ApplyTo(c)
		checkErr(err, "Could not apply patch file "+cfg.PatchFiles[i])
	}

	log("storing classes\n")
	n := c.Commit()
	log("  %d classes modified\n", n)
	for _, p := range dir.Changed() {
		log("  changed: %s\n", p)
	}

	log("removing old output: %s\n", cfg.Out)
	os.RemoveAll(cfg.Out)

	log("writing output\n")
	err = dir.Write(cfg.Out)
	checkErr(err, "Could not write output")

	log("patch success\n")
	fmt.Printf("Successfully saved patched tree to %s (%d classes and %d files changed)\n", cfg.Out, n, len(dir.Changed()))

	if runtime.GOOS == "windows" {
		fmt.Printf("\n\nWaiting 60 seconds because runnning on Windows\n")
		time.Sleep(time.Second * 60)
	}
}

func checkErr(err error, msg string) {
	if err == nil {
		return
	}
	if msg != "" {
		log("Fatal: %s: %v\n", msg, err)
		fmt.Fprintf(os.Stderr, "Fatal: %s: %v\n", msg, err)
	} else {
		log("Fatal: %v\n", err)
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
	}
	if runtime.GOOS == "windows" {
		fmt.Printf("\n\nWaiting 60 seconds because runnning on Windows\n")
		time.Sleep(time.Second * 60)
	}
	os.Exit(1)
}
