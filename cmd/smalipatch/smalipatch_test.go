package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestStringSlice(t *testing.T) {
	for _, c := range []struct {
		In  string
		Out []string
	}{
		{`asd`, []string{"asd"}},
		{`asd sdf`, []string{"asd sdf"}},
		{`[asd, sdf]`, []string{"asd", "sdf"}},
		{`["asd", "sdf"]`, []string{"asd", "sdf"}},
		{`
    - asd
    - sdf`, []string{"asd", "sdf"}},
		{`
    - "asd"
    - "sdf"`, []string{"asd", "sdf"}},
	} {
		c := c
		t.Run(c.In, func(t *testing.T) {
			t.Parallel()
			var obj struct {
				Test stringSlice `yaml:"Test"`
			}
			if err := yaml.Unmarshal([]byte(fmt.Sprintf("Test: %s", c.In)), &obj); err != nil {
				t.Fatalf("unexpected unmarshal error: %v", err)
			}
			t.Logf("out: %#v", obj)
			if len(obj.Test) != len(c.Out) {
				t.Errorf("expected %d items, got %d", len(c.Out), len(obj.Test))
			}
			for _, ev := range c.Out {
				var found bool
				for _, av := range obj.Test {
					found = found || av == ev
				}
				if !found {
					t.Errorf("expected to find '%s' in output", ev)
				}
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	td := t.TempDir()
	for _, c := range []struct {
		What string
		In   string
		Err  bool
	}{
		{"Minimal", "package: com.google.android.youtube\nin: in\nout: out.tar.gz\nlog: log.txt\n", false},
		{"Full", "version: 18.32.33\npackage: com.google.android.youtube\nin: in\nout: out\nlog: log.txt\npatches: override-quality-hook\npatchFiles: [a.yaml]\noverrides:\n  a.yaml:\n    Test: true\n", false},
		{"Missing", "package: com.google.android.youtube\nin: in\n", true},
		{"UnknownField", "package: com.google.android.youtube\nin: in\nout: out\nlog: log.txt\nnope: true\n", true},
		{"BadFormat", "package: com.google.android.youtube\nin: in\nout: out\nlog: log.txt\npatchFormat: nope\n", true},
		{"BadOverride", "package: com.google.android.youtube\nin: in\nout: out\nlog: log.txt\noverrides:\n  a.yaml:\n    Test: true\n", true},
	} {
		t.Run(c.What, func(t *testing.T) {
			fn := filepath.Join(td, c.What+".yaml")
			if err := os.WriteFile(fn, []byte(c.In), 0644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			cfg, err := loadConfig(fn)
			if c.Err {
				if err == nil {
					t.Errorf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.PatchFormat != "smalipatch" {
				t.Errorf("expected default patch format, got %#v", cfg.PatchFormat)
			}
		})
	}

	if _, err := loadConfig(filepath.Join(td, "nonexistent.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}
