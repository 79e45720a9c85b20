// Package settings adds entries to the YouTube Music settings screen.
package settings

import (
	"github.com/pgaskin/smalipatch/patches"
	"github.com/pgaskin/smalipatch/patches/music"
	"github.com/pgaskin/smalipatch/prefxml"
)

// ID is the ID of the patch which adds the settings entries.
const ID = "music-settings"

const (
	// Path is the settings document.
	Path = "res/xml/settings_headers.xml"
	// ReturnYouTubeDislikeKey is the key of the Return YouTube Dislike screen.
	ReturnYouTubeDislikeKey = "revanced_ryd_settings"
	// ReturnYouTubeDislikeFragment is the fragment the Return YouTube Dislike
	// screen is hosted in.
	ReturnYouTubeDislikeFragment = "com.google.android.apps.youtube.music.settings.fragment.AdvancedPrefsFragmentCompat"
)

const targetPackage = ID + ".target-package"

// TargetPackage returns the package name intents are directed to.
func TargetPackage(c *patches.Context) string {
	if v, ok := c.Value(targetPackage); ok {
		return v.(string)
	}
	return prefxml.DefaultPackage
}

func edit(c *patches.Context, fn func(*prefxml.Tree) error) error {
	return prefxml.Edit(c.Dir, Path, func(t *prefxml.Tree) error {
		t.TargetPackage = TargetPackage(c)
		return fn(t)
	})
}

// SetMicroG renames the package in the settings document, for builds which
// are installed alongside the original app.
func SetMicroG(c *patches.Context, pkg string) error {
	c.Set(targetPackage, pkg)
	return retitle(c)
}

func retitle(c *patches.Context) error {
	pkg := TargetPackage(c)
	if pkg == prefxml.DefaultPackage {
		return nil
	}
	return edit(c, func(t *prefxml.Tree) error {
		return t.RetitleRootPackage(pkg)
	})
}

// AddCategory adds a category to the settings screen, unless it was already
// added during this run.
func AddCategory(c *patches.Context, category string) error {
	return edit(c, func(t *prefxml.Tree) error {
		if t.InsertCategory(c.Registry, category) {
			c.Log("added settings category %s\n", category)
		}
		return nil
	})
}

// SortCategory moves a category after the other ones.
func SortCategory(c *patches.Context, category string) error {
	if err := edit(c, func(t *prefxml.Tree) error {
		t.SortCategory(category)
		return nil
	}); err != nil {
		return err
	}
	return retitle(c)
}

// AddPreference adds a switch to a category.
func AddPreference(c *patches.Context, category, key, defaultValue, dependency string) error {
	return edit(c, func(t *prefxml.Tree) error {
		t.InsertLeaf(category, prefxml.Leaf{
			Key:          key,
			DefaultValue: defaultValue,
			Dependency:   dependency,
		})
		return nil
	})
}

// AddPreferenceWithoutSummary adds a switch without a summary to a category.
func AddPreferenceWithoutSummary(c *patches.Context, category, key, defaultValue string) error {
	return edit(c, func(t *prefxml.Tree) error {
		t.InsertLeaf(category, prefxml.Leaf{
			Key:          key,
			DefaultValue: defaultValue,
			NoSummary:    true,
		})
		return nil
	})
}

// AddPreferenceWithIntent adds an entry which opens another settings screen to
// a category.
func AddPreferenceWithIntent(c *patches.Context, category, key, dependency string) error {
	return edit(c, func(t *prefxml.Tree) error {
		t.InsertLeafWithIntent(category, key, dependency)
		return nil
	})
}

// AddReVancedPreference adds a top-level settings screen above the about
// entry.
func AddReVancedPreference(c *patches.Context, key string) error {
	return edit(c, func(t *prefxml.Tree) error {
		if !t.InsertScreen(key) {
			c.Log("no anchor for settings screen %s\n", key)
		}
		return nil
	})
}

// HookPreference adds a top-level entry which opens fragment above the about
// entry.
func HookPreference(c *patches.Context, key, fragment string) error {
	return edit(c, func(t *prefxml.Tree) error {
		if !t.HookPreference(key, fragment) {
			c.Log("no anchor for settings entry %s\n", key)
		}
		return nil
	})
}

func init() {
	patches.Register(&patches.Patch{
		Info: patches.Info{
			ID:            ID,
			Name:          "Settings",
			Description:   "Adds the settings screens for the other patches.",
			Compatibility: music.Compatibility,
		},
		Apply: func(c *patches.Context) error {
			if err := AddReVancedPreference(c, prefxml.SettingsKey); err != nil {
				return err
			}
			return HookPreference(c, ReturnYouTubeDislikeKey, ReturnYouTubeDislikeFragment)
		},
	})
}
