// Package youtube contains the patches for YouTube.
package youtube

import "github.com/pgaskin/smalipatch/patches"

// Package is the package name of YouTube.
const Package = "com.google.android.youtube"

// Compatibility is the version of YouTube supported by the patches.
var Compatibility = []patches.Compatibility{
	{Package: Package, Versions: []string{"18.32.33"}},
}
