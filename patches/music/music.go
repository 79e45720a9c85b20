// Package music contains the patches for YouTube Music.
package music

import "github.com/pgaskin/smalipatch/patches"

// Package is the package name of YouTube Music.
const Package = "com.google.android.apps.youtube.music"

// Compatibility is the version of YouTube Music supported by the patches.
var Compatibility = []patches.Compatibility{
	{Package: Package},
}
