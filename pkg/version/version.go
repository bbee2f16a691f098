// Package version reports the build-time version string, set via ldflags.
package version

// Version is overridden at link time with -X.
var Version = "HEAD"

// Get returns the running binary's version string.
func Get() string {
	return Version
}
