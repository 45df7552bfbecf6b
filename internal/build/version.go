package build

import (
	"runtime"
	"strings"
)

// Semantic version components, bumped by hand on release (the lnd/btcsuite
// convention this module follows).
const (
	appMajor = 0
	appMinor = 1
	appPatch = 0
)

// Commit is set via -ldflags "-X .../build.Commit=..." at build time; it is
// empty for a plain `go build`.
var Commit string

// CommitHash is a fallback commit identifier read from the Go module's
// embedded VCS info when Commit was not set via ldflags.
var CommitHash = vcsRevision()

// GoVersion is the Go toolchain version this binary was built with.
var GoVersion = runtime.Version()

// RawTags is set via -ldflags "-X .../build.RawTags=..." to a comma
// separated list of build tags active in this binary. Empty for a plain
// `go build`.
var RawTags string

// Tags splits RawTags into individual tag names, skipping empty entries.
func Tags() []string {
	if RawTags == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(RawTags, ",") {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Version returns the semantic version string, e.g. "0.1.0".
func Version() string {
	return semverString(appMajor, appMinor, appPatch)
}
