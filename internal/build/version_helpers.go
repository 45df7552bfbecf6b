package build

import (
	"fmt"
	"runtime/debug"
)

func semverString(major, minor, patch int) string {
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}

// vcsRevision reads the embedded VCS commit hash from the binary's build
// info, if the Go toolchain recorded one (requires building from within a
// VCS checkout).
func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}
	return ""
}
