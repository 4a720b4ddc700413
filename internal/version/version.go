// Package version holds the build version of genestore.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X genestore/internal/version.Version=1.0.0 -X genestore/internal/version.Commit=abc123".
var (
	Version   = "0.4.0"
	Commit    = ""
	BuildDate = ""
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Revision is the commit the binary was built from: the ldflags value, or
// the vcs.revision the go tool stamped, or "unknown".
func Revision() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := readBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return "unknown"
}

// Info is the version with an abbreviated revision, e.g. "0.4.0 (3f2a9c1)".
func Info() string {
	if rev := Revision(); len(rev) >= 7 && rev != "unknown" {
		return fmt.Sprintf("%s (%s)", Version, rev[:7])
	}
	return Version
}

// Full is the multi-line output of `genestore version`.
func Full() string {
	built := BuildDate
	if built == "" {
		built = "unknown"
	}
	return fmt.Sprintf("genestore version %s\nCommit: %s\nBuilt: %s\nGo: %s %s/%s",
		Version, Revision(), built, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
