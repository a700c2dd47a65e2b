// Package misc keeps build time information about the program.
package misc

import (
	"runtime/debug"
)

// Values below could be overwritten at link time, for example:
// -ldflags "-X stylepipe/misc.version=1.2.3 -X stylepipe/misc.gitHash=abcdef"
var (
	appName = "stylepipe"
	version = "dev"
	gitHash = ""
)

func GetAppName() string {
	return appName
}

// GetVersion returns program version, module version is used when version was
// not set at link time.
func GetVersion() string {
	if version != "dev" {
		return version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && len(bi.Main.Version) > 0 && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return version
}

// GetGitHash returns vcs revision program was built from if known.
func GetGitHash() string {
	if len(gitHash) > 0 {
		return gitHash
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
