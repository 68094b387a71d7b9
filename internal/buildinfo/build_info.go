// Package buildinfo describes the build of the viewstore binary.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// BuildInfo identifies a build. Version, commit and date come from linker flags; fields left empty
// are filled from the module data the Go toolchain embeds into the binary.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
	GoVersion  string
}

// New creates the build info of the running binary.
func New(version, commitHash, buildDate string) BuildInfo {
	i := BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}
	if bi, ok := debug.ReadBuildInfo(); ok {
		i.complete(bi)
	}
	return i
}

func (i *BuildInfo) complete(bi *debug.BuildInfo) {
	i.GoVersion = bi.GoVersion
	if i.Version == "" && bi.Main.Version != "(devel)" {
		i.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.CommitHash == "" {
				i.CommitHash = s.Value
			}
		case "vcs.time":
			if i.BuildDate == "" {
				i.BuildDate = s.Value
			}
		}
	}
}

// String returns the build info as a string.
func (i BuildInfo) String() string {
	ret := fmt.Sprintf("version %s (%s) built on %s", orDefault(i.Version, "dev"),
		orDefault(i.CommitHash, "n/a"), orDefault(i.BuildDate, "<unknown>"))
	if i.GoVersion != "" {
		ret += " with " + i.GoVersion
	}
	return ret
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
