// Package version reports build information for the dictserver binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/dictserver/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/dictserver/internal/version.Commit=abc123"
//
// Unset values are filled from the embedded VCS stamp, else "dev" and "unknown".
var (
	Version = ""
	Commit  = ""
)

// Info describes one build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Dirty     bool   `json:"dirty,omitempty"`
	GoVersion string `json:"go"`
	Platform  string `json:"platform"`
}

func init() {
	info, _ := debug.ReadBuildInfo()
	Version, Commit = resolve(Version, Commit, info)
}

// resolve fills empty version and commit strings from build settings.
func resolve(version, commit string, info *debug.BuildInfo) (string, string) {
	var revision, modified, vcsTime string
	if info != nil {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				revision = s.Value
			case "vcs.modified":
				modified = s.Value
			case "vcs.time":
				vcsTime = s.Value
			}
		}
		if version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}

	if commit == "" && revision != "" {
		commit = revision[:min(len(revision), 7)]
		if modified == "true" {
			commit += "-dirty"
		}
	}
	if version == "" {
		version = "dev"
		// vcs.time is RFC 3339; its date part is enough.
		if d, _, ok := strings.Cut(vcsTime, "T"); ok {
			version = "dev-" + strings.ReplaceAll(d, "-", "")
		}
	}
	if commit == "" {
		commit = "unknown"
	}
	return version, commit
}

// Get returns the running build's information.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    strings.TrimSuffix(Commit, "-dirty"),
		Dirty:     strings.HasSuffix(Commit, "-dirty"),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Full returns the full version string including commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent returns the HTTP User-Agent for program.
func UserAgent(program string) string {
	return program + "/" + Version
}
