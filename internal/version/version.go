// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/dex-scanner/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/dex-scanner/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import "runtime/debug"

// Build-time variables (set via ldflags)
var (
	Version = "dev"
	Commit  = "unknown"
)

// Info is the build description reported by the health endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

// Get returns the build info, falling back to VCS data embedded by the Go
// toolchain when Commit was not set.
func Get() Info {
	info := Info{Version: Version, Commit: Commit}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	if info.Commit == "unknown" {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				info.Commit = s.Value[:7]
			}
		}
	}
	return info
}

// String returns a formatted version string.
func String() string {
	info := Get()
	return info.Version + " (" + info.Commit + ")"
}
