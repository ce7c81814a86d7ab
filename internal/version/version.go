package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Build information injected at compile time via ldflags:
//
//	-X cameramodules/internal/version.Version=v1.2.0
var (
	Version   = "v0.0.0-dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const appName = "cameramodules"

// Info returns a one-line version string.
func Info() string {
	return fmt.Sprintf("%s %s (commit: %s)", appName, Version, Commit)
}

// BuildInfo holds all build-related information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// String renders the multi-line form printed by the version command.
func (b BuildInfo) String() string {
	return fmt.Sprintf(
		"%s %s\n  Commit: %s\n  Built: %s\n  Go: %s\n  Platform: %s/%s",
		appName, b.Version, b.Commit, b.BuildTime, b.GoVersion, b.OS, b.Arch,
	)
}

// IsPrerelease reports whether Version carries a pre-release suffix (-dev, -rc1, ...).
func IsPrerelease() bool {
	return strings.Contains(Version, "-")
}
