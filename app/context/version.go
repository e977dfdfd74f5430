package context

import (
	"fmt"
	"runtime/debug"
)

// VersionInfo describes the application version and the environment it was
// built in.
type VersionInfo struct {
	Semantic  string
	Revision  string
	GoVersion string
	Dirty     bool
}

// String renders the version in a single line, e.g.
// "v0.3.0 (rev: 1a2b3c4, go1.24.2)".
func (v *VersionInfo) String() string {
	rev := v.Revision
	if rev == "" {
		rev = "unknown"
	}
	if v.Dirty {
		rev += "-dirty"
	}
	return fmt.Sprintf("%s (rev: %s, %s)", v.Semantic, rev, v.GoVersion)
}

// GetVersion extracts version information from the build metadata embedded in
// the binary.
func GetVersion() (*VersionInfo, error) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, fmt.Errorf("failed reading build info")
	}

	v := &VersionInfo{Semantic: info.Main.Version, GoVersion: info.GoVersion}
	if v.Semantic == "" || v.Semantic == "(devel)" {
		v.Semantic = "v0.0.0-dev"
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if len(s.Value) >= 7 {
				v.Revision = s.Value[:7]
			} else {
				v.Revision = s.Value
			}
		case "vcs.modified":
			v.Dirty = s.Value == "true"
		}
	}

	return v, nil
}
