// Package version enables setting the build-time version using ldflags.
package version

var (
	// Version is the semantic version (MAJOR.MINOR.PATCH).
	Version = "v0.0.0"
	// GitCommit is the git commit sha, set by the compiler.
	GitCommit = ""
	// BuildMeta is the release type (dev, rc1, etc).
	BuildMeta = ""
)

// FullVersion returns the full version string.
func FullVersion() string {
	s := Version
	if BuildMeta != "" {
		s += "-" + BuildMeta
	}
	if GitCommit != "" {
		s += "+" + GitCommit
	}
	return s
}
