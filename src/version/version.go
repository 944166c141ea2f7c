// Package version holds the bftnode release string.
package version

// Flag marks pre-release builds, e.g. "rc1". Release builds leave it empty.
const Flag = ""

var (
	// Version is the full version string
	Version = "0.1.0"

	// GitCommit is set with --ldflags "-X github.com/mosaicnetworks/bftnode/src/version.GitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	Version = fullVersion(Version, Flag, GitCommit)
}

func fullVersion(base, flag, commit string) string {
	v := base
	if flag != "" {
		v += "-" + flag
	}
	if len(commit) >= 8 {
		v += "-" + commit[:8]
	}
	return v
}
