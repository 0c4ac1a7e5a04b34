// Package version derives the process version string that the binaries log
// at startup and the worker sends as its User-Agent. An -ldflags override
// wins, then VCS revision from build info, then "dev".
package version

import "runtime/debug"

// AppName prefixes version strings.
const AppName = "replyfleet"

// gitCommitOverride is set via -ldflags for container builds where .git is
// unavailable. Empty means no override.
var gitCommitOverride string

// GitCommit is the short commit hash, or "dev" when build info is
// unavailable (`go test`, non-git builds).
var GitCommit = initGitCommit()

func initGitCommit() string {
	if gitCommitOverride != "" {
		return shorten(gitCommitOverride)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shorten(s.Value)
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "replyfleet/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
