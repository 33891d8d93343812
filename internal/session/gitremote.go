package session

import (
	"os/exec"
	"strings"
)

// ExtractGitOrgProject shells out to `git remote get-url origin` in cwd and
// parses the result into (org, project), falling back to ("unknown",
// "unknown") if git is unavailable or the remote is unparseable.
func ExtractGitOrgProject(cwd string) (org, project string) {
	cmd := exec.Command("git", "remote", "get-url", "origin")
	cmd.Dir = cwd
	out, err := cmd.Output()
	if err != nil {
		return "unknown", "unknown"
	}
	return ParseGitRemoteURL(strings.TrimSpace(string(out)))
}

// ParseGitRemoteURL parses both SSH (git@host:org/repo.git) and HTTPS
// (https://host/org/repo.git) remote URL forms.
func ParseGitRemoteURL(url string) (org, project string) {
	if rest, ok := strings.CutPrefix(url, "git@"); ok {
		if colon := strings.Index(rest, ":"); colon >= 0 {
			pathPart := strings.TrimSuffix(rest[colon+1:], ".git")
			parts := strings.SplitN(pathPart, "/", 2)
			if len(parts) == 2 {
				return parts[0], parts[1]
			}
		}
	}

	if strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://") {
		afterScheme := strings.SplitN(url, "//", 2)
		if len(afterScheme) == 2 {
			segments := strings.Split(afterScheme[1], "/")
			if len(segments) >= 2 {
				pathStr := strings.TrimSuffix(strings.Join(segments[1:], "/"), ".git")
				parts := strings.SplitN(pathStr, "/", 2)
				if len(parts) == 2 {
					return parts[0], parts[1]
				}
			}
		}
	}

	return "unknown", "unknown"
}
