package deploy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Environment is the deployment target a branch maps to. Derived per
// push, never stored.
type Environment struct {
	Name     string `json:"name"` // production, preview, or development
	Branch   string `json:"branch"`
	URL      string `json:"url,omitempty"`
	PRNumber int    `json:"pr_number,omitempty"`
}

// Pull-request refs arrive as refs/pull/N/head; the refs/ prefix is
// optional so already-stripped branch names also match.
var prRefPattern = regexp.MustCompile(`^(?:refs/)?pull/(\d+)(?:/|$)`)

// MapBranchToEnvironment resolves a branch to its deployment environment.
// Explicit mappings win, then pull-request refs become previews with the
// PR number, then main/master becomes production, and any other branch
// becomes a preview under a URL-safe slug.
func MapBranchToEnvironment(branch string, custom map[string]string, siteBaseURL string) Environment {
	if name, ok := custom[branch]; ok {
		env := Environment{Name: name, Branch: branch}
		switch name {
		case "production":
			env.URL = siteBaseURL
		case "preview":
			env.URL = previewURL(siteBaseURL, Slug(branch))
		}
		return env
	}

	if m := prRefPattern.FindStringSubmatch(branch); m != nil {
		pr, _ := strconv.Atoi(m[1])
		return Environment{
			Name:     "preview",
			Branch:   branch,
			URL:      previewURL(siteBaseURL, fmt.Sprintf("pr-%d", pr)),
			PRNumber: pr,
		}
	}

	if branch == "main" || branch == "master" {
		return Environment{Name: "production", Branch: branch, URL: siteBaseURL}
	}

	return Environment{
		Name:   "preview",
		Branch: branch,
		URL:    previewURL(siteBaseURL, Slug(branch)),
	}
}

func previewURL(base, slug string) string {
	return strings.TrimSuffix(base, "/") + "/preview/" + slug
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a branch name into a URL-safe identifier.
func Slug(branch string) string {
	s := slugUnsafe.ReplaceAllString(strings.ToLower(branch), "-")
	return strings.Trim(s, "-")
}
