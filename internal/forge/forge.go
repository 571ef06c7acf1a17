// Package forge integrates with the recognized code-hosting providers:
// repository identity parsing, remote reference resolution, and the issue
// comment / fork operations the pipeline needs.
package forge

import (
	"fmt"
	"net/url"
	"strings"

	"git.home.luguber.info/inful/bookbuilder/internal/locks"
)

// ErrUnrecognizedProvider is returned for repository URLs outside the
// recognized hosting providers. Not retryable: it is a caller error.
var ErrUnrecognizedProvider = fmt.Errorf("unrecognized repository provider")

// providerAbbrevs maps recognized provider domains to the abbreviations the
// build service expects in its request path.
var providerAbbrevs = map[string]string{
	"github.com": "gh",
	"gitlab.com": "gl",
}

// Project identifies a reviewable unit of work.
type Project struct {
	Owner    string
	Repo     string
	Provider string // full domain, e.g. "github.com"
}

// ParseRepoURL extracts {owner, repo, provider} from a repository URL.
// Only the recognized providers are accepted.
func ParseRepoURL(repoURL string) (Project, error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return Project{}, fmt.Errorf("parse repository URL %q: %w", repoURL, err)
	}
	host := strings.ToLower(u.Host)
	if _, ok := providerAbbrevs[host]; !ok {
		return Project{}, fmt.Errorf("%w: %q", ErrUnrecognizedProvider, host)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Project{}, fmt.Errorf("repository URL %q missing owner/repo", repoURL)
	}
	return Project{
		Owner:    parts[0],
		Repo:     strings.TrimSuffix(parts[1], ".git"),
		Provider: host,
	}, nil
}

// Abbrev returns the provider abbreviation used in build request URIs.
func (p Project) Abbrev() string {
	return providerAbbrevs[p.Provider]
}

// FullName returns "owner/repo".
func (p Project) FullName() string {
	return p.Owner + "/" + p.Repo
}

// URL returns the canonical repository URL.
func (p Project) URL() string {
	return fmt.Sprintf("https://%s/%s/%s", p.Provider, p.Owner, p.Repo)
}

// LockKey returns the mutual-exclusion key for this project.
func (p Project) LockKey() locks.Key {
	return locks.Key{Provider: p.Provider, Owner: p.Owner, Repo: p.Repo}
}
