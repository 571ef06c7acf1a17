// Package binder drives the build path: admission gating, relaying the build
// service's event stream, and resolving the final outcome.
package binder

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/bookbuilder/internal/forge"
	"git.home.luguber.info/inful/bookbuilder/internal/locks"
)

// HeadRef is the sentinel commit value that requests the default-branch head.
const HeadRef = "HEAD"

// RateLimitedError reports that a build for the same project is already
// admitted. Remaining is surfaced to the requester verbatim.
type RateLimitedError struct {
	Remaining float64 // minutes, one decimal
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("a build for this repository was requested recently, please try again in %.1f minutes", e.Remaining)
}

// BuildRequest is an admitted build, immutable once returned by Preflight.
type BuildRequest struct {
	Project forge.Project
	Commit  string
	URI     string
}

// Admission is the single gate a build request passes before submission.
type Admission struct {
	locks     *locks.Store
	resolver  forge.RefResolver
	host      string // build service base URL, e.g. "https://binder.example.org"
	rateLimit time.Duration
}

// NewAdmission assembles the preflight gate.
func NewAdmission(lockStore *locks.Store, resolver forge.RefResolver, host string, rateLimit time.Duration) *Admission {
	return &Admission{locks: lockStore, resolver: resolver, host: host, rateLimit: rateLimit}
}

// Preflight validates the repository, takes the rate-limit lock, resolves a
// symbolic HEAD commit, and composes the build service request URI.
//
// Lock discipline: a lock is created only by a successful preflight. Failing
// at provider recognition or at the rate limit touches no lock; failing at
// reference resolution releases the lock just taken.
func (a *Admission) Preflight(ctx context.Context, repoURL, commitRef string) (*BuildRequest, error) {
	project, err := forge.ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	acq, err := a.locks.Acquire(project.LockKey(), a.rateLimit)
	if err != nil {
		return nil, fmt.Errorf("acquire build lock for %s: %w", project.FullName(), err)
	}
	if !acq.Acquired {
		return nil, &RateLimitedError{Remaining: acq.RemainingMinutes()}
	}

	commit := commitRef
	if commit == "" || commit == HeadRef {
		commit, err = a.resolver.ResolveHead(ctx, project.URL())
		if err != nil {
			if relErr := a.locks.Release(project.LockKey()); relErr != nil {
				return nil, fmt.Errorf("resolve HEAD for %s: %w (lock release also failed: %v)", project.FullName(), err, relErr)
			}
			return nil, fmt.Errorf("resolve HEAD for %s: %w", project.FullName(), err)
		}
	}

	return &BuildRequest{
		Project: project,
		Commit:  commit,
		URI:     fmt.Sprintf("%s/build/%s/%s/%s.git/%s", a.host, project.Abbrev(), project.Owner, project.Repo, commit),
	}, nil
}
