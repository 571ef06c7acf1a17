package forge

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// RefResolver resolves the symbolic default-branch head of a remote
// repository to a concrete commit hash.
type RefResolver interface {
	ResolveHead(ctx context.Context, repoURL string) (string, error)
}

// GitRefResolver lists remote references over the git transport without
// cloning.
type GitRefResolver struct{}

// ResolveHead returns the commit hash the remote HEAD points at.
func (GitRefResolver) ResolveHead(ctx context.Context, repoURL string) (string, error) {
	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{repoURL},
	})

	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("list remote references for %s: %w", repoURL, err)
	}

	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	var head *plumbing.Reference
	for _, ref := range refs {
		byName[ref.Name()] = ref
		if ref.Name() == plumbing.HEAD {
			head = ref
		}
	}
	if head == nil {
		return "", fmt.Errorf("remote %s advertises no HEAD", repoURL)
	}

	// Some transports advertise HEAD as a symbolic ref, others resolve it
	// to a hash already.
	if head.Type() == plumbing.SymbolicReference {
		target, ok := byName[head.Target()]
		if !ok {
			return "", fmt.Errorf("remote %s HEAD targets unknown ref %s", repoURL, head.Target())
		}
		return target.Hash().String(), nil
	}
	return head.Hash().String(), nil
}
