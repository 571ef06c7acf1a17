package binder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookbuilder/internal/forge"
	"git.home.luguber.info/inful/bookbuilder/internal/locks"
)

type stubResolver struct {
	commit string
	err    error
	calls  int
}

func (s *stubResolver) ResolveHead(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.commit, s.err
}

func newTestAdmission(t *testing.T, resolver forge.RefResolver) (*Admission, *locks.Store) {
	t.Helper()
	store, err := locks.NewStore(filepath.Join(t.TempDir(), "build_locks"))
	require.NoError(t, err)
	return NewAdmission(store, resolver, "https://binder.example.org", 30*time.Minute), store
}

func TestPreflightComposesBuildURI(t *testing.T) {
	adm, _ := newTestAdmission(t, &stubResolver{})

	req, err := adm.Preflight(context.Background(), "https://github.com/acme/demo", "abc123def")
	require.NoError(t, err)
	assert.Equal(t, "https://binder.example.org/build/gh/acme/demo.git/abc123def", req.URI)
	assert.Equal(t, "abc123def", req.Commit)
	assert.Equal(t, "acme/demo", req.Project.FullName())
}

func TestPreflightResolvesSymbolicHead(t *testing.T) {
	resolver := &stubResolver{commit: "feedface"}
	adm, _ := newTestAdmission(t, resolver)

	req, err := adm.Preflight(context.Background(), "https://github.com/acme/demo", HeadRef)
	require.NoError(t, err)
	assert.Equal(t, "feedface", req.Commit)
	assert.Equal(t, 1, resolver.calls)
}

func TestPreflightExplicitCommitSkipsResolver(t *testing.T) {
	resolver := &stubResolver{commit: "feedface"}
	adm, _ := newTestAdmission(t, resolver)

	_, err := adm.Preflight(context.Background(), "https://github.com/acme/demo", "cafebabe")
	require.NoError(t, err)
	assert.Zero(t, resolver.calls)
}

func TestPreflightSecondCallRateLimited(t *testing.T) {
	adm, _ := newTestAdmission(t, &stubResolver{})

	_, err := adm.Preflight(context.Background(), "https://github.com/acme/demo", "abc")
	require.NoError(t, err)

	_, err = adm.Preflight(context.Background(), "https://github.com/acme/demo", "abc")
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Greater(t, rl.Remaining, 0.0)
	assert.LessOrEqual(t, rl.Remaining, 30.0)
}

func TestPreflightUnrecognizedProviderTouchesNoLock(t *testing.T) {
	adm, store := newTestAdmission(t, &stubResolver{})

	_, err := adm.Preflight(context.Background(), "https://bitbucket.org/acme/demo", "abc")
	require.ErrorIs(t, err, forge.ErrUnrecognizedProvider)

	// Nothing was admitted, so the key is free for any provider.
	acq, err := store.Acquire(locks.Key{Provider: "bitbucket.org", Owner: "acme", Repo: "demo"}, time.Minute)
	require.NoError(t, err)
	assert.True(t, acq.Acquired)
}

func TestPreflightResolveFailureReleasesLock(t *testing.T) {
	resolver := &stubResolver{err: errors.New("remote unreachable")}
	adm, _ := newTestAdmission(t, resolver)

	_, err := adm.Preflight(context.Background(), "https://github.com/acme/demo", HeadRef)
	require.Error(t, err)

	// The failed preflight left no lock behind.
	resolver.err = nil
	resolver.commit = "abc"
	_, err = adm.Preflight(context.Background(), "https://github.com/acme/demo", HeadRef)
	require.NoError(t, err)
}
