package binder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookbuilder/internal/forge"
	"git.home.luguber.info/inful/bookbuilder/internal/locks"
)

type stubProbe struct {
	artifact *BuiltArtifact
	errored  bool
	reports  []LogSection
}

func (s *stubProbe) FindBuilt(forge.Project, string) (*BuiltArtifact, error) { return s.artifact, nil }
func (s *stubProbe) ExecutionErrored(forge.Project, string) (bool, error)   { return s.errored, nil }
func (s *stubProbe) CollectErrorReports(forge.Project, string) ([]LogSection, error) {
	return s.reports, nil
}

var testProject = forge.Project{Owner: "acme", Repo: "demo", Provider: "github.com"}

func newTestResolver(t *testing.T, probe ArtifactProbe) (*OutcomeResolver, *locks.Store) {
	t.Helper()
	store, err := locks.NewStore(filepath.Join(t.TempDir(), "build_locks"))
	require.NoError(t, err)
	return NewOutcomeResolver(store, probe, nil), store
}

func TestResolveSuccess(t *testing.T) {
	probe := &stubProbe{artifact: &BuiltArtifact{BookURL: "https://books.example.org/acme/demo"}}
	resolver, _ := newTestResolver(t, probe)

	outcome, err := resolver.Resolve(testProject, "abc", &StreamResult{State: StreamClosed})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "https://books.example.org/acme/demo", outcome.Artifact.BookURL)
}

func TestResolveReleasesLockOnEveryPath(t *testing.T) {
	tests := []struct {
		name  string
		probe *stubProbe
	}{
		{"success", &stubProbe{artifact: &BuiltArtifact{BookURL: "u"}}},
		{"failure", &stubProbe{}},
		{"downgrade", &stubProbe{artifact: &BuiltArtifact{BookURL: "u"}, errored: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, store := newTestResolver(t, tt.probe)
			acq, err := store.Acquire(testProject.LockKey(), 30*time.Minute)
			require.NoError(t, err)
			require.True(t, acq.Acquired)

			_, err = resolver.Resolve(testProject, "abc", nil)
			require.NoError(t, err)

			acq, err = store.Acquire(testProject.LockKey(), 30*time.Minute)
			require.NoError(t, err)
			assert.True(t, acq.Acquired, "lock must be released by Resolve")
		})
	}
}

func TestResolveArtifactMissingIsFailure(t *testing.T) {
	probe := &stubProbe{reports: []LogSection{{Title: "notebook-01 execution report", Body: "Traceback"}}}
	resolver, _ := newTestResolver(t, probe)

	outcome, err := resolver.Resolve(testProject, "abc", &StreamResult{
		State:      StreamFailed,
		Transcript: []string{"Step 1/4", "push failed"},
	})
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Payload, "BinderHub build log")
	assert.Contains(t, outcome.Payload, "push failed")
	assert.Contains(t, outcome.Payload, "notebook-01 execution report")
	assert.Contains(t, outcome.Payload, "Traceback")
}

func TestResolveExecutionErrorDowngradesSuccess(t *testing.T) {
	probe := &stubProbe{
		artifact: &BuiltArtifact{BookURL: "u"},
		errored:  true,
		reports:  []LogSection{{Title: "report", Body: "CellExecutionError"}},
	}
	resolver, _ := newTestResolver(t, probe)

	outcome, err := resolver.Resolve(testProject, "abc", &StreamResult{State: StreamClosed})
	require.NoError(t, err)
	assert.False(t, outcome.Success, "execution errors downgrade a built book to failure")
	assert.Contains(t, outcome.Payload, "CellExecutionError")
}
