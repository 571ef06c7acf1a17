package binder

import (
	"fmt"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/bookbuilder/internal/forge"
	"git.home.luguber.info/inful/bookbuilder/internal/locks"
)

// LogSection is one named log blob included in a failure payload.
type LogSection struct {
	Title string
	Body  string
}

// BuiltArtifact describes a successfully built book located by the probe.
type BuiltArtifact struct {
	BookURL     string
	DownloadURL string
}

// ArtifactProbe is the inventory view the resolver needs: artifact presence,
// the execution-error marker, and the error reports for failed runs.
type ArtifactProbe interface {
	FindBuilt(project forge.Project, commit string) (*BuiltArtifact, error)
	ExecutionErrored(project forge.Project, commit string) (bool, error)
	CollectErrorReports(project forge.Project, commit string) ([]LogSection, error)
}

// Outcome is the terminal result of one build, computed exactly once after
// the stream closes.
type Outcome struct {
	Success  bool
	Artifact *BuiltArtifact // set on success
	Payload  string         // formatted failure bundle, set on failure
}

// OutcomeResolver finalizes a build after the stream reaches a terminal
// state.
type OutcomeResolver struct {
	locks  *locks.Store
	probe  ArtifactProbe
	logger *slog.Logger
}

// NewOutcomeResolver assembles the resolver.
func NewOutcomeResolver(lockStore *locks.Store, probe ArtifactProbe, logger *slog.Logger) *OutcomeResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutcomeResolver{locks: lockStore, probe: probe, logger: logger}
}

// Resolve releases the build lock and determines success or failure from the
// artifact probe and the stream result.
//
// The lock release runs first and unconditionally. This is the only release
// point on the build path, covering failure and cancellation, so a failed
// build never denies retries.
func (r *OutcomeResolver) Resolve(project forge.Project, commit string, stream *StreamResult) (*Outcome, error) {
	if err := r.locks.Release(project.LockKey()); err != nil {
		r.logger.Error("build lock release failed", "project", project.FullName(), "error", err)
	}

	artifact, err := r.probe.FindBuilt(project, commit)
	if err != nil {
		return nil, fmt.Errorf("probe built book for %s@%s: %w", project.FullName(), commit, err)
	}

	if artifact != nil {
		// An artifact can exist while the executed content still errored.
		// That marker is checked explicitly, never inferred from presence.
		errored, err := r.probe.ExecutionErrored(project, commit)
		if err != nil {
			return nil, fmt.Errorf("check execution errors for %s@%s: %w", project.FullName(), commit, err)
		}
		if !errored {
			return &Outcome{Success: true, Artifact: artifact}, nil
		}
		r.logger.Warn("book built but execution errored", "project", project.FullName(), "commit", commit)
	}

	reports, err := r.probe.CollectErrorReports(project, commit)
	if err != nil {
		r.logger.Error("collecting execution error reports failed", "project", project.FullName(), "error", err)
		reports = nil
	}

	var transcript []string
	if stream != nil {
		transcript = stream.Transcript
	}
	return &Outcome{Payload: formatFailurePayload(transcript, reports)}, nil
}

// formatFailurePayload bundles the stream transcript and the execution error
// reports into one message, each section individually collapsible so build
// log and execution log stay distinguishable.
func formatFailurePayload(transcript []string, reports []LogSection) string {
	var b strings.Builder
	b.WriteString("## Build failed :(\n\n")

	b.WriteString("<details><summary> <b>BinderHub build log</b> </summary><pre><code>")
	b.WriteString(strings.Join(transcript, "\n"))
	b.WriteString("</code></pre></details>\n\n")

	for _, report := range reports {
		fmt.Fprintf(&b, "<details><summary> <b>%s</b> </summary><pre><code>", report.Title)
		b.WriteString(report.Body)
		b.WriteString("</code></pre></details>\n\n")
	}

	b.WriteString("If the BinderHub build looks OK, please see the execution error reports above.\n")
	return b.String()
}
