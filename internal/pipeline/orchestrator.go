// Package pipeline glues the build path together: admission, build service
// submission, stream relay, outcome resolution, and status reporting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/bookbuilder/internal/binder"
	"git.home.luguber.info/inful/bookbuilder/internal/eventstore"
	"git.home.luguber.info/inful/bookbuilder/internal/forge"
	"git.home.luguber.info/inful/bookbuilder/internal/locks"
	"git.home.luguber.info/inful/bookbuilder/internal/metrics"
	"git.home.luguber.info/inful/bookbuilder/internal/notify"
	"git.home.luguber.info/inful/bookbuilder/internal/worker"
)

// Orchestrator runs one build from admission to resolved outcome.
type Orchestrator struct {
	admission  *binder.Admission
	resolver   *binder.OutcomeResolver
	locks      *locks.Store
	pool       *worker.Pool
	sink       notify.Sink
	events     eventstore.Store
	recorder   metrics.Recorder
	httpClient *http.Client
	interval   time.Duration // progress notification cadence
	logger     *slog.Logger
}

// Options collects the orchestrator's collaborators.
type Options struct {
	Admission *binder.Admission
	Resolver  *binder.OutcomeResolver
	Locks     *locks.Store
	Pool      *worker.Pool
	Sink      notify.Sink
	Events    eventstore.Store
	Recorder  metrics.Recorder
	Interval  time.Duration
	Logger    *slog.Logger
}

// New assembles the orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Orchestrator{
		admission:  opts.Admission,
		resolver:   opts.Resolver,
		locks:      opts.Locks,
		pool:       opts.Pool,
		sink:       opts.Sink,
		events:     opts.Events,
		recorder:   recorder,
		httpClient: &http.Client{},
		interval:   opts.Interval,
		logger:     logger,
	}
}

// SubmitBuild admits the request synchronously, then runs the stream and
// outcome phases as a background job. Admission failures surface to the
// caller immediately so the requester sees rate limiting verbatim.
func (o *Orchestrator) SubmitBuild(repoURL, commit string, issueID int) (string, error) {
	req, err := o.admission.Preflight(context.Background(), repoURL, commit)
	if err != nil {
		var rl *binder.RateLimitedError
		if errors.As(err, &rl) {
			o.recorder.IncLockContention()
		}
		return "", err
	}

	jobID, err := o.pool.Enqueue("build", func(ctx context.Context) error {
		return o.runBuild(ctx, req, issueID)
	})
	if err != nil {
		// The job never ran, so the admission lock must not linger.
		if relErr := o.locks.Release(req.Project.LockKey()); relErr != nil {
			o.logger.Error("lock release after enqueue failure failed", "error", relErr)
		}
		return "", err
	}
	return jobID, nil
}

// Unlock force-releases the rate-limit lock for a repository.
func (o *Orchestrator) Unlock(repoURL string) error {
	project, err := forge.ParseRepoURL(repoURL)
	if err != nil {
		return err
	}
	return o.locks.Release(project.LockKey())
}

// runBuild submits the admitted request to the build service, relays its
// stream, and resolves the outcome.
func (o *Orchestrator) runBuild(ctx context.Context, req *binder.BuildRequest, issueID int) error {
	start := time.Now()
	update := notify.Update{
		Title:   "Book build",
		Repo:    req.Project.FullName(),
		Commit:  req.Commit,
		IssueID: issueID,
	}

	update.Kind = notify.KindStarted
	commentID, err := o.sink.Notify(ctx, update)
	if err != nil {
		o.logger.Error("start notification failed", "error", err)
	}
	update.CommentID = commentID

	stream, err := o.relayStream(ctx, req, &update)
	if err != nil {
		// The build service was unreachable; resolve anyway so the lock
		// is released and the requester gets a terminal status.
		o.logger.Error("build stream failed", "uri", req.URI, "error", err)
		stream = &binder.StreamResult{State: binder.StreamFailed, Transcript: []string{err.Error()}}
	}

	outcome, err := o.resolver.Resolve(req.Project, req.Commit, stream)
	if err != nil {
		return fmt.Errorf("resolve outcome for %s: %w", req.Project.FullName(), err)
	}

	o.recorder.ObserveBuildDuration(time.Since(start))
	if outcome.Success {
		o.recorder.IncBuildOutcome(metrics.BuildSuccess)
		update.Kind = notify.KindSuccess
		update.CommentID = 0 // terminal status gets its own comment
		update.Message = fmt.Sprintf("The book is ready: %s", outcome.Artifact.BookURL)
	} else {
		o.recorder.IncBuildOutcome(metrics.BuildFailed)
		update.Kind = notify.KindFailure
		update.CommentID = 0
		update.Message = outcome.Payload
	}
	if _, err := o.sink.Notify(ctx, update); err != nil {
		o.logger.Error("outcome notification failed", "error", err)
	}
	o.appendEvent(ctx, req, eventstore.TypeBuildResolved, []byte(fmt.Sprintf(`{"success":%t}`, outcome.Success)))
	return nil
}

// relayStream opens the build service stream and relays it until terminal.
func (o *Orchestrator) relayStream(ctx context.Context, req *binder.BuildRequest, update *notify.Update) (*binder.StreamResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URI, http.NoBody)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open build stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("build service returned %d", resp.StatusCode)
	}

	relay := &binder.StreamRelay{
		Interval: o.interval,
		Logger:   o.logger,
		Forward: func(message string) {
			o.recorder.IncStreamEvent("progress")
			o.appendEvent(ctx, req, eventstore.TypeStreamProgress, []byte(message))
		},
		OnProgress: func(messages []string) {
			progress := *update
			progress.Kind = notify.KindReceived
			progress.Message = fmt.Sprintf("```\n%s\n```", strings.Join(messages, "\n"))
			if _, err := o.sink.Notify(ctx, progress); err != nil {
				o.logger.Error("progress notification failed", "error", err)
			}
		},
		OnFailure: func(message string) {
			o.recorder.IncStreamEvent("failure")
			o.appendEvent(ctx, req, eventstore.TypeStreamFailure, []byte(message))
		},
	}
	return relay.Relay(ctx, resp.Body)
}

func (o *Orchestrator) appendEvent(ctx context.Context, req *binder.BuildRequest, eventType string, payload []byte) {
	if o.events == nil {
		return
	}
	meta := map[string]string{"repo": req.Project.FullName(), "commit": req.Commit}
	jobKey := eventstore.JobKey(req.Project.FullName(), req.Commit)
	if err := o.events.Append(ctx, jobKey, eventType, payload, meta); err != nil {
		o.logger.Error("event append failed", "type", eventType, "error", err)
	}
}
