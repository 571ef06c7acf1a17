// Package notify delivers pipeline status updates to the reporting
// channels: review issue comments, mail, and the NATS event stream.
package notify

import (
	"context"
	"log/slog"
)

// Kind classifies a status update.
type Kind string

const (
	KindPending  Kind = "pending"
	KindStarted  Kind = "started"
	KindReceived Kind = "received"
	KindSuccess  Kind = "success"
	KindFailure  Kind = "failure"
	KindExists   Kind = "exists"
)

// Update is one status notification. The core treats sinks as side effects
// and only reads back the comment identifier for chaining.
type Update struct {
	Kind    Kind
	Title   string // short task title, e.g. "Book build"
	Repo    string // owner/repo of the submission
	Commit  string
	IssueID int    // review issue number; zero when no issue is involved
	Message string // freeform body, markdown

	// CommentID chains this update onto a previously created comment
	// instead of posting a new one. Zero posts fresh.
	CommentID int64
}

// Sink delivers one update. The returned identifier, when non-zero, lets the
// caller chain later updates onto the same comment.
type Sink interface {
	Notify(ctx context.Context, update Update) (int64, error)
}

// MultiSink fans one update out to several sinks. Delivery failures are
// logged per sink and do not block the others; the first non-zero chaining
// identifier wins.
type MultiSink struct {
	Sinks  []Sink
	Logger *slog.Logger
}

func (m *MultiSink) Notify(ctx context.Context, update Update) (int64, error) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var chainID int64
	for _, sink := range m.Sinks {
		id, err := sink.Notify(ctx, update)
		if err != nil {
			logger.Error("notification delivery failed", "kind", update.Kind, "error", err)
			continue
		}
		if chainID == 0 {
			chainID = id
		}
	}
	return chainID, nil
}
