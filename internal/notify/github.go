package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// commenter is the forge surface the issue sink needs.
type commenter interface {
	CreateIssueComment(ctx context.Context, repo string, issue int, body string) (int64, error)
	UpdateIssueComment(ctx context.Context, repo string, commentID int64, body string) error
}

// IssueSink posts status updates as comments on the review issue.
type IssueSink struct {
	forge      commenter
	reviewRepo string // the repo hosting review issues, e.g. "openpreprints/reviews"
	location   *time.Location
	now        func() time.Time
}

// NewIssueSink assembles the sink. location controls timestamp rendering;
// nil falls back to UTC.
func NewIssueSink(forge commenter, reviewRepo string, location *time.Location) *IssueSink {
	if location == nil {
		location = time.UTC
	}
	return &IssueSink{forge: forge, reviewRepo: reviewRepo, location: location, now: time.Now}
}

// Notify renders the update and posts it. With a CommentID set, the existing
// comment is edited in place and its identifier returned unchanged.
func (s *IssueSink) Notify(ctx context.Context, update Update) (int64, error) {
	if update.IssueID == 0 {
		return 0, nil
	}
	body := s.render(update)
	if update.CommentID != 0 {
		if err := s.forge.UpdateIssueComment(ctx, s.reviewRepo, update.CommentID, body); err != nil {
			return 0, fmt.Errorf("update issue comment: %w", err)
		}
		return update.CommentID, nil
	}
	id, err := s.forge.CreateIssueComment(ctx, s.reviewRepo, update.IssueID, body)
	if err != nil {
		return 0, fmt.Errorf("create issue comment: %w", err)
	}
	return id, nil
}

// render composes the templated comment body for an update kind.
func (s *IssueSink) render(update Update) string {
	stamp := s.now().In(s.location).Format("2006-01-02 15:04:05 MST")

	var b strings.Builder
	switch update.Kind {
	case KindPending:
		fmt.Fprintf(&b, "&#9203; **%s** queued.\n", update.Title)
	case KindStarted:
		fmt.Fprintf(&b, "&#128640; **%s** started.\n", update.Title)
	case KindReceived:
		fmt.Fprintf(&b, "&#128229; **%s** request received.\n", update.Title)
	case KindSuccess:
		fmt.Fprintf(&b, "&#127881; **%s** completed successfully.\n", update.Title)
	case KindFailure:
		fmt.Fprintf(&b, "&#10060; **%s** failed.\n", update.Title)
	case KindExists:
		fmt.Fprintf(&b, "&#9989; **%s**: result already exists, nothing to do.\n", update.Title)
	default:
		fmt.Fprintf(&b, "**%s**\n", update.Title)
	}

	if update.Repo != "" {
		fmt.Fprintf(&b, "\nRepository: `%s`", update.Repo)
		if update.Commit != "" {
			fmt.Fprintf(&b, " at `%s`", update.Commit)
		}
		b.WriteString("\n")
	}
	if update.Message != "" {
		b.WriteString("\n" + update.Message + "\n")
	}
	fmt.Fprintf(&b, "\n<sub>%s</sub>\n", stamp)
	return b.String()
}
