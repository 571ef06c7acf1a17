package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/bookbuilder/internal/metrics"
)

// publishClient is the provider surface the publisher needs.
type publishClient interface {
	Publish(ctx context.Context, publishURL string) (*PublishResult, error)
}

// ResourcePublishResult is the per-resource outcome of a publish run.
type ResourcePublishResult struct {
	ResourceType ResourceType
	DOI          string
	DOIBadge     string
	Err          error
}

// Message renders the per-resource outcome for the notification sink.
func (r ResourcePublishResult) Message() string {
	if r.Err != nil {
		return fmt.Sprintf(":x: %s publish failed: %v", r.ResourceType.RecordName(), r.Err)
	}
	return fmt.Sprintf(":white_check_mark: %s published: [![DOI](%s)](https://doi.org/%s)", r.ResourceType.RecordName(), r.DOIBadge, r.DOI)
}

// PublishOutcome is the aggregate result of PublishAll.
type PublishOutcome struct {
	Results []ResourcePublishResult
	// Published classifies post-run completeness; callers gate the
	// dependent DOI write-back on CompletenessAll.
	Published *StageStatus
}

// IncompleteUploadError gates publishing: every resource must be uploaded
// first. It names how many of the expected resources are uploaded.
type IncompleteUploadError struct {
	Status *StageStatus
}

func (e *IncompleteUploadError) Error() string {
	uploaded := e.Status.Total - len(e.Status.Missing)
	return fmt.Sprintf("cannot publish: %d of %d resources uploaded (%s)", uploaded, e.Status.Total, e.Status.Completeness)
}

// Publisher publishes every bucket belonging to a deposit record.
type Publisher struct {
	client   publishClient
	records  *RecordStore
	pacing   time.Duration
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewPublisher assembles the publisher.
func NewPublisher(client publishClient, records *RecordStore, pacing time.Duration, recorder metrics.Recorder, logger *slog.Logger) *Publisher {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, records: records, pacing: pacing, recorder: recorder, logger: logger}
}

// PublishAll publishes every resource bucket of a submission. Requires that
// every resource is uploaded; otherwise it fails before any publish call.
// Per-resource publish failures do not abort siblings.
func (p *Publisher) PublishAll(ctx context.Context, submissionID int) (*PublishOutcome, error) {
	uploaded, err := p.records.ConfirmStatus(submissionID, StageUploaded)
	if err != nil {
		return nil, err
	}
	if uploaded.Completeness != CompletenessAll {
		return nil, &IncompleteUploadError{Status: uploaded}
	}

	record, err := p.records.LoadDeposit(submissionID)
	if err != nil {
		return nil, err
	}

	outcome := &PublishOutcome{}
	first := true
	for _, resource := range AllResourceTypes {
		bucket, ok := record.Buckets[resource]
		if !ok {
			continue
		}
		if !first {
			if err := pace(ctx, p.pacing); err != nil {
				outcome.Results = append(outcome.Results, ResourcePublishResult{ResourceType: resource, Err: err})
				continue
			}
		}
		first = false

		result, err := p.client.Publish(ctx, bucket.PublishURL)
		p.recorder.IncArchiveOp("publish", err == nil)
		if err != nil {
			p.logger.Error("publish failed", "submission", submissionID, "resource", resource, "error", err)
			outcome.Results = append(outcome.Results, ResourcePublishResult{ResourceType: resource, Err: err})
			continue
		}

		receipt := &PublishReceipt{
			ResourceType: resource,
			DOI:          result.DOI,
			DOIBadge:     result.DOIBadge,
			Timestamp:    time.Now().UTC(),
		}
		if err := p.records.SavePublishReceipt(submissionID, receipt); err != nil {
			outcome.Results = append(outcome.Results, ResourcePublishResult{ResourceType: resource, Err: err})
			continue
		}
		p.logger.Info("resource published", "submission", submissionID, "resource", resource, "doi", result.DOI)
		outcome.Results = append(outcome.Results, ResourcePublishResult{
			ResourceType: resource,
			DOI:          result.DOI,
			DOIBadge:     result.DOIBadge,
		})
	}

	outcome.Published, err = p.records.ConfirmStatus(submissionID, StagePublished)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
