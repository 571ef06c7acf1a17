package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/bookbuilder/internal/metrics"
)

// ErrDepositExists is returned when a deposit record is already persisted
// for the submission. No bucket calls are made in that case.
var ErrDepositExists = errors.New("deposit record already exists for submission")

// ErrNoResourceTypes is returned for a creation request naming no resource
// types.
var ErrNoResourceTypes = errors.New("no resource types requested")

// RollbackError reports a partially failed deposit creation after the
// succeeded buckets were torn down. The net provider-side effect is zero
// buckets.
type RollbackError struct {
	// CreateErrors holds the per-resource creation failures that triggered
	// the rollback.
	CreateErrors map[ResourceType]error
	// RollbackErrors holds deletion failures during teardown. Empty means
	// every succeeded bucket was removed cleanly.
	RollbackErrors map[ResourceType]error
}

func (e *RollbackError) Error() string {
	var failed []string
	for resource := range e.CreateErrors {
		failed = append(failed, string(resource))
	}
	sort.Strings(failed)
	msg := fmt.Sprintf("deposit creation failed for %s; succeeded buckets rolled back", strings.Join(failed, ", "))
	if len(e.RollbackErrors) > 0 {
		var leaked []string
		for resource := range e.RollbackErrors {
			leaked = append(leaked, string(resource))
		}
		sort.Strings(leaked)
		msg += fmt.Sprintf(" (rollback itself failed for %s)", strings.Join(leaked, ", "))
	}
	return msg
}

// depositClient is the provider surface the coordinator needs.
type depositClient interface {
	CreateDeposition(ctx context.Context, meta DepositionMetadata) (*Bucket, error)
	DeleteDeposition(ctx context.Context, selfURL string) error
}

// DepositCoordinator creates one bucket per requested resource type with
// all-or-nothing semantics.
type DepositCoordinator struct {
	client       depositClient
	records      *RecordStore
	composer     *MetadataComposer
	pacing       time.Duration
	rollbackPace time.Duration
	recorder     metrics.Recorder
	logger       *slog.Logger
}

// NewDepositCoordinator assembles the coordinator. pacing delays sit between
// consecutive provider calls to respect its throttling.
func NewDepositCoordinator(client depositClient, records *RecordStore, composer *MetadataComposer, pacing, rollbackPace time.Duration, recorder metrics.Recorder, logger *slog.Logger) *DepositCoordinator {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DepositCoordinator{
		client:       client,
		records:      records,
		composer:     composer,
		pacing:       pacing,
		rollbackPace: rollbackPace,
		recorder:     recorder,
		logger:       logger,
	}
}

// CreateDeposit creates one bucket per resource type and persists the
// resulting record. Every requested creation is attempted before the
// succeeded/failed partition is examined; any failure tears the succeeded
// buckets back down so the operation is all-or-nothing.
func (c *DepositCoordinator) CreateDeposit(ctx context.Context, sub Submission, resourceTypes []ResourceType) (*DepositRecord, error) {
	if len(resourceTypes) == 0 {
		return nil, ErrNoResourceTypes
	}
	if c.records.DepositExists(sub.ID) {
		return nil, fmt.Errorf("%w: %d", ErrDepositExists, sub.ID)
	}

	buckets := make(map[ResourceType]Bucket, len(resourceTypes))
	createErrors := make(map[ResourceType]error)

	for i, resource := range resourceTypes {
		if i > 0 {
			if err := pace(ctx, c.pacing); err != nil {
				createErrors[resource] = err
				continue
			}
		}
		bucket, err := c.client.CreateDeposition(ctx, c.composer.Compose(sub, resource))
		c.recorder.IncArchiveOp("create", err == nil)
		if err != nil {
			c.logger.Error("bucket creation failed", "submission", sub.ID, "resource", resource, "error", err)
			createErrors[resource] = err
			continue
		}
		c.logger.Info("bucket created", "submission", sub.ID, "resource", resource, "bucket_id", bucket.ID)
		buckets[resource] = *bucket
	}

	if len(createErrors) > 0 {
		rollbackErrors := c.rollback(ctx, sub.ID, buckets)
		return nil, &RollbackError{CreateErrors: createErrors, RollbackErrors: rollbackErrors}
	}

	record := &DepositRecord{
		SubmissionID: sub.ID,
		Buckets:      buckets,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.records.SaveDeposit(record); err != nil {
		// A concurrent attempt won the record; tear our buckets down.
		rollbackErrors := c.rollback(ctx, sub.ID, buckets)
		if len(rollbackErrors) > 0 {
			return nil, fmt.Errorf("persist deposit record: %w (rollback incomplete)", err)
		}
		return nil, fmt.Errorf("persist deposit record: %w", err)
	}
	return record, nil
}

// rollback deletes every created bucket, paced, and collects deletion
// failures instead of aborting on the first.
func (c *DepositCoordinator) rollback(ctx context.Context, submissionID int, buckets map[ResourceType]Bucket) map[ResourceType]error {
	rollbackErrors := make(map[ResourceType]error)
	first := true
	for _, resource := range AllResourceTypes {
		bucket, ok := buckets[resource]
		if !ok {
			continue
		}
		if !first {
			// Teardown must run to completion, so pacing here ignores
			// cancellation and falls back to a plain sleep.
			if err := pace(ctx, c.rollbackPace); err != nil {
				time.Sleep(c.rollbackPace)
			}
		}
		first = false
		err := c.client.DeleteDeposition(context.WithoutCancel(ctx), bucket.SelfURL)
		c.recorder.IncArchiveOp("delete", err == nil)
		if err != nil {
			c.logger.Error("bucket rollback failed", "submission", submissionID, "resource", resource, "error", err)
			rollbackErrors[resource] = err
			continue
		}
		c.logger.Info("bucket rolled back", "submission", submissionID, "resource", resource, "bucket_id", bucket.ID)
	}
	return rollbackErrors
}
