package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/bookbuilder/internal/metrics"
)

// ErrAlreadyUploaded is returned when a receipt already exists for the
// resource and the caller did not ask for an overwrite.
var ErrAlreadyUploaded = errors.New("resource already uploaded for submission")

// uploadClient is the provider surface the tracker needs.
type uploadClient interface {
	UploadFile(ctx context.Context, bucketURL, filename string, body io.Reader, size int64) error
}

// UploadTracker streams prepared artifacts into their deposit buckets and
// records a receipt per success.
type UploadTracker struct {
	client   uploadClient
	records  *RecordStore
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewUploadTracker assembles the tracker.
func NewUploadTracker(client uploadClient, records *RecordStore, recorder metrics.Recorder, logger *slog.Logger) *UploadTracker {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadTracker{client: client, records: records, recorder: recorder, logger: logger}
}

// Upload sends the artifact at artifactPath into the resource's bucket.
// Re-uploading is an explicit choice: with overwrite false an existing
// receipt fails with ErrAlreadyUploaded; with overwrite true the prior
// receipt is replaced.
func (t *UploadTracker) Upload(ctx context.Context, submissionID int, resource ResourceType, commit, artifactPath string, overwrite bool) (*UploadReceipt, error) {
	record, err := t.records.LoadDeposit(submissionID)
	if err != nil {
		return nil, err
	}
	bucket, ok := record.Buckets[resource]
	if !ok {
		return nil, fmt.Errorf("deposit record %d has no bucket for resource %q", submissionID, resource)
	}

	if !overwrite {
		exists, err := t.records.HasUploadReceipt(submissionID, resource)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyUploaded, resource)
		}
	}

	f, err := os.Open(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", artifactPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat artifact %s: %w", artifactPath, err)
	}

	filename := filepath.Base(artifactPath)
	err = t.client.UploadFile(ctx, bucket.BucketURL, filename, f, info.Size())
	t.recorder.IncArchiveOp("upload", err == nil)
	if err != nil {
		return nil, fmt.Errorf("upload %s for submission %d: %w", resource, submissionID, err)
	}
	t.recorder.ObserveUploadBytes(string(resource), info.Size())

	receipt := &UploadReceipt{
		ResourceType: resource,
		Commit:       commit,
		Filename:     filename,
		SizeBytes:    info.Size(),
		Timestamp:    time.Now().UTC(),
	}
	if err := t.records.SaveUploadReceipt(submissionID, receipt, overwrite); err != nil {
		return nil, fmt.Errorf("persist upload receipt: %w", err)
	}
	t.logger.Info("resource uploaded",
		"submission", submissionID,
		"resource", resource,
		"size_bytes", info.Size())
	return receipt, nil
}
