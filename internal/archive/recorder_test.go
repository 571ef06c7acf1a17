package archive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookbuilder/internal/metrics"
)

// countingRecorder tallies archive operations per op/success pair.
type countingRecorder struct {
	mu    sync.Mutex
	ops   map[string]int
	bytes map[string]int64
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ops: make(map[string]int), bytes: make(map[string]int64)}
}

func (r *countingRecorder) IncArchiveOp(op string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := op + "/failed"
	if success {
		key = op + "/ok"
	}
	r.ops[key]++
}

func (r *countingRecorder) ObserveUploadBytes(resource string, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes[resource] += bytes
}

func (r *countingRecorder) IncBuildOutcome(metrics.BuildOutcomeLabel) {}
func (r *countingRecorder) ObserveBuildDuration(time.Duration)       {}
func (r *countingRecorder) IncStreamEvent(string)                    {}
func (r *countingRecorder) IncLockContention()                       {}

func TestCreateDepositRecordsOperations(t *testing.T) {
	records, err := NewRecordStore(t.TempDir(), "openpreprints")
	require.NoError(t, err)
	composer := NewMetadataComposer("openpreprints", "10.12345")
	recorder := newCountingRecorder()
	provider := newFakeProvider()
	coord := NewDepositCoordinator(provider, records, composer, 0, 0, recorder, nil)

	_, err = coord.CreateDeposit(context.Background(), testSubmission, []ResourceType{ResourceBook, ResourceData})
	require.NoError(t, err)
	assert.Equal(t, 2, recorder.ops["create/ok"])
	assert.Zero(t, recorder.ops["create/failed"])
	assert.Zero(t, recorder.ops["delete/ok"])
}

func TestRollbackRecordsDeleteOperations(t *testing.T) {
	records, err := NewRecordStore(t.TempDir(), "openpreprints")
	require.NoError(t, err)
	composer := NewMetadataComposer("openpreprints", "10.12345")
	recorder := newCountingRecorder()
	provider := newFakeProvider()
	provider.failCreate["Dataset"] = true
	coord := NewDepositCoordinator(provider, records, composer, 0, 0, recorder, nil)

	_, err = coord.CreateDeposit(context.Background(), testSubmission, []ResourceType{ResourceBook, ResourceData})
	require.Error(t, err)
	assert.Equal(t, 1, recorder.ops["create/ok"])
	assert.Equal(t, 1, recorder.ops["create/failed"])
	assert.Equal(t, 1, recorder.ops["delete/ok"], "rollback deletions are counted")
}

func TestUploadRecordsOperationAndBytes(t *testing.T) {
	records, err := NewRecordStore(t.TempDir(), "openpreprints")
	require.NoError(t, err)
	seedDeposit(t, records, 142, ResourceBook)
	recorder := newCountingRecorder()
	tracker := NewUploadTracker(newFakeUploader(), records, recorder, nil)

	artifact := writeArtifact(t, "abc123.tar.gz", "book bytes")
	_, err = tracker.Upload(context.Background(), 142, ResourceBook, "abc123def", artifact, false)
	require.NoError(t, err)
	assert.Equal(t, 1, recorder.ops["upload/ok"])
	assert.Equal(t, int64(len("book bytes")), recorder.bytes["book"])
}

func TestPublishRecordsOperations(t *testing.T) {
	records, err := NewRecordStore(t.TempDir(), "openpreprints")
	require.NoError(t, err)
	seedDeposit(t, records, 142, ResourceBook, ResourceData)
	require.NoError(t, records.SaveUploadReceipt(142, uploadedReceipt(ResourceBook), false))
	require.NoError(t, records.SaveUploadReceipt(142, uploadedReceipt(ResourceData), false))
	recorder := newCountingRecorder()
	publisher := NewPublisher(newFakeProvider(), records, 0, recorder, nil)

	_, err = publisher.PublishAll(context.Background(), 142)
	require.NoError(t, err)
	assert.Equal(t, 2, recorder.ops["publish/ok"])
}
