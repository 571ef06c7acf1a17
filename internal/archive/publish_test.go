package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAllRequiresFullUpload(t *testing.T) {
	records, err := NewRecordStore(t.TempDir(), "openpreprints")
	require.NoError(t, err)
	seedDeposit(t, records, 142, ResourceBook, ResourceData)
	require.NoError(t, records.SaveUploadReceipt(142, uploadedReceipt(ResourceBook), false))

	provider := newFakeProvider()
	publisher := NewPublisher(provider, records, 0, nil, nil)

	_, err = publisher.PublishAll(context.Background(), 142)
	var incomplete *IncompleteUploadError
	require.ErrorAs(t, err, &incomplete)
	assert.Contains(t, incomplete.Error(), "1 of 2")
	assert.Empty(t, provider.published, "no publish calls may be issued when uploads are incomplete")
}

func TestPublishAllPublishesEveryBucket(t *testing.T) {
	records, err := NewRecordStore(t.TempDir(), "openpreprints")
	require.NoError(t, err)
	seedDeposit(t, records, 142, ResourceBook, ResourceData)
	require.NoError(t, records.SaveUploadReceipt(142, uploadedReceipt(ResourceBook), false))
	require.NoError(t, records.SaveUploadReceipt(142, uploadedReceipt(ResourceData), false))

	provider := newFakeProvider()
	publisher := NewPublisher(provider, records, 0, nil, nil)

	outcome, err := publisher.PublishAll(context.Background(), 142)
	require.NoError(t, err)
	assert.Len(t, provider.published, 2)
	assert.Equal(t, CompletenessAll, outcome.Published.Completeness)

	require.Len(t, outcome.Results, 2)
	for _, result := range outcome.Results {
		assert.NoError(t, result.Err)
		assert.NotEmpty(t, result.DOI)
		assert.Contains(t, result.Message(), "published")
	}

	dois, err := records.CollectDOIs(142)
	require.NoError(t, err)
	assert.Len(t, dois, 2)
}

func TestPublishAllNoRecord(t *testing.T) {
	records, err := NewRecordStore(t.TempDir(), "openpreprints")
	require.NoError(t, err)
	publisher := NewPublisher(newFakeProvider(), records, 0, nil, nil)

	_, err = publisher.PublishAll(context.Background(), 999)
	require.ErrorIs(t, err, ErrNoRecordFound)
}
