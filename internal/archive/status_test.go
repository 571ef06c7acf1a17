package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadedReceipt(resource ResourceType) *UploadReceipt {
	return &UploadReceipt{
		ResourceType: resource,
		Commit:       "abc123def",
		Filename:     "artifact.tar.gz",
		SizeBytes:    42 << 20,
		Timestamp:    time.Now().UTC(),
	}
}

func TestConfirmStatusClassification(t *testing.T) {
	tests := []struct {
		name     string
		uploaded []ResourceType
		want     Completeness
		missing  int
	}{
		{"none uploaded", nil, CompletenessNone, 3},
		{"some uploaded", []ResourceType{ResourceBook}, CompletenessSome, 2},
		{"all uploaded", []ResourceType{ResourceBook, ResourceData, ResourceDocker}, CompletenessAll, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := NewRecordStore(t.TempDir(), "openpreprints")
			require.NoError(t, err)
			seedDeposit(t, records, 142, ResourceBook, ResourceData, ResourceDocker)
			for _, resource := range tt.uploaded {
				require.NoError(t, records.SaveUploadReceipt(142, uploadedReceipt(resource), false))
			}

			status, err := records.ConfirmStatus(142, StageUploaded)
			require.NoError(t, err)
			assert.Equal(t, tt.want, status.Completeness)
			assert.Len(t, status.Missing, tt.missing)
			assert.Equal(t, 3, status.Total)
		})
	}
}

func TestConfirmStatusNoRecord(t *testing.T) {
	records, err := NewRecordStore(t.TempDir(), "openpreprints")
	require.NoError(t, err)
	_, err = records.ConfirmStatus(999, StageUploaded)
	require.ErrorIs(t, err, ErrNoRecordFound)
}

func TestCollectDOIs(t *testing.T) {
	records, err := NewRecordStore(t.TempDir(), "openpreprints")
	require.NoError(t, err)
	seedDeposit(t, records, 142, ResourceBook, ResourceData)
	require.NoError(t, records.SavePublishReceipt(142, &PublishReceipt{
		ResourceType: ResourceBook,
		DOI:          "10.5281/zenodo.1111",
	}))
	require.NoError(t, records.SavePublishReceipt(142, &PublishReceipt{
		ResourceType: ResourceData,
		DOI:          "10.5281/zenodo.2222",
	}))

	dois, err := records.CollectDOIs(142)
	require.NoError(t, err)
	assert.Equal(t, map[ResourceType]string{
		ResourceBook: "10.5281/zenodo.1111",
		ResourceData: "10.5281/zenodo.2222",
	}, dois)
}

func TestStatusReport(t *testing.T) {
	records, err := NewRecordStore(t.TempDir(), "openpreprints")
	require.NoError(t, err)
	seedDeposit(t, records, 142, ResourceBook, ResourceData)
	require.NoError(t, records.SaveUploadReceipt(142, uploadedReceipt(ResourceBook), false))
	require.NoError(t, records.SavePublishReceipt(142, &PublishReceipt{ResourceType: ResourceBook, DOI: "10.5281/zenodo.1111"}))

	report, err := records.StatusReport(142)
	require.NoError(t, err)
	assert.Contains(t, report, "JupyterBook")
	assert.Contains(t, report, "uploaded, published")
	assert.Contains(t, report, "42.00 MB")
	assert.Contains(t, report, "Dataset")
	assert.Contains(t, report, "awaiting upload")
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512.00 MB", formatSize(512<<20))
	assert.Equal(t, "2.00 GB", formatSize(2<<30))
}
