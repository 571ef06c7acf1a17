package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordNames(t *testing.T) {
	assert.Equal(t, "JupyterBook", ResourceBook.RecordName())
	assert.Equal(t, "Dataset", ResourceData.RecordName())
	assert.Equal(t, "GitHubRepo", ResourceRepository.RecordName())
	assert.Equal(t, "DockerImage", ResourceDocker.RecordName())
}

func TestPreprintDOIZeroPadding(t *testing.T) {
	composer := NewMetadataComposer("OpenPreprints", "10.12345")
	assert.Equal(t, "10.12345/openpreprints.00142", composer.PreprintDOI(142))
}

func TestComposeMetadata(t *testing.T) {
	composer := NewMetadataComposer("openpreprints", "10.12345")
	meta := composer.Compose(testSubmission, ResourceData)

	assert.Equal(t, "Dataset: Reproducible analysis of things", meta.Title)
	assert.Equal(t, "dataset", meta.UploadType)
	require.Len(t, meta.RelatedIdentifiers, 1)
	assert.Equal(t, "10.12345/openpreprints.00142", meta.RelatedIdentifiers[0].Identifier)
	assert.Equal(t, "isPartOf", meta.RelatedIdentifiers[0].Relation)
	require.Len(t, meta.Creators, 1)
	assert.Equal(t, "Jane Doe", meta.Creators[0].Name)
}

func TestNormalizeAuthorsRepairsOrchidField(t *testing.T) {
	creators := normalizeAuthors([]Author{
		{Name: "  Jane Doe ", Orchid: "0000-0001-2345-6789"},
		{Name: "John Roe", ORCID: "0000-0002-9999-0000", Orchid: "ignored"},
		{Name: "   "},
	})
	require.Len(t, creators, 2, "blank names are dropped")
	assert.Equal(t, "Jane Doe", creators[0].Name)
	assert.Equal(t, "0000-0001-2345-6789", creators[0].ORCID, "orchid misspelling folds into orcid")
	assert.Equal(t, "0000-0002-9999-0000", creators[1].ORCID, "a real orcid value wins")
}

func TestParseResourceTypes(t *testing.T) {
	types, err := ParseResourceTypes([]string{"Book", " data ", "book"})
	require.NoError(t, err)
	assert.Equal(t, []ResourceType{ResourceBook, ResourceData}, types, "duplicates collapse, order preserved")

	_, err = ParseResourceTypes([]string{"book", "tarball"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tarball")
}
