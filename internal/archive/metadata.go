package archive

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ResourceType is one archival artifact category. Each gets its own deposit
// bucket.
type ResourceType string

const (
	ResourceBook       ResourceType = "book"
	ResourceData       ResourceType = "data"
	ResourceRepository ResourceType = "repository"
	ResourceDocker     ResourceType = "docker"
)

// AllResourceTypes lists every supported category in canonical order.
var AllResourceTypes = []ResourceType{ResourceBook, ResourceData, ResourceRepository, ResourceDocker}

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceBook, ResourceData, ResourceRepository, ResourceDocker:
		return true
	}
	return false
}

// RecordName returns the archive-facing record label for a resource type.
func (t ResourceType) RecordName() string {
	switch t {
	case ResourceBook:
		return "JupyterBook"
	case ResourceData:
		return "Dataset"
	case ResourceRepository:
		return "GitHubRepo"
	case ResourceDocker:
		return "DockerImage"
	}
	return string(t)
}

// uploadType returns the provider's upload_type classification.
func (t ResourceType) uploadType() string {
	switch t {
	case ResourceData:
		return "dataset"
	case ResourceBook:
		return "publication"
	default:
		return "software"
	}
}

// Creator is one author entry in deposition metadata.
type Creator struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

// Author is submission author input as collected upstream. Field names vary
// in the wild; Normalize repairs the known misspellings.
type Author struct {
	Name        string
	Affiliation string
	ORCID       string
	// Orchid holds values submitted under the common misspelling of the
	// ORCID field. Normalize folds it into ORCID.
	Orchid string
}

// DepositionMetadata is the metadata block sent with a bucket creation.
type DepositionMetadata struct {
	Title              string              `json:"title"`
	UploadType         string              `json:"upload_type"`
	Description        string              `json:"description"`
	Creators           []Creator           `json:"creators"`
	Keywords           []string            `json:"keywords,omitempty"`
	RelatedIdentifiers []RelatedIdentifier `json:"related_identifiers,omitempty"`
	Communities        []Community         `json:"communities,omitempty"`
}

// RelatedIdentifier links a deposit to the submission's preprint DOI.
type RelatedIdentifier struct {
	Identifier string `json:"identifier"`
	Relation   string `json:"relation"`
}

// Community is an archive-provider community tag.
type Community struct {
	Identifier string `json:"identifier"`
}

// Submission carries the metadata inputs for one archival attempt.
type Submission struct {
	ID       int // issue/tracking identifier
	Title    string
	Authors  []Author
	Keywords []string
	RepoURL  string
	Commit   string
}

// MetadataComposer builds per-resource deposition metadata for a journal.
type MetadataComposer struct {
	journal   string // short journal name used in identifiers
	doiPrefix string
}

// NewMetadataComposer creates a composer for the journal's DOI namespace.
func NewMetadataComposer(journal, doiPrefix string) *MetadataComposer {
	return &MetadataComposer{journal: strings.ToLower(journal), doiPrefix: doiPrefix}
}

// PreprintDOI returns the submission's preprint DOI, zero-padded to five
// digits.
func (m *MetadataComposer) PreprintDOI(submissionID int) string {
	return fmt.Sprintf("%s/%s.%05d", m.doiPrefix, m.journal, submissionID)
}

// Compose builds the deposition metadata for one resource type.
func (m *MetadataComposer) Compose(sub Submission, resource ResourceType) DepositionMetadata {
	title := norm.NFC.String(strings.TrimSpace(sub.Title))
	return DepositionMetadata{
		Title:       fmt.Sprintf("%s: %s", resource.RecordName(), title),
		UploadType:  resource.uploadType(),
		Description: m.describe(sub, resource),
		Creators:    normalizeAuthors(sub.Authors),
		Keywords:    sub.Keywords,
		RelatedIdentifiers: []RelatedIdentifier{{
			Identifier: m.PreprintDOI(sub.ID),
			Relation:   "isPartOf",
		}},
	}
}

// describe returns the per-resource description block.
func (m *MetadataComposer) describe(sub Submission, resource ResourceType) string {
	switch resource {
	case ResourceBook:
		return fmt.Sprintf("Reproducible preprint built from %s at revision %s.", sub.RepoURL, sub.Commit)
	case ResourceData:
		return fmt.Sprintf("Dataset supporting the reproducible preprint built from %s.", sub.RepoURL)
	case ResourceRepository:
		return fmt.Sprintf("Snapshot of the source repository %s at revision %s.", sub.RepoURL, sub.Commit)
	case ResourceDocker:
		return fmt.Sprintf("Container image reproducing the runtime environment of %s.", sub.RepoURL)
	}
	return ""
}

// normalizeAuthors converts raw author entries to creators: NFC-normalized
// names, the orchid misspelling folded into orcid, blanks dropped.
func normalizeAuthors(authors []Author) []Creator {
	creators := make([]Creator, 0, len(authors))
	for _, a := range authors {
		name := norm.NFC.String(strings.TrimSpace(a.Name))
		if name == "" {
			continue
		}
		orcid := strings.TrimSpace(a.ORCID)
		if orcid == "" {
			orcid = strings.TrimSpace(a.Orchid)
		}
		creators = append(creators, Creator{
			Name:        name,
			Affiliation: norm.NFC.String(strings.TrimSpace(a.Affiliation)),
			ORCID:       orcid,
		})
	}
	return creators
}

// ParseResourceTypes validates a caller-supplied list of resource type
// names.
func ParseResourceTypes(names []string) ([]ResourceType, error) {
	seen := make(map[ResourceType]bool, len(names))
	var out []ResourceType
	for _, name := range names {
		t := ResourceType(strings.ToLower(strings.TrimSpace(name)))
		if !t.Valid() {
			return nil, fmt.Errorf("unknown resource type %q", name)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}
