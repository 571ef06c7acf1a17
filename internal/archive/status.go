package archive

import (
	"fmt"
	"sort"
	"strings"
)

// Completeness classifies how much of a deposit has reached a stage.
type Completeness int

const (
	CompletenessNone Completeness = iota
	CompletenessSome
	CompletenessAll
)

func (c Completeness) String() string {
	switch c {
	case CompletenessAll:
		return "all"
	case CompletenessSome:
		return "some"
	}
	return "none"
}

// StageStatus is the result of a completeness check: the classification plus
// the resource types still missing the stage.
type StageStatus struct {
	Completeness Completeness
	Missing      []ResourceType
	Total        int
}

// ConfirmStatus derives stage completeness for a submission purely from the
// persisted deposit record and receipt files. It holds no state of its own.
func (s *RecordStore) ConfirmStatus(submissionID int, stage Stage) (*StageStatus, error) {
	record, err := s.LoadDeposit(submissionID)
	if err != nil {
		return nil, err
	}

	status := &StageStatus{Total: len(record.Buckets)}
	for _, resource := range AllResourceTypes {
		if _, ok := record.Buckets[resource]; !ok {
			continue
		}
		var done bool
		switch stage {
		case StageUploaded:
			done, err = s.HasUploadReceipt(submissionID, resource)
			if err != nil {
				return nil, err
			}
		case StagePublished:
			done = s.HasPublishReceipt(submissionID, resource)
		default:
			return nil, fmt.Errorf("unknown stage %q", stage)
		}
		if !done {
			status.Missing = append(status.Missing, resource)
		}
	}

	switch {
	case len(status.Missing) == 0:
		status.Completeness = CompletenessAll
	case len(status.Missing) == status.Total:
		status.Completeness = CompletenessNone
	default:
		status.Completeness = CompletenessSome
	}
	return status, nil
}

// CollectDOIs returns the published DOI per resource type. Feeds the
// dependent step that writes DOI metadata back onto the submission.
func (s *RecordStore) CollectDOIs(submissionID int) (map[ResourceType]string, error) {
	receipts, err := s.LoadPublishReceipts(submissionID)
	if err != nil {
		return nil, err
	}
	dois := make(map[ResourceType]string, len(receipts))
	for _, receipt := range receipts {
		dois[receipt.ResourceType] = receipt.DOI
	}
	return dois, nil
}

// StatusReport renders a human-readable archival progress summary for a
// submission.
func (s *RecordStore) StatusReport(submissionID int) (string, error) {
	record, err := s.LoadDeposit(submissionID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Archival status for submission %05d\n\n", submissionID)

	resources := make([]ResourceType, 0, len(record.Buckets))
	for _, resource := range AllResourceTypes {
		if _, ok := record.Buckets[resource]; ok {
			resources = append(resources, resource)
		}
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i] < resources[j] })

	for _, resource := range resources {
		uploaded, err := s.HasUploadReceipt(submissionID, resource)
		if err != nil {
			return "", err
		}
		published := s.HasPublishReceipt(submissionID, resource)
		line := fmt.Sprintf("- **%s**: bucket %d", resource.RecordName(), record.Buckets[resource].ID)
		switch {
		case published:
			line += ", uploaded, published"
		case uploaded:
			line += ", uploaded, not published"
		default:
			line += ", awaiting upload"
		}
		if uploaded {
			if size, ok := s.uploadSize(submissionID, resource); ok {
				line += fmt.Sprintf(" (%s)", formatSize(size))
			}
		}
		b.WriteString(line + "\n")
	}
	return b.String(), nil
}

// uploadSize reads the recorded artifact size from the upload receipt.
func (s *RecordStore) uploadSize(submissionID int, resource ResourceType) (int64, bool) {
	matches, err := s.uploadReceiptGlob(submissionID, resource)
	if err != nil || len(matches) == 0 {
		return 0, false
	}
	receipt, err := readUploadReceipt(matches[0])
	if err != nil {
		return 0, false
	}
	return receipt.SizeBytes, true
}

// formatSize renders byte counts in MB below a gigabyte, GB above.
func formatSize(bytes int64) string {
	const (
		mb = 1 << 20
		gb = 1 << 30
	)
	if bytes >= gb {
		return fmt.Sprintf("%.2f GB", float64(bytes)/gb)
	}
	return fmt.Sprintf("%.2f MB", float64(bytes)/mb)
}
