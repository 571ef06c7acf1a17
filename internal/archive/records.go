package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Stage labels the two receipt-bearing steps of the archival pipeline.
type Stage string

const (
	StageUploaded  Stage = "uploaded"
	StagePublished Stage = "published"
)

// ErrNoRecordFound is returned when no deposit record exists for a
// submission.
var ErrNoRecordFound = errors.New("no deposit record found for submission")

// DepositRecord maps each requested resource type to its created bucket.
// Persisted exactly once per submission; immutable afterwards.
type DepositRecord struct {
	SubmissionID int                     `json:"submission_id"`
	Buckets      map[ResourceType]Bucket `json:"buckets"`
	CreatedAt    time.Time               `json:"created_at"`
}

// UploadReceipt evidences one completed resource upload.
type UploadReceipt struct {
	ResourceType ResourceType `json:"resource_type"`
	Commit       string       `json:"commit"`
	Filename     string       `json:"filename"`
	SizeBytes    int64        `json:"size_bytes"`
	Timestamp    time.Time    `json:"timestamp"`
}

// PublishReceipt evidences one completed resource publish.
type PublishReceipt struct {
	ResourceType ResourceType `json:"resource_type"`
	DOI          string       `json:"doi"`
	DOIBadge     string       `json:"doi_badge"`
	Timestamp    time.Time    `json:"timestamp"`
}

// RecordStore persists deposit records and receipts as JSON files, named so
// completeness queries reduce to filename matching.
type RecordStore struct {
	dir     string
	journal string
}

// NewRecordStore creates the record directory under dataDir.
func NewRecordStore(dataDir, journal string) (*RecordStore, error) {
	dir := filepath.Join(dataDir, "zenodo_records")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create record directory %s: %w", dir, err)
	}
	return &RecordStore{dir: dir, journal: journal}, nil
}

// submissionDir returns the per-submission directory, creating it if needed.
func (s *RecordStore) submissionDir(submissionID int) (string, error) {
	dir := filepath.Join(s.dir, fmt.Sprintf("%05d", submissionID))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create submission directory: %w", err)
	}
	return dir, nil
}

func (s *RecordStore) depositPath(submissionID int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%05d", submissionID),
		fmt.Sprintf("zenodo_deposit_%s_%05d.json", s.journal, submissionID))
}

func (s *RecordStore) uploadReceiptPath(submissionID int, resource ResourceType, commit string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%05d", submissionID),
		fmt.Sprintf("zenodo_uploaded_%s_%s_%05d_%s.json", resource, s.journal, submissionID, commitPrefix(commit)))
}

func (s *RecordStore) publishReceiptPath(submissionID int, resource ResourceType) string {
	return filepath.Join(s.dir, fmt.Sprintf("%05d", submissionID),
		fmt.Sprintf("zenodo_published_%s_%s_%05d.json", resource, s.journal, submissionID))
}

// commitPrefix shortens a commit hash to the six-character receipt suffix.
func commitPrefix(commit string) string {
	if len(commit) > 6 {
		return commit[:6]
	}
	return commit
}

// DepositExists reports whether a deposit record is already persisted.
func (s *RecordStore) DepositExists(submissionID int) bool {
	_, err := os.Stat(s.depositPath(submissionID))
	return err == nil
}

// SaveDeposit persists a deposit record exactly once. The exclusive create
// is what makes repeat attempts observable as ErrDepositExists upstream.
func (s *RecordStore) SaveDeposit(record *DepositRecord) error {
	if _, err := s.submissionDir(record.SubmissionID); err != nil {
		return err
	}
	return writeJSONOnce(s.depositPath(record.SubmissionID), record)
}

// LoadDeposit reads the deposit record for a submission.
func (s *RecordStore) LoadDeposit(submissionID int) (*DepositRecord, error) {
	data, err := os.ReadFile(s.depositPath(submissionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %d", ErrNoRecordFound, submissionID)
		}
		return nil, err
	}
	var record DepositRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode deposit record %d: %w", submissionID, err)
	}
	return &record, nil
}

// RemoveDeposit deletes the deposit record, freeing the submission for a
// fresh attempt after a full teardown. Absent record is a no-op.
func (s *RecordStore) RemoveDeposit(submissionID int) error {
	if err := os.Remove(s.depositPath(submissionID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// HasUploadReceipt reports whether any upload receipt exists for the
// resource, regardless of commit.
func (s *RecordStore) HasUploadReceipt(submissionID int, resource ResourceType) (bool, error) {
	matches, err := s.uploadReceiptGlob(submissionID, resource)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

func (s *RecordStore) uploadReceiptGlob(submissionID int, resource ResourceType) ([]string, error) {
	pattern := filepath.Join(s.dir, fmt.Sprintf("%05d", submissionID),
		fmt.Sprintf("zenodo_uploaded_%s_%s_%05d_*.json", resource, s.journal, submissionID))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob upload receipts: %w", err)
	}
	return matches, nil
}

// SaveUploadReceipt persists one upload receipt. With overwrite false a
// pre-existing receipt for the same resource and commit fails the exclusive
// create; with overwrite true prior receipts for the resource are replaced.
func (s *RecordStore) SaveUploadReceipt(submissionID int, receipt *UploadReceipt, overwrite bool) error {
	if _, err := s.submissionDir(submissionID); err != nil {
		return err
	}
	path := s.uploadReceiptPath(submissionID, receipt.ResourceType, receipt.Commit)
	if overwrite {
		matches, err := s.uploadReceiptGlob(submissionID, receipt.ResourceType)
		if err != nil {
			return err
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		return writeJSON(path, receipt)
	}
	return writeJSONOnce(path, receipt)
}

// HasPublishReceipt reports whether the resource has been published.
func (s *RecordStore) HasPublishReceipt(submissionID int, resource ResourceType) bool {
	_, err := os.Stat(s.publishReceiptPath(submissionID, resource))
	return err == nil
}

// SavePublishReceipt persists one publish receipt.
func (s *RecordStore) SavePublishReceipt(submissionID int, receipt *PublishReceipt) error {
	if _, err := s.submissionDir(submissionID); err != nil {
		return err
	}
	return writeJSON(s.publishReceiptPath(submissionID, receipt.ResourceType), receipt)
}

// LoadPublishReceipts returns every publish receipt for a submission, in
// canonical resource order.
func (s *RecordStore) LoadPublishReceipts(submissionID int) ([]PublishReceipt, error) {
	var receipts []PublishReceipt
	for _, resource := range AllResourceTypes {
		data, err := os.ReadFile(s.publishReceiptPath(submissionID, resource))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		var receipt PublishReceipt
		if err := json.Unmarshal(data, &receipt); err != nil {
			return nil, fmt.Errorf("decode publish receipt for %s: %w", resource, err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

func readUploadReceipt(path string) (*UploadReceipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var receipt UploadReceipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("decode upload receipt %s: %w", path, err)
	}
	return &receipt, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// writeJSONOnce creates the file exclusively so a second writer fails
// instead of silently replacing the first record.
func writeJSONOnce(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
