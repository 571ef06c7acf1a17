package archive

import "context"

// Service bundles the archival operations behind a single surface so
// transports and commands do not wire the coordinator, tracker, and
// publisher individually.
type Service struct {
	Deposits  *DepositCoordinator
	Uploads   *UploadTracker
	Publisher *Publisher
	Records   *RecordStore
}

func (s *Service) CreateDeposit(ctx context.Context, sub Submission, resourceTypes []ResourceType) (*DepositRecord, error) {
	return s.Deposits.CreateDeposit(ctx, sub, resourceTypes)
}

func (s *Service) Upload(ctx context.Context, submissionID int, resource ResourceType, commit, artifactPath string, overwrite bool) (*UploadReceipt, error) {
	return s.Uploads.Upload(ctx, submissionID, resource, commit, artifactPath, overwrite)
}

func (s *Service) PublishAll(ctx context.Context, submissionID int) (*PublishOutcome, error) {
	return s.Publisher.PublishAll(ctx, submissionID)
}

func (s *Service) StatusReport(submissionID int) (string, error) {
	return s.Records.StatusReport(submissionID)
}
