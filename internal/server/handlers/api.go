// Package handlers implements the HTTP API surface: build submission, book
// lookups, and the archive operations. Handlers validate and hand off;
// coordination logic stays in the pipeline and archive packages.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/bookbuilder/internal/archive"
	"git.home.luguber.info/inful/bookbuilder/internal/binder"
	"git.home.luguber.info/inful/bookbuilder/internal/book"
	derrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
	"git.home.luguber.info/inful/bookbuilder/internal/eventstore"
	"git.home.luguber.info/inful/bookbuilder/internal/forge"
	"git.home.luguber.info/inful/bookbuilder/internal/worker"
)

// BuildService is the build-path surface the handlers call.
type BuildService interface {
	SubmitBuild(repoURL, commit string, issueID int) (string, error)
	Unlock(repoURL string) error
}

// BookService answers book inventory queries.
type BookService interface {
	List() ([]book.Book, error)
	FindByCommit(commit string) ([]book.Book, error)
	FindByOwner(owner string) ([]book.Book, error)
	FindByRepo(repo string) ([]book.Book, error)
}

// TranscriptService reads the recorded pipeline events.
type TranscriptService interface {
	GetByJobID(ctx context.Context, jobID string) ([]eventstore.Event, error)
	GetRange(ctx context.Context, start, end time.Time) ([]eventstore.Event, error)
}

// ArchiveService is the archival surface the handlers call.
type ArchiveService interface {
	CreateDeposit(ctx context.Context, sub archive.Submission, resourceTypes []archive.ResourceType) (*archive.DepositRecord, error)
	Upload(ctx context.Context, submissionID int, resource archive.ResourceType, commit, artifactPath string, overwrite bool) (*archive.UploadReceipt, error)
	PublishAll(ctx context.Context, submissionID int) (*archive.PublishOutcome, error)
	StatusReport(submissionID int) (string, error)
}

// APIHandlers carries the handler dependencies.
type APIHandlers struct {
	builds      BuildService
	books       BookService
	archive     ArchiveService
	transcripts TranscriptService
	adapter     *derrors.HTTPErrorAdapter
	logger      *slog.Logger
	started     time.Time
}

// New assembles the handler set. transcripts may be nil; the transcript
// endpoint is not mounted then.
func New(builds BuildService, books BookService, archiveSvc ArchiveService, transcripts TranscriptService, logger *slog.Logger) *APIHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandlers{
		builds:      builds,
		books:       books,
		archive:     archiveSvc,
		transcripts: transcripts,
		adapter:     derrors.NewHTTPErrorAdapter(logger),
		logger:      logger,
		started:     time.Now(),
	}
}

// Register mounts every API route on mux.
func (h *APIHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/book/build", h.handleBuild)
	mux.HandleFunc("POST /api/book/unlock", h.handleUnlock)
	mux.HandleFunc("GET /api/books", h.handleBooks)
	mux.HandleFunc("GET /api/book", h.handleBookLookup)
	mux.HandleFunc("GET /api/heartbeat", h.handleHeartbeat)
	mux.HandleFunc("POST /api/archive/deposit", h.handleDeposit)
	mux.HandleFunc("POST /api/archive/upload", h.handleUpload)
	mux.HandleFunc("POST /api/archive/publish", h.handlePublish)
	mux.HandleFunc("GET /api/archive/status", h.handleArchiveStatus)
	if h.transcripts != nil {
		mux.HandleFunc("GET /api/book/transcript", h.handleTranscript)
	}
}

func (h *APIHandlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encode failed", "error", err)
	}
}

// classify maps domain failures onto category errors for the adapter.
func classify(err error) error {
	var rl *binder.RateLimitedError
	switch {
	case errors.As(err, &rl):
		return derrors.Wrap(err, derrors.CategoryLock, derrors.SeverityWarning, rl.Error()).
			WithContext("remaining_minutes", rl.Remaining)
	case errors.Is(err, forge.ErrUnrecognizedProvider):
		return derrors.Wrap(err, derrors.CategoryValidation, derrors.SeverityError, err.Error())
	case errors.Is(err, worker.ErrQueueFull):
		return derrors.Wrap(err, derrors.CategoryInternal, derrors.SeverityError, "build queue is full, try again later")
	case errors.Is(err, archive.ErrDepositExists),
		errors.Is(err, archive.ErrAlreadyUploaded):
		return derrors.Wrap(err, derrors.CategoryValidation, derrors.SeverityWarning, err.Error())
	case errors.Is(err, archive.ErrNoResourceTypes),
		errors.Is(err, archive.ErrNoRecordFound):
		return derrors.Wrap(err, derrors.CategoryValidation, derrors.SeverityError, err.Error())
	default:
		return derrors.Wrap(err, derrors.CategoryInternal, derrors.SeverityError, err.Error())
	}
}

type buildRequest struct {
	RepoURL string `json:"repo_url"`
	Commit  string `json:"commit"`
	IssueID int    `json:"issue_id"`
}

func (h *APIHandlers) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req buildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RepoURL == "" {
		h.adapter.WriteErrorResponse(w, derrors.New(derrors.CategoryValidation, derrors.SeverityError, "repo_url is required"))
		return
	}
	jobID, err := h.builds.SubmitBuild(req.RepoURL, req.Commit, req.IssueID)
	if err != nil {
		h.adapter.WriteErrorResponse(w, classify(err))
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

type unlockRequest struct {
	RepoURL string `json:"repo_url"`
}

func (h *APIHandlers) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RepoURL == "" {
		h.adapter.WriteErrorResponse(w, derrors.New(derrors.CategoryValidation, derrors.SeverityError, "repo_url is required"))
		return
	}
	if err := h.builds.Unlock(req.RepoURL); err != nil {
		h.adapter.WriteErrorResponse(w, classify(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

func (h *APIHandlers) handleBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.List()
	if err != nil {
		h.adapter.WriteErrorResponse(w, classify(err))
		return
	}
	h.writeJSON(w, http.StatusOK, books)
}

func (h *APIHandlers) handleBookLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		books []book.Book
		err   error
	)
	switch {
	case q.Get("commit") != "":
		books, err = h.books.FindByCommit(q.Get("commit"))
	case q.Get("owner") != "":
		books, err = h.books.FindByOwner(q.Get("owner"))
	case q.Get("repo") != "":
		books, err = h.books.FindByRepo(q.Get("repo"))
	default:
		h.adapter.WriteErrorResponse(w, derrors.New(derrors.CategoryValidation, derrors.SeverityError, "one of commit, owner, repo is required"))
		return
	}
	if err != nil {
		h.adapter.WriteErrorResponse(w, classify(err))
		return
	}
	if len(books) == 0 {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no matching book"})
		return
	}
	h.writeJSON(w, http.StatusOK, books)
}

func (h *APIHandlers) handleHeartbeat(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

type depositRequest struct {
	IssueID       int      `json:"issue_id"`
	Title         string   `json:"title"`
	RepoURL       string   `json:"repo_url"`
	Commit        string   `json:"commit"`
	ResourceTypes []string `json:"resource_types"`
	Authors       []struct {
		Name        string `json:"name"`
		Affiliation string `json:"affiliation"`
		ORCID       string `json:"orcid"`
		Orchid      string `json:"orchid"`
	} `json:"authors"`
	Keywords []string `json:"keywords"`
}

func (h *APIHandlers) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IssueID == 0 {
		h.adapter.WriteErrorResponse(w, derrors.New(derrors.CategoryValidation, derrors.SeverityError, "issue_id is required"))
		return
	}
	types, err := archive.ParseResourceTypes(req.ResourceTypes)
	if err != nil {
		h.adapter.WriteErrorResponse(w, derrors.Wrap(err, derrors.CategoryValidation, derrors.SeverityError, err.Error()))
		return
	}
	sub := archive.Submission{
		ID:       req.IssueID,
		Title:    req.Title,
		RepoURL:  req.RepoURL,
		Commit:   req.Commit,
		Keywords: req.Keywords,
	}
	for _, a := range req.Authors {
		sub.Authors = append(sub.Authors, archive.Author{
			Name:        a.Name,
			Affiliation: a.Affiliation,
			ORCID:       a.ORCID,
			Orchid:      a.Orchid,
		})
	}
	record, err := h.archive.CreateDeposit(r.Context(), sub, types)
	if err != nil {
		h.adapter.WriteErrorResponse(w, classify(err))
		return
	}
	h.writeJSON(w, http.StatusCreated, record)
}

type uploadRequest struct {
	IssueID      int    `json:"issue_id"`
	ResourceType string `json:"resource_type"`
	Commit       string `json:"commit"`
	ArtifactPath string `json:"artifact_path"`
	Overwrite    bool   `json:"overwrite"`
}

func (h *APIHandlers) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IssueID == 0 || req.ArtifactPath == "" {
		h.adapter.WriteErrorResponse(w, derrors.New(derrors.CategoryValidation, derrors.SeverityError, "issue_id and artifact_path are required"))
		return
	}
	resource := archive.ResourceType(req.ResourceType)
	if !resource.Valid() {
		h.adapter.WriteErrorResponse(w, derrors.New(derrors.CategoryValidation, derrors.SeverityError, "unknown resource type").
			WithContext("resource_type", req.ResourceType))
		return
	}
	receipt, err := h.archive.Upload(r.Context(), req.IssueID, resource, req.Commit, req.ArtifactPath, req.Overwrite)
	if err != nil {
		h.adapter.WriteErrorResponse(w, classify(err))
		return
	}
	h.writeJSON(w, http.StatusCreated, receipt)
}

type publishRequest struct {
	IssueID int `json:"issue_id"`
}

func (h *APIHandlers) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IssueID == 0 {
		h.adapter.WriteErrorResponse(w, derrors.New(derrors.CategoryValidation, derrors.SeverityError, "issue_id is required"))
		return
	}
	outcome, err := h.archive.PublishAll(r.Context(), req.IssueID)
	if err != nil {
		var incomplete *archive.IncompleteUploadError
		if errors.As(err, &incomplete) {
			h.adapter.WriteErrorResponse(w, derrors.Wrap(err, derrors.CategoryValidation, derrors.SeverityWarning, incomplete.Error()))
			return
		}
		h.adapter.WriteErrorResponse(w, classify(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"published": outcome.Published.Completeness.String(),
		"results":   publishMessages(outcome),
	})
}

func publishMessages(outcome *archive.PublishOutcome) []string {
	messages := make([]string, 0, len(outcome.Results))
	for _, result := range outcome.Results {
		messages = append(messages, result.Message())
	}
	return messages
}

// transcriptEvent is the wire shape of one recorded pipeline event.
type transcriptEvent struct {
	ID        int64             `json:"id"`
	JobID     string            `json:"job_id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   string            `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// handleTranscript serves the recorded event stream for one build
// (repo+commit) or for a time window (since, optional until).
func (h *APIHandlers) handleTranscript(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		events []eventstore.Event
		err    error
	)
	switch {
	case q.Get("repo") != "" && q.Get("commit") != "":
		events, err = h.transcripts.GetByJobID(r.Context(), eventstore.JobKey(q.Get("repo"), q.Get("commit")))
	case q.Get("since") != "":
		var start, end time.Time
		start, err = time.Parse(time.RFC3339, q.Get("since"))
		if err != nil {
			h.adapter.WriteErrorResponse(w, derrors.New(derrors.CategoryValidation, derrors.SeverityError, "since must be RFC 3339"))
			return
		}
		end = time.Now()
		if q.Get("until") != "" {
			end, err = time.Parse(time.RFC3339, q.Get("until"))
			if err != nil {
				h.adapter.WriteErrorResponse(w, derrors.New(derrors.CategoryValidation, derrors.SeverityError, "until must be RFC 3339"))
				return
			}
		}
		events, err = h.transcripts.GetRange(r.Context(), start, end)
	default:
		h.adapter.WriteErrorResponse(w, derrors.New(derrors.CategoryValidation, derrors.SeverityError, "repo and commit, or since, are required"))
		return
	}
	if err != nil {
		h.adapter.WriteErrorResponse(w, classify(err))
		return
	}

	out := make([]transcriptEvent, 0, len(events))
	for _, event := range events {
		out = append(out, transcriptEvent{
			ID:        event.ID(),
			JobID:     event.JobID(),
			Type:      event.Type(),
			Timestamp: event.Timestamp(),
			Payload:   string(event.Payload()),
			Metadata:  event.Metadata(),
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *APIHandlers) handleArchiveStatus(w http.ResponseWriter, r *http.Request) {
	issueID, err := strconv.Atoi(r.URL.Query().Get("issue_id"))
	if err != nil || issueID == 0 {
		h.adapter.WriteErrorResponse(w, derrors.New(derrors.CategoryValidation, derrors.SeverityError, "issue_id query parameter is required"))
		return
	}
	report, err := h.archive.StatusReport(issueID)
	if err != nil {
		h.adapter.WriteErrorResponse(w, classify(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"report": report})
}
