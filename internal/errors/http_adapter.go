package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HTTPErrorAdapter converts BookBuilderErrors into HTTP responses.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter creates a new HTTP error adapter.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// HTTPErrorResponse is the canonical error payload.
type HTTPErrorResponse struct {
	Error    string        `json:"error"`
	Category ErrorCategory `json:"category"`
	Context  ContextFields `json:"context,omitempty"`
}

// StatusCodeFor maps error categories to HTTP status codes.
func (a *HTTPErrorAdapter) StatusCodeFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch GetCategory(err) {
	case CategoryValidation:
		return http.StatusUnprocessableEntity
	case CategoryAuth:
		return http.StatusUnauthorized
	case CategoryLock:
		// A held build lock means the same request is already in flight.
		return http.StatusConflict
	case CategoryForge, CategoryNetwork, CategoryArchive:
		return http.StatusBadGateway
	case CategoryBuild:
		return http.StatusFailedDependency
	case CategoryConfig, CategoryFileSystem, CategoryInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a structured JSON error response and logs it.
func (a *HTTPErrorAdapter) WriteErrorResponse(w http.ResponseWriter, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	status := a.StatusCodeFor(err)
	payload := HTTPErrorResponse{
		Error:    err.Error(),
		Category: GetCategory(err),
	}
	if be, ok := err.(*BookBuilderError); ok {
		payload.Error = be.Message
		payload.Context = be.Context
	}

	b, jerr := json.Marshal(payload)
	if jerr != nil {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)

	if be, ok := err.(*BookBuilderError); ok && be.Severity == SeverityWarning {
		a.logger.Warn(err.Error(), slog.Int("status", status))
		return
	}
	a.logger.Error(err.Error(), slog.Int("status", status))
}
