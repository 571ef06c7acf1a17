package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	derrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestChainRecoversFromPanic(t *testing.T) {
	chain := Chain(slog.Default(), derrors.NewHTTPErrorAdapter(nil))
	h := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}
}

func TestBasicAuthEmptyTableDisablesGuard(t *testing.T) {
	h := BasicAuth(nil, okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestBasicAuth(t *testing.T) {
	users := map[string]string{"reviewer": "s3cret"}
	h := BasicAuth(users, okHandler())

	tests := []struct {
		name       string
		user, pass string
		withCreds  bool
		want       int
	}{
		{name: "valid credentials", user: "reviewer", pass: "s3cret", withCreds: true, want: http.StatusNoContent},
		{name: "wrong password", user: "reviewer", pass: "guess", withCreds: true, want: http.StatusUnauthorized},
		{name: "unknown user", user: "intruder", pass: "s3cret", withCreds: true, want: http.StatusUnauthorized},
		{name: "missing credentials", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.withCreds {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
