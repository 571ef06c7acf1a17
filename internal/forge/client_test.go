package forge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIssueComment(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int64{"id": 4711})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-token")
	id, err := client.CreateIssueComment(context.Background(), "acme/reviews", 42, "build started")
	require.NoError(t, err)
	assert.Equal(t, int64(4711), id)
	assert.Equal(t, "/repos/acme/reviews/issues/42/comments", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "build started", gotBody["body"])
}

func TestUpdateIssueComment(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	err := client.UpdateIssueComment(context.Background(), "acme/reviews", 4711, "updated")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/repos/acme/reviews/issues/comments/4711", gotPath)
}

func TestRepositoryExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/repos/acme/present" {
			w.Write([]byte("{}"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")

	exists, err := client.RepositoryExists(context.Background(), "acme/present")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.RepositoryExists(context.Background(), "acme/absent")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetFileDecodesBase64(t *testing.T) {
	content := "launch_buttons:\n  binderhub_url: https://binder.example.org\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"sha":      "abc123",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	file, err := client.GetFile(context.Background(), "acme/book", "_config.yml")
	require.NoError(t, err)
	assert.Equal(t, "abc123", file.SHA)
	assert.Equal(t, content, string(file.Content))
}

func TestUpdateFileSendsShaAndEncodedContent(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	err := client.UpdateFile(context.Background(), "acme/book", "_config.yml", "abc123", "point launch buttons at production", []byte("new content"))
	require.NoError(t, err)
	assert.Equal(t, "abc123", gotBody["sha"])
	decoded, err := base64.StdEncoding.DecodeString(gotBody["content"])
	require.NoError(t, err)
	assert.Equal(t, "new content", string(decoded))
}

func TestAPIErrorSurfacesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"rate limited"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	_, err := client.CreateIssueComment(context.Background(), "acme/reviews", 1, "x")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Contains(t, apiErr.Body, "rate limited")
}
