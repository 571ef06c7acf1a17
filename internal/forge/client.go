package forge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Client performs authenticated REST calls against a forge API.
// It consolidates request building and response decoding so the comment,
// fork, and contents operations stay small.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
}

// NewClient creates a forge API client.
func NewClient(apiURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     apiURL,
		token:      token,
	}
}

// newRequest builds an API request with auth and JSON headers. Endpoint is a
// relative path like "repos/{owner}/{repo}/issues/{n}/comments".
func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse API URL %q: %w", c.apiURL, err)
	}
	u.Path = path.Join(strings.TrimSuffix(u.Path, "/"), strings.TrimPrefix(endpoint, "/"))

	var req *http.Request
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		req, err = http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), http.NoBody)
		if err != nil {
			return nil, err
		}
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do executes a request and decodes the JSON response into out (if non-nil).
// Non-2xx responses become errors carrying the response body.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(body), Path: req.URL.Path}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// APIError is a non-2xx forge API response.
type APIError struct {
	Status int
	Body   string
	Path   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("forge API %s returned %d: %s", e.Path, e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 API response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusNotFound
	}
	return false
}

// CreateIssueComment posts a new comment and returns its identifier for
// later chaining.
func (c *Client) CreateIssueComment(ctx context.Context, repo string, issue int, body string) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodPost,
		fmt.Sprintf("repos/%s/issues/%d/comments", repo, issue),
		map[string]string{"body": body})
	if err != nil {
		return 0, err
	}
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(req, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// UpdateIssueComment replaces the body of an existing comment.
func (c *Client) UpdateIssueComment(ctx context.Context, repo string, commentID int64, body string) error {
	req, err := c.newRequest(ctx, http.MethodPatch,
		fmt.Sprintf("repos/%s/issues/comments/%d", repo, commentID),
		map[string]string{"body": body})
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// RepositoryExists checks whether a repository is visible to the client.
func (c *Client) RepositoryExists(ctx context.Context, fullName string) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "repos/"+fullName, nil)
	if err != nil {
		return false, err
	}
	err = c.do(req, nil)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// ForkRepository forks a repository into the given organization. Forking is
// asynchronous on the provider side; availability must be polled separately.
func (c *Client) ForkRepository(ctx context.Context, fullName, organization string) error {
	req, err := c.newRequest(ctx, http.MethodPost,
		fmt.Sprintf("repos/%s/forks", fullName),
		map[string]string{"organization": organization})
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// RepoFile is a decoded contents-API file.
type RepoFile struct {
	Path    string
	SHA     string
	Content []byte
}

// GetFile fetches a file through the contents API.
func (c *Client) GetFile(ctx context.Context, fullName, filePath string) (*RepoFile, error) {
	req, err := c.newRequest(ctx, http.MethodGet,
		fmt.Sprintf("repos/%s/contents/%s", fullName, filePath), nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		SHA      string `json:"sha"`
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	content := []byte(out.Content)
	if out.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(out.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decode %s content: %w", filePath, err)
		}
		content = decoded
	}
	return &RepoFile{Path: filePath, SHA: out.SHA, Content: content}, nil
}

// UpdateFile replaces a file's content through the contents API.
func (c *Client) UpdateFile(ctx context.Context, fullName, filePath, sha, message string, content []byte) error {
	req, err := c.newRequest(ctx, http.MethodPut,
		fmt.Sprintf("repos/%s/contents/%s", fullName, filePath),
		map[string]string{
			"message": message,
			"sha":     sha,
			"content": base64.StdEncoding.EncodeToString(content),
		})
	if err != nil {
		return err
	}
	return c.do(req, nil)
}
