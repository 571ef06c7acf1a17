// Package archive drives the multi-resource archival pipeline: deposit
// bucket creation with rollback, artifact uploads, publishing, and the
// receipt files that make completeness a pure function of what happened.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Bucket describes one provider-side deposit container.
type Bucket struct {
	ID         int    `json:"id"`
	BucketURL  string `json:"bucket_url"`
	SelfURL    string `json:"self_url"`
	PublishURL string `json:"publish_url"`
}

// PublishResult is the provider's acknowledgment of a publish call.
type PublishResult struct {
	DOI      string `json:"doi"`
	DOIBadge string `json:"doi_badge"`
}

// Client talks to the archive provider's deposition API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates an archive API client. Uploads can be large, so the
// client carries no overall timeout; callers bound requests with ctx.
func NewClient(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		token:      token,
	}
}

// apiError is a non-success deposition API response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("archive API returned %d: %s", e.Status, e.Body)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// CreateDeposition creates one empty deposit bucket carrying the given
// metadata.
func (c *Client) CreateDeposition(ctx context.Context, meta DepositionMetadata) (*Bucket, error) {
	payload, err := json.Marshal(map[string]any{"metadata": meta})
	if err != nil {
		return nil, fmt.Errorf("marshal deposition metadata: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/deposit/depositions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create deposition: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var out struct {
		ID    int `json:"id"`
		Links struct {
			Bucket  string `json:"bucket"`
			Self    string `json:"self"`
			Publish string `json:"publish"`
		} `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode deposition response: %w", err)
	}
	return &Bucket{
		ID:         out.ID,
		BucketURL:  out.Links.Bucket,
		SelfURL:    out.Links.Self,
		PublishURL: out.Links.Publish,
	}, nil
}

// DeleteDeposition removes an unpublished deposit through its self link.
func (c *Client) DeleteDeposition(ctx context.Context, selfURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, selfURL, http.NoBody)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete deposition: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusGone:
		return nil
	}
	return readAPIError(resp)
}

// UploadFile streams artifact bytes into a bucket under the given filename.
func (c *Client) UploadFile(ctx context.Context, bucketURL, filename string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, bucketURL+"/"+filename, body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Publish finalizes a bucket. The provider acknowledges with HTTP 202 and
// the minted DOI.
func (c *Client) Publish(ctx context.Context, publishURL string) (*PublishResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, publishURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("publish deposition: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, readAPIError(resp)
	}

	var out struct {
		DOI      string `json:"doi"`
		Metadata struct {
			PrereserveDOI struct {
				DOI string `json:"doi"`
			} `json:"prereserve_doi"`
		} `json:"metadata"`
		Links struct {
			Badge string `json:"badge"`
		} `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode publish response: %w", err)
	}
	doi := out.DOI
	if doi == "" {
		doi = out.Metadata.PrereserveDOI.DOI
	}
	badge := out.Links.Badge
	if badge == "" && doi != "" {
		badge = "https://zenodo.org/badge/DOI/" + doi + ".svg"
	}
	return &PublishResult{DOI: doi, DOIBadge: badge}, nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &apiError{Status: resp.StatusCode, Body: string(body)}
}

// pace sleeps for the provider-throttle delay unless the context ends first.
func pace(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
