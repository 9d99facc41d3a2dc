package githost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result is the outcome of one Git hosting API call. Failures are
// reported here, never returned as errors: status reporting is advisory
// and must not fail a deployment.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// CommitStatus is a commit status posted after a deployment.
type CommitStatus struct {
	State       string `json:"state"` // pending, success, error, failure
	Description string `json:"description"`
	TargetURL   string `json:"target_url,omitempty"`
	Context     string `json:"context"`
}

// Client talks to the Git hosting HTTP API with a bearer token.
type Client struct {
	baseURL    string
	token      string
	repository string
	httpClient *http.Client
}

// New creates a Git hosting client for one repository ("owner/name").
func New(baseURL, token, repository string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		repository: repository,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetCommitStatus posts a status for a commit.
func (c *Client) SetCommitStatus(ctx context.Context, sha string, status CommitStatus) Result {
	url := fmt.Sprintf("%s/repos/%s/statuses/%s", c.baseURL, c.repository, sha)
	return c.post(ctx, url, status)
}

// PostPRComment posts a comment (typically the preview URL) on a pull
// request.
func (c *Client) PostPRComment(ctx context.Context, prNumber int, body string) Result {
	url := fmt.Sprintf("%s/repos/%s/issues/%d/comments", c.baseURL, c.repository, prNumber)
	return c.post(ctx, url, map[string]string{"body": body})
}

func (c *Client) post(ctx context.Context, url string, payload any) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Error: fmt.Sprintf("failed to encode payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{Error: fmt.Sprintf("api returned %d: %s", resp.StatusCode, msg)}
	}

	return Result{Success: true}
}
