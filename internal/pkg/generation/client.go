package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/ClipFox/internal/pkg/env"
)

// External service job states as reported by the poll endpoint.
const (
	ExternalStatusProcessing = "processing"
	ExternalStatusCompleted  = "completed"
	ExternalStatusFailed     = "failed"
)

// APIError carries the HTTP status code from the generation service so the
// backoff engine can classify it without message sniffing.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generation service: %s (status %d)", e.Message, e.Code)
}

// StatusCode implements backoff.StatusCoder.
func (e *APIError) StatusCode() int {
	return e.Code
}

// SubmitRequest is the payload dispatched to the generation service.
type SubmitRequest struct {
	JobType         string `json:"job_type"`
	Prompt          string `json:"prompt"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// PollResponse is the generation service's view of a dispatched job.
type PollResponse struct {
	Status       string `json:"status"`
	ResultURL    string `json:"result_url,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Client is the boundary to the external generation service.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Poll(ctx context.Context, externalRef string) (*PollResponse, error)
	FetchResult(ctx context.Context, resultURL string) ([]byte, string, error)
}

// HTTPClient talks to the generation service over its JSON API.
type HTTPClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPClientFromEnv builds a client from GEN_API_* environment variables.
func NewHTTPClientFromEnv() *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimRight(env.GetEnv("GEN_API_BASE_URL", "https://api.generation.example"), "/"),
		APIKey:  strings.TrimSpace(env.GetEnv("GEN_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

// Submit dispatches a generation request and returns the opaque external ref.
func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/tasks", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(httpReq)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apiErrorFromResponse(resp)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}
	if strings.TrimSpace(out.TaskID) == "" {
		return "", &APIError{Code: resp.StatusCode, Message: "submit response missing task_id"}
	}
	return out.TaskID, nil
}

// Poll queries the current state of a dispatched job.
func (c *HTTPClient) Poll(ctx context.Context, externalRef string) (*PollResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/tasks/"+externalRef, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiErrorFromResponse(resp)
	}

	var out PollResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode poll response: %w", err)
	}
	return &out, nil
}

// FetchResult downloads the temporary result and returns bytes plus content type.
func (c *HTTPClient) FetchResult(ctx context.Context, resultURL string) ([]byte, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("result download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", apiErrorFromResponse(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read result body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}

func apiErrorFromResponse(resp *http.Response) *APIError {
	msg := resp.Status
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if body, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil && len(body) > 0 {
		if json.Unmarshal(body, &payload) == nil {
			if payload.Message != "" {
				msg = payload.Message
			} else if payload.Error != "" {
				msg = payload.Error
			}
		}
	}
	return &APIError{Code: resp.StatusCode, Message: msg}
}
