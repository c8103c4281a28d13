// Package orchestrator talks to the external job orchestrator that actually
// runs download, transcription and render workers. Dispatch is
// fire-and-forget: StartJob returns as soon as the orchestrator accepts the
// job, and results arrive later through the callback gateway.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"media-orchestrator/internal/domain"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// Client is a thin JSON-over-HTTP client for the orchestrator API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("orchestrator: base url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, token: opts.Token, client: client}, nil
}

// StartJobRequest asks the orchestrator to run one job. The job id is
// assigned by this service before any network call and the orchestrator must
// echo it back unchanged.
type StartJobRequest struct {
	JobID       string         `json:"jobId"`
	Kind        string         `json:"kind"`
	Engine      string         `json:"engine"`
	MediaID     string         `json:"mediaId,omitempty"`
	ChannelID   string         `json:"channelId,omitempty"`
	SourceURL   string         `json:"sourceUrl,omitempty"`
	ProxyURL    string         `json:"proxyUrl,omitempty"`
	CallbackURL string         `json:"callbackUrl"`
	Options     map[string]any `json:"options,omitempty"`
}

// StartJobResponse is the orchestrator's accept acknowledgement.
type StartJobResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

func (c *Client) StartJob(ctx context.Context, req StartJobRequest) (*StartJobResponse, error) {
	var resp StartJobResponse
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobState is a synchronous, side-effect-free snapshot of one job. Progress
// is reported in [0,1].
type JobState struct {
	Status   string          `json:"status"`
	Progress float64         `json:"progress"`
	Phase    string          `json:"phase,omitempty"`
	Outputs  json.RawMessage `json:"outputs,omitempty"`
}

func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobState, error) {
	if jobID == "" {
		return nil, fmt.Errorf("orchestrator: job id is required")
	}
	var state JobState
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+jobID, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// MediaProbe is the result of a source-metadata probe, used to resolve the
// duration before a duration-priced job may start.
type MediaProbe struct {
	DurationMs int64           `json:"durationMs"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

func (c *Client) ProbeMetadata(ctx context.Context, sourceURL, proxyURL string) (*MediaProbe, error) {
	if sourceURL == "" {
		return nil, fmt.Errorf("orchestrator: source url is required")
	}
	req := map[string]string{"sourceUrl": sourceURL}
	if proxyURL != "" {
		req["proxyUrl"] = proxyURL
	}
	var probe MediaProbe
	if err := c.do(ctx, http.MethodPost, "/v1/probe", req, &probe); err != nil {
		return nil, err
	}
	return &probe, nil
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("orchestrator: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("orchestrator: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("orchestrator: %s %s: %v: %w", method, path, err, domain.ErrUpstream)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("orchestrator: %s %s: status %d: %s: %w", method, path, resp.StatusCode, apiErr.Error, domain.ErrUpstream)
		}
		return fmt.Errorf("orchestrator: %s %s: status %d: %w", method, path, resp.StatusCode, domain.ErrUpstream)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("orchestrator: decode response: %v: %w", err, domain.ErrUpstream)
	}
	return nil
}
