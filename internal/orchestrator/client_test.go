package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"media-orchestrator/internal/domain"
)

func TestStartJobEchoesJobID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/jobs" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("missing bearer token, got %q", got)
		}
		var req StartJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(StartJobResponse{JobID: req.JobID, Status: "accepted"})
	}))
	defer server.Close()

	client, err := NewClient(Options{BaseURL: server.URL, Token: "tok", HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := client.StartJob(context.Background(), StartJobRequest{JobID: "job_1", Kind: "download", Engine: "media-downloader", CallbackURL: "http://cb"})
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	if resp.JobID != "job_1" {
		t.Fatalf("job id: got %q", resp.JobID)
	}
}

func TestJobStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/jobs/job_2" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(JobState{Status: "running", Progress: 0.42, Phase: "downloading"})
	}))
	defer server.Close()

	client, _ := NewClient(Options{BaseURL: server.URL, HTTPClient: server.Client()})
	state, err := client.JobStatus(context.Background(), "job_2")
	if err != nil {
		t.Fatalf("job status: %v", err)
	}
	if state.Progress != 0.42 || state.Status != "running" {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestErrorResponsesWrapUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "worker pool exhausted"})
	}))
	defer server.Close()

	client, _ := NewClient(Options{BaseURL: server.URL, HTTPClient: server.Client()})
	_, err := client.JobStatus(context.Background(), "job_3")
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}
