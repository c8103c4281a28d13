package objstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProbeStatuses(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		exists  bool
		wantErr bool
	}{
		{"full body", http.StatusOK, true, false},
		{"ranged body", http.StatusPartialContent, true, false},
		{"absent", http.StatusNotFound, false, false},
		{"denied", http.StatusForbidden, false, true},
		{"server error", http.StatusInternalServerError, false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotRange string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotRange = r.Header.Get("Range")
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			exists, err := NewHTTPClient(server.Client()).Probe(context.Background(), server.URL+"/key")
			if tc.wantErr != (err != nil) {
				t.Fatalf("err mismatch: %v", err)
			}
			if exists != tc.exists {
				t.Fatalf("exists: got %v want %v", exists, tc.exists)
			}
			if gotRange != "bytes=0-0" {
				t.Fatalf("probe must request a single byte, got %q", gotRange)
			}
		})
	}
}

func TestFetchJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"videos":[{"videoId":"v1"}]}`))
	}))
	defer server.Close()

	var out struct {
		Videos []struct {
			VideoID string `json:"videoId"`
		} `json:"videos"`
	}
	if err := NewHTTPClient(server.Client()).FetchJSON(context.Background(), server.URL, &out); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(out.Videos) != 1 || out.Videos[0].VideoID != "v1" {
		t.Fatalf("unexpected decode: %+v", out)
	}
}
