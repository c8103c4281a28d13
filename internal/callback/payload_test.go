package callback

import (
	"errors"
	"testing"

	"media-orchestrator/internal/domain"
)

func TestDecodeValidPayload(t *testing.T) {
	raw := []byte(`{
		"jobId": "job_abc",
		"mediaId": "m1",
		"status": "completed",
		"engine": "media-downloader",
		"outputs": {
			"video": {"key": "media/m1/video.mp4", "url": "https://store/video"},
			"metadata": {"key": "media/m1/meta.json"}
		},
		"metadata": {"title": "a title", "viewCount": 1200},
		"durationMs": 120000,
		"attempts": 1
	}`)

	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.JobID != "job_abc" || p.Engine != domain.EngineMediaDownloader {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if p.Outputs.Video == nil || p.Outputs.Video.Key != "media/m1/video.mp4" {
		t.Fatalf("video artifact not decoded: %+v", p.Outputs.Video)
	}
	if p.Metadata == nil || p.Metadata.Title == nil || *p.Metadata.Title != "a title" {
		t.Fatalf("metadata not decoded: %+v", p.Metadata)
	}
	if p.Metadata.Author != nil {
		t.Fatal("absent metadata field should stay nil")
	}
	if p.MetadataOnly() {
		t.Fatal("payload with video output reported as metadata-only")
	}
}

func TestDecodeMetadataOnly(t *testing.T) {
	raw := []byte(`{"jobId":"job_x","status":"completed","engine":"media-downloader","outputs":{"metadata":{"key":"sync.json"}}}`)
	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !p.MetadataOnly() {
		t.Fatal("expected metadata-only payload")
	}
}

func TestDecodeFailsClosed(t *testing.T) {
	cases := map[string]string{
		"malformed json":  `{"jobId":`,
		"missing jobId":   `{"status":"completed","engine":"media-downloader"}`,
		"unknown status":  `{"jobId":"j","status":"exploded","engine":"media-downloader"}`,
		"unknown engine":  `{"jobId":"j","status":"completed","engine":"mystery-box"}`,
		"negative length": `{"jobId":"j","status":"completed","engine":"media-downloader","durationMs":-5}`,
	}
	for name, raw := range cases {
		if _, err := Decode([]byte(raw)); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", name, err)
		}
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "shared-secret"
	body := []byte(`{"jobId":"job_1"}`)
	sig := Sign(secret, body)

	if !VerifySignature(secret, body, sig) {
		t.Fatal("valid signature rejected")
	}

	// Flipping one byte of the body must invalidate the signature.
	tampered := append([]byte(nil), body...)
	tampered[2] ^= 0x01
	if VerifySignature(secret, tampered, sig) {
		t.Fatal("tampered body accepted")
	}
	if VerifySignature(secret, body, "") {
		t.Fatal("empty signature accepted")
	}
	if VerifySignature("other-secret", body, sig) {
		t.Fatal("wrong secret accepted")
	}
}
