package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"flambient/internal/remote"
	"flambient/internal/services"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...remote.Option) *remote.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	base := []remote.Option{
		remote.WithSleeper(func(time.Duration) {}),
		remote.WithRetryMaxAttempts(3),
	}
	return remote.NewClient(remote.Config{BaseURL: srv.URL + "/", APIKey: "secret"}, append(base, opts...)...)
}

func writeData(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": data}); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestCreateProjectSendsKeyAndName(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/projects/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "secret" {
			t.Errorf("api key header = %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected request id header")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["name"] != "kitchen" {
			t.Errorf("name = %q", body["name"])
		}
		writeData(t, w, map[string]string{"id": "proj-1"})
	}))

	id, err := client.CreateProject(context.Background(), "kitchen")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if id != "proj-1" {
		t.Fatalf("id = %q, want proj-1", id)
	}
}

func TestRequestIDFromContext(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Request-ID"); got != "req-42" {
			t.Errorf("request id = %q", got)
		}
		writeData(t, w, []remote.Profile{})
	}))
	ctx := services.WithRequestID(context.Background(), "req-42")
	if _, err := client.Profiles(ctx); err != nil {
		t.Fatalf("Profiles: %v", err)
	}
}

func TestProfilesUnwrapsEnvelope(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(t, w, []map[string]string{
			{"key": "natural", "name": "Natural"},
			{"key": "bright", "name": "Bright", "description": "Airy interiors"},
		})
	}))
	profiles, err := client.Profiles(context.Background())
	if err != nil {
		t.Fatalf("Profiles: %v", err)
	}
	if len(profiles) != 2 || profiles[1].Key != "bright" || profiles[1].Description != "Airy interiors" {
		t.Fatalf("unexpected profiles %+v", profiles)
	}
}

func TestMissingEnvelopeIsRemoteError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"key":"natural"}]`)
	}))
	_, err := client.Profiles(context.Background())
	if !errors.Is(err, services.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
}

func TestRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	var delays []time.Duration
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeData(t, w, []remote.Profile{{Key: "natural"}})
	}), remote.WithSleeper(func(d time.Duration) { delays = append(delays, d) }),
		remote.WithRetryBackoff(time.Second, 10*time.Second))

	profiles, err := client.Profiles(context.Background())
	if err != nil {
		t.Fatalf("Profiles: %v", err)
	}
	if len(profiles) != 1 || calls.Load() != 3 {
		t.Fatalf("profiles=%d calls=%d", len(profiles), calls.Load())
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("unexpected backoff delays %v", delays)
	}
}

func TestRetryAfterHeaderHonored(t *testing.T) {
	var calls atomic.Int32
	var delays []time.Duration
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeData(t, w, []remote.Profile{})
	}), remote.WithSleeper(func(d time.Duration) { delays = append(delays, d) }),
		remote.WithRetryBackoff(time.Second, 30*time.Second))

	if _, err := client.Profiles(context.Background()); err != nil {
		t.Fatalf("Profiles: %v", err)
	}
	if len(delays) != 1 || delays[0] != 7*time.Second {
		t.Fatalf("delays = %v, want [7s]", delays)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message":"bad profile"}`, http.StatusBadRequest)
	}))
	err := client.StartEdit(context.Background(), "proj-1", "natural", remote.EditOptions{})
	if !errors.Is(err, services.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
	if services.IsTransient(err) {
		t.Fatal("400 must not be transient")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestUnauthorizedIsConfigurationError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	_, err := client.Profiles(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestExhaustedRetriesStayTransient(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, err := client.EditStatus(context.Background(), "proj-1")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestStartEditPayload(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/projects/proj-1/edit/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["profile_key"] != "bright" || body["window_pull"] != true || body["sky_replacement"] != false {
			t.Errorf("unexpected payload %v", body)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	err := client.StartEdit(context.Background(), "proj-1", "bright", remote.EditOptions{WindowPull: true})
	if err != nil {
		t.Fatalf("StartEdit: %v", err)
	}
}

func TestStatusNormalization(t *testing.T) {
	tests := []struct {
		raw     map[string]any
		status  string
		percent float64
	}{
		{map[string]any{"status": "PROCESSING", "progress": 42}, remote.StatusProcessing, 42},
		{map[string]any{"status": "done", "progress": 80}, remote.StatusCompleted, 100},
		{map[string]any{"status": "Error"}, remote.StatusFailed, 0},
		{map[string]any{"progress": 150}, remote.StatusQueued, 100},
	}
	for _, tt := range tests {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeData(t, w, tt.raw)
		}))
		got, err := client.ExportStatus(context.Background(), "p")
		if err != nil {
			t.Fatalf("ExportStatus(%v): %v", tt.raw, err)
		}
		if got.Status != tt.status || got.Percent != tt.percent {
			t.Errorf("ExportStatus(%v) = %+v, want %s/%v", tt.raw, got, tt.status, tt.percent)
		}
	}
}

func TestRequestUploadSlotsReportsMissing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/projects/proj-1/get_temporary_upload_links/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeData(t, w, []remote.Link{{Filename: "a.jpg", URL: "https://x/a"}})
	}))
	slots, err := client.RequestUploadSlots(context.Background(), "proj-1", []string{"a.jpg", "b.jpg"})
	if !errors.Is(err, services.ErrRemote) {
		t.Fatalf("expected ErrRemote for missing slot, got %v", err)
	}
	if slots["a.jpg"] != "https://x/a" {
		t.Fatalf("slots = %v", slots)
	}
}

func TestUploadFileSendsNoExtraHeaders(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "blend_001.jpg")
	if err := os.WriteFile(src, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		for _, header := range []string{"Content-Type", "Authorization", "X-Api-Key", "User-Agent", "Accept-Encoding"} {
			if values, ok := r.Header[header]; ok {
				t.Errorf("unexpected header %s: %v", header, values)
			}
		}
		if r.ContentLength != int64(len("jpeg-bytes")) {
			t.Errorf("content length = %d", r.ContentLength)
		}
		received, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	client := remote.NewClient(remote.Config{BaseURL: "http://unused", APIKey: "secret"})
	if err := client.UploadFile(context.Background(), srv.URL+"/signed?sig=abc", src); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if string(received) != "jpeg-bytes" {
		t.Fatalf("received %q", received)
	}
}

func TestUploadFileMissingSource(t *testing.T) {
	client := remote.NewClient(remote.Config{BaseURL: "http://unused"})
	err := client.UploadFile(context.Background(), "http://unused/put", filepath.Join(t.TempDir(), "nope.jpg"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDownloadFileWritesAndSkipsExisting(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, "edited")
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out")
	client := remote.NewClient(remote.Config{BaseURL: "http://unused"}, remote.WithTransferClient(srv.Client()))

	path, err := client.DownloadFile(context.Background(), srv.URL+"/a", dest, "blend_001.jpg")
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "edited" {
		t.Fatalf("read %s: %q %v", path, data, err)
	}

	if err := os.WriteFile(path, []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := client.DownloadFile(context.Background(), srv.URL+"/a", dest, "blend_001.jpg"); err != nil {
		t.Fatalf("second DownloadFile: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "local" {
		t.Fatalf("existing file overwritten: %q", data)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestDownloadFileRejectsBadName(t *testing.T) {
	client := remote.NewClient(remote.Config{BaseURL: "http://unused"})
	_, err := client.DownloadFile(context.Background(), "http://unused/a", t.TempDir(), "..")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDownloadFailureLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	dest := t.TempDir()
	client := remote.NewClient(remote.Config{BaseURL: "http://unused"})
	if _, err := client.DownloadFile(context.Background(), srv.URL, dest, "a.jpg"); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(dest)
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, found %d entries", len(entries))
	}
}
