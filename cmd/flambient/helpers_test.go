package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"flambient/internal/blend"
	"flambient/internal/compositor"
	"flambient/internal/config"
	"flambient/internal/exif"
	"flambient/internal/exposure"
	"flambient/internal/services"
	"flambient/internal/testsupport"
)

const testAPIKey = "test"

// fakeAPI serves the editing API plus the signed upload and download URLs.
type fakeAPI struct {
	srv *httptest.Server

	mu            sync.Mutex
	projects      []string
	uploads       map[string][]byte
	editProfiles  []string
	exports       int
	failDownloads map[string]bool
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{uploads: map[string][]byte{}, failDownloads: map[string]bool{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/profiles/{$}", f.authed(f.profiles))
	mux.HandleFunc("POST /v1/projects/{$}", f.authed(f.createProject))
	mux.HandleFunc("POST /v1/projects/{id}/get_temporary_upload_links/{$}", f.authed(f.uploadLinks))
	mux.HandleFunc("POST /v1/projects/{id}/edit/{$}", f.authed(f.startEdit))
	mux.HandleFunc("GET /v1/projects/{id}/edit/status", f.authed(f.completed))
	mux.HandleFunc("POST /v1/projects/{id}/export/{$}", f.authed(f.startExport))
	mux.HandleFunc("GET /v1/projects/{id}/export/status", f.authed(f.completed))
	mux.HandleFunc("GET /v1/projects/{id}/export/get_temporary_download_links", f.authed(f.downloadLinks))
	mux.HandleFunc("PUT /upload/{name}", f.upload)
	mux.HandleFunc("GET /download/{name}", f.download)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeData(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func (f *fakeAPI) profiles(w http.ResponseWriter, _ *http.Request) {
	writeData(w, []map[string]string{
		{"key": "natural", "name": "Natural", "description": "Balanced edit"},
		{"key": "bright", "name": "Bright"},
	})
}

func (f *fakeAPI) createProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	f.projects = append(f.projects, req.Name)
	f.mu.Unlock()
	writeData(w, map[string]string{"id": "p1"})
}

func (f *fakeAPI) uploadLinks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filenames []string `json:"filenames"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	links := make([]map[string]string, 0, len(req.Filenames))
	for _, name := range req.Filenames {
		links = append(links, map[string]string{"filename": name, "url": f.srv.URL + "/upload/" + name})
	}
	writeData(w, links)
}

func (f *fakeAPI) startEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProfileKey string `json:"profile_key"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	f.editProfiles = append(f.editProfiles, req.ProfileKey)
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeAPI) startExport(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	f.exports++
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeAPI) completed(w http.ResponseWriter, _ *http.Request) {
	writeData(w, map[string]any{"status": "completed", "progress": 100})
}

func (f *fakeAPI) downloadLinks(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	names := make([]string, 0, len(f.uploads))
	for name := range f.uploads {
		names = append(names, name)
	}
	f.mu.Unlock()
	slices.Sort(names)
	links := make([]map[string]string, 0, len(names))
	for _, name := range names {
		links = append(links, map[string]string{"filename": name, "url": f.srv.URL + "/download/" + name})
	}
	writeData(w, links)
}

func (f *fakeAPI) upload(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.uploads[r.PathValue("name")] = data
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeAPI) download(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f.mu.Lock()
	fail := f.failDownloads[name]
	f.mu.Unlock()
	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte("edited " + name))
}

func (f *fakeAPI) setDownloadFailure(name string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDownloads[name] = fail
}

func (f *fakeAPI) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *fakeAPI) projectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.projects)
}

type fakeExtractor struct {
	records []exif.Record
}

func (f *fakeExtractor) Extract(_ context.Context, dir string, _ []string) ([]exif.Record, error) {
	out := make([]exif.Record, 0, len(f.records))
	for _, r := range f.records {
		r.SourceFile = filepath.Join(dir, r.SourceFile)
		out = append(out, r)
	}
	return out, nil
}

// writingCompositor stands in for ImageMagick by writing each blend output.
// Groups listed in fail report an engine error and write nothing.
type writingCompositor struct {
	fail map[int]bool
}

func (c writingCompositor) Run(_ context.Context, _ string, recipes []blend.Recipe) []compositor.Result {
	results := make([]compositor.Result, 0, len(recipes))
	for _, r := range recipes {
		result := compositor.Result{GroupID: r.GroupID, OutputPath: r.OutputPath, Skipped: r.Skipped()}
		switch {
		case result.Skipped:
		case c.fail[r.GroupID]:
			result.Err = services.Wrap(services.ErrExternalTool, "compositor", "render", "magick exited 1", nil)
		default:
			result.Err = os.WriteFile(r.OutputPath, []byte("blend"), 0o644)
		}
		results = append(results, result)
	}
	return results
}

type cliEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	api        *fakeAPI
}

func setupCLI(t *testing.T, opts ...testsupport.ConfigOption) *cliEnv {
	t.Helper()

	api := newFakeAPI(t)
	opts = append([]testsupport.ConfigOption{
		testsupport.WithStubbedBinaries(),
		testsupport.WithRemoteURL(api.srv.URL),
		testsupport.WithAPIKey(testAPIKey),
	}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"

	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv(config.APIKeyEnv, "")

	configPath := filepath.Join(base, "config.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliEnv{cfg: cfg, configPath: configPath, baseDir: base, api: api}
}

// shoot writes a five-frame bracket: ambient, ambient, flash, ambient, flash.
func (e *cliEnv) shoot(t *testing.T) (string, *fakeExtractor) {
	t.Helper()
	names := []string{"IMG_01.jpg", "IMG_02.jpg", "IMG_03.jpg", "IMG_04.jpg", "IMG_05.jpg"}
	dir := testsupport.WriteImages(t, filepath.Join(e.baseDir, "shoot"), names...)
	flash := []string{"16", "16", "9", "16", "9"}
	records := make([]exif.Record, 0, len(names))
	for i, name := range names {
		ts := time.Date(2024, 5, 1, 10, 0, i, 0, time.UTC).Format("2006:01:02 15:04:05")
		records = append(records, exif.Record{
			SourceFile: name,
			Fields: map[string]exposure.FieldValue{
				exif.FieldDateTimeOriginal: {Raw: ts, Label: ts},
				"Flash":                    {Raw: flash[i], Label: flash[i]},
			},
		})
	}
	return dir, &fakeExtractor{records: records}
}

func noSleep(context.Context, time.Duration) error { return nil }

func (e *cliEnv) run(t *testing.T, args []string, opts ...contextOption) (string, string, error) {
	t.Helper()
	opts = append([]contextOption{withPollSleep(noSleep), withInput(strings.NewReader(""))}, opts...)
	cmd := newRootCommand(opts...)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func requireFile(t *testing.T, path, content string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if content != "" && string(data) != content {
		t.Fatalf("%s: got %q, want %q", path, data, content)
	}
}
