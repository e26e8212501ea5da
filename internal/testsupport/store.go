package testsupport

import (
	"context"
	"testing"

	"flambient/internal/config"
	"flambient/internal/jobs"
)

// MustOpenStore opens the job database for cfg and closes it on cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewJob inserts a pending job for the given manifest.
func NewJob(t testing.TB, store *jobs.Store, inputDir, outputDir string, manifest ...string) *jobs.Job {
	t.Helper()

	job, err := store.Create(context.Background(), jobs.NewJob{
		ProjectName: "test-project",
		InputDir:    inputDir,
		OutputDir:   outputDir,
		ProfileKey:  "natural",
		Manifest:    manifest,
	})
	if err != nil {
		t.Fatalf("Create job: %v", err)
	}
	return job
}
