package preflight

import (
	"context"
	"fmt"
	"strings"

	"flambient/internal/config"
	"flambient/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options selects which checks apply to the command being run.
type Options struct {
	InputDir  string
	OutputDir string
	Blend     bool
	Render    bool
	Remote    bool
}

// RunAll executes the checks relevant to opts. Tool and remote checks are
// skipped when the command does not need them.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	if opts.InputDir != "" {
		results = append(results, CheckReadableDirectory("Input directory", opts.InputDir))
	}
	if opts.OutputDir != "" {
		results = append(results, CheckWritableTarget("Output directory", opts.OutputDir))
	}
	if opts.Remote {
		results = append(results, CheckWritableTarget("State directory", cfg.Paths.StateDir))
	}

	results = append(results, CheckTools(cfg, opts)...)

	if opts.Remote {
		results = append(results, CheckRemote(ctx, cfg))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err folds failed results into a single configuration error, or nil.
func Err(results []Result) error {
	failed := Failed(results)
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "run checks", strings.Join(parts, "; "), nil)
}
