package compositor

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"flambient/internal/blend"
	"flambient/internal/logging"
	"flambient/internal/services"
)

// Result is the outcome of rendering one group.
type Result struct {
	GroupID    int
	OutputPath string
	Skipped    bool
	Err        error
	Duration   time.Duration
}

// Summary aggregates results.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Summarize counts outcomes.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch {
		case r.Skipped:
			s.Skipped++
		case r.Err != nil:
			s.Failed++
		default:
			s.Succeeded++
		}
	}
	return s
}

// Runner executes written blend scripts with the compositing engine.
type Runner struct {
	engine   string
	exec     services.Executor
	logger   *slog.Logger
	onResult func(Result)
}

// Option customizes a Runner.
type Option func(*Runner)

// WithExecutor overrides the command executor (used by tests).
func WithExecutor(exec services.Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithResultHook registers a function called after each group finishes.
func WithResultHook(fn func(Result)) Option {
	return func(r *Runner) { r.onResult = fn }
}

// New constructs a Runner for the given engine binary.
func New(engine string, opts ...Option) *Runner {
	if strings.TrimSpace(engine) == "" {
		engine = "magick"
	}
	r := &Runner{engine: engine, exec: services.CommandExecutor{}}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "compositor")
	return r
}

// Run renders each non-skipped recipe sequentially using the scripts in
// scriptDir. A failing group is recorded and the batch continues. Once ctx is
// cancelled the remaining groups are reported as failed with the context error.
func (r *Runner) Run(ctx context.Context, scriptDir string, recipes []blend.Recipe) []Result {
	results := make([]Result, 0, len(recipes))
	for _, recipe := range recipes {
		result := Result{GroupID: recipe.GroupID, OutputPath: recipe.OutputPath}
		switch {
		case recipe.Skipped():
			result.Skipped = true
			r.logger.Info("group skipped",
				logging.Int("group", recipe.GroupID),
				logging.String("reason", recipe.SkipReason()),
			)
		case ctx.Err() != nil:
			result.Err = ctx.Err()
		default:
			script := filepath.Join(scriptDir, blend.ScriptName(recipe.GroupID))
			start := time.Now()
			_, err := r.exec.Output(ctx, r.engine, "-script", script)
			result.Duration = time.Since(start)
			if err != nil {
				result.Err = services.Wrap(services.ErrExternalTool, "compositor", "render", script, err)
				logging.WarnWithContext(r.logger, "group render failed", "render_failed",
					logging.Int("group", recipe.GroupID),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "run the group script manually to inspect ImageMagick output"),
					logging.String(logging.FieldImpact, "group has no blended output"),
				)
			} else {
				r.logger.Info("group rendered",
					logging.Int("group", recipe.GroupID),
					logging.String("output", recipe.OutputPath),
					logging.Duration("duration", result.Duration),
				)
			}
		}
		results = append(results, result)
		if r.onResult != nil {
			r.onResult(result)
		}
	}
	return results
}
