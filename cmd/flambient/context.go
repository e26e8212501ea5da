package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"flambient/internal/compositor"
	"flambient/internal/config"
	"flambient/internal/exif"
	"flambient/internal/jobs"
	"flambient/internal/logging"
	"flambient/internal/pipeline"
	"flambient/internal/preflight"
	"flambient/internal/remote"
	"flambient/internal/workflow"
)

const maxRetryDelay = 30 * time.Second

// editorClient is the remote surface the CLI needs: the workflow calls plus
// profile listing.
type editorClient interface {
	workflow.RemoteEditor
	Profiles(ctx context.Context) ([]remote.Profile, error)
}

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	logger     *slog.Logger
	configErr  error

	in         io.Reader
	extractor  pipeline.Extractor
	compositor pipeline.Compositor
	pollSleep  func(ctx context.Context, d time.Duration) error
}

type contextOption func(*commandContext)

func withInput(r io.Reader) contextOption {
	return func(c *commandContext) { c.in = r }
}

func withExtractor(e pipeline.Extractor) contextOption {
	return func(c *commandContext) { c.extractor = e }
}

func withCompositor(comp pipeline.Compositor) contextOption {
	return func(c *commandContext) { c.compositor = comp }
}

func withPollSleep(sleep func(ctx context.Context, d time.Duration) error) contextOption {
	return func(c *commandContext) { c.pollSleep = sleep }
}

func newCommandContext(configFlag *string, opts ...contextOption) *commandContext {
	c := &commandContext{
		configFlag: configFlag,
		in:         os.Stdin,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

// configCopy returns a copy of the loaded config that a command may adjust
// with its flags.
func (c *commandContext) configCopy() (*config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	clone := *cfg
	return &clone, nil
}

func (c *commandContext) loggerFor(component string) *slog.Logger {
	return logging.NewComponentLogger(c.logger, component)
}

func (c *commandContext) newPlanner(cfg *config.Config, settings pipeline.Settings, hook func(compositor.Result)) *pipeline.Planner {
	logger := c.loggerFor("pipeline")
	extractor := c.extractor
	if extractor == nil {
		extractor = exif.New(cfg.Tools.ExifTool, exif.WithLogger(logger))
	}
	comp := c.compositor
	if comp == nil {
		comp = compositor.New(settings.Engine, compositor.WithLogger(logger), compositor.WithResultHook(hook))
	}
	return pipeline.NewPlanner(settings, extractor, pipeline.WithCompositor(comp), pipeline.WithLogger(logger))
}

func (c *commandContext) newEditor(cfg *config.Config) editorClient {
	return remote.NewClient(remote.Config{
		BaseURL:        cfg.Remote.BaseURL,
		APIKey:         cfg.Remote.APIKey,
		TimeoutSeconds: cfg.Remote.TimeoutSeconds,
	},
		remote.WithRetryMaxAttempts(cfg.Remote.RetryMaxAttempts),
		remote.WithRetryBackoff(cfg.RetryBackoff(), maxRetryDelay),
		remote.WithLogger(c.loggerFor("remote")),
	)
}

func (c *commandContext) newRunner(cfg *config.Config, store workflow.Store, editor workflow.RemoteEditor, observer workflow.Observer) *workflow.Runner {
	opts := []workflow.Option{
		workflow.WithLogger(c.loggerFor("workflow")),
		workflow.WithObserver(observer),
	}
	if c.pollSleep != nil {
		opts = append(opts, workflow.WithPollSleep(c.pollSleep))
	}
	return workflow.NewRunner(workflow.SettingsFromConfig(cfg), store, editor, opts...)
}

func (c *commandContext) withStore(fn func(*jobs.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := jobs.Open(cfg)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// runPreflight prints failing checks and returns an error when any failed.
func (c *commandContext) runPreflight(cmd *cobra.Command, cfg *config.Config, opts preflight.Options) error {
	results := preflight.RunAll(cmd.Context(), cfg, opts)
	failed := preflight.Failed(results)
	if len(failed) == 0 {
		return nil
	}
	out := cmd.ErrOrStderr()
	fmt.Fprintln(out, "Preflight checks failed:")
	for _, r := range failed {
		fmt.Fprintf(out, "  %s: %s\n", r.Name, r.Detail)
	}
	return preflight.Err(results)
}

// confirmer prompts on the command's input; --yes bypasses it.
func (c *commandContext) confirmer(cmd *cobra.Command, assumeYes bool) workflow.Confirmer {
	if assumeYes {
		return workflow.AlwaysConfirm
	}
	reader := bufio.NewReader(c.in)
	return workflow.ConfirmFunc(func(_ context.Context, job *jobs.Job) (bool, error) {
		fmt.Fprintf(cmd.OutOrStdout(), "Upload %d file(s) from %s as project %q with profile %q? [y/N]: ",
			len(job.Manifest), job.InputDir, job.ProjectName, job.ProfileKey)
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func printResumeHint(w io.Writer, err error) {
	var resumable *workflow.ResumableError
	if errors.As(err, &resumable) {
		fmt.Fprintf(w, "Job %d stopped during %s. Resume with: %s\n", resumable.JobID, resumable.Step, resumable.ResumeHint())
	}
}
