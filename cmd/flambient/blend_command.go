package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"flambient/internal/compositor"
	"flambient/internal/config"
	"flambient/internal/pipeline"
	"flambient/internal/preflight"
	"flambient/internal/services"
)

type blendFlags struct {
	input        string
	output       string
	strategy     string
	field        string
	ambientValue string
	dryRun       bool
	render       bool
}

func (f *blendFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "Directory of bracketed frames")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Directory for blend scripts and rendered images")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "Classification strategy (see 'flambient strategies')")
	cmd.Flags().StringVar(&f.field, "field", "", "EXIF field for the custom strategy")
	cmd.Flags().StringVar(&f.ambientValue, "ambient-value", "", "Raw field value that marks an ambient frame")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Classify and group without writing files")
}

// apply folds flag overrides into cfg. A new strategy drops the configured
// ambient value so the strategy default applies.
func (f *blendFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	strategy := strings.TrimSpace(f.strategy)
	field := strings.TrimSpace(f.field)
	if strategy == "" && field != "" {
		strategy = "custom"
	}
	if strategy != "" && strategy != cfg.Exposure.Strategy {
		cfg.Exposure.Strategy = strategy
		cfg.Exposure.AmbientValue = ""
	}
	if field != "" {
		cfg.Exposure.CustomField = field
	}
	if value := strings.TrimSpace(f.ambientValue); value != "" {
		cfg.Exposure.AmbientValue = value
	}
	if cmd.Flags().Changed("render") {
		cfg.Blend.Render = f.render
	}
}

func newBlendCommand(ctx *commandContext) *cobra.Command {
	flags := &blendFlags{}
	cmd := &cobra.Command{
		Use:   "blend",
		Short: "Classify, group, and blend flash/ambient brackets locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configCopy()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			_, result, err := runBlend(cmd, ctx, cfg, flags)
			if err != nil {
				return err
			}
			return renderFailure(result)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.render, "render", false, "Run ImageMagick on the written scripts")
	return cmd
}

// runBlend plans the shoot, prints the summary, and unless dry-run writes
// (and optionally renders) the blend scripts. Render failures are left in the
// returned output for the caller to judge.
func runBlend(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, flags *blendFlags) (*pipeline.Plan, *pipeline.Output, error) {
	input := strings.TrimSpace(flags.input)
	output := strings.TrimSpace(flags.output)
	if input == "" {
		return nil, nil, services.Wrap(services.ErrValidation, "blend", "flags", "--input is required", nil)
	}
	if output == "" && !flags.dryRun {
		return nil, nil, services.Wrap(services.ErrValidation, "blend", "flags", "--output is required unless --dry-run is set", nil)
	}

	settings, err := pipeline.SettingsFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts := preflight.Options{InputDir: input, Blend: true}
	if !flags.dryRun {
		opts.OutputDir = output
		opts.Render = settings.Render
	}
	if err := ctx.runPreflight(cmd, cfg, opts); err != nil {
		return nil, nil, err
	}

	progress := newRenderProgress(cmd.ErrOrStderr())
	planner := ctx.newPlanner(cfg, settings, progress.hook)
	plan, err := planner.Plan(cmd.Context(), input)
	if err != nil {
		return nil, nil, err
	}

	out := cmd.OutOrStdout()
	printPlan(out, plan, settings)
	if flags.dryRun {
		fmt.Fprintln(out, "Dry run: no files written")
		return plan, nil, nil
	}

	progress.start(len(plan.Recipes))
	result, err := planner.Materialize(cmd.Context(), plan, output)
	if err != nil {
		return plan, nil, err
	}
	printOutput(out, result)
	return plan, result, nil
}

// renderFailure reports groups the engine failed to render. Failed groups do
// not stop the rest of the batch.
func renderFailure(result *pipeline.Output) error {
	if result == nil || !result.Render || result.Summary.Failed == 0 {
		return nil
	}
	return services.Wrap(services.ErrExternalTool, "blend", "render",
		fmt.Sprintf("%d group(s) failed to render", result.Summary.Failed), nil)
}

func printPlan(out io.Writer, plan *pipeline.Plan, settings pipeline.Settings) {
	stats := plan.Stats
	fmt.Fprintf(out, "Input: %s\n", plan.InputDir)
	fmt.Fprintf(out, "Strategy: %s (field %s, ambient value %q)\n",
		settings.Strategy.Label(), settings.Strategy.Field(), settings.AmbientValue)
	fmt.Fprintf(out, "Frames: %d (%d ambient, %d flash)\n", stats.Total, stats.Ambient, stats.Flash)
	fmt.Fprintf(out, "Groups: %d (%d blendable, %d unblendable)\n", stats.Groups, stats.GroupsWithBoth, stats.Unblendable)
	if plan.MissingTimestamps > 0 {
		fmt.Fprintf(out, "Warning: %d frame(s) have no capture time\n", plan.MissingTimestamps)
	}
	if len(plan.Groups) == 0 {
		return
	}

	rows := make([][]string, 0, len(plan.Recipes))
	for i, group := range plan.Groups {
		target := ""
		if i < len(plan.Recipes) {
			recipe := plan.Recipes[i]
			if recipe.Skipped() {
				target = "skipped: " + recipe.SkipReason()
			} else {
				target = filepath.Base(recipe.OutputPath)
			}
		}
		rows = append(rows, []string{
			strconv.Itoa(group.Sequence),
			strconv.Itoa(len(group.Ambient)),
			strconv.Itoa(len(group.Flash)),
			target,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Group", "Ambient", "Flash", "Output"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignLeft},
	))
}

func printOutput(out io.Writer, result *pipeline.Output) {
	fmt.Fprintf(out, "Scripts written to %s (%d group scripts, runner %s)\n",
		result.Dir, len(result.Scripts.Scripts), filepath.Base(result.Scripts.Runner))
	if !result.Render {
		fmt.Fprintf(out, "Render with: bash %s\n", result.Scripts.Runner)
		return
	}
	s := result.Summary
	fmt.Fprintf(out, "Rendered: %d succeeded, %d failed, %d skipped\n", s.Succeeded, s.Failed, s.Skipped)
	for _, r := range result.Results {
		if r.Err != nil {
			fmt.Fprintf(out, "  group %d: %v\n", r.GroupID, r.Err)
		}
	}
}

// renderedOutputs returns the files the render step produced.
func renderedOutputs(results []compositor.Result) []string {
	var files []string
	for _, r := range results {
		if !r.Skipped && r.Err == nil && r.OutputPath != "" {
			files = append(files, r.OutputPath)
		}
	}
	return files
}
