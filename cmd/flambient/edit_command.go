package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"flambient/internal/config"
	"flambient/internal/jobs"
	"flambient/internal/pipeline"
	"flambient/internal/preflight"
	"flambient/internal/remote"
	"flambient/internal/services"
	"flambient/internal/workflow"
)

type editFlags struct {
	input                 string
	output                string
	profile               string
	name                  string
	dryRun                bool
	yes                   bool
	resume                int64
	list                  bool
	status                int64
	remove                int64
	skyReplacement        bool
	windowPull            bool
	perspectiveCorrection bool
}

func newEditCommand(ctx *commandContext) *cobra.Command {
	flags := &editFlags{}
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Upload images for remote editing and download the results",
		Long: `Runs a resumable remote edit job: upload, process, export, download.

A failed job keeps its progress; continue it with --resume=<id>. Use --list
and --status=<id> to inspect jobs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configCopy()
			if err != nil {
				return err
			}
			switch {
			case flags.list:
				return ctx.withStore(func(store *jobs.Store) error {
					return listJobs(cmd, store)
				})
			case flags.status > 0:
				return ctx.withStore(func(store *jobs.Store) error {
					return showJob(cmd, store, flags.status)
				})
			case flags.remove > 0:
				return ctx.withStore(func(store *jobs.Store) error {
					return removeJob(cmd, store, flags.remove)
				})
			case flags.resume > 0:
				return resumeJob(cmd, ctx, cfg, flags)
			}
			return startEdit(cmd, ctx, cfg, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "Directory of images to edit")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Directory for edited images")
	cmd.Flags().StringVarP(&flags.profile, "profile", "p", "", "Editing profile key (see 'flambient profiles')")
	cmd.Flags().StringVar(&flags.name, "name", "", "Remote project name (defaults to the input directory name)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Show what would be uploaded without creating a job")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Start without the confirmation prompt")
	cmd.Flags().Int64Var(&flags.resume, "resume", 0, "Resume the job with this id")
	cmd.Flags().BoolVar(&flags.list, "list", false, "List jobs")
	cmd.Flags().Int64Var(&flags.status, "status", 0, "Show details for the job with this id")
	cmd.Flags().Int64Var(&flags.remove, "remove", 0, "Delete the job record with this id")
	cmd.Flags().BoolVar(&flags.skyReplacement, "sky-replacement", false, "Request sky replacement")
	cmd.Flags().BoolVar(&flags.windowPull, "window-pull", false, "Request window pull")
	cmd.Flags().BoolVar(&flags.perspectiveCorrection, "perspective-correction", false, "Request perspective correction")
	return cmd
}

// editOptions merges flag overrides into the configured defaults.
func (f *editFlags) editOptions(cmd *cobra.Command, cfg *config.Config) remote.EditOptions {
	opts := remote.EditOptions{
		SkyReplacement:        cfg.Edit.SkyReplacement,
		WindowPull:            cfg.Edit.WindowPull,
		PerspectiveCorrection: cfg.Edit.PerspectiveCorrection,
	}
	if cmd.Flags().Changed("sky-replacement") {
		opts.SkyReplacement = f.skyReplacement
	}
	if cmd.Flags().Changed("window-pull") {
		opts.WindowPull = f.windowPull
	}
	if cmd.Flags().Changed("perspective-correction") {
		opts.PerspectiveCorrection = f.perspectiveCorrection
	}
	return opts
}

func (f *editFlags) profileKey(cfg *config.Config) string {
	if key := strings.TrimSpace(f.profile); key != "" {
		return key
	}
	return strings.TrimSpace(cfg.Edit.ProfileKey)
}

func startEdit(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, flags *editFlags) error {
	input := strings.TrimSpace(flags.input)
	output := strings.TrimSpace(flags.output)
	if input == "" || output == "" {
		return services.Wrap(services.ErrValidation, "edit", "flags", "--input and --output are required", nil)
	}
	profile := flags.profileKey(cfg)
	if profile == "" {
		return services.Wrap(services.ErrValidation, "edit", "flags", "--profile is required (or set edit.profile_key)", nil)
	}
	inputDir, err := filepath.Abs(input)
	if err != nil {
		return services.Wrap(services.ErrValidation, "edit", "flags", "resolve input dir", err)
	}
	outputDir, err := filepath.Abs(output)
	if err != nil {
		return services.Wrap(services.ErrValidation, "edit", "flags", "resolve output dir", err)
	}
	manifest, err := pipeline.ScanManifest(inputDir)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(flags.name)
	if name == "" {
		name = filepath.Base(inputDir)
	}

	req := jobs.NewJob{
		ProjectName: name,
		InputDir:    inputDir,
		OutputDir:   outputDir,
		ProfileKey:  profile,
		EditOptions: flags.editOptions(cmd, cfg),
		Manifest:    manifest,
	}
	if flags.dryRun {
		printEditPlan(cmd.OutOrStdout(), req)
		fmt.Fprintln(cmd.OutOrStdout(), "Dry run: no job created")
		return nil
	}
	return submitJob(cmd, ctx, cfg, req, flags.yes)
}

// submitJob runs preflight, records the job, and drives it to completion.
func submitJob(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, req jobs.NewJob, assumeYes bool) error {
	if err := ctx.runPreflight(cmd, cfg, preflight.Options{
		InputDir:  req.InputDir,
		OutputDir: req.OutputDir,
		Remote:    true,
	}); err != nil {
		return err
	}
	editor := ctx.newEditor(cfg)
	return ctx.withStore(func(store *jobs.Store) error {
		job, err := store.Create(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created job %d (%d file(s))\n", job.ID, len(job.Manifest))
		err = ctx.watchJob(cmd.ErrOrStderr(), func(observer workflow.Observer) error {
			runner := ctx.newRunner(cfg, store, editor, observer)
			return runner.Start(cmd.Context(), job, ctx.confirmer(cmd, assumeYes))
		})
		return finishJob(cmd, job, err)
	})
}

func resumeJob(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, flags *editFlags) error {
	editor := ctx.newEditor(cfg)
	return ctx.withStore(func(store *jobs.Store) error {
		job, err := store.GetByID(cmd.Context(), flags.resume)
		if err != nil {
			return err
		}
		if job == nil {
			return services.Wrap(services.ErrNotFound, "edit", "resume", fmt.Sprintf("job %d not found", flags.resume), nil)
		}
		if err := ctx.runPreflight(cmd, cfg, preflight.Options{
			InputDir:  job.InputDir,
			OutputDir: job.OutputDir,
			Remote:    true,
		}); err != nil {
			return err
		}
		if job.Status == jobs.StatusPending {
			if key := strings.TrimSpace(flags.profile); key != "" {
				job.ProfileKey = key
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Starting pending job %d\n", job.ID)
			err = ctx.watchJob(cmd.ErrOrStderr(), func(observer workflow.Observer) error {
				runner := ctx.newRunner(cfg, store, editor, observer)
				return runner.Start(cmd.Context(), job, ctx.confirmer(cmd, flags.yes))
			})
			return finishJob(cmd, job, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Resuming job %d from %s\n", job.ID, statusLabel(string(job.ResumeStatus())))
		err = ctx.watchJob(cmd.ErrOrStderr(), func(observer workflow.Observer) error {
			runner := ctx.newRunner(cfg, store, editor, observer)
			return runner.Resume(cmd.Context(), job, workflow.ResumeOptions{ProfileKey: strings.TrimSpace(flags.profile)})
		})
		return finishJob(cmd, job, err)
	})
}

// finishJob prints the outcome of a run. Failures after the job exists
// carry the resume hint.
func finishJob(cmd *cobra.Command, job *jobs.Job, err error) error {
	out := cmd.OutOrStdout()
	if err != nil {
		var resumable *workflow.ResumableError
		if errors.As(err, &resumable) {
			printResumeHint(cmd.ErrOrStderr(), err)
			return err
		}
		if !errors.Is(err, workflow.ErrJobLocked) && job.ID > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Job %d: %v\n", job.ID, err)
		}
		return err
	}
	switch job.Status {
	case jobs.StatusCancelled:
		fmt.Fprintf(out, "Job %d cancelled; nothing was uploaded\n", job.ID)
	case jobs.StatusCompleted:
		fmt.Fprintf(out, "Job %d completed: %d of %d file(s) downloaded to %s\n",
			job.ID, job.DownloadedCount, len(job.Manifest), job.OutputDir)
	default:
		fmt.Fprintf(out, "Job %d is %s\n", job.ID, statusLabel(string(job.Status)))
	}
	return nil
}
