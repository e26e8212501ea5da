package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"flambient/internal/jobs"
	"flambient/internal/services"
)

const (
	runBlendDir  = "blends"
	runEditedDir = "edited"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	flags := &blendFlags{}
	edit := &editFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Blend and render locally, then edit the blends remotely",
		Long: `Writes and renders blend scripts into <output>/blends, then submits the
rendered images as a remote edit job whose results land in <output>/edited.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configCopy()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			cfg.Blend.Render = true

			output := strings.TrimSpace(flags.output)
			if output == "" && !flags.dryRun {
				return services.Wrap(services.ErrValidation, "run", "flags", "--output is required unless --dry-run is set", nil)
			}
			root, err := filepath.Abs(output)
			if err != nil {
				return services.Wrap(services.ErrValidation, "run", "flags", "resolve output dir", err)
			}
			profile := edit.profileKey(cfg)
			if profile == "" && !flags.dryRun {
				return services.Wrap(services.ErrValidation, "run", "flags", "--profile is required (or set edit.profile_key)", nil)
			}

			blendOpts := *flags
			blendOpts.output = filepath.Join(root, runBlendDir)
			plan, result, err := runBlend(cmd, ctx, cfg, &blendOpts)
			if err != nil || flags.dryRun {
				return err
			}

			rendered := renderedOutputs(result.Results)
			if len(rendered) == 0 {
				if err := renderFailure(result); err != nil {
					return err
				}
				return services.Wrap(services.ErrValidation, "run", "edit", "no blends were rendered; nothing to edit", nil)
			}
			if failed := result.Summary.Failed; failed > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %d group(s) failed to render and will not be edited\n", failed)
			}
			manifest := make([]string, 0, len(rendered))
			for _, path := range rendered {
				manifest = append(manifest, filepath.Base(path))
			}
			name := strings.TrimSpace(edit.name)
			if name == "" {
				name = filepath.Base(plan.InputDir)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitting %d blend(s) for editing\n", len(manifest))
			return submitJob(cmd, ctx, cfg, jobs.NewJob{
				ProjectName: name,
				InputDir:    result.Dir,
				OutputDir:   filepath.Join(root, runEditedDir),
				ProfileKey:  profile,
				EditOptions: edit.editOptions(cmd, cfg),
				Manifest:    manifest,
			}, edit.yes)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&edit.profile, "profile", "p", "", "Editing profile key")
	cmd.Flags().StringVar(&edit.name, "name", "", "Remote project name (defaults to the input directory name)")
	cmd.Flags().BoolVarP(&edit.yes, "yes", "y", false, "Start the edit without the confirmation prompt")
	cmd.Flags().BoolVar(&edit.skyReplacement, "sky-replacement", false, "Request sky replacement")
	cmd.Flags().BoolVar(&edit.windowPull, "window-pull", false, "Request window pull")
	cmd.Flags().BoolVar(&edit.perspectiveCorrection, "perspective-correction", false, "Request perspective correction")
	return cmd
}
