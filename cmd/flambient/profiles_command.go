package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"flambient/internal/exposure"
)

func newProfilesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the remote editing profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireRemote(); err != nil {
				return err
			}
			profiles, err := ctx.newEditor(cfg).Profiles(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(profiles) == 0 {
				fmt.Fprintln(out, "No profiles available")
				return nil
			}
			rows := make([][]string, 0, len(profiles))
			for _, p := range profiles {
				key := p.Key
				if key == cfg.Edit.ProfileKey {
					key += " (default)"
				}
				rows = append(rows, []string{key, p.Name, p.Description})
			}
			fmt.Fprintln(out, renderTable([]string{"Key", "Name", "Description"}, rows, nil))
			return nil
		},
	}
}

func newStrategiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "strategies",
		Short:       "List exposure classification strategies",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			strategies := exposure.Strategies()
			rows := make([][]string, 0, len(strategies))
			for _, s := range strategies {
				field := s.Field()
				if field == "" {
					field = "--field"
				}
				ambient := s.DefaultAmbientValue()
				if strings.TrimSpace(ambient) == "" {
					ambient = "--ambient-value"
				}
				rows = append(rows, []string{s.Name(), field, ambient, s.Help()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Strategy", "Field", "Ambient", "Description"},
				rows,
				nil,
			))
			return nil
		},
	}
}
