package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"omr-engine/internal/layout"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and scaffold processing configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write an annotated sample thresholds file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := layout.WriteSampleThresholds(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample thresholds to %s\n", args[0])
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective thresholds",
		RunE: func(cmd *cobra.Command, args []string) error {
			th, err := ctx.loadThresholds()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fill_threshold        = %.2f\n", th.FillThreshold)
			fmt.Fprintf(out, "separation_margin     = %.2f\n", th.SeparationMargin)
			fmt.Fprintf(out, "min_radius            = %d\n", th.MinRadius)
			fmt.Fprintf(out, "max_radius            = %d\n", th.MaxRadius)
			fmt.Fprintf(out, "audit_confidence      = %.2f\n", th.AuditConfidence)
			fmt.Fprintf(out, "review_ratio          = %.2f\n", th.ReviewRatio)
			fmt.Fprintf(out, "min_coverage          = %.2f\n", th.MinCoverage)
			fmt.Fprintf(out, "aspect_tolerance      = %.2f\n", th.AspectTolerance)
			fmt.Fprintf(out, "sheet_timeout_seconds = %d\n", th.SheetTimeoutSeconds)
			return nil
		},
	}

	cmd.AddCommand(initCmd)
	cmd.AddCommand(showCmd)
	return cmd
}
