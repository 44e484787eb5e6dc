package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check answer keys, layouts, and thresholds without scoring",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ctx.keysFlag == "" {
				return fmt.Errorf("an answer-key file is required (--keys)")
			}
			th, err := ctx.loadThresholds()
			if err != nil {
				return err
			}
			if err := th.Validate(); err != nil {
				return err
			}
			tbl, err := ctx.loadTable()
			if err != nil {
				return err
			}

			out := table.NewWriter()
			out.SetOutputMirror(cmd.OutOrStdout())
			out.SetStyle(table.StyleLight)
			out.AppendHeader(table.Row{"Version", "Questions", "Status"})

			for _, version := range tbl.Versions() {
				l, key, err := tbl.Resolve(version)
				if err != nil {
					return err
				}
				status := "ok"
				if warnings := key.DistributionWarnings(l.OptionsPerQuestion); len(warnings) > 0 {
					status = ""
					for i, w := range warnings {
						if i > 0 {
							status += "; "
						}
						status += w
					}
				}
				out.AppendRow(table.Row{version, l.TotalQuestions, status})
			}
			out.Render()
			return nil
		},
	}
	return cmd
}
