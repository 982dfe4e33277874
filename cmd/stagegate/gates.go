package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newGatesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gates",
		Short: "List or approve manual stage gates",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List configured manual gates",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := opts.loadProject()
				if err != nil {
					return err
				}
				defer logger.Close()
				gates := cfg.Project.Gates
				if opts.output != "text" {
					return writeStructured(cmd.OutOrStdout(), opts.output, gates)
				}
				stages := make([]int, 0, len(gates))
				for stage := range gates {
					stages = append(stages, stage)
				}
				sort.Ints(stages)
				if len(stages) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no manual gates configured"))
				}
				for _, stage := range stages {
					state := warnStyle.Render("pending")
					if gates[stage].Approved {
						state = okStyle.Render("approved")
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", stageLabel(stage, ""), state, dimStyle.Render(gates[stage].Note))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "approve STAGE",
			Short: "Approve a gated stage so the next run can execute it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				stage, err := parseStage(args[0])
				if err != nil {
					return err
				}
				cfg, logger, err := opts.loadProject()
				if err != nil {
					return err
				}
				defer logger.Close()
				if err := cfg.ApproveGate(stage); err != nil {
					return err
				}
				logger.Info("manual gate approved", "stage", stage)
				fmt.Fprintf(cmd.OutOrStdout(), "%s stage-%02d approved\n", okStyle.Render("ok"), stage)
				return nil
			},
		},
	)
	return cmd
}
