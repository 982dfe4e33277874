package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kingrea/stagegate/internal/contracts"
	"github.com/kingrea/stagegate/internal/workflow"
)

func newContractsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "Inspect the stage contract registry",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every stage contract",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				docs := contracts.DescribeAll()
				if opts.output != "text" {
					return writeStructured(cmd.OutOrStdout(), opts.output, docs)
				}
				renderContractList(cmd.OutOrStdout(), docs)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show STAGE",
			Short: "Show the fields a stage consumes and produces",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				stage, err := parseStage(args[0])
				if err != nil {
					return err
				}
				doc, ok := contracts.Describe(stage)
				if !ok {
					return fmt.Errorf("no contract registered for stage-%02d", stage)
				}
				if opts.output != "text" {
					return writeStructured(cmd.OutOrStdout(), opts.output, doc)
				}
				renderContract(cmd.OutOrStdout(), doc)
				return nil
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Check registry consistency and agreement with the dependency graph",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				table := contracts.All()
				problems := contracts.CheckRegistry(table)
				problems = append(problems, workflow.CrossStageDeps().CheckContracts(table)...)
				out := cmd.OutOrStdout()
				if len(problems) == 0 {
					fmt.Fprintf(out, "%s %d contracts consistent\n", okStyle.Render("ok"), len(table))
					return nil
				}
				for _, problem := range problems {
					fmt.Fprintf(out, "%s %v\n", errStyle.Render("x"), problem)
				}
				return errContractViolation
			},
		},
	)
	return cmd
}

func parseStage(value string) (int, error) {
	stage, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid stage %q", value)
	}
	if stage < contracts.FirstStage || stage > contracts.LastStage {
		return 0, fmt.Errorf("stage must be between %d and %d", contracts.FirstStage, contracts.LastStage)
	}
	return stage, nil
}
