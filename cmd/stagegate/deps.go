package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/stagegate/internal/workflow"
)

type stageDeps struct {
	Stage        int   `json:"stage" yaml:"stage"`
	Dependencies []int `json:"dependencies" yaml:"dependencies"`
	Dependents   []int `json:"dependents" yaml:"dependents"`
}

func newDepsCmd(opts *rootOptions) *cobra.Command {
	var levels bool
	cmd := &cobra.Command{
		Use:   "deps [STAGE...]",
		Short: "Show the cross-stage dependency graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			graph := workflow.CrossStageDeps()
			out := cmd.OutOrStdout()
			if levels {
				layers, err := graph.Levels()
				if err != nil {
					return err
				}
				if opts.output != "text" {
					return writeStructured(out, opts.output, layers)
				}
				for i, layer := range layers {
					fmt.Fprintf(out, "%s %s\n", titleStyle.Render(fmt.Sprintf("level %d", i)), joinInts(layer))
				}
				return nil
			}
			stages := graph.Stages()
			if len(args) > 0 {
				stages = nil
				for _, arg := range args {
					stage, err := parseStage(arg)
					if err != nil {
						return err
					}
					stages = append(stages, stage)
				}
			}
			rows := make([]stageDeps, 0, len(stages))
			for _, stage := range stages {
				rows = append(rows, stageDeps{
					Stage:        stage,
					Dependencies: nonNil(graph.Dependencies(stage)),
					Dependents:   nonNil(graph.Dependents(stage)),
				})
			}
			if opts.output != "text" {
				return writeStructured(out, opts.output, rows)
			}
			for _, row := range rows {
				fmt.Fprintf(out, "%s  needs %s  feeds %s\n", titleStyle.Render(fmt.Sprintf("stage-%02d", row.Stage)), orDash(row.Dependencies), orDash(row.Dependents))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&levels, "levels", false, "group stages into parallelizable levels")
	return cmd
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, " ")
}

func orDash(values []int) string {
	if len(values) == 0 {
		return dimStyle.Render("-")
	}
	return joinInts(values)
}

func nonNil(values []int) []int {
	if values == nil {
		return []int{}
	}
	return values
}
