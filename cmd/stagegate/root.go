package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kingrea/stagegate/internal/config"
	"github.com/kingrea/stagegate/internal/logging"
)

// errContractViolation signals a failed validation that has already been
// reported on stdout.
var errContractViolation = errors.New("contract violation")

type rootOptions struct {
	projectDir string
	output     string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "stagegate",
		Short:         "Stage contracts and gated execution for the venture pipeline",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case "text", "json", "yaml":
				return nil
			}
			return fmt.Errorf("unknown output format %q (want text, json or yaml)", opts.output)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.projectDir, "project", "", "project directory (defaults to cwd)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text, json or yaml")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "v", false, "enable debug logging")

	cmd.AddCommand(
		newContractsCmd(opts),
		newDepsCmd(opts),
		newValidateCmd(opts),
		newRunCmd(opts),
		newGatesCmd(opts),
	)
	return cmd
}

func (o *rootOptions) project() (string, error) {
	dir := o.projectDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		dir = cwd
	}
	return filepath.Abs(dir)
}

// loadProject initializes .stagegate, reads its config and opens the log.
func (o *rootOptions) loadProject() (*config.Config, *logging.Logger, error) {
	dir, err := o.project()
	if err != nil {
		return nil, nil, err
	}
	if err := config.InitStagegateDir(dir); err != nil {
		return nil, nil, fmt.Errorf("init %s: %w", config.StagegateDir, err)
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return nil, nil, err
	}
	// Console logging only with --debug; stdout stays reserved for results.
	var logger *logging.Logger
	if o.debug {
		logger, err = logging.New(dir, true)
	} else {
		logger, err = logging.NewWithWriter(dir, cfg.Project.Log.Debug, nil)
	}
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
