package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/stagegate/internal/contracts"
	"github.com/kingrea/stagegate/internal/derive"
)

type validateOptions struct {
	advisory bool
	noDerive bool
	upstream []string
	single   string
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	vopts := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stage data against its contract",
	}
	cmd.PersistentFlags().BoolVar(&vopts.advisory, "advisory", false, "report violations without failing")

	pre := &cobra.Command{
		Use:   "pre STAGE",
		Short: "Check that upstream outputs satisfy what a stage consumes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := parseStage(args[0])
			if err != nil {
				return err
			}
			upstream, err := vopts.loadUpstream()
			if err != nil {
				return err
			}
			result := contracts.ValidatePreStage(stage, upstream, vopts.options(opts)...)
			return emitResult(cmd, opts, result)
		},
	}
	pre.Flags().StringArrayVar(&vopts.upstream, "upstream", nil, "upstream output as STAGE=FILE (repeatable)")
	pre.Flags().StringVar(&vopts.single, "single", "", "one merged document standing in for every upstream stage")

	post := &cobra.Command{
		Use:   "post STAGE FILE",
		Short: "Check a stage output against what the stage produces",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := parseStage(args[0])
			if err != nil {
				return err
			}
			var derivation contracts.Derivation
			if !vopts.noDerive {
				upstream, err := vopts.upstreamSet()
				if err != nil {
					return err
				}
				derivation = derive.Default().For(stage, upstream)
			}
			report, err := contracts.ValidateOutputFile(args[1], stage, derivation, vopts.options(opts)...)
			if err != nil {
				return err
			}
			return emitResult(cmd, opts, report.Result)
		},
	}
	post.Flags().BoolVar(&vopts.noDerive, "no-derive", false, "validate the raw output without computing derived fields")
	post.Flags().StringArrayVar(&vopts.upstream, "upstream", nil, "upstream output for gate derivations as STAGE=FILE (repeatable)")

	cmd.AddCommand(pre, post)
	return cmd
}

func (v *validateOptions) options(opts *rootOptions) []contracts.Option {
	mode := contracts.Blocking
	if v.advisory {
		mode = contracts.Advisory
	}
	var logger contracts.Logger = contracts.NopLogger
	if opts.debug {
		logger = slog.Default()
	}
	return []contracts.Option{contracts.WithEnforcement(mode), contracts.WithLogger(logger)}
}

func (v *validateOptions) loadUpstream() (contracts.Upstream, error) {
	if v.single != "" {
		if len(v.upstream) > 0 {
			return nil, fmt.Errorf("--single and --upstream are mutually exclusive")
		}
		doc, err := readDocument(v.single)
		if err != nil {
			return nil, err
		}
		return contracts.Single(doc), nil
	}
	set, err := v.upstreamSet()
	if err != nil {
		return nil, err
	}
	return set, nil
}

// upstreamSet reads the --upstream files. It is nil when none were given.
func (v *validateOptions) upstreamSet() (contracts.UpstreamSet, error) {
	if len(v.upstream) == 0 {
		return nil, nil
	}
	set := contracts.UpstreamSet{}
	for _, pair := range v.upstream {
		key, path, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --upstream %q (want STAGE=FILE)", pair)
		}
		stage, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("invalid --upstream stage %q", key)
		}
		doc, err := readDocument(path)
		if err != nil {
			return nil, err
		}
		set[stage] = doc
	}
	return set, nil
}

func readDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := contracts.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func emitResult(cmd *cobra.Command, opts *rootOptions, result contracts.Result) error {
	if opts.output != "text" {
		if err := writeStructured(cmd.OutOrStdout(), opts.output, result); err != nil {
			return err
		}
	} else {
		renderResult(cmd.OutOrStdout(), result)
	}
	if result.Blocked {
		return errContractViolation
	}
	return nil
}
