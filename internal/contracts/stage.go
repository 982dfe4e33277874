package contracts

import (
	"fmt"
	"log/slog"
)

// Enforcement decides whether contract violations halt a stage.
type Enforcement string

const (
	// Advisory reports violations at warn level and never blocks.
	Advisory Enforcement = "advisory"
	// Blocking reports violations at error level and blocks when any exist.
	Blocking Enforcement = "blocking"
)

// ParseEnforcement accepts "advisory" or "blocking". An empty string selects
// Blocking.
func ParseEnforcement(value string) (Enforcement, error) {
	switch Enforcement(value) {
	case "", Blocking:
		return Blocking, nil
	case Advisory:
		return Advisory, nil
	}
	return "", fmt.Errorf("contracts: unknown enforcement %q (want advisory or blocking)", value)
}

// ValidationPhase distinguishes checks before and after a stage executes.
type ValidationPhase string

const (
	PhasePre  ValidationPhase = "pre"
	PhasePost ValidationPhase = "post"
)

// Logger is the logging capability validators write to. *slog.Logger
// satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Info(string, ...any)  {}

// NopLogger discards everything.
var NopLogger Logger = nopLogger{}

// Options carries per-call validation settings.
type Options struct {
	Logger      Logger
	Enforcement Enforcement
}

// Option customizes a validation call.
type Option func(*Options)

// WithLogger routes validation logs to logger. A nil logger is ignored.
func WithLogger(logger Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithEnforcement selects advisory or blocking behavior.
func WithEnforcement(mode Enforcement) Option {
	return func(o *Options) {
		if mode != "" {
			o.Enforcement = mode
		}
	}
}

func resolveOptions(opts []Option) Options {
	resolved := Options{Enforcement: Blocking}
	for _, opt := range opts {
		if opt != nil {
			opt(&resolved)
		}
	}
	if resolved.Logger == nil {
		resolved.Logger = slog.Default()
	}
	return resolved
}

// Upstream supplies published outputs of earlier stages.
type Upstream interface {
	Lookup(stage int) (map[string]any, bool)
}

// UpstreamSet maps stage numbers to their outputs. It is the multi-predecessor
// form of Upstream.
type UpstreamSet map[int]map[string]any

// Lookup implements Upstream.
func (s UpstreamSet) Lookup(stage int) (map[string]any, bool) {
	data, ok := s[stage]
	if !ok || data == nil {
		return nil, false
	}
	return data, true
}

// Single is the shorthand form of Upstream: one flat output that stands in for
// every dependency the stage declares. It is meant for stages with exactly one
// dependency.
type Single map[string]any

// Lookup implements Upstream.
func (s Single) Lookup(int) (map[string]any, bool) {
	if s == nil {
		return nil, false
	}
	return s, true
}

// Result is the outcome of a pre- or post-stage validation. Errors and Warnings
// are never nil.
type Result struct {
	Stage       int             `json:"stage" yaml:"stage"`
	Phase       ValidationPhase `json:"phase" yaml:"phase"`
	Valid       bool            `json:"valid" yaml:"valid"`
	Errors      []string        `json:"errors" yaml:"errors"`
	Warnings    []string        `json:"warnings" yaml:"warnings"`
	Enforcement Enforcement     `json:"enforcement" yaml:"enforcement"`
	Blocked     bool            `json:"blocked" yaml:"blocked"`
}

func newResult(stage int, phase ValidationPhase, mode Enforcement, errs, warnings []string) Result {
	if errs == nil {
		errs = []string{}
	}
	if warnings == nil {
		warnings = []string{}
	}
	return Result{
		Stage:       stage,
		Phase:       phase,
		Valid:       len(errs) == 0,
		Errors:      errs,
		Warnings:    warnings,
		Enforcement: mode,
		Blocked:     mode == Blocking && len(errs) > 0,
	}
}

// ValidatePreStage checks, before a stage runs, that every upstream output the
// stage consumes is present and structurally valid. A missing upstream output
// is an error when the dependency declares any required field and a warning
// when all of its fields are optional.
func ValidatePreStage(stage int, upstream Upstream, opts ...Option) Result {
	options := resolveOptions(opts)
	contract := lookup(stage)
	// An unregistered stage has nothing to vouch for its inputs, so it is
	// reported invalid rather than passed through.
	if contract == nil {
		result := newResult(stage, PhasePre, options.Enforcement, []string{fmt.Sprintf("stage-%02d: no contract registered", stage)}, nil)
		report(options, result)
		return result
	}
	if len(contract.Consumes) == 0 {
		return newResult(stage, PhasePre, options.Enforcement, nil, nil)
	}
	var errs, warnings []string
	for _, dep := range contract.Consumes {
		label := fmt.Sprintf("stage-%02d", dep.Stage)
		var data map[string]any
		present := false
		if upstream != nil {
			data, present = upstream.Lookup(dep.Stage)
		}
		if !present || data == nil {
			if dep.Fields.HasRequired() {
				errs = append(errs, fmt.Sprintf("upstream %s data missing (has required fields)", label))
			} else {
				warnings = append(warnings, fmt.Sprintf("upstream %s data not available (optional)", label))
			}
			continue
		}
		errs = append(errs, Validate(data, dep.Fields, label).Errors...)
	}
	result := newResult(stage, PhasePre, options.Enforcement, errs, warnings)
	report(options, result)
	return result
}

// ValidatePostStage checks an enriched stage output against the stage's own
// produces contract.
func ValidatePostStage(stage int, output Enriched, opts ...Option) Result {
	options := resolveOptions(opts)
	label := fmt.Sprintf("stage-%02d-output", stage)
	contract := lookup(stage)
	if contract == nil {
		result := newResult(stage, PhasePost, options.Enforcement, []string{fmt.Sprintf("stage-%02d: no contract registered", stage)}, nil)
		report(options, result)
		return result
	}
	if output.Stage() != stage {
		result := newResult(stage, PhasePost, options.Enforcement, []string{fmt.Sprintf("%s: output was enriched for stage-%02d", label, output.Stage())}, nil)
		report(options, result)
		return result
	}
	if len(contract.Produces) == 0 {
		return newResult(stage, PhasePost, options.Enforcement, nil, nil)
	}
	verdict := Validate(output.fields, contract.Produces, label)
	result := newResult(stage, PhasePost, options.Enforcement, verdict.Errors, nil)
	report(options, result)
	return result
}

func report(options Options, result Result) {
	defer func() {
		// A misbehaving logger must not turn a validation into a panic.
		_ = recover()
	}()
	msg := fmt.Sprintf("%s-stage contract check", result.Phase)
	if len(result.Warnings) > 0 {
		options.Logger.Warn(msg+" warnings", "stage", result.Stage, "phase", string(result.Phase), "warnings", result.Warnings)
	}
	if len(result.Errors) == 0 {
		return
	}
	args := []any{"stage", result.Stage, "phase", string(result.Phase), "enforcement", string(result.Enforcement), "errors", result.Errors}
	if result.Enforcement == Blocking {
		options.Logger.Error(msg+" failed", args...)
		return
	}
	options.Logger.Warn(msg+" failed", args...)
}
