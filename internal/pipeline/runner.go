package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/stagegate/internal/contracts"
	"github.com/kingrea/stagegate/internal/workflow"
	"github.com/kingrea/stagegate/internal/workflow/scheduler"
)

// Request is what an Executor receives for one stage: the published outputs of
// every stage the scheduler graph lists as a dependency, keyed by stage.
type Request struct {
	RunID    string
	Venture  string
	Stage    int
	Upstream map[int]map[string]any
}

// Executor produces the raw output of a stage. In production this is the
// LLM-backed analysis step; any data producer satisfying the contract works.
type Executor interface {
	Execute(ctx context.Context, req Request) (map[string]any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (map[string]any, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (map[string]any, error) {
	return f(ctx, req)
}

// Derivations resolves the enrichment step for a stage, bound to the published
// outputs of the stage's dependencies. *derive.Registry satisfies it.
type Derivations interface {
	For(stage int, upstream contracts.UpstreamSet) contracts.Derivation
}

// OutputStore persists published outputs keyed by venture and stage.
type OutputStore interface {
	Save(venture string, stage int, runID string, fields map[string]any, warnings []string) error
}

// Recorder observes validation and stage outcomes, typically for metrics.
type Recorder interface {
	ObserveValidation(result contracts.Result)
	ObserveStage(stage int, status string, elapsed time.Duration)
}

// Runner chains stage executions over the dependency graph. Each stage moves
// raw -> enriched -> published, and only published outputs are visible to
// later stages.
type Runner struct {
	executor    Executor
	graph       workflow.Graph
	sched       *scheduler.Scheduler
	ledger      *Ledger
	derivations Derivations
	enforcement contracts.Enforcement
	logger      contracts.Logger
	maxParallel int
	batchSize   int
	targets     []int
	gates       map[int]scheduler.ManualGateState
	store       OutputStore
	recorder    Recorder
	clock       func() time.Time
	newRunID    func() string
}

// Option customizes the runner.
type Option func(*Runner)

// WithEnforcement selects advisory or blocking validation.
func WithEnforcement(mode contracts.Enforcement) Option {
	return func(r *Runner) {
		if mode != "" {
			r.enforcement = mode
		}
	}
}

// WithLogger routes runner and validator logs.
func WithLogger(logger contracts.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxParallel caps how many stages execute at once. Values <= 0 disable
// the limit.
func WithMaxParallel(n int) Option {
	return func(r *Runner) { r.maxParallel = n }
}

// WithBatchSize caps how many stages are dispatched per scheduling round.
func WithBatchSize(n int) Option {
	return func(r *Runner) { r.batchSize = n }
}

// WithTargets narrows the run to the listed stages and their dependencies.
func WithTargets(stages ...int) Option {
	return func(r *Runner) { r.targets = append([]int(nil), stages...) }
}

// WithManualGates holds stages back until they are approved.
func WithManualGates(gates map[int]scheduler.ManualGateState) Option {
	return func(r *Runner) {
		r.gates = make(map[int]scheduler.ManualGateState, len(gates))
		for stage, gate := range gates {
			r.gates[stage] = gate
		}
	}
}

// WithDerivations installs the per-stage enrichment steps.
func WithDerivations(d Derivations) Option {
	return func(r *Runner) { r.derivations = d }
}

// WithStore persists each published output.
func WithStore(store OutputStore) Option {
	return func(r *Runner) { r.store = store }
}

// WithRecorder reports validation and stage outcomes.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithLedger seeds the runner with previously published outputs, which lets a
// run resume where an earlier one stopped.
func WithLedger(ledger *Ledger) Option {
	return func(r *Runner) {
		if ledger != nil {
			r.ledger = ledger
		}
	}
}

// WithGraph replaces the scheduler dependency graph.
func WithGraph(graph workflow.Graph) Option {
	return func(r *Runner) {
		if graph != nil {
			r.graph = graph.Clone()
		}
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithRunID fixes the run identifier instead of generating a UUID.
func WithRunID(id string) Option {
	return func(r *Runner) {
		if id != "" {
			r.newRunID = func() string { return id }
		}
	}
}

// New wires a runner to a stage executor.
func New(executor Executor, opts ...Option) (*Runner, error) {
	if executor == nil {
		return nil, errors.New("pipeline: executor is required")
	}
	runner := &Runner{
		executor:    executor,
		graph:       workflow.CrossStageDeps(),
		ledger:      NewLedger(),
		enforcement: contracts.Blocking,
		logger:      slog.Default(),
		clock:       time.Now,
		newRunID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(runner)
	}
	sched, err := scheduler.New(runner.graph)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	runner.sched = sched
	return runner, nil
}

// Ledger exposes the runner's published outputs.
func (r *Runner) Ledger() *Ledger {
	return r.ledger
}

// Run executes every stage in scope whose output is not yet published. It
// returns a *BlockedError when a blocking validation halts the run and a
// wrapped executor or store error when a stage fails. The report is returned
// in every case.
func (r *Runner) Run(ctx context.Context, venture string) (*Report, error) {
	report := &Report{
		RunID:       r.newRunID(),
		Venture:     venture,
		Enforcement: r.enforcement,
		Status:      RunStatusRunning,
		StartedAt:   r.now(),
	}
	err := r.loop(ctx, report)
	report.FinishedAt = r.now()
	var blocked *BlockedError
	switch {
	case err == nil:
	case errors.As(err, &blocked):
		report.Status = RunStatusBlocked
		report.Reason = err.Error()
	default:
		report.Status = RunStatusError
		report.Reason = err.Error()
	}
	r.logger.Info("pipeline run finished", "run_id", report.RunID, "venture", venture, "status", string(report.Status), "stages", len(report.Stages))
	return report, err
}

func (r *Runner) loop(ctx context.Context, report *Report) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		completed := r.ledger.Stages()
		batch, err := r.sched.Runnable(scheduler.RunnableRequest{
			Targets:     r.targets,
			Completed:   completed,
			BatchSize:   r.batchSize,
			MaxParallel: r.maxParallel,
			ManualGates: r.gates,
		})
		if err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		if len(batch.Stages) == 0 {
			remaining, err := r.sched.Remaining(r.targets, completed)
			if err != nil {
				return fmt.Errorf("pipeline: %w", err)
			}
			if len(remaining) == 0 {
				report.Status = RunStatusComplete
				return nil
			}
			report.Skipped = batch.Skipped
			report.Status = RunStatusGated
			report.Reason = fmt.Sprintf("stages %v are waiting on manual approval or unpublished dependencies", remaining)
			return nil
		}
		if err := r.runBatch(ctx, report, batch.Stages); err != nil {
			return err
		}
	}
}

func (r *Runner) runBatch(ctx context.Context, report *Report, stages []int) error {
	group, groupCtx := errgroup.WithContext(ctx)
	if r.maxParallel > 0 {
		group.SetLimit(r.maxParallel)
	}
	var mu sync.Mutex
	results := make(map[int]StageReport, len(stages))
	for _, stage := range stages {
		group.Go(func() error {
			entry, err := r.runStage(groupCtx, report.RunID, report.Venture, stage)
			mu.Lock()
			results[stage] = entry
			mu.Unlock()
			return err
		})
	}
	err := group.Wait()
	for _, stage := range stages {
		if entry, ok := results[stage]; ok {
			report.Stages = append(report.Stages, entry)
		}
	}
	return err
}

func (r *Runner) runStage(ctx context.Context, runID, venture string, stage int) (StageReport, error) {
	entry := StageReport{Stage: stage, StartedAt: r.now()}
	if contract, ok := contracts.Get(stage); ok {
		entry.Name = contract.Name
	}
	finish := func(status StageStatus, err error) (StageReport, error) {
		entry.Status = status
		entry.FinishedAt = r.now()
		if err != nil {
			entry.Error = err.Error()
		}
		if r.recorder != nil {
			r.recorder.ObserveStage(stage, string(status), entry.Duration())
		}
		return entry, err
	}
	opts := []contracts.Option{contracts.WithEnforcement(r.enforcement), contracts.WithLogger(r.logger)}

	entry.Pre = contracts.ValidatePreStage(stage, r.ledger, opts...)
	r.observe(entry.Pre)
	if entry.Pre.Blocked {
		return finish(StageStatusBlocked, &BlockedError{Stage: stage, Phase: contracts.PhasePre, Errors: entry.Pre.Errors})
	}

	r.logger.Info("executing stage", "run_id", runID, "stage", stage)
	raw, err := r.executor.Execute(ctx, Request{
		RunID:    runID,
		Venture:  venture,
		Stage:    stage,
		Upstream: r.ledger.Snapshot(r.graph.Dependencies(stage)),
	})
	if err != nil {
		return finish(StageStatusFailed, fmt.Errorf("pipeline: stage-%02d execute: %w", stage, err))
	}

	enriched := contracts.Enrich(stage, raw, r.derivationFor(stage))
	// Kill gates are advisory; contract violations alone block the run.
	gate, _ := enriched.Get("blockProgression")
	if blocked, _ := gate.(bool); blocked {
		reasons, _ := enriched.Get("reasons")
		r.logger.Warn("kill gate tripped", "run_id", runID, "stage", stage, "reasons", reasons)
	}
	post := contracts.ValidatePostStage(stage, enriched, opts...)
	entry.Post = &post
	r.observe(post)
	if post.Blocked {
		return finish(StageStatusBlocked, &BlockedError{Stage: stage, Phase: contracts.PhasePost, Errors: post.Errors})
	}

	entry.Warnings = findings(entry.Pre, post)
	published, err := r.publish(enriched, entry.Warnings)
	if err != nil {
		return finish(StageStatusFailed, err)
	}
	if r.store != nil {
		if err := r.store.Save(venture, stage, runID, published.fields, published.warnings); err != nil {
			return finish(StageStatusFailed, fmt.Errorf("pipeline: stage-%02d persist: %w", stage, err))
		}
	}
	return finish(StageStatusPublished, nil)
}

// Restore publishes a previously persisted output without executing the
// stage. The output is enriched and post-validated like a fresh one; in
// blocking mode an invalid output is rejected with a *BlockedError.
func (r *Runner) Restore(stage int, raw map[string]any) (contracts.Result, error) {
	enriched := contracts.Enrich(stage, raw, r.derivationFor(stage))
	result := contracts.ValidatePostStage(stage, enriched, contracts.WithEnforcement(r.enforcement), contracts.WithLogger(r.logger))
	r.observe(result)
	if result.Blocked {
		return result, &BlockedError{Stage: stage, Phase: contracts.PhasePost, Errors: result.Errors}
	}
	_, err := r.publish(enriched, findings(contracts.Result{}, result))
	return result, err
}

func (r *Runner) publish(output contracts.Enriched, warnings []string) (Published, error) {
	if output.Stage() < contracts.FirstStage || output.Stage() > contracts.LastStage {
		return Published{}, fmt.Errorf("pipeline: cannot publish stage %d", output.Stage())
	}
	published := Published{
		stage:       output.Stage(),
		fields:      output.Fields(),
		warnings:    warnings,
		publishedAt: r.now(),
	}
	r.ledger.publish(published)
	return published, nil
}

func (r *Runner) derivationFor(stage int) contracts.Derivation {
	if r.derivations == nil {
		return nil
	}
	return r.derivations.For(stage, r.ledger.Snapshot(r.graph.Dependencies(stage)))
}

func (r *Runner) observe(result contracts.Result) {
	if r.recorder != nil {
		r.recorder.ObserveValidation(result)
	}
}

func (r *Runner) now() time.Time {
	if r.clock == nil {
		return time.Now()
	}
	return r.clock()
}

// findings collects what a tolerated stage leaves behind for audit: warnings
// from both phases plus any errors advisory mode let through.
func findings(pre, post contracts.Result) []string {
	var out []string
	for _, result := range []contracts.Result{pre, post} {
		out = append(out, result.Warnings...)
		if !result.Blocked {
			for _, msg := range result.Errors {
				out = append(out, fmt.Sprintf("%s: %s", result.Phase, msg))
			}
		}
	}
	return out
}
