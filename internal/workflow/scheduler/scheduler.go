package scheduler

import (
	"fmt"

	"github.com/kingrea/stagegate/internal/workflow"
)

// Selector exposes the minimal contract the pipeline runner needs to request
// runnable stage batches.
type Selector interface {
	Runnable(RunnableRequest) (RunnableBatch, error)
}

// Scheduler implements Selector on top of a stage dependency graph. It walks
// the graph in stage order, filters stages that are truly runnable, and
// enforces any configured constraints.
type Scheduler struct {
	graph workflow.Graph
}

// New wires a Scheduler to a validated copy of graph.
func New(graph workflow.Graph) (*Scheduler, error) {
	if len(graph) == 0 {
		return nil, fmt.Errorf("scheduler: a dependency graph is required")
	}
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return &Scheduler{graph: graph.Clone()}, nil
}

// RunnableRequest captures the current runtime state plus any scheduling
// constraints. The Scheduler produces batches that satisfy these constraints.
type RunnableRequest struct {
	// Targets optionally narrows scheduling to the listed stages and their
	// transitive dependencies. When empty, every stage is considered.
	Targets []int
	// Completed lists stages whose outputs are already published.
	Completed []int
	// Running lists stages that are currently executing so the scheduler won't
	// dispatch them twice.
	Running []int
	// BatchSize limits how many runnable stages are returned at once. Values <= 0
	// are treated as "no limit" (subject to MaxParallel enforcement).
	BatchSize int
	// MaxParallel caps how many stages may be active at once, including the
	// stages listed in Running. Values <= 0 disable the limit.
	MaxParallel int
	// ManualGates describes whether a stage requires manual approval and the
	// approval status.
	ManualGates map[int]ManualGateState
}

// ManualGateState records whether a manual approval is required before a stage
// may run.
type ManualGateState struct {
	Required bool
	Approved bool
	Note     string
}

// RunnableBatch describes the scheduler's decision. Stages are in ascending
// order.
type RunnableBatch struct {
	Stages  []int
	Skipped map[int]SkipReason
}

// SkipReason explains why a stage was excluded from the runnable set.
type SkipReason struct {
	Reason SkipReasonCode `json:"reason"`
	Detail string         `json:"detail,omitempty"`
}

// SkipReasonCode enumerates scheduler skip reasons.
type SkipReasonCode string

const (
	SkipReasonNotReady    SkipReasonCode = "not-ready"
	SkipReasonManualGate  SkipReasonCode = "manual-gate"
	SkipReasonConcurrency SkipReasonCode = "concurrency"
	SkipReasonActive      SkipReasonCode = "already-running"
)

// Remaining reports the stages in scope that have not completed yet.
func (s *Scheduler) Remaining(targets, completed []int) ([]int, error) {
	scope, err := s.graph.Closure(targets...)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	done := toSet(completed)
	var out []int
	for _, stage := range scope {
		if _, ok := done[stage]; !ok {
			out = append(out, stage)
		}
	}
	return out, nil
}

// Runnable returns a batch of runnable stages constrained by the request.
func (s *Scheduler) Runnable(req RunnableRequest) (RunnableBatch, error) {
	queue, err := s.Remaining(req.Targets, req.Completed)
	if err != nil {
		return RunnableBatch{}, err
	}
	rq := newRunnableQueue(queue)
	completed := toSet(req.Completed)
	running := toSet(req.Running)
	manual := req.manualGateSet()
	maxBatch := req.batchLimit(rq.Len(), len(running))
	result := RunnableBatch{}
	if maxBatch == 0 {
		if req.MaxParallel > 0 && len(running) >= req.MaxParallel {
			for _, stage := range queue {
				if _, active := running[stage]; active {
					continue
				}
				if s.waitingOn(stage, completed) == 0 {
					result.addSkip(stage, SkipReason{Reason: SkipReasonConcurrency, Detail: fmt.Sprintf("max parallel %d reached", req.MaxParallel)})
					break
				}
			}
		}
		return result, nil
	}
	for rq.Len() > 0 {
		stage, ok := rq.Pop()
		if !ok {
			break
		}
		if _, runningAlready := running[stage]; runningAlready {
			result.addSkip(stage, SkipReason{Reason: SkipReasonActive, Detail: "stage already running"})
			continue
		}
		if blocker := s.waitingOn(stage, completed); blocker != 0 {
			result.addSkip(stage, SkipReason{Reason: SkipReasonNotReady, Detail: fmt.Sprintf("waiting on stage-%02d", blocker)})
			continue
		}
		if gate, ok := manual[stage]; ok && gate.Required && !gate.Approved {
			note := gate.Note
			if note == "" {
				note = "awaiting manual approval"
			}
			result.addSkip(stage, SkipReason{Reason: SkipReasonManualGate, Detail: note})
			continue
		}
		result.Stages = append(result.Stages, stage)
		if len(result.Stages) >= maxBatch {
			break
		}
	}
	return result, nil
}

// waitingOn returns the first incomplete dependency of stage, or 0 when the
// stage is ready.
func (s *Scheduler) waitingOn(stage int, completed map[int]struct{}) int {
	for _, dep := range s.graph.Dependencies(stage) {
		if _, ok := completed[dep]; !ok {
			return dep
		}
	}
	return 0
}

func toSet(stages []int) map[int]struct{} {
	set := make(map[int]struct{}, len(stages))
	for _, stage := range stages {
		if stage <= 0 {
			continue
		}
		set[stage] = struct{}{}
	}
	return set
}

func (req RunnableRequest) manualGateSet() map[int]ManualGateState {
	if len(req.ManualGates) == 0 {
		return map[int]ManualGateState{}
	}
	set := make(map[int]ManualGateState, len(req.ManualGates))
	for stage, state := range req.ManualGates {
		if stage <= 0 {
			continue
		}
		set[stage] = state
	}
	return set
}

func (req RunnableRequest) batchLimit(queueLen int, runningCount int) int {
	limit := req.BatchSize
	if limit <= 0 || limit > queueLen {
		limit = queueLen
	}
	if req.MaxParallel > 0 {
		remaining := req.MaxParallel - runningCount
		if remaining <= 0 {
			return 0
		}
		if limit == 0 || limit > remaining {
			limit = remaining
		}
	}
	return limit
}

func (b *RunnableBatch) addSkip(stage int, reason SkipReason) {
	if stage <= 0 {
		return
	}
	if b.Skipped == nil {
		b.Skipped = make(map[int]SkipReason)
	}
	b.Skipped[stage] = reason
}

type runnableQueue struct {
	stages []int
}

func newRunnableQueue(stages []int) *runnableQueue {
	if len(stages) == 0 {
		return &runnableQueue{}
	}
	dup := make([]int, len(stages))
	copy(dup, stages)
	return &runnableQueue{stages: dup}
}

func (q *runnableQueue) Len() int {
	return len(q.stages)
}

func (q *runnableQueue) Pop() (int, bool) {
	if len(q.stages) == 0 {
		return 0, false
	}
	stage := q.stages[0]
	q.stages = q.stages[1:]
	return stage, true
}
