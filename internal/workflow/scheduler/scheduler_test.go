package scheduler

import (
	"reflect"
	"testing"

	"github.com/kingrea/stagegate/internal/workflow"
)

func buildScheduler(t *testing.T, graph workflow.Graph) *Scheduler {
	t.Helper()
	sched, err := New(graph)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return sched
}

func diamond() workflow.Graph {
	return workflow.Graph{
		1: nil,
		2: {1},
		3: {1},
		4: {2, 3},
	}
}

func TestSchedulerReturnsConcurrentReadyStages(t *testing.T) {
	sched := buildScheduler(t, diamond())
	batch, err := sched.Runnable(RunnableRequest{Completed: []int{1}})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if !reflect.DeepEqual(batch.Stages, []int{2, 3}) {
		t.Fatalf("unexpected batch: %v", batch.Stages)
	}
	reason, ok := batch.Skipped[4]
	if !ok || reason.Reason != SkipReasonNotReady || reason.Detail != "waiting on stage-02" {
		t.Fatalf("expected stage 4 not ready, got %+v", batch.Skipped)
	}
}

func TestSchedulerStartsWithRoots(t *testing.T) {
	sched := buildScheduler(t, workflow.CrossStageDeps())
	batch, err := sched.Runnable(RunnableRequest{})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if !reflect.DeepEqual(batch.Stages, []int{1}) {
		t.Fatalf("expected only stage 1, got %v", batch.Stages)
	}
}

func TestSchedulerParallelStagesInPipeline(t *testing.T) {
	sched := buildScheduler(t, workflow.CrossStageDeps())
	batch, err := sched.Runnable(RunnableRequest{Completed: []int{1, 2, 3, 4, 5}})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if !reflect.DeepEqual(batch.Stages, []int{6, 11}) {
		t.Fatalf("expected stages 6 and 11, got %v", batch.Stages)
	}
}

func TestSchedulerRespectsBatchSize(t *testing.T) {
	sched := buildScheduler(t, diamond())
	batch, err := sched.Runnable(RunnableRequest{Completed: []int{1}, BatchSize: 1})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if !reflect.DeepEqual(batch.Stages, []int{2}) {
		t.Fatalf("expected single stage, got %v", batch.Stages)
	}
}

func TestSchedulerHonorsManualGates(t *testing.T) {
	sched := buildScheduler(t, diamond())
	batch, err := sched.Runnable(RunnableRequest{
		Completed:   []int{1},
		ManualGates: map[int]ManualGateState{3: {Required: true}},
	})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if !reflect.DeepEqual(batch.Stages, []int{2}) {
		t.Fatalf("expected gated stage to be held back, got %v", batch.Stages)
	}
	reason, ok := batch.Skipped[3]
	if !ok || reason.Reason != SkipReasonManualGate || reason.Detail != "awaiting manual approval" {
		t.Fatalf("expected manual gate skip, got %+v", batch.Skipped)
	}

	approved, err := sched.Runnable(RunnableRequest{
		Completed:   []int{1},
		ManualGates: map[int]ManualGateState{3: {Required: true, Approved: true}},
	})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if !reflect.DeepEqual(approved.Stages, []int{2, 3}) {
		t.Fatalf("expected approved gate to run, got %v", approved.Stages)
	}
}

func TestSchedulerEnforcesMaxParallel(t *testing.T) {
	sched := buildScheduler(t, diamond())
	batch, err := sched.Runnable(RunnableRequest{Completed: []int{1}, Running: []int{2}, MaxParallel: 1})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if len(batch.Stages) != 0 {
		t.Fatalf("expected no stages at capacity, got %v", batch.Stages)
	}
	reason, ok := batch.Skipped[3]
	if !ok || reason.Reason != SkipReasonConcurrency {
		t.Fatalf("expected concurrency skip for stage 3, got %+v", batch.Skipped)
	}

	partial, err := sched.Runnable(RunnableRequest{Completed: []int{1}, Running: []int{2}, MaxParallel: 2})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if !reflect.DeepEqual(partial.Stages, []int{3}) {
		t.Fatalf("expected stage 3, got %v", partial.Stages)
	}
	if partial.Skipped[2].Reason != SkipReasonActive {
		t.Fatalf("expected running stage to be skipped, got %+v", partial.Skipped)
	}
}

func TestSchedulerTargetsNarrowScope(t *testing.T) {
	sched := buildScheduler(t, workflow.CrossStageDeps())
	remaining, err := sched.Remaining([]int{4}, []int{1})
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if !reflect.DeepEqual(remaining, []int{2, 3, 4}) {
		t.Fatalf("unexpected remaining stages %v", remaining)
	}
	batch, err := sched.Runnable(RunnableRequest{Targets: []int{4}, Completed: []int{1, 2, 3, 4}})
	if err != nil {
		t.Fatalf("runnable: %v", err)
	}
	if len(batch.Stages) != 0 || len(batch.Skipped) != 0 {
		t.Fatalf("expected nothing left to do, got %+v", batch)
	}
	if _, err := sched.Runnable(RunnableRequest{Targets: []int{99}}); err == nil {
		t.Fatalf("expected error for unknown target")
	}
}

func TestNewRejectsInvalidGraph(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for empty graph")
	}
	if _, err := New(workflow.Graph{1: {2}, 2: {1}}); err == nil {
		t.Fatalf("expected error for cyclic graph")
	}
}
