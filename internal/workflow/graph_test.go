package workflow

import (
	"reflect"
	"strings"
	"testing"

	"github.com/kingrea/stagegate/internal/contracts"
)

func TestCrossStageDepsCoversPipeline(t *testing.T) {
	graph := CrossStageDeps()
	if len(graph) != contracts.LastStage {
		t.Fatalf("expected %d stages, got %d", contracts.LastStage, len(graph))
	}
	for stage, deps := range graph {
		for _, dep := range deps {
			if dep >= stage {
				t.Fatalf("stage %d depends on later stage %d", stage, dep)
			}
		}
	}
	if err := graph.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestCrossStageDepsReturnsCopy(t *testing.T) {
	graph := CrossStageDeps()
	graph[2][0] = 99
	delete(graph, 3)
	fresh := CrossStageDeps()
	if fresh[2][0] != 1 {
		t.Fatalf("mutation leaked into table: %v", fresh[2])
	}
	if _, ok := fresh[3]; !ok {
		t.Fatalf("deleted node leaked into table")
	}
}

func TestGraphAgreesWithContracts(t *testing.T) {
	if errs := CrossStageDeps().CheckContracts(contracts.All()); len(errs) > 0 {
		t.Fatalf("graph disagrees with contracts: %v", errs)
	}
	broken := Graph{1: nil, 2: nil}
	table := []contracts.StageContract{}
	for _, stage := range []int{2, 3} {
		contract, _ := contracts.Get(stage)
		table = append(table, contract)
	}
	errs := broken.CheckContracts(table)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
	if !strings.Contains(errs[0].Error(), "stage-02 consumes stage-01") {
		t.Fatalf("unexpected error %v", errs[0])
	}
	if !strings.Contains(errs[1].Error(), "stage-03 has a contract but no graph node") {
		t.Fatalf("unexpected error %v", errs[1])
	}
}

func TestLevelsSeparateIndependentStages(t *testing.T) {
	levels, err := CrossStageDeps().Levels()
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	find := func(stage int) int {
		for i, layer := range levels {
			for _, s := range layer {
				if s == stage {
					return i
				}
			}
		}
		return -1
	}
	if find(1) != 0 {
		t.Fatalf("stage 1 should lead, got level %d", find(1))
	}
	if find(10) <= find(8) || find(12) <= find(10) || find(12) <= find(11) {
		t.Fatalf("dependency order broken: %v", levels)
	}
	if got := levels[5]; !reflect.DeepEqual(got, []int{6, 11}) {
		t.Fatalf("expected stages 6 and 11 to share a level, got %v", got)
	}
	total := 0
	for _, layer := range levels {
		total += len(layer)
	}
	if total != contracts.LastStage {
		t.Fatalf("levels dropped stages: %v", levels)
	}
}

func TestValidateRejectsBrokenGraphs(t *testing.T) {
	tests := []struct {
		name  string
		graph Graph
		want  string
	}{
		{name: "empty", graph: Graph{}, want: "graph is empty"},
		{name: "self", graph: Graph{1: {1}}, want: "depends on itself"},
		{name: "unknown", graph: Graph{1: {7}}, want: "unknown stage-07"},
		{name: "duplicate", graph: Graph{1: nil, 2: {1, 1}}, want: "lists stage-01 twice"},
		{name: "cycle", graph: Graph{1: {2}, 2: {1}}, want: "dependency cycle"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.graph.Validate()
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Fatalf("expected error containing %q, got %v", test.want, err)
			}
		})
	}
}

func TestClosure(t *testing.T) {
	graph := CrossStageDeps()
	got, err := graph.Closure(4)
	if err != nil {
		t.Fatalf("closure: %v", err)
	}
	if !reflect.DeepEqual(got, []int{1, 2, 3, 4}) {
		t.Fatalf("unexpected closure %v", got)
	}
	all, err := graph.Closure()
	if err != nil || len(all) != contracts.LastStage {
		t.Fatalf("empty targets should select everything, got %v %v", all, err)
	}
	if _, err := graph.Closure(42); err == nil {
		t.Fatalf("expected unknown stage error")
	}
}

func TestDependents(t *testing.T) {
	graph := CrossStageDeps()
	if got := graph.Dependents(24); !reflect.DeepEqual(got, []int{25}) {
		t.Fatalf("unexpected dependents of 24: %v", got)
	}
	if got := graph.Dependencies(25); !reflect.DeepEqual(got, []int{1, 5, 13, 16, 23, 24}) {
		t.Fatalf("unexpected dependencies of 25: %v", got)
	}
	if got := graph.Dependents(25); len(got) != 0 {
		t.Fatalf("stage 25 should be terminal, got %v", got)
	}
}
