package workflow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kingrea/stagegate/internal/contracts"
)

// Graph maps a stage number to the upstream stages its execution needs. It is
// denser than the contract registry: an edge may exist for ordering alone,
// without any field-level contract behind it.
type Graph map[int][]int

// crossStageDeps is the scheduler's dependency table. It is built once and
// only handed out as copies.
var crossStageDeps = mustGraph(Graph{
	1:  nil,
	2:  {1},
	3:  {1, 2},
	4:  {1, 3},
	5:  {1, 3, 4},
	6:  {1, 3, 4, 5},
	7:  {1, 4, 5, 6},
	8:  {1, 4, 5, 6, 7},
	9:  {1, 5, 6, 7, 8},
	10: {1, 3, 5, 8},
	11: {1, 5},
	12: {1, 5, 7, 10, 11},
	13: {1, 5, 8, 9},
	14: {1, 13},
	15: {1, 6, 13, 14},
	16: {1, 13, 14, 15},
	17: {13, 14, 15, 16},
	18: {13, 14, 17},
	19: {17, 18},
	20: {18, 19},
	21: {19, 20},
	22: {17, 18, 19, 20, 21},
	23: {1, 22},
	24: {5, 23},
	25: {1, 5, 13, 16, 23, 24},
})

// CrossStageDeps returns a copy of the scheduler dependency table.
func CrossStageDeps() Graph {
	return crossStageDeps.Clone()
}

// Clone returns a deep copy of the graph.
func (g Graph) Clone() Graph {
	if g == nil {
		return nil
	}
	out := make(Graph, len(g))
	for stage, deps := range g {
		if len(deps) == 0 {
			out[stage] = nil
			continue
		}
		clone := make([]int, len(deps))
		copy(clone, deps)
		out[stage] = clone
	}
	return out
}

// Stages lists every node in ascending order.
func (g Graph) Stages() []int {
	stages := make([]int, 0, len(g))
	for stage := range g {
		stages = append(stages, stage)
	}
	sort.Ints(stages)
	return stages
}

// Dependencies returns the sorted upstream stages of a node.
func (g Graph) Dependencies(stage int) []int {
	deps := append([]int(nil), g[stage]...)
	sort.Ints(deps)
	return deps
}

// Dependents returns the stages that list stage as a dependency.
func (g Graph) Dependents(stage int) []int {
	var out []int
	for node, deps := range g {
		for _, dep := range deps {
			if dep == stage {
				out = append(out, node)
				break
			}
		}
	}
	sort.Ints(out)
	return out
}

// Validate ensures every edge points at a known node, no node depends on
// itself or twice on the same stage, and the graph is acyclic.
func (g Graph) Validate() error {
	if len(g) == 0 {
		return errors.New("workflow: graph is empty")
	}
	for _, stage := range g.Stages() {
		seen := map[int]struct{}{}
		for _, dep := range g[stage] {
			if dep == stage {
				return fmt.Errorf("workflow: stage-%02d depends on itself", stage)
			}
			if _, ok := g[dep]; !ok {
				return fmt.Errorf("workflow: stage-%02d depends on unknown stage-%02d", stage, dep)
			}
			if _, dup := seen[dep]; dup {
				return fmt.Errorf("workflow: stage-%02d lists stage-%02d twice", stage, dep)
			}
			seen[dep] = struct{}{}
		}
	}
	if _, err := g.Levels(); err != nil {
		return err
	}
	return nil
}

// Levels groups stages into layers: every stage in a layer depends only on
// stages in earlier layers, so a layer can run concurrently once its
// predecessors finish. Stages inside a layer are sorted.
func (g Graph) Levels() ([][]int, error) {
	remaining := make(map[int]int, len(g))
	for stage, deps := range g {
		remaining[stage] = len(deps)
	}
	var levels [][]int
	placed := 0
	for placed < len(g) {
		var layer []int
		for stage, count := range remaining {
			if count == 0 {
				layer = append(layer, stage)
			}
		}
		if len(layer) == 0 {
			return nil, fmt.Errorf("workflow: dependency cycle among stages %v", keys(remaining))
		}
		sort.Ints(layer)
		for _, stage := range layer {
			delete(remaining, stage)
		}
		for _, stage := range layer {
			for _, dependent := range g.Dependents(stage) {
				if _, ok := remaining[dependent]; ok {
					remaining[dependent]--
				}
			}
		}
		levels = append(levels, layer)
		placed += len(layer)
	}
	return levels, nil
}

// Closure returns the targets plus every stage they transitively depend on,
// sorted. No targets selects the whole graph.
func (g Graph) Closure(targets ...int) ([]int, error) {
	if len(targets) == 0 {
		return g.Stages(), nil
	}
	seen := map[int]struct{}{}
	var visit func(stage int) error
	visit = func(stage int) error {
		if _, ok := g[stage]; !ok {
			return fmt.Errorf("workflow: unknown stage-%02d", stage)
		}
		if _, done := seen[stage]; done {
			return nil
		}
		seen[stage] = struct{}{}
		for _, dep := range g[stage] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, target := range targets {
		if err := visit(target); err != nil {
			return nil, err
		}
	}
	return keys(seen), nil
}

// CheckContracts verifies the graph agrees with a contract table: every stage
// with a contract is a node, and every stage a contract consumes from is also
// a graph dependency.
func (g Graph) CheckContracts(table []contracts.StageContract) []error {
	var errs []error
	for _, contract := range table {
		deps, ok := g[contract.Stage]
		if !ok {
			errs = append(errs, fmt.Errorf("workflow: stage-%02d has a contract but no graph node", contract.Stage))
			continue
		}
		for _, upstream := range contract.UpstreamStages() {
			if !containsStage(deps, upstream) {
				errs = append(errs, fmt.Errorf("workflow: stage-%02d consumes stage-%02d but the graph has no such edge", contract.Stage, upstream))
			}
		}
	}
	return errs
}

func mustGraph(g Graph) Graph {
	if err := g.Validate(); err != nil {
		panic(err)
	}
	if errs := g.CheckContracts(contracts.All()); len(errs) > 0 {
		panic(errors.Join(errs...))
	}
	return g
}

func containsStage(list []int, stage int) bool {
	for _, item := range list {
		if item == stage {
			return true
		}
	}
	return false
}

func keys[V any](set map[int]V) []int {
	out := make([]int, 0, len(set))
	for stage := range set {
		out = append(out, stage)
	}
	sort.Ints(out)
	return out
}
