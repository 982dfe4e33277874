package contracts

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// FirstStage and LastStage bound the venture pipeline.
	FirstStage = 1
	LastStage  = 25
)

// Dependency is the slice of an upstream stage's output that a stage reads.
// Fields may be a strict subset of the upstream stage's Produces spec.
type Dependency struct {
	Stage  int
	Fields Spec
}

// StageContract declares what a stage consumes and what it promises to produce.
type StageContract struct {
	Stage    int
	Name     string
	Phase    string
	Consumes []Dependency
	Produces Spec
}

// UpstreamStages lists the stages named by Consumes in declaration order.
func (c StageContract) UpstreamStages() []int {
	stages := make([]int, 0, len(c.Consumes))
	for _, dep := range c.Consumes {
		stages = append(stages, dep.Stage)
	}
	return stages
}

func (c StageContract) clone() StageContract {
	out := c
	out.Produces = c.Produces.clone()
	if len(c.Consumes) > 0 {
		out.Consumes = make([]Dependency, len(c.Consumes))
		for i, dep := range c.Consumes {
			out.Consumes[i] = Dependency{Stage: dep.Stage, Fields: dep.Fields.clone()}
		}
	}
	return out
}

// registry is filled once during package initialization and never written
// again. Index 0 is unused.
var registry = mustBuildRegistry(stageTable())

// Get returns the contract for a stage. Stages outside [FirstStage, LastStage]
// or without a registered contract report false.
func Get(stage int) (StageContract, bool) {
	contract := lookup(stage)
	if contract == nil {
		return StageContract{}, false
	}
	return contract.clone(), true
}

// All returns every registered contract ordered by stage number.
func All() []StageContract {
	out := make([]StageContract, 0, LastStage)
	for stage := FirstStage; stage <= LastStage; stage++ {
		if contract := lookup(stage); contract != nil {
			out = append(out, contract.clone())
		}
	}
	return out
}

func lookup(stage int) *StageContract {
	if stage < FirstStage || stage > LastStage {
		return nil
	}
	return registry[stage]
}

// CheckRegistry verifies a contract table is self-consistent: stage numbers are
// in range and unique, field names are unique per spec, every dependency points
// at an earlier stage, and every consumed field is promised by the producer
// with the same kind.
func CheckRegistry(table []StageContract) []error {
	var errs []error
	byStage := make(map[int]StageContract, len(table))
	for _, contract := range table {
		if contract.Stage < FirstStage || contract.Stage > LastStage {
			errs = append(errs, fmt.Errorf("stage %d: out of range [%d,%d]", contract.Stage, FirstStage, LastStage))
			continue
		}
		if _, exists := byStage[contract.Stage]; exists {
			errs = append(errs, fmt.Errorf("stage-%02d: registered twice", contract.Stage))
			continue
		}
		byStage[contract.Stage] = contract
		errs = append(errs, checkSpec(contract.Produces, fmt.Sprintf("stage-%02d produces", contract.Stage))...)
	}
	for _, contract := range table {
		if _, ok := byStage[contract.Stage]; !ok {
			continue
		}
		seenDeps := map[int]struct{}{}
		for _, dep := range contract.Consumes {
			label := fmt.Sprintf("stage-%02d consumes stage-%02d", contract.Stage, dep.Stage)
			if dep.Stage >= contract.Stage {
				errs = append(errs, fmt.Errorf("%s: dependency must reference an earlier stage", label))
				continue
			}
			if _, dup := seenDeps[dep.Stage]; dup {
				errs = append(errs, fmt.Errorf("%s: duplicate dependency", label))
				continue
			}
			seenDeps[dep.Stage] = struct{}{}
			if len(dep.Fields) == 0 {
				errs = append(errs, fmt.Errorf("%s: no fields declared", label))
			}
			errs = append(errs, checkSpec(dep.Fields, label)...)
			producer, ok := byStage[dep.Stage]
			if !ok {
				errs = append(errs, fmt.Errorf("%s: producer has no contract", label))
				continue
			}
			for _, field := range dep.Fields {
				promised, ok := producer.Produces.Lookup(field.Name)
				if !ok {
					errs = append(errs, fmt.Errorf("%s: field '%s' is not produced upstream", label, field.Name))
					continue
				}
				if promised.Rule == nil || field.Rule == nil {
					continue
				}
				if promised.Rule.Kind() != field.Rule.Kind() {
					errs = append(errs, fmt.Errorf("%s: field '%s' is %s upstream but consumed as %s", label, field.Name, promised.Rule.Kind(), field.Rule.Kind()))
				}
			}
		}
	}
	return errs
}

func checkSpec(spec Spec, label string) []error {
	var errs []error
	seen := map[string]struct{}{}
	for _, field := range spec {
		if strings.TrimSpace(field.Name) == "" {
			errs = append(errs, fmt.Errorf("%s: field name is required", label))
			continue
		}
		if field.Rule == nil {
			errs = append(errs, fmt.Errorf("%s: field '%s' has no rule", label, field.Name))
		}
		if _, dup := seen[field.Name]; dup {
			errs = append(errs, fmt.Errorf("%s: field '%s' declared twice", label, field.Name))
		}
		seen[field.Name] = struct{}{}
	}
	return errs
}

func mustBuildRegistry(table []StageContract) [LastStage + 1]*StageContract {
	if errs := CheckRegistry(table); len(errs) > 0 {
		panic(fmt.Errorf("contracts: invalid stage table: %w", errors.Join(errs...)))
	}
	var out [LastStage + 1]*StageContract
	for i := range table {
		contract := table[i]
		out[contract.Stage] = &contract
	}
	return out
}
