package derive

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kingrea/stagegate/internal/contracts"
)

// Func is a derivation that may also read the published output of upstream
// stages. A nil upstream means no upstream data was supplied, which gate
// evaluations report as such rather than as empty stages.
type Func func(raw map[string]any, upstream contracts.UpstreamSet) map[string]any

// Registry maps stage numbers to their derivation functions.
type Registry struct {
	mu          sync.RWMutex
	derivations map[int]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{derivations: map[int]Func{}}
}

// Register installs a derivation that reads only the stage's own output.
// Returns an error if the stage already has one.
func (r *Registry) Register(stage int, derivation contracts.Derivation) error {
	if derivation == nil {
		return fmt.Errorf("derive: derivation is required for stage-%02d", stage)
	}
	return r.RegisterFunc(stage, func(raw map[string]any, _ contracts.UpstreamSet) map[string]any {
		return derivation(raw)
	})
}

// RegisterFunc installs an upstream-aware derivation.
func (r *Registry) RegisterFunc(stage int, fn Func) error {
	if stage < contracts.FirstStage || stage > contracts.LastStage {
		return fmt.Errorf("derive: stage %d out of range", stage)
	}
	if fn == nil {
		return fmt.Errorf("derive: derivation is required for stage-%02d", stage)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.derivations[stage]; exists {
		return fmt.Errorf("derive: stage-%02d already registered", stage)
	}
	r.derivations[stage] = fn
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(stage int, derivation contracts.Derivation) {
	if err := r.Register(stage, derivation); err != nil {
		panic(err)
	}
}

// MustRegisterFunc panics if registration fails.
func (r *Registry) MustRegisterFunc(stage int, fn Func) {
	if err := r.RegisterFunc(stage, fn); err != nil {
		panic(err)
	}
}

// For binds the stage's derivation to the given upstream outputs. It returns
// nil when the stage emits every field directly. A nil Registry has no
// derivations.
func (r *Registry) For(stage int, upstream contracts.UpstreamSet) contracts.Derivation {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	fn := r.derivations[stage]
	r.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return func(raw map[string]any) map[string]any {
		return fn(raw, upstream)
	}
}

// Stages returns the sorted list of stages with a derivation.
func (r *Registry) Stages() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stages := make([]int, 0, len(r.derivations))
	for stage := range r.derivations {
		stages = append(stages, stage)
	}
	sort.Ints(stages)
	return stages
}

// Default returns a registry holding the built-in derivation of every stage
// that synthesizes fields.
func Default() *Registry {
	reg := NewRegistry()
	reg.MustRegister(2, ReviewScore)
	reg.MustRegister(3, ValidationScore)
	reg.MustRegister(4, CompetitiveHandoff)
	reg.MustRegister(5, Profitability)
	reg.MustRegister(6, RiskScores)
	reg.MustRegister(7, RevenueMetrics)
	reg.MustRegisterFunc(9, ExitReality)
	reg.MustRegister(10, CandidateScores)
	reg.MustRegister(11, ChannelBudget)
	reg.MustRegisterFunc(12, SalesReality)
	reg.MustRegister(13, Roadmap)
	reg.MustRegister(14, ArchitectureLayers)
	reg.MustRegister(15, RiskRegister)
	reg.MustRegisterFunc(16, Financials)
	reg.MustRegister(17, Readiness)
	reg.MustRegister(18, SprintTotals)
	reg.MustRegister(19, BuildCompletion)
	reg.MustRegister(20, QualityPassRate)
	reg.MustRegister(21, ReviewPassRate)
	reg.MustRegisterFunc(22, Release)
	reg.MustRegisterFunc(23, LaunchGate)
	reg.MustRegister(24, LaunchMetrics)
	reg.MustRegisterFunc(25, VentureReview)
	return reg
}
