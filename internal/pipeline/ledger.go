package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/kingrea/stagegate/internal/contracts"
)

// Published is an enriched stage output that passed post-stage validation (or
// was tolerated in advisory mode). Only the runner creates Published values,
// so downstream stages never see raw output.
type Published struct {
	stage       int
	fields      map[string]any
	warnings    []string
	publishedAt time.Time
}

// Stage returns the stage that produced the output.
func (p Published) Stage() int { return p.stage }

// Fields returns a deep copy of the output.
func (p Published) Fields() map[string]any { return contracts.Clone(p.fields) }

// Warnings lists the validation findings recorded when the output was
// published.
func (p Published) Warnings() []string { return append([]string(nil), p.warnings...) }

// PublishedAt reports when the output became visible downstream.
func (p Published) PublishedAt() time.Time { return p.publishedAt }

// Ledger holds the published outputs of one venture run. It implements
// contracts.Upstream so pre-stage validation reads straight from it.
type Ledger struct {
	mu      sync.RWMutex
	outputs map[int]Published
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{outputs: map[int]Published{}}
}

// Lookup implements contracts.Upstream.
func (l *Ledger) Lookup(stage int) (map[string]any, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out, ok := l.outputs[stage]
	if !ok {
		return nil, false
	}
	return out.fields, true
}

// Get returns the published output for a stage.
func (l *Ledger) Get(stage int) (Published, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out, ok := l.outputs[stage]
	return out, ok
}

// Stages lists published stages in ascending order.
func (l *Ledger) Stages() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stages := make([]int, 0, len(l.outputs))
	for stage := range l.outputs {
		stages = append(stages, stage)
	}
	sort.Ints(stages)
	return stages
}

// Snapshot copies the published outputs of the requested stages. Stages that
// have not been published are omitted.
func (l *Ledger) Snapshot(stages []int) map[int]map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[int]map[string]any, len(stages))
	for _, stage := range stages {
		if published, ok := l.outputs[stage]; ok {
			out[stage] = contracts.Clone(published.fields)
		}
	}
	return out
}

func (l *Ledger) publish(output Published) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outputs == nil {
		l.outputs = map[int]Published{}
	}
	l.outputs[output.stage] = output
}
