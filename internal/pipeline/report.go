package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/stagegate/internal/contracts"
	"github.com/kingrea/stagegate/internal/workflow/scheduler"
)

// StageStatus enumerates the outcome of a single stage.
type StageStatus string

const (
	StageStatusPublished StageStatus = "published"
	StageStatusBlocked   StageStatus = "blocked"
	StageStatusFailed    StageStatus = "failed"
)

// RunStatus enumerates coarse run outcomes.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusBlocked  RunStatus = "blocked"
	RunStatusGated    RunStatus = "gated"
	RunStatusError    RunStatus = "error"
)

// StageReport records what happened to one stage during a run.
type StageReport struct {
	Stage      int               `json:"stage"`
	Name       string            `json:"name"`
	Status     StageStatus       `json:"status"`
	Pre        contracts.Result  `json:"pre"`
	Post       *contracts.Result `json:"post,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Duration is the wall time the stage took.
func (s StageReport) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Report is the persisted summary of a venture run.
type Report struct {
	RunID       string                       `json:"run_id"`
	Venture     string                       `json:"venture"`
	Enforcement contracts.Enforcement        `json:"enforcement"`
	Status      RunStatus                    `json:"status"`
	Reason      string                       `json:"reason,omitempty"`
	Stages      []StageReport                `json:"stages"`
	Skipped     map[int]scheduler.SkipReason `json:"skipped,omitempty"`
	StartedAt   time.Time                    `json:"started_at"`
	FinishedAt  time.Time                    `json:"finished_at"`
}

// Stage finds the report for a stage.
func (r *Report) Stage(stage int) (StageReport, bool) {
	if r == nil {
		return StageReport{}, false
	}
	for _, entry := range r.Stages {
		if entry.Stage == stage {
			return entry, true
		}
	}
	return StageReport{}, false
}

// Published lists the stages published during the run.
func (r *Report) Published() []int {
	if r == nil {
		return nil
	}
	var out []int
	for _, entry := range r.Stages {
		if entry.Status == StageStatusPublished {
			out = append(out, entry.Stage)
		}
	}
	return out
}

// BlockedError is returned when a blocking validation halts the run. The
// errors are the validator's messages, verbatim.
type BlockedError struct {
	Stage  int
	Phase  contracts.ValidationPhase
	Errors []string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("pipeline: stage-%02d blocked by %s-stage contract: %s", e.Stage, e.Phase, strings.Join(e.Errors, "; "))
}
