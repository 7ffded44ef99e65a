package engine

import (
	"github.com/dbgenai/stackctl/internal/stack"
)

// Report accumulates per-stage results for one deploy or destroy run.
type Report struct {
	// Runs holds the attempted stages in execution order.
	Runs []*stack.StageRun
}

// Add records one stage result.
func (r *Report) Add(run *stack.StageRun) {
	r.Runs = append(r.Runs, run)
}

// Succeeded returns the names of stages that completed.
func (r *Report) Succeeded() []string {
	return r.withStatus(stack.StatusSucceeded)
}

// Failed returns the names of stages that failed.
func (r *Report) Failed() []string {
	return r.withStatus(stack.StatusFailed)
}

// Skipped returns the names of stages that were not attempted.
func (r *Report) Skipped() []string {
	return r.withStatus(stack.StatusSkipped)
}

func (r *Report) withStatus(status stack.Status) []string {
	var out []string
	for _, run := range r.Runs {
		if run.Status == status {
			out = append(out, run.Stage.Name)
		}
	}
	return out
}
