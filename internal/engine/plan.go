package engine

import (
	"context"

	"github.com/dbgenai/stackctl/internal/stack"
)

// Plan renders inputs and runs a read-only tool plan for the selected stages.
// Remote state is not mutated and nothing is exported. Stages whose upstream
// outputs are not yet recorded anywhere are skipped rather than planned
// against incomplete inputs; outputs of already-applied stages are read back
// from state so later stages in the selection can still render.
func (e *Engine) Plan(ctx context.Context, sel stack.Selection) (*Report, error) {
	order, err := e.registry.ResolveDeployOrder(sel)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	rc := stack.NewRunContext()

	for _, s := range order {
		dir := e.stageDir(s)
		run := &stack.StageRun{Stage: s, Status: stack.StatusSucceeded}

		if err := e.render(ctx, s, rc); err != nil {
			if stack.IsMissingDependencyError(err) {
				e.logger.Info("skipping plan, prerequisite outputs unavailable", "stage", s.Name, "error", err)
				run.Status = stack.StatusSkipped
				run.Err = err
				report.Add(run)
				continue
			}
			run.Status = stack.StatusFailed
			run.Err = err
			report.Add(run)
			continue
		}

		if err := e.runner.Init(ctx, dir); err != nil {
			run.Status = stack.StatusFailed
			run.Err = err
			report.Add(run)
			continue
		}
		if err := e.runner.Plan(ctx, dir); err != nil {
			run.Status = stack.StatusFailed
			run.Err = err
			report.Add(run)
			continue
		}

		// Seed already-applied outputs so dependent stages can render.
		if len(s.Outputs) > 0 {
			if outs, err := e.runner.Outputs(ctx, dir); err == nil {
				for _, key := range s.Outputs {
					if value, ok := outs[key]; ok && value != "" {
						rc.Set(s.Name, key, value)
					}
				}
			}
		}

		report.Add(run)
	}

	return report, nil
}
