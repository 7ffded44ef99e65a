package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbgenai/stackctl/internal/stack"
)

// Destroy tears down the selected stages in reverse dependency order. Teardown
// is best-effort: a stage failure is recorded and the walk continues, since
// the tool's destroy is idempotent and re-runnable. The returned error names
// every stage that remains when the teardown is incomplete.
func (e *Engine) Destroy(ctx context.Context, sel stack.Selection) (*Report, error) {
	order, err := e.registry.ResolveDestroyOrder(sel)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, s := range order {
		dir := e.stageDir(s)
		e.logger.Info("destroying stage", "stage", s.Name, "dir", dir)

		run := &stack.StageRun{Stage: s, Status: stack.StatusSucceeded}
		if err := e.runner.Init(ctx, dir); err != nil {
			run.Status = stack.StatusFailed
			run.Err = err
		} else if err := e.runner.Destroy(ctx, dir); err != nil {
			run.Status = stack.StatusFailed
			run.Err = err
		}

		if run.Err != nil {
			e.logger.Error("stage teardown failed, continuing", "stage", s.Name, "error", run.Err)
		}
		report.Add(run)
	}

	if failed := report.Failed(); len(failed) > 0 {
		return report, fmt.Errorf("teardown incomplete, stages remaining: %s", strings.Join(failed, ", "))
	}
	return report, nil
}
