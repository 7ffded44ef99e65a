package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbgenai/stackctl/internal/stack"
)

// Deploy provisions the selected stages in dependency order. The first stage
// failure aborts the remaining sequence; earlier stages' remote state is left
// intact. For a single-stage selection, prerequisite stages are not
// re-executed: their outputs are read back from previously applied state, and
// an unreadable prerequisite fails the run up front.
func (e *Engine) Deploy(ctx context.Context, sel stack.Selection) (*Report, error) {
	order, err := e.registry.ResolveDeployOrder(sel)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	rc := stack.NewRunContext()

	for i, s := range order {
		if !sel.All() && s.Name != sel.Name() {
			if err := e.reuseOutputs(ctx, sel.Name(), s, rc); err != nil {
				return report, err
			}
			continue
		}

		e.logger.Info("deploying stage", "stage", s.Name, "dir", e.stageDir(s))
		run := e.applyStage(ctx, s, rc)
		report.Add(run)

		if run.Status != stack.StatusSucceeded {
			e.logger.Error("stage failed, aborting deploy", "stage", s.Name, "error", run.Err)
			for _, rest := range order[i+1:] {
				if sel.All() || rest.Name == sel.Name() {
					report.Add(&stack.StageRun{Stage: rest, Status: stack.StatusSkipped})
				}
			}
			return report, fmt.Errorf("deploy aborted at stage %q: %w", s.Name, run.Err)
		}

		if e.exporter != nil {
			if err := e.exporter.Export(ctx, rc); err != nil {
				return report, fmt.Errorf("export outputs after stage %q: %w", s.Name, err)
			}
		}
	}

	return report, nil
}

// reuseOutputs seeds the run context with a prerequisite stage's outputs read
// from its previously applied state. Prerequisites without declared outputs
// contribute nothing and are trusted to exist.
func (e *Engine) reuseOutputs(ctx context.Context, selected string, s stack.Stage, rc *stack.RunContext) error {
	if len(s.Outputs) == 0 {
		return nil
	}

	dir := e.stageDir(s)
	e.logger.Info("reading prerequisite outputs", "stage", s.Name, "dir", dir)

	if err := e.runner.Init(ctx, dir); err != nil {
		return &stack.MissingDependencyError{Stage: selected, Dependency: s.Name, Err: err}
	}
	outs, err := e.runner.Outputs(ctx, dir)
	if err != nil {
		return &stack.MissingDependencyError{Stage: selected, Dependency: s.Name, Err: err}
	}

	for _, key := range s.Outputs {
		value, ok := outs[key]
		if !ok || value == "" {
			return &stack.MissingDependencyError{
				Stage:      selected,
				Dependency: s.Name,
				Err:        fmt.Errorf("output %q is not recorded", key),
			}
		}
		rc.Set(s.Name, key, value)
	}
	return nil
}

// applyStage renders, initializes, applies and harvests one stage. Outputs
// are propagated into the run context only when the full declared set is
// present.
func (e *Engine) applyStage(ctx context.Context, s stack.Stage, rc *stack.RunContext) *stack.StageRun {
	run := &stack.StageRun{Stage: s, Status: stack.StatusFailed}
	dir := e.stageDir(s)

	if err := e.render(ctx, s, rc); err != nil {
		run.Err = err
		return run
	}
	if err := e.runner.Init(ctx, dir); err != nil {
		run.Err = err
		return run
	}
	if err := e.apply(ctx, s, dir, rc); err != nil {
		run.Err = err
		return run
	}

	outputs, err := e.harvest(ctx, s, dir)
	if err != nil {
		run.Err = err
		return run
	}

	run.Outputs = outputs
	run.Status = stack.StatusSucceeded
	for key, value := range outputs {
		rc.Set(s.Name, key, value)
	}
	return run
}

// render materializes the stage's input file from the merged variable layers.
func (e *Engine) render(ctx context.Context, s stack.Stage, rc *stack.RunContext) error {
	inputs, err := e.resolveInputs(ctx, s, rc)
	if err != nil {
		return err
	}
	return writeVars(e.stageDir(s), inputs)
}

// apply runs the tool apply, honoring the stage's import recovery rule when
// the diagnostic shows the remote resource already exists outside this state.
func (e *Engine) apply(ctx context.Context, s stack.Stage, dir string, rc *stack.RunContext) error {
	diag, err := e.runner.Apply(ctx, dir)
	if err == nil {
		return nil
	}

	rule := s.Import
	if rule == nil {
		return err
	}
	for _, marker := range rule.Match {
		if !strings.Contains(diag, marker) {
			return err
		}
	}
	prefix, ok := rc.Lookup(rule.IDFrom)
	if !ok {
		return err
	}

	id := prefix + rule.IDSuffix
	e.logger.Warn("apply reported an existing resource, importing", "stage", s.Name, "address", rule.Address, "id", id)
	if importErr := e.runner.Import(ctx, dir, rule.Address, id); importErr != nil {
		return fmt.Errorf("import %s after failed apply: %w", rule.Address, importErr)
	}
	if _, retryErr := e.runner.Apply(ctx, dir); retryErr != nil {
		return retryErr
	}
	return nil
}

// harvest captures the stage's declared outputs. A clean apply that omits any
// declared key is a stage failure; a partial output map is never returned.
func (e *Engine) harvest(ctx context.Context, s stack.Stage, dir string) (map[string]string, error) {
	if len(s.Outputs) == 0 {
		return nil, nil
	}

	captured, err := e.runner.Outputs(ctx, dir)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]string, len(s.Outputs))
	var missing []string
	for _, key := range s.Outputs {
		value, ok := captured[key]
		if !ok || value == "" {
			missing = append(missing, key)
			continue
		}
		outputs[key] = value
	}
	if len(missing) > 0 {
		return nil, &IncompleteOutputError{Stage: s.Name, Missing: missing}
	}
	return outputs, nil
}
