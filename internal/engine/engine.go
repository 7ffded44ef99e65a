// Package engine contains the high-level orchestration logic for deploying
// and destroying the staged environment. Stages run strictly one at a time in
// dependency order; the engine owns the run context and all partial-failure
// semantics, while the infra tool behind the Runner interface owns remote
// state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dbgenai/stackctl/internal/envfile"
	"github.com/dbgenai/stackctl/internal/stack"
	"github.com/dbgenai/stackctl/internal/tfvars"
)

// Runner abstracts the external infra tool invoked per stage working directory.
type Runner interface {
	Init(ctx context.Context, dir string) error
	Apply(ctx context.Context, dir string) (diagnostic string, err error)
	Plan(ctx context.Context, dir string) error
	Destroy(ctx context.Context, dir string) error
	Import(ctx context.Context, dir, address, id string) error
	Outputs(ctx context.Context, dir string) (map[string]string, error)
}

// ModelResolver resolves the newest registered version of a model.
type ModelResolver interface {
	LatestModelVersion(ctx context.Context, model string) (string, error)
}

// ResolverFactory builds a ModelResolver against a workspace URL, which only
// becomes known once the workspace stage's outputs are in the run context.
type ResolverFactory func(workspaceURL string) (ModelResolver, error)

// Exporter persists selected run outputs externally after each stage.
type Exporter interface {
	Export(ctx context.Context, rc *stack.RunContext) error
}

// Params collects the engine's collaborators.
type Params struct {
	// Logger receives progress and failure records.
	Logger *slog.Logger
	// Registry resolves stage order for a selection.
	Registry *stack.Registry
	// Runner drives the infra tool.
	Runner Runner
	// Exporter persists outputs; nil disables export (plan runs).
	Exporter Exporter
	// Root is the directory containing stage working directories.
	Root string
	// Overrides are per-invocation input overrides, highest precedence.
	Overrides envfile.Vars
	// NewResolver builds the model registry client for the serving stage.
	NewResolver ResolverFactory
}

// Engine executes dependency-ordered stage runs.
type Engine struct {
	logger      *slog.Logger
	registry    *stack.Registry
	runner      Runner
	exporter    Exporter
	root        string
	overrides   envfile.Vars
	newResolver ResolverFactory
}

// New constructs an engine from its collaborators.
func New(p Params) *Engine {
	return &Engine{
		logger:      p.Logger,
		registry:    p.Registry,
		runner:      p.Runner,
		exporter:    p.Exporter,
		root:        p.Root,
		overrides:   p.Overrides,
		newResolver: p.NewResolver,
	}
}

// IncompleteOutputError indicates a stage whose tool run exited cleanly but
// did not yield every declared output, leaving dependents unrenderable.
type IncompleteOutputError struct {
	// Stage is the stage that omitted outputs.
	Stage string
	// Missing lists the absent output keys.
	Missing []string
}

func (e *IncompleteOutputError) Error() string {
	if e == nil {
		return "incomplete stage outputs"
	}
	return fmt.Sprintf("stage %q applied cleanly but did not produce outputs: %s", e.Stage, strings.Join(e.Missing, ", "))
}

// IsIncompleteOutputError reports whether err indicates missing declared outputs.
func IsIncompleteOutputError(err error) bool {
	var target *IncompleteOutputError
	return errors.As(err, &target)
}

// stageDir returns the working directory for a stage.
func (e *Engine) stageDir(s stack.Stage) string {
	if e.root == "" {
		return s.Dir
	}
	return e.root + "/" + s.Dir
}

// resolveInputs merges a stage's inputs: per-invocation overrides win, then
// upstream context values, then the newest registered model version for
// dynamic inputs, then the configured default.
func (e *Engine) resolveInputs(ctx context.Context, s stack.Stage, rc *stack.RunContext) ([]resolvedInput, error) {
	out := make([]resolvedInput, 0, len(s.Inputs))
	for _, in := range s.Inputs {
		if raw, ok := e.overrides[in.Key]; ok {
			out = append(out, resolvedInput{Key: in.Key, Value: coerce(raw)})
			continue
		}
		if in.From != "" {
			v, ok := rc.Lookup(in.From)
			if !ok {
				return nil, &stack.MissingDependencyError{
					Stage:      s.Name,
					Dependency: strings.SplitN(in.From, ".", 2)[0],
				}
			}
			out = append(out, resolvedInput{Key: in.Key, Value: v})
			continue
		}
		if in.LatestModelOf != "" && in.Default == nil {
			version, err := e.latestModelVersion(ctx, rc, in.LatestModelOf)
			if err != nil {
				return nil, err
			}
			out = append(out, resolvedInput{Key: in.Key, Value: version})
			continue
		}
		out = append(out, resolvedInput{Key: in.Key, Value: in.Default})
	}
	return out, nil
}

// latestModelVersion queries the model registry through a resolver bound to
// the workspace recorded in the run context.
func (e *Engine) latestModelVersion(ctx context.Context, rc *stack.RunContext, model string) (string, error) {
	if e.newResolver == nil {
		return "", fmt.Errorf("resolve latest version of model %q: no model registry configured", model)
	}
	workspaceURL, ok := rc.Lookup(stack.RefWorkspaceURL)
	if !ok {
		return "", &stack.MissingDependencyError{
			Stage:      stack.StageServingEndpoint,
			Dependency: stack.StageDatabricksWorkspace,
		}
	}
	resolver, err := e.newResolver(workspaceURL)
	if err != nil {
		return "", err
	}
	version, err := resolver.LatestModelVersion(ctx, model)
	if err != nil {
		return "", err
	}
	e.logger.Info("resolved latest registered model version", "model", model, "version", version)
	return version, nil
}

// resolvedInput pairs an input key with its merged value in declaration order.
type resolvedInput struct {
	Key   string
	Value any
}

// writeVars materializes resolved inputs into the stage's tfvars file.
func writeVars(dir string, inputs []resolvedInput) error {
	vars := make([]tfvars.Var, len(inputs))
	for i, in := range inputs {
		vars[i] = tfvars.Var{Key: in.Key, Value: in.Value}
	}
	return tfvars.Write(dir, vars)
}

// coerce converts an override string into the value type the stage expects:
// bools and integers keep their native rendering, everything else stays a string.
func coerce(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return b
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return raw
}
