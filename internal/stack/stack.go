// Package stack defines the stage registry and dependency-ordered resolution
// used by the deploy and destroy drivers.
package stack

import (
	"fmt"
	"strings"
)

// Status is the terminal state of a single stage execution attempt.
type Status string

const (
	// StatusSucceeded marks a stage whose tool run completed and yielded all declared outputs.
	StatusSucceeded Status = "succeeded"
	// StatusFailed marks a stage whose tool run failed or omitted a declared output.
	StatusFailed Status = "failed"
	// StatusSkipped marks a stage that was not attempted because a prerequisite did not succeed.
	StatusSkipped Status = "skipped"
)

// Input declares one input variable of a stage.
type Input struct {
	// Key is the variable name as expected by the stage's working directory.
	Key string
	// Default is the base value; nil renders as an explicit null.
	Default any
	// From optionally references an upstream output as "stageName.outputKey".
	// A context value under that reference overrides Default.
	From string
	// LatestModelOf optionally names a registered model whose newest version
	// supplies the value when Default is nil and no override is given.
	LatestModelOf string
}

// ImportRule describes a recovery for an apply that fails because the remote
// resource already exists outside the stage's state.
type ImportRule struct {
	// Address is the resource address to import.
	Address string
	// Match lists substrings that must all appear in the apply diagnostic for
	// the rule to trigger.
	Match []string
	// IDFrom references the context value holding the resource id prefix.
	IDFrom string
	// IDSuffix is appended to the resolved prefix to form the import id.
	IDSuffix string
}

// Stage is one unit of infrastructure provisioning wrapping an external
// working directory of the infra tool.
type Stage struct {
	// Name is the unique stage identifier used in selections and context keys.
	Name string
	// Dir is the stage's working directory relative to the tool root.
	Dir string
	// DependsOn lists stage names that must complete before this stage.
	DependsOn []string
	// Inputs is the stage's input variable schema.
	Inputs []Input
	// Outputs lists output keys the stage must produce on a successful apply.
	Outputs []string
	// Import optionally configures an apply-with-import recovery.
	Import *ImportRule
}

// StageRun records a single execution attempt of a stage. Only the harvested
// output map outlives the run; it is copied into the RunContext on success.
type StageRun struct {
	// Stage is the executed stage definition.
	Stage Stage
	// Status is the terminal status of the attempt.
	Status Status
	// Outputs holds the harvested output values keyed by output name.
	Outputs map[string]string
	// Err holds the failure cause for failed or skipped runs.
	Err error
}

// RunContext accumulates outputs of succeeded stages during one orchestrator
// invocation, keyed as "stageName.outputKey". It is mutated only by the single
// control thread and never persisted beyond the run.
type RunContext struct {
	values map[string]string
}

// NewRunContext returns an empty run context.
func NewRunContext() *RunContext {
	return &RunContext{values: make(map[string]string)}
}

// Set records one output value for a stage.
func (c *RunContext) Set(stage, key, value string) {
	c.values[stage+"."+key] = value
}

// Lookup returns the value stored under a "stageName.outputKey" reference.
func (c *RunContext) Lookup(ref string) (string, bool) {
	v, ok := c.values[ref]
	return v, ok
}

// Has reports whether every declared output of the named stage is present.
func (c *RunContext) Has(stage Stage) bool {
	for _, key := range stage.Outputs {
		if _, ok := c.values[stage.Name+"."+key]; !ok {
			return false
		}
	}
	return true
}

// Values returns a copy of the accumulated context values.
func (c *RunContext) Values() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Selection identifies which stages a run covers: everything, or exactly one
// named stage plus its transitive dependencies (deploy) or dependents (destroy).
type Selection struct {
	name string
}

// AllStages selects every registered stage.
func AllStages() Selection {
	return Selection{}
}

// SingleStage selects one named stage.
func SingleStage(name string) Selection {
	return Selection{name: strings.TrimSpace(name)}
}

// All reports whether the selection covers every stage.
func (s Selection) All() bool {
	return s.name == ""
}

// Name returns the selected stage name, or "" for an all-stages selection.
func (s Selection) Name() string {
	return s.name
}

// String renders the selection for logs.
func (s Selection) String() string {
	if s.All() {
		return "all"
	}
	return fmt.Sprintf("stage %q", s.name)
}
