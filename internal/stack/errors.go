package stack

import (
	"errors"
	"fmt"
	"strings"
)

// UnknownStageError indicates a selection or dependency naming a stage that is
// not registered.
type UnknownStageError struct {
	// Name is the unresolved stage name.
	Name string
	// Known lists the registered stage names for the operator.
	Known []string
}

func (e *UnknownStageError) Error() string {
	if e == nil {
		return "unknown stage"
	}
	if len(e.Known) == 0 {
		return fmt.Sprintf("unknown stage %q", e.Name)
	}
	return fmt.Sprintf("unknown stage %q (registered: %s)", e.Name, strings.Join(e.Known, ", "))
}

// IsUnknownStageError reports whether err indicates an unresolved stage name.
func IsUnknownStageError(err error) bool {
	var target *UnknownStageError
	return errors.As(err, &target)
}

// CyclicDependencyError indicates that the declared dependency graph contains
// a cycle. It is raised at registration time, before any stage runs.
type CyclicDependencyError struct {
	// Stages lists the stages left unordered by the topological sort.
	Stages []string
}

func (e *CyclicDependencyError) Error() string {
	if e == nil || len(e.Stages) == 0 {
		return "stage dependency graph contains a cycle"
	}
	return fmt.Sprintf("stage dependency graph contains a cycle involving: %s", strings.Join(e.Stages, ", "))
}

// IsCyclicDependencyError reports whether err indicates a dependency cycle.
func IsCyclicDependencyError(err error) bool {
	var target *CyclicDependencyError
	return errors.As(err, &target)
}

// MissingDependencyError indicates that a single-stage run could not obtain a
// prerequisite stage's outputs from previously applied state.
type MissingDependencyError struct {
	// Stage is the stage whose inputs could not be resolved.
	Stage string
	// Dependency is the prerequisite stage with unavailable outputs.
	Dependency string
	// Err is the underlying cause, if any.
	Err error
}

func (e *MissingDependencyError) Error() string {
	if e == nil {
		return "missing dependency outputs"
	}
	msg := fmt.Sprintf("stage %q requires outputs of %q which are not available; deploy %q first", e.Stage, e.Dependency, e.Dependency)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MissingDependencyError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsMissingDependencyError reports whether err indicates unavailable
// prerequisite outputs.
func IsMissingDependencyError(err error) bool {
	var target *MissingDependencyError
	return errors.As(err, &target)
}
