package stack

import (
	"fmt"
	"sort"
)

// Registry holds the registered stages and their validated dependency graph.
// The topological order is computed once at construction; resolution of a
// selection is a pure filter over that order.
type Registry struct {
	stages map[string]Stage
	// order is the dependency-respecting execution order of all stages.
	// Ties are broken by registration order so runs are fully deterministic.
	order []string
}

// NewRegistry validates the stage list and returns a registry. It fails with
// UnknownStageError when a dependency names an unregistered stage and with
// CyclicDependencyError when the graph is not acyclic.
func NewRegistry(stages []Stage) (*Registry, error) {
	byName := make(map[string]Stage, len(stages))
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		if s.Name == "" {
			return nil, fmt.Errorf("stage with empty name")
		}
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate stage %q", s.Name)
		}
		byName[s.Name] = s
		names = append(names, s.Name)
	}

	for _, s := range stages {
		for _, dep := range s.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, &UnknownStageError{Name: dep, Known: names}
			}
		}
	}

	order, err := topoSort(stages)
	if err != nil {
		return nil, err
	}

	return &Registry{stages: byName, order: order}, nil
}

// topoSort runs a Kahn pass over the stages in registration order. Any stage
// left unvisited signals a cycle.
func topoSort(stages []Stage) ([]string, error) {
	indegree := make(map[string]int, len(stages))
	dependents := make(map[string][]string, len(stages))
	for _, s := range stages {
		indegree[s.Name] = len(s.DependsOn)
		for _, dep := range s.DependsOn {
			dependents[dep] = append(dependents[dep], s.Name)
		}
	}

	order := make([]string, 0, len(stages))
	visited := make(map[string]bool, len(stages))
	for len(order) < len(stages) {
		progressed := false
		for _, s := range stages {
			if visited[s.Name] || indegree[s.Name] != 0 {
				continue
			}
			visited[s.Name] = true
			order = append(order, s.Name)
			for _, dep := range dependents[s.Name] {
				indegree[dep]--
			}
			progressed = true
		}
		if !progressed {
			var cyclic []string
			for _, s := range stages {
				if !visited[s.Name] {
					cyclic = append(cyclic, s.Name)
				}
			}
			sort.Strings(cyclic)
			return nil, &CyclicDependencyError{Stages: cyclic}
		}
	}
	return order, nil
}

// Stage returns the registered stage with the given name.
func (r *Registry) Stage(name string) (Stage, bool) {
	s, ok := r.stages[name]
	return s, ok
}

// Names returns all stage names in execution order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ResolveDeployOrder returns the stages to cover for a deploy of the given
// selection, in dependency order. A single-stage selection yields the stage
// and its transitive dependencies.
func (r *Registry) ResolveDeployOrder(sel Selection) ([]Stage, error) {
	include, err := r.selectionSet(sel, r.transitiveDependencies)
	if err != nil {
		return nil, err
	}
	return r.inOrder(include, false), nil
}

// ResolveDestroyOrder returns the stages to tear down for the given selection,
// in reverse dependency order. A single-stage selection yields the stage and
// its transitive dependents, since anything built on top of it must go first.
func (r *Registry) ResolveDestroyOrder(sel Selection) ([]Stage, error) {
	include, err := r.selectionSet(sel, r.transitiveDependents)
	if err != nil {
		return nil, err
	}
	return r.inOrder(include, true), nil
}

// selectionSet resolves a selection into the set of covered stage names using
// expand to walk the graph from a single selected stage.
func (r *Registry) selectionSet(sel Selection, expand func(string) map[string]bool) (map[string]bool, error) {
	include := make(map[string]bool, len(r.order))
	if sel.All() {
		for _, name := range r.order {
			include[name] = true
		}
		return include, nil
	}
	if _, ok := r.stages[sel.Name()]; !ok {
		return nil, &UnknownStageError{Name: sel.Name(), Known: r.Names()}
	}
	return expand(sel.Name()), nil
}

// inOrder filters the precomputed topological order down to the included set.
func (r *Registry) inOrder(include map[string]bool, reverse bool) []Stage {
	out := make([]Stage, 0, len(include))
	for _, name := range r.order {
		if include[name] {
			out = append(out, r.stages[name])
		}
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// transitiveDependencies returns the named stage plus everything it requires.
func (r *Registry) transitiveDependencies(name string) map[string]bool {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		for _, dep := range r.stages[n].DependsOn {
			walk(dep)
		}
	}
	walk(name)
	return seen
}

// transitiveDependents returns the named stage plus everything depending on it.
func (r *Registry) transitiveDependents(name string) map[string]bool {
	seen := map[string]bool{name: true}
	for changed := true; changed; {
		changed = false
		for _, s := range r.stages {
			if seen[s.Name] {
				continue
			}
			for _, dep := range s.DependsOn {
				if seen[dep] {
					seen[s.Name] = true
					changed = true
					break
				}
			}
		}
	}
	return seen
}
