// Package tilepack resolves install and uninstall ordering for offline map
// tile packs. Packs declare dependencies on other packs; installs must
// happen dependencies-first and uninstalls dependents-first.
//
// This is a standalone graph-resolution component, loosely coupled to the
// sync core: the tile subsystem consumes it, the merge path never does.
package tilepack

import (
	"fmt"
	"sort"
	"strings"
)

// Pack is one offline tile pack and its dependency declarations.
type Pack struct {
	ID        string
	DependsOn []string
}

// CycleError reports a dependency cycle, with the participating pack IDs.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("tile pack dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// Resolver answers ordering queries over a fixed pack set.
type Resolver struct {
	packs map[string]Pack
	// dependents is the reverse adjacency: pack ID -> packs that require it.
	dependents map[string][]string
}

// NewResolver builds a resolver. Duplicate IDs and references to undeclared
// packs are configuration errors caught here, not at query time.
func NewResolver(packs []Pack) (*Resolver, error) {
	byID := make(map[string]Pack, len(packs))
	for _, p := range packs {
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate tile pack %q", p.ID)
		}
		byID[p.ID] = p
	}

	dependents := make(map[string][]string)
	for _, p := range packs {
		for _, dep := range p.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("tile pack %q depends on undeclared pack %q", p.ID, dep)
			}
			dependents[dep] = append(dependents[dep], p.ID)
		}
	}
	for id := range dependents {
		sort.Strings(dependents[id])
	}

	return &Resolver{packs: byID, dependents: dependents}, nil
}

// InstallOrder returns the requested packs plus their transitive
// dependencies, ordered dependencies-first. Deterministic: ties break by
// pack ID. Returns a CycleError when the closure contains a cycle.
func (r *Resolver) InstallOrder(ids ...string) ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(r.packs))
	order := []string{}

	var visit func(id string, trail []string) error
	visit = func(id string, trail []string) error {
		p, ok := r.packs[id]
		if !ok {
			return fmt.Errorf("unknown tile pack %q", id)
		}
		switch state[id] {
		case done:
			return nil
		case visiting:
			return &CycleError{Path: append(cycleSuffix(trail, id), id)}
		}
		state[id] = visiting

		deps := append([]string(nil), p.DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep, append(trail, id)); err != nil {
				return err
			}
		}

		state[id] = done
		order = append(order, id)
		return nil
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for _, id := range sorted {
		if err := visit(id, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// UninstallOrder returns the pack plus everything transitively depending on
// it, ordered dependents-first, so nothing is removed while still required.
func (r *Resolver) UninstallOrder(id string) ([]string, error) {
	if _, ok := r.packs[id]; !ok {
		return nil, fmt.Errorf("unknown tile pack %q", id)
	}

	seen := map[string]bool{}
	order := []string{}

	var visit func(id string)
	visit = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		for _, dependent := range r.dependents[id] {
			visit(dependent)
		}
		order = append(order, id)
	}
	visit(id)

	// visit appends after its dependents, so order is already
	// dependents-first; no reversal needed.
	return order, nil
}

// DetectCycles finds all dependency cycles using Tarjan's strongly
// connected components. A DAG returns an empty list. Each cycle is reported
// as its sorted member IDs.
func (r *Resolver) DetectCycles() [][]string {
	index := 0
	indices := map[string]int{}
	lowlink := map[string]int{}
	onStack := map[string]bool{}
	stack := []string{}
	var cycles [][]string

	var strongconnect func(id string)
	strongconnect = func(id string) {
		indices[id] = index
		lowlink[id] = index
		index++
		stack = append(stack, id)
		onStack[id] = true

		for _, dep := range r.packs[id].DependsOn {
			if _, visited := indices[dep]; !visited {
				strongconnect(dep)
				if lowlink[dep] < lowlink[id] {
					lowlink[id] = lowlink[dep]
				}
			} else if onStack[dep] {
				if indices[dep] < lowlink[id] {
					lowlink[id] = indices[dep]
				}
			}
		}

		if lowlink[id] == indices[id] {
			var scc []string
			for {
				n := len(stack) - 1
				member := stack[n]
				stack = stack[:n]
				onStack[member] = false
				scc = append(scc, member)
				if member == id {
					break
				}
			}
			if len(scc) > 1 || selfLoop(r.packs[id]) {
				sort.Strings(scc)
				cycles = append(cycles, scc)
			}
		}
	}

	ids := make([]string, 0, len(r.packs))
	for id := range r.packs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, visited := indices[id]; !visited {
			strongconnect(id)
		}
	}
	return cycles
}

func selfLoop(p Pack) bool {
	for _, dep := range p.DependsOn {
		if dep == p.ID {
			return true
		}
	}
	return false
}

// cycleSuffix trims the trail to the portion inside the cycle.
func cycleSuffix(trail []string, id string) []string {
	for i, t := range trail {
		if t == id {
			return append([]string(nil), trail[i:]...)
		}
	}
	return append([]string(nil), trail...)
}
