package plan

import (
	"fmt"
	"strings"

	"intervene/internal/domain"
)

// Report is the structured result of validating a bundle. Errors holds every
// message in display order: the cycle message first, then conflicts.
type Report struct {
	Valid     bool     `json:"valid"`
	CycleAt   string   `json:"cycle_at,omitempty"`
	CyclePath []string `json:"cycle_path,omitempty"`
	Conflicts []string `json:"conflicts"`
	Errors    []string `json:"errors"`
}

// Validate returns human-readable problems with the dependency graph. An empty
// result means no cycle and no resource conflict on a parallel edge.
func Validate(interventions []domain.Intervention, edges []domain.DependencyEdge) []string {
	return Check(interventions, edges).Errors
}

// ValidateBundle validates the bundle's own interventions and edges.
func ValidateBundle(b domain.Bundle) Report {
	return Check(b.Interventions, b.Dependencies)
}

func Check(interventions []domain.Intervention, edges []domain.DependencyEdge) Report {
	r := Report{Conflicts: []string{}, Errors: []string{}}
	byID := indexByID(interventions)
	label := func(id string) string {
		if i, ok := byID[id]; ok {
			return interventions[i].Label()
		}
		return id
	}

	if start, path, ok := FindCycle(interventions, edges); ok {
		r.CycleAt = start
		r.CyclePath = path
		names := make([]string, len(path))
		for i, id := range path {
			names[i] = label(id)
		}
		r.Errors = append(r.Errors, fmt.Sprintf("Circular dependency detected involving %q: %s",
			label(start), strings.Join(names, " -> ")))
	}

	for _, e := range edges {
		if e.Type != domain.DependencyParallel {
			continue
		}
		fi, ok := byID[e.FromInterventionID]
		if !ok {
			continue
		}
		ti, ok := byID[e.ToInterventionID]
		if !ok {
			continue
		}
		shared := SharedResources(interventions[fi], interventions[ti])
		if len(shared) == 0 {
			continue
		}
		parts := make([]string, len(shared))
		for i, res := range shared {
			parts[i] = fmt.Sprintf("%s (%s)", res.Name, res.Type)
		}
		msg := fmt.Sprintf("Resource conflict: %q and %q run in parallel but both require %s",
			interventions[fi].Label(), interventions[ti].Label(), strings.Join(parts, ", "))
		r.Conflicts = append(r.Conflicts, msg)
		r.Errors = append(r.Errors, msg)
	}
	r.Valid = len(r.Errors) == 0
	return r
}

// SharedResources returns the resources of a that b also declares, matched on
// (Name, Type), without duplicates.
func SharedResources(a, b domain.Intervention) []domain.Resource {
	have := make(map[domain.Resource]bool, len(b.Resources))
	for _, res := range b.Resources {
		have[res] = true
	}
	var out []domain.Resource
	seen := make(map[domain.Resource]bool)
	for _, res := range a.Resources {
		if have[res] && !seen[res] {
			seen[res] = true
			out = append(out, res)
		}
	}
	return out
}
