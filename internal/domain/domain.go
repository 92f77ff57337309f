package domain

import "strings"

// Complexity drives the base duration of an intervention.
type Complexity string

const (
	ComplexityLow    Complexity = "Low"
	ComplexityMedium Complexity = "Medium"
	ComplexityHigh   Complexity = "High"
)

// Rank orders complexities Low < Medium < High. Unknown values rank as Medium.
func (c Complexity) Rank() int {
	switch c {
	case ComplexityLow:
		return 0
	case ComplexityHigh:
		return 2
	default:
		return 1
	}
}

func (c Complexity) IsValid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	}
	return false
}

// ParseComplexity accepts any letter case, so "high" and "HIGH" both map to
// ComplexityHigh. Unknown input is returned unchanged and false.
func ParseComplexity(s string) (Complexity, bool) {
	for _, c := range []Complexity{ComplexityLow, ComplexityMedium, ComplexityHigh} {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c, true
		}
	}
	return Complexity(s), false
}

// Zone is the workspace area an intervention belongs to.
type Zone string

const (
	ZoneThink    Zone = "think"
	ZoneAct      Zone = "act"
	ZoneMonitor  Zone = "monitor"
	ZoneInnovate Zone = "innovate"
)

func (z Zone) IsValid() bool {
	switch z {
	case "", ZoneThink, ZoneAct, ZoneMonitor, ZoneInnovate:
		return true
	}
	return false
}

// Resource is identified by its (Name, Type) pair.
type Resource struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type MicroTask struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done,omitempty"`
}

type Intervention struct {
	ID         string      `json:"id"`
	BundleID   string      `json:"bundle_id,omitempty"`
	Name       string      `json:"name"`
	Zone       Zone        `json:"zone,omitempty" enum:"think,act,monitor,innovate"`
	Complexity Complexity  `json:"complexity" enum:"Low,Medium,High"`
	MicroTasks []MicroTask `json:"micro_tasks,omitempty"`
	Resources  []Resource  `json:"resources,omitempty"`
	Position   int         `json:"position"`
	CreatedAt  string      `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt  string      `json:"updated_at,omitempty" format:"date-time"`
}

// Label is the human name used in messages, falling back to the id.
func (iv Intervention) Label() string {
	if iv.Name != "" {
		return iv.Name
	}
	return iv.ID
}

type DependencyType string

const (
	DependencySequence    DependencyType = "sequence"
	DependencyParallel    DependencyType = "parallel"
	DependencyConditional DependencyType = "conditional"
)

func (t DependencyType) IsValid() bool {
	switch t {
	case DependencySequence, DependencyParallel, DependencyConditional:
		return true
	}
	return false
}

// DependencyEdge says To may start only after From ends.
type DependencyEdge struct {
	Type               DependencyType `json:"type" enum:"sequence,parallel,conditional"`
	FromInterventionID string         `json:"from_intervention_id"`
	ToInterventionID   string         `json:"to_intervention_id"`
	CriticalPath       bool           `json:"critical_path"`
	Description        string         `json:"description,omitempty"`
}

// DefaultTimelineWeeks is the planning window used when a bundle does not set one.
const DefaultTimelineWeeks = 26

// Bundle is the aggregate the validator and scheduler operate on.
type Bundle struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	TimelineWeeks int              `json:"timeline_weeks"`
	Interventions []Intervention   `json:"interventions"`
	Dependencies  []DependencyEdge `json:"dependencies"`
	CreatedAt     string           `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt     string           `json:"updated_at,omitempty" format:"date-time"`
}

// Weeks returns the bundle window, defaulting when unset.
func (b Bundle) Weeks() int {
	if b.TimelineWeeks <= 0 {
		return DefaultTimelineWeeks
	}
	return b.TimelineWeeks
}

type TimelineEntry struct {
	InterventionID string `json:"intervention_id"`
	StartWeek      int    `json:"start_week"`
	Duration       int    `json:"duration"`
	EndWeek        int    `json:"end_week"`
	CriticalPath   bool   `json:"critical_path"`
	Slack          int    `json:"slack"`
	OnLongestPath  bool   `json:"on_longest_path"`
	ExceedsWindow  bool   `json:"exceeds_window,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	BundleID   string `json:"bundle_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}
