package server

import (
	"encoding/json"

	"intervene/internal/domain"
	"intervene/internal/plan"
)

// Request payloads

type CreateBundleRequest struct {
	ID            string `json:"id,omitempty"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	TimelineWeeks int    `json:"timeline_weeks,omitempty" minimum:"0"`
}

type UpdateBundleRequest struct {
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	TimelineWeeks *int    `json:"timeline_weeks,omitempty" minimum:"1"`
}

type MicroTaskRequest struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	Done  bool   `json:"done,omitempty"`
}

type CreateInterventionRequest struct {
	ID         string             `json:"id,omitempty"`
	Name       string             `json:"name"`
	Zone       string             `json:"zone,omitempty"`
	Complexity string             `json:"complexity,omitempty" doc:"Low, Medium or High (any case); defaults to Medium"`
	MicroTasks []MicroTaskRequest `json:"micro_tasks,omitempty"`
	Resources  []domain.Resource  `json:"resources,omitempty"`
}

type UpdateInterventionRequest struct {
	Name       *string             `json:"name,omitempty"`
	Zone       *string             `json:"zone,omitempty"`
	Complexity *string             `json:"complexity,omitempty"`
	MicroTasks *[]MicroTaskRequest `json:"micro_tasks,omitempty"`
	Resources  *[]domain.Resource  `json:"resources,omitempty"`
	Position   *int                `json:"position,omitempty"`
}

type AddDependencyRequest struct {
	Type               string `json:"type,omitempty" doc:"sequence, parallel or conditional; defaults to sequence"`
	FromInterventionID string `json:"from_intervention_id"`
	ToInterventionID   string `json:"to_intervention_id"`
	CriticalPath       bool   `json:"critical_path,omitempty"`
	Description        string `json:"description,omitempty"`
}

type UpdateDependencyRequest struct {
	Type         *string `json:"type,omitempty"`
	CriticalPath *bool   `json:"critical_path,omitempty"`
	Description  *string `json:"description,omitempty"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

// Response payloads

type BundleSummaryResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	TimelineWeeks int    `json:"timeline_weeks"`
	UpdatedAt     string `json:"updated_at"`
}

type InterventionRemovedResponse struct {
	ID                  string `json:"id"`
	DroppedDependencies int    `json:"dropped_dependencies"`
}

type DependencyCountResponse struct {
	FromInterventionID string `json:"from_intervention_id"`
	ToInterventionID   string `json:"to_intervention_id"`
	Count              int    `json:"count"`
}

type ValidationResponse struct {
	BundleID string `json:"bundle_id"`
	plan.Report
}

type TimelineResponse struct {
	BundleID string `json:"bundle_id"`
	plan.Timeline
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts"`
	Type       string          `json:"type"`
	BundleID   string          `json:"bundle_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func microTasks(in []MicroTaskRequest) []domain.MicroTask {
	out := make([]domain.MicroTask, 0, len(in))
	for _, t := range in {
		out = append(out, domain.MicroTask{ID: t.ID, Title: t.Title, Done: t.Done})
	}
	return out
}

func bundleSummary(b domain.Bundle) BundleSummaryResponse {
	return BundleSummaryResponse{
		ID:            b.ID,
		Name:          b.Name,
		Description:   b.Description,
		TimelineWeeks: b.TimelineWeeks,
		UpdatedAt:     b.UpdatedAt,
	}
}

func eventResponse(evt domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		BundleID:   evt.BundleID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	}
}
