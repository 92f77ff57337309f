package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends rows to the workspace event log inside the caller's transaction.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Record is what gets published once the transaction commits.
type Record struct {
	TS         string       `json:"ts"`
	Type       string       `json:"type"`
	BundleID   string       `json:"bundle_id,omitempty"`
	EntityKind string       `json:"entity_kind"`
	EntityID   string       `json:"entity_id,omitempty"`
	ActorID    string       `json:"actor_id"`
	Payload    EventPayload `json:"payload"`
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, bundleID, entityKind, entityID, actorID string, payload EventPayload) (Record, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	if actorID == "" {
		actorID = "local-user"
	}
	rec := Record{
		TS:         now().UTC().Format(time.RFC3339),
		Type:       evtType,
		BundleID:   bundleID,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    payload,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return rec, fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,bundle_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		rec.TS, evtType, nullable(bundleID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return rec, fmt.Errorf("append event %s: %w", evtType, err)
	}
	return rec, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
