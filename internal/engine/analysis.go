package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"intervene/internal/cache"
	"intervene/internal/domain"
	"intervene/internal/events"
	"intervene/internal/export"
	"intervene/internal/plan"
	"intervene/internal/repo"
)

func (e Engine) ValidateBundle(ctx context.Context, bundleID string) (plan.Report, error) {
	b, err := e.GetBundle(ctx, bundleID)
	if err != nil {
		return plan.Report{}, err
	}
	report := plan.ValidateBundle(b)
	if !report.Valid {
		e.logger().Debug("bundle invalid", "bundle", bundleID, "errors", len(report.Errors))
	}
	return report, nil
}

// ScheduleBundle computes the timeline over weeks, or the bundle's own window
// when weeks is zero. Results are cached by content, so any change to the
// bundle or the policy yields a different key.
func (e Engine) ScheduleBundle(ctx context.Context, bundleID string, weeks int) (plan.Timeline, error) {
	if weeks < 0 {
		return plan.Timeline{}, invalidf("weeks must be positive")
	}
	b, err := e.GetBundle(ctx, bundleID)
	if err != nil {
		return plan.Timeline{}, err
	}
	if weeks == 0 {
		weeks = b.Weeks()
	}
	return e.schedule(ctx, b, weeks)
}

func (e Engine) schedule(ctx context.Context, b domain.Bundle, weeks int) (plan.Timeline, error) {
	policy := e.Policy()
	c := e.Cache
	if c == nil {
		c = cache.NullCache{}
	}
	key := cache.Key("timeline", b.Interventions, b.Dependencies, weeks, policy)
	if data, ok, err := c.Get(ctx, key); err != nil {
		e.logger().Warn("timeline cache get failed", "err", err)
	} else if ok {
		var tl plan.Timeline
		if err := json.Unmarshal(data, &tl); err == nil {
			return tl, nil
		}
		e.logger().Warn("timeline cache entry unreadable", "key", key)
	}

	tl, err := policy.Schedule(b.Interventions, b.Dependencies, weeks)
	if err != nil {
		return tl, fmt.Errorf("bundle %s: %w", b.ID, err)
	}
	if data, err := json.Marshal(tl); err == nil {
		ttl := e.Config.CacheTTL()
		if err := c.Set(ctx, key, data, ttl); err != nil {
			e.logger().Warn("timeline cache set failed", "err", err)
		}
	}
	return tl, nil
}

// ExportBundle renders the bundle with its timeline and validation report.
func (e Engine) ExportBundle(ctx context.Context, bundleID string, f export.Format) (export.Document, []byte, error) {
	b, err := e.GetBundle(ctx, bundleID)
	if err != nil {
		return export.Document{}, nil, err
	}
	doc := export.NewDocument(b, e.Policy(), e.stamp())
	data, err := export.Render(ctx, f, doc)
	if err != nil {
		return doc, nil, err
	}
	return doc, data, nil
}

// PublishExport renders the bundle and writes it to dest, recording a
// bundle.exported event with the resulting location.
func (e Engine) PublishExport(ctx context.Context, bundleID string, f export.Format, dest export.Destination, actorID string) (string, error) {
	_, data, err := e.ExportBundle(ctx, bundleID, f)
	if err != nil {
		return "", err
	}
	location, err := dest.Write(ctx, export.FileName(bundleID, f), f.ContentType(), data)
	if err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	err = e.writeTx(ctx, func(tx *sql.Tx, emit emitFunc) error {
		return emit(events.BundleExported, bundleID, "bundle", bundleID, actorID, events.EventPayload{
			"format":   f,
			"location": location,
			"bytes":    len(data),
		})
	})
	if err != nil {
		return location, err
	}
	e.logger().Info("bundle exported", "bundle", bundleID, "format", f, "location", location)
	return location, nil
}

func (e Engine) ListBundles(ctx context.Context) ([]domain.Bundle, error) {
	return e.Repo.ListBundles(ctx)
}

// ListEvents returns recent events, newest first.
func (e Engine) ListEvents(ctx context.Context, limit int, cursor int64, f repo.EventFilter) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.Repo.LatestEventsFrom(ctx, limit, cursor, f)
}
