package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"intervene/internal/domain"
	"intervene/internal/events"
	"intervene/internal/plan"
)

// IsRejected reports whether err is a dependency the graph refused.
func IsRejected(err error) bool {
	return errors.Is(err, plan.ErrSelfDependency) || errors.Is(err, plan.ErrCreatesCycle)
}

// DependencyAddOptions are parameters for adding an edge.
type DependencyAddOptions struct {
	BundleID string
	Edge     domain.DependencyEdge
	ActorID  string
}

// AddDependency appends an edge after checking both endpoints exist and the
// edge keeps the graph acyclic. A rejected edge leaves the list untouched.
func (e Engine) AddDependency(ctx context.Context, opts DependencyAddOptions) (domain.DependencyEdge, error) {
	edge, err := plan.NormalizeEdge(opts.Edge)
	if err != nil {
		return edge, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if edge.FromInterventionID == "" || edge.ToInterventionID == "" {
		return edge, invalidf("from and to intervention ids are required")
	}
	err = e.writeTx(ctx, func(tx *sql.Tx, emit emitFunc) error {
		if _, err := e.Repo.GetBundleTx(ctx, tx, opts.BundleID); err != nil {
			return fmt.Errorf("bundle %s: %w", opts.BundleID, err)
		}
		for _, id := range []string{edge.FromInterventionID, edge.ToInterventionID} {
			if _, err := e.Repo.GetInterventionTx(ctx, tx, opts.BundleID, id); err != nil {
				return fmt.Errorf("intervention %s: %w", id, err)
			}
		}
		edges, err := e.Repo.ListDependenciesTx(ctx, tx, opts.BundleID)
		if err != nil {
			return err
		}
		next, err := plan.AddDependency(edges, edge)
		if err != nil {
			return err
		}
		if err := e.Repo.ReplaceDependencies(ctx, tx, opts.BundleID, next); err != nil {
			return err
		}
		if err := e.Repo.TouchBundle(ctx, tx, opts.BundleID, e.stamp()); err != nil {
			return err
		}
		return emit(events.DependencyAdded, opts.BundleID, "dependency", edgeID(edge), opts.ActorID, edgePayload(edge))
	})
	if IsRejected(err) {
		e.logger().Warn(events.DependencyRejected, "bundle", opts.BundleID,
			"from", edge.FromInterventionID, "to", edge.ToInterventionID, "err", err)
	}
	if err != nil {
		return edge, err
	}
	return edge, nil
}

// RemoveDependency drops every edge from -> to. Removing a pair that is not
// present succeeds with a count of zero and records nothing.
func (e Engine) RemoveDependency(ctx context.Context, bundleID, from, to, actorID string) (int, error) {
	removed := 0
	err := e.writeTx(ctx, func(tx *sql.Tx, emit emitFunc) error {
		if _, err := e.Repo.GetBundleTx(ctx, tx, bundleID); err != nil {
			return fmt.Errorf("bundle %s: %w", bundleID, err)
		}
		edges, err := e.Repo.ListDependenciesTx(ctx, tx, bundleID)
		if err != nil {
			return err
		}
		var next []domain.DependencyEdge
		next, removed = plan.RemoveDependency(edges, from, to)
		if removed == 0 {
			return nil
		}
		if err := e.Repo.ReplaceDependencies(ctx, tx, bundleID, next); err != nil {
			return err
		}
		if err := e.Repo.TouchBundle(ctx, tx, bundleID, e.stamp()); err != nil {
			return err
		}
		return emit(events.DependencyRemoved, bundleID, "dependency", from+"->"+to, actorID, events.EventPayload{
			"from_intervention_id": from,
			"to_intervention_id":   to,
			"removed":              removed,
		})
	})
	return removed, err
}

// DependencyUpdateOptions names the edges to patch.
type DependencyUpdateOptions struct {
	BundleID string
	From     string
	To       string
	Patch    plan.EdgePatch
	ActorID  string
}

// UpdateDependency patches every edge from -> to and returns how many matched.
func (e Engine) UpdateDependency(ctx context.Context, opts DependencyUpdateOptions) (int, error) {
	if opts.Patch.IsEmpty() {
		return 0, invalidf("no changes requested")
	}
	updated := 0
	err := e.writeTx(ctx, func(tx *sql.Tx, emit emitFunc) error {
		if _, err := e.Repo.GetBundleTx(ctx, tx, opts.BundleID); err != nil {
			return fmt.Errorf("bundle %s: %w", opts.BundleID, err)
		}
		edges, err := e.Repo.ListDependenciesTx(ctx, tx, opts.BundleID)
		if err != nil {
			return err
		}
		next, n, err := plan.UpdateDependency(edges, opts.From, opts.To, opts.Patch)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		updated = n
		if n == 0 {
			return nil
		}
		if err := e.Repo.ReplaceDependencies(ctx, tx, opts.BundleID, next); err != nil {
			return err
		}
		if err := e.Repo.TouchBundle(ctx, tx, opts.BundleID, e.stamp()); err != nil {
			return err
		}
		payload := events.EventPayload{"updated": n}
		if opts.Patch.Type != nil {
			payload["type"] = *opts.Patch.Type
		}
		if opts.Patch.CriticalPath != nil {
			payload["critical_path"] = *opts.Patch.CriticalPath
		}
		if opts.Patch.Description != nil {
			payload["description"] = *opts.Patch.Description
		}
		return emit(events.DependencyUpdated, opts.BundleID, "dependency", opts.From+"->"+opts.To, opts.ActorID, payload)
	})
	return updated, err
}

// ListDependencies returns the bundle's edges, optionally only those
// pointing at the given intervention.
func (e Engine) ListDependencies(ctx context.Context, bundleID, to string) ([]domain.DependencyEdge, error) {
	if _, err := e.Repo.GetBundle(ctx, bundleID); err != nil {
		return nil, fmt.Errorf("bundle %s: %w", bundleID, err)
	}
	edges, err := e.Repo.ListDependencies(ctx, bundleID)
	if err != nil || to == "" {
		return edges, err
	}
	out := plan.DependenciesOf(edges, to)
	if out == nil {
		out = []domain.DependencyEdge{}
	}
	return out, nil
}

func edgeID(edge domain.DependencyEdge) string {
	return edge.FromInterventionID + "->" + edge.ToInterventionID
}

func edgePayload(edge domain.DependencyEdge) events.EventPayload {
	return events.EventPayload{
		"type":                 edge.Type,
		"from_intervention_id": edge.FromInterventionID,
		"to_intervention_id":   edge.ToInterventionID,
		"critical_path":        edge.CriticalPath,
		"description":          edge.Description,
	}
}
