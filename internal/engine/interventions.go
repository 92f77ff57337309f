package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"intervene/internal/domain"
	"intervene/internal/events"
	"intervene/internal/idgen"
	"intervene/internal/plan"
)

// InterventionCreateOptions are parameters for adding an intervention.
type InterventionCreateOptions struct {
	BundleID   string
	ID         string
	Name       string
	Zone       domain.Zone
	Complexity domain.Complexity
	MicroTasks []domain.MicroTask
	Resources  []domain.Resource
	ActorID    string
}

// prepareIntervention normalizes fields and fills generated ids.
func (e Engine) prepareIntervention(iv domain.Intervention) (domain.Intervention, error) {
	iv.ID = strings.TrimSpace(iv.ID)
	iv.Name = strings.TrimSpace(iv.Name)
	if iv.Complexity == "" {
		iv.Complexity = domain.ComplexityMedium
	}
	c, ok := domain.ParseComplexity(string(iv.Complexity))
	if !ok {
		return iv, invalidf("invalid complexity %q (want Low, Medium or High)", iv.Complexity)
	}
	iv.Complexity = c
	iv.Zone = domain.Zone(strings.ToLower(strings.TrimSpace(string(iv.Zone))))
	if !iv.Zone.IsValid() {
		return iv, invalidf("invalid zone %q", iv.Zone)
	}
	if iv.ID == "" {
		id, err := idgen.Generate(idgen.InterventionPrefix)
		if err != nil {
			return iv, err
		}
		iv.ID = id
	}
	for i := range iv.MicroTasks {
		if iv.MicroTasks[i].ID != "" {
			continue
		}
		id, err := idgen.Generate(idgen.MicroTaskPrefix)
		if err != nil {
			return iv, err
		}
		iv.MicroTasks[i].ID = id
	}
	for _, r := range iv.Resources {
		if strings.TrimSpace(r.Name) == "" {
			return iv, invalidf("resource name is required")
		}
	}
	return iv, nil
}

func (e Engine) AddIntervention(ctx context.Context, opts InterventionCreateOptions) (domain.Intervention, error) {
	iv, err := e.prepareIntervention(domain.Intervention{
		ID:         opts.ID,
		BundleID:   opts.BundleID,
		Name:       opts.Name,
		Zone:       opts.Zone,
		Complexity: opts.Complexity,
		MicroTasks: append([]domain.MicroTask(nil), opts.MicroTasks...),
		Resources:  append([]domain.Resource(nil), opts.Resources...),
	})
	if err != nil {
		return domain.Intervention{}, err
	}
	now := e.stamp()
	iv.CreatedAt, iv.UpdatedAt = now, now
	err = e.writeTx(ctx, func(tx *sql.Tx, emit emitFunc) error {
		if _, err := e.Repo.GetBundleTx(ctx, tx, opts.BundleID); err != nil {
			return fmt.Errorf("bundle %s: %w", opts.BundleID, err)
		}
		if _, err := e.Repo.GetInterventionTx(ctx, tx, opts.BundleID, iv.ID); err == nil {
			return fmt.Errorf("intervention %s: %w", iv.ID, ErrAlreadyExists)
		}
		pos, err := e.Repo.NextInterventionPosition(ctx, tx, opts.BundleID)
		if err != nil {
			return err
		}
		iv.Position = pos
		if err := e.Repo.InsertIntervention(ctx, tx, iv); err != nil {
			return err
		}
		if err := e.Repo.TouchBundle(ctx, tx, opts.BundleID, now); err != nil {
			return err
		}
		return emit(events.InterventionAdded, opts.BundleID, "intervention", iv.ID, opts.ActorID, events.EventPayload{
			"name":        iv.Name,
			"complexity":  iv.Complexity,
			"micro_tasks": len(iv.MicroTasks),
		})
	})
	if err != nil {
		return domain.Intervention{}, err
	}
	return iv, nil
}

// InterventionUpdateOptions encapsulates allowed intervention updates; nil
// fields are kept.
type InterventionUpdateOptions struct {
	BundleID   string
	ID         string
	Name       *string
	Zone       *domain.Zone
	Complexity *domain.Complexity
	MicroTasks *[]domain.MicroTask
	Resources  *[]domain.Resource
	Position   *int
	ActorID    string
}

func (e Engine) UpdateIntervention(ctx context.Context, opts InterventionUpdateOptions) (domain.Intervention, error) {
	var out domain.Intervention
	err := e.writeTx(ctx, func(tx *sql.Tx, emit emitFunc) error {
		iv, err := e.Repo.GetInterventionTx(ctx, tx, opts.BundleID, opts.ID)
		if err != nil {
			return fmt.Errorf("intervention %s: %w", opts.ID, err)
		}
		changes := events.EventPayload{}
		if opts.Name != nil {
			iv.Name = *opts.Name
			changes["name"] = *opts.Name
		}
		if opts.Zone != nil {
			iv.Zone = *opts.Zone
			changes["zone"] = *opts.Zone
		}
		if opts.Complexity != nil {
			iv.Complexity = *opts.Complexity
			changes["complexity"] = *opts.Complexity
		}
		if opts.MicroTasks != nil {
			iv.MicroTasks = append([]domain.MicroTask(nil), (*opts.MicroTasks)...)
			changes["micro_tasks"] = len(iv.MicroTasks)
		}
		if opts.Resources != nil {
			iv.Resources = append([]domain.Resource(nil), (*opts.Resources)...)
			changes["resources"] = len(iv.Resources)
		}
		if opts.Position != nil {
			if *opts.Position < 0 {
				return invalidf("position must not be negative")
			}
			iv.Position = *opts.Position
			changes["position"] = *opts.Position
		}
		if len(changes) == 0 {
			return invalidf("no changes requested")
		}
		if iv, err = e.prepareIntervention(iv); err != nil {
			return err
		}
		iv.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateIntervention(ctx, tx, iv); err != nil {
			return err
		}
		if err := e.Repo.TouchBundle(ctx, tx, opts.BundleID, iv.UpdatedAt); err != nil {
			return err
		}
		out = iv
		return emit(events.InterventionUpdated, opts.BundleID, "intervention", iv.ID, opts.ActorID, changes)
	})
	return out, err
}

// RemoveIntervention deletes the intervention and every edge touching it.
// It returns the number of edges dropped.
func (e Engine) RemoveIntervention(ctx context.Context, bundleID, id, actorID string) (int, error) {
	dropped := 0
	err := e.writeTx(ctx, func(tx *sql.Tx, emit emitFunc) error {
		if err := e.Repo.DeleteIntervention(ctx, tx, bundleID, id); err != nil {
			return fmt.Errorf("intervention %s: %w", id, err)
		}
		edges, err := e.Repo.ListDependenciesTx(ctx, tx, bundleID)
		if err != nil {
			return err
		}
		kept := plan.DropIncident(edges, id)
		dropped = len(edges) - len(kept)
		if dropped > 0 {
			if err := e.Repo.ReplaceDependencies(ctx, tx, bundleID, kept); err != nil {
				return err
			}
		}
		if err := e.Repo.TouchBundle(ctx, tx, bundleID, e.stamp()); err != nil {
			return err
		}
		return emit(events.InterventionRemoved, bundleID, "intervention", id, actorID, events.EventPayload{"dropped_dependencies": dropped})
	})
	return dropped, err
}

func (e Engine) ListInterventions(ctx context.Context, bundleID string) ([]domain.Intervention, error) {
	if _, err := e.Repo.GetBundle(ctx, bundleID); err != nil {
		return nil, fmt.Errorf("bundle %s: %w", bundleID, err)
	}
	return e.Repo.ListInterventions(ctx, bundleID)
}
