package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"intervene/internal/cache"
	"intervene/internal/config"
	"intervene/internal/domain"
	"intervene/internal/events"
	"intervene/internal/plan"
	"intervene/internal/repo"
)

var (
	ErrInvalid       = errors.New("invalid input")
	ErrAlreadyExists = errors.New("already exists")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Publisher events.Publisher
	Cache     cache.Cache
	Config    *config.Config
	Logger    *log.Logger
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Publisher: events.NoopPublisher{},
		Cache:     cache.NullCache{},
		Config:    cfg,
		Logger:    log.Default(),
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// Policy is the configured duration rule.
func (e Engine) Policy() plan.Policy {
	if e.Config == nil {
		return plan.DefaultPolicy()
	}
	return e.Config.Policy()
}

func (e Engine) defaultWeeks() int {
	if e.Config == nil || e.Config.Planning.TimelineWeeks <= 0 {
		return domain.DefaultTimelineWeeks
	}
	return e.Config.Planning.TimelineWeeks
}

// writeTx runs fn in a transaction, commits, then publishes every event fn
// appended. Publish failures are logged; the commit already happened.
func (e Engine) writeTx(ctx context.Context, fn func(tx *sql.Tx, emit emitFunc) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var records []events.Record
	emit := func(evtType, bundleID, entityKind, entityID, actorID string, payload events.EventPayload) error {
		rec, err := e.Events.Append(ctx, tx, evtType, bundleID, entityKind, entityID, actorID, payload)
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	}
	if err := fn(tx, emit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.publish(ctx, records)
	return nil
}

type emitFunc func(evtType, bundleID, entityKind, entityID, actorID string, payload events.EventPayload) error

func (e Engine) publish(ctx context.Context, records []events.Record) {
	if e.Publisher == nil {
		return
	}
	prefix := ""
	if e.Config != nil {
		prefix = e.Config.Events.SubjectPrefix
	}
	for _, rec := range records {
		subject := events.Subject(prefix, rec.Type)
		if err := e.Publisher.Publish(ctx, subject, rec); err != nil {
			e.logger().Warn("publish event failed", "subject", subject, "err", err)
		}
	}
}

// BundleCreateOptions are parameters for creating a bundle.
type BundleCreateOptions struct {
	ID            string
	Name          string
	Description   string
	TimelineWeeks int
	ActorID       string
}

func (e Engine) CreateBundle(ctx context.Context, opts BundleCreateOptions) (domain.Bundle, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Bundle{}, invalidf("name is required")
	}
	if opts.TimelineWeeks < 0 {
		return domain.Bundle{}, invalidf("timeline weeks must be positive")
	}
	weeks := opts.TimelineWeeks
	if weeks == 0 {
		weeks = e.defaultWeeks()
	}
	now := e.stamp()
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(name+"|"+now+"|"+uuid.NewString())).String()
	}
	b := domain.Bundle{
		ID:            id,
		Name:          name,
		Description:   opts.Description,
		TimelineWeeks: weeks,
		Interventions: []domain.Intervention{},
		Dependencies:  []domain.DependencyEdge{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := e.writeTx(ctx, func(tx *sql.Tx, emit emitFunc) error {
		if _, err := e.Repo.GetBundleTx(ctx, tx, id); err == nil {
			return fmt.Errorf("bundle %s: %w", id, ErrAlreadyExists)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := e.Repo.InsertBundle(ctx, tx, b); err != nil {
			return err
		}
		return emit(events.BundleCreated, b.ID, "bundle", b.ID, opts.ActorID, events.EventPayload{"name": b.Name, "timeline_weeks": b.TimelineWeeks})
	})
	if err != nil {
		return domain.Bundle{}, err
	}
	e.logger().Info("bundle created", "bundle", b.ID, "name", b.Name)
	return b, nil
}

// BundleUpdateOptions encapsulates allowed bundle updates; nil fields are kept.
type BundleUpdateOptions struct {
	ID            string
	Name          *string
	Description   *string
	TimelineWeeks *int
	ActorID       string
}

func (e Engine) UpdateBundle(ctx context.Context, opts BundleUpdateOptions) (domain.Bundle, error) {
	if opts.Name != nil && strings.TrimSpace(*opts.Name) == "" {
		return domain.Bundle{}, invalidf("name must not be empty")
	}
	if opts.TimelineWeeks != nil && *opts.TimelineWeeks < 1 {
		return domain.Bundle{}, invalidf("timeline weeks must be at least 1")
	}
	changes := events.EventPayload{}
	if opts.Name != nil {
		changes["name"] = *opts.Name
	}
	if opts.Description != nil {
		changes["description"] = *opts.Description
	}
	if opts.TimelineWeeks != nil {
		changes["timeline_weeks"] = *opts.TimelineWeeks
	}
	err := e.writeTx(ctx, func(tx *sql.Tx, emit emitFunc) error {
		if err := e.Repo.UpdateBundle(ctx, tx, opts.ID, e.stamp(), opts.Name, opts.Description, opts.TimelineWeeks); err != nil {
			return fmt.Errorf("bundle %s: %w", opts.ID, err)
		}
		return emit(events.BundleUpdated, opts.ID, "bundle", opts.ID, opts.ActorID, changes)
	})
	if err != nil {
		return domain.Bundle{}, err
	}
	return e.Repo.LoadBundle(ctx, opts.ID)
}

func (e Engine) DeleteBundle(ctx context.Context, id, actorID string) error {
	return e.writeTx(ctx, func(tx *sql.Tx, emit emitFunc) error {
		if err := e.Repo.DeleteBundle(ctx, tx, id); err != nil {
			return fmt.Errorf("bundle %s: %w", id, err)
		}
		return emit(events.BundleDeleted, id, "bundle", id, actorID, nil)
	})
}

// GetBundle loads the full aggregate.
func (e Engine) GetBundle(ctx context.Context, id string) (domain.Bundle, error) {
	b, err := e.Repo.LoadBundle(ctx, id)
	if err != nil {
		return b, fmt.Errorf("bundle %s: %w", id, err)
	}
	return b, nil
}

// ImportBundle stores a bundle as given, including its edge list verbatim.
// Edges are not checked for cycles, so the stored graph may need validation.
func (e Engine) ImportBundle(ctx context.Context, in domain.Bundle, actorID string) (domain.Bundle, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Bundle{}, invalidf("bundle name is required")
	}
	now := e.stamp()
	b := domain.Bundle{
		ID:            strings.TrimSpace(in.ID),
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		TimelineWeeks: in.TimelineWeeks,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.TimelineWeeks <= 0 {
		b.TimelineWeeks = e.defaultWeeks()
	}
	seen := map[string]bool{}
	for i, iv := range in.Interventions {
		iv, err := e.prepareIntervention(iv)
		if err != nil {
			return domain.Bundle{}, err
		}
		if seen[iv.ID] {
			return domain.Bundle{}, invalidf("duplicate intervention id %s", iv.ID)
		}
		seen[iv.ID] = true
		iv.BundleID = b.ID
		iv.Position = i
		iv.CreatedAt, iv.UpdatedAt = now, now
		b.Interventions = append(b.Interventions, iv)
	}
	for _, edge := range in.Dependencies {
		edge, err := plan.NormalizeEdge(edge)
		if err != nil {
			return domain.Bundle{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		b.Dependencies = append(b.Dependencies, edge)
	}
	err := e.writeTx(ctx, func(tx *sql.Tx, emit emitFunc) error {
		if _, err := e.Repo.GetBundleTx(ctx, tx, b.ID); err == nil {
			return fmt.Errorf("bundle %s: %w", b.ID, ErrAlreadyExists)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := e.Repo.InsertBundle(ctx, tx, b); err != nil {
			return err
		}
		for _, iv := range b.Interventions {
			if err := e.Repo.InsertIntervention(ctx, tx, iv); err != nil {
				return err
			}
		}
		if err := e.Repo.ReplaceDependencies(ctx, tx, b.ID, b.Dependencies); err != nil {
			return err
		}
		return emit(events.BundleImported, b.ID, "bundle", b.ID, actorID, events.EventPayload{
			"interventions": len(b.Interventions),
			"dependencies":  len(b.Dependencies),
		})
	})
	if err != nil {
		return domain.Bundle{}, err
	}
	return e.Repo.LoadBundle(ctx, b.ID)
}
