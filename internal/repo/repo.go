package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"intervene/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx so reads can join a
// mutation's transaction.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.DB
}

const bundleColumns = `id,name,COALESCE(description,'') AS description,timeline_weeks,created_at,updated_at`

func scanBundle(row interface{ Scan(...any) error }) (domain.Bundle, error) {
	var b domain.Bundle
	err := row.Scan(&b.ID, &b.Name, &b.Description, &b.TimelineWeeks, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	return b, err
}

func (r Repo) InsertBundle(ctx context.Context, tx *sql.Tx, b domain.Bundle) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bundles(id,name,description,timeline_weeks,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		b.ID, b.Name, nullable(b.Description), b.TimelineWeeks, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert bundle: %w", err)
	}
	return nil
}

// GetBundle returns the bundle row without interventions or dependencies.
func (r Repo) GetBundle(ctx context.Context, id string) (domain.Bundle, error) {
	return r.GetBundleTx(ctx, nil, id)
}

func (r Repo) GetBundleTx(ctx context.Context, tx *sql.Tx, id string) (domain.Bundle, error) {
	return scanBundle(r.q(tx).QueryRowContext(ctx, `SELECT `+bundleColumns+` FROM bundles WHERE id=?`, id))
}

func (r Repo) ListBundles(ctx context.Context) ([]domain.Bundle, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+bundleColumns+` FROM bundles ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Bundle{}
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// UpdateBundle patches the non-nil fields and bumps updated_at.
func (r Repo) UpdateBundle(ctx context.Context, tx *sql.Tx, id, updatedAt string, name, description *string, timelineWeeks *int) error {
	fields := []string{"updated_at=?"}
	args := []any{updatedAt}
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if timelineWeeks != nil {
		fields = append(fields, "timeline_weeks=?")
		args = append(args, *timelineWeeks)
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE bundles SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchBundle bumps updated_at after a child row changed.
func (r Repo) TouchBundle(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	return r.UpdateBundle(ctx, tx, id, updatedAt, nil, nil, nil)
}

func (r Repo) DeleteBundle(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM bundles WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadBundle assembles the aggregate: bundle row, interventions in position
// order and dependencies in list order.
func (r Repo) LoadBundle(ctx context.Context, id string) (domain.Bundle, error) {
	return r.LoadBundleTx(ctx, nil, id)
}

func (r Repo) LoadBundleTx(ctx context.Context, tx *sql.Tx, id string) (domain.Bundle, error) {
	b, err := r.GetBundleTx(ctx, tx, id)
	if err != nil {
		return b, err
	}
	if b.Interventions, err = r.ListInterventionsTx(ctx, tx, id); err != nil {
		return b, err
	}
	if b.Dependencies, err = r.ListDependenciesTx(ctx, tx, id); err != nil {
		return b, err
	}
	return b, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
