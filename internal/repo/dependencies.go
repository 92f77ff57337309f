package repo

import (
	"context"
	"database/sql"
	"fmt"

	"intervene/internal/domain"
)

func (r Repo) ListDependencies(ctx context.Context, bundleID string) ([]domain.DependencyEdge, error) {
	return r.ListDependenciesTx(ctx, nil, bundleID)
}

// ListDependenciesTx returns the bundle's edges in list order.
func (r Repo) ListDependenciesTx(ctx context.Context, tx *sql.Tx, bundleID string) ([]domain.DependencyEdge, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT type,from_intervention_id,to_intervention_id,critical_path,COALESCE(description,'') FROM dependencies WHERE bundle_id=? ORDER BY position, row_id`, bundleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.DependencyEdge{}
	for rows.Next() {
		var e domain.DependencyEdge
		var typ string
		var critical int
		if err := rows.Scan(&typ, &e.FromInterventionID, &e.ToInterventionID, &critical, &e.Description); err != nil {
			return nil, err
		}
		e.Type = domain.DependencyType(typ)
		e.CriticalPath = critical != 0
		res = append(res, e)
	}
	return res, rows.Err()
}

// ReplaceDependencies rewrites the bundle's whole edge list, keeping order.
// Every mutation goes through here so stored order always equals list order.
func (r Repo) ReplaceDependencies(ctx context.Context, tx *sql.Tx, bundleID string, edges []domain.DependencyEdge) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE bundle_id=?`, bundleID); err != nil {
		return fmt.Errorf("clear dependencies: %w", err)
	}
	if len(edges) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO dependencies(bundle_id,position,type,from_intervention_id,to_intervention_id,critical_path,description) VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, e := range edges {
		if _, err := stmt.ExecContext(ctx, bundleID, i, string(e.Type), e.FromInterventionID, e.ToInterventionID, boolInt(e.CriticalPath), nullable(e.Description)); err != nil {
			return fmt.Errorf("insert dependency %s -> %s: %w", e.FromInterventionID, e.ToInterventionID, err)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
