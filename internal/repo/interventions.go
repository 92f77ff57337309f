package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"intervene/internal/domain"
)

const interventionColumns = `id,bundle_id,name,COALESCE(zone,'') AS zone,complexity,micro_tasks_json,resources_json,position,created_at,updated_at`

func scanIntervention(row interface{ Scan(...any) error }) (domain.Intervention, error) {
	var iv domain.Intervention
	var zone, complexity, tasksJSON, resJSON string
	err := row.Scan(&iv.ID, &iv.BundleID, &iv.Name, &zone, &complexity, &tasksJSON, &resJSON, &iv.Position, &iv.CreatedAt, &iv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return iv, ErrNotFound
	}
	if err != nil {
		return iv, err
	}
	iv.Zone = domain.Zone(zone)
	iv.Complexity = domain.Complexity(complexity)
	if err := json.Unmarshal([]byte(tasksJSON), &iv.MicroTasks); err != nil {
		return iv, fmt.Errorf("intervention %s micro tasks: %w", iv.ID, err)
	}
	if err := json.Unmarshal([]byte(resJSON), &iv.Resources); err != nil {
		return iv, fmt.Errorf("intervention %s resources: %w", iv.ID, err)
	}
	return iv, nil
}

func marshalList(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}

func (r Repo) InsertIntervention(ctx context.Context, tx *sql.Tx, iv domain.Intervention) error {
	tasks, err := marshalList(iv.MicroTasks)
	if err != nil {
		return err
	}
	res, err := marshalList(iv.Resources)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO interventions(id,bundle_id,name,zone,complexity,micro_tasks_json,resources_json,position,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		iv.ID, iv.BundleID, iv.Name, nullable(string(iv.Zone)), string(iv.Complexity), tasks, res, iv.Position, iv.CreatedAt, iv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert intervention: %w", err)
	}
	return nil
}

func (r Repo) UpdateIntervention(ctx context.Context, tx *sql.Tx, iv domain.Intervention) error {
	tasks, err := marshalList(iv.MicroTasks)
	if err != nil {
		return err
	}
	resources, err := marshalList(iv.Resources)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE interventions SET name=?, zone=?, complexity=?, micro_tasks_json=?, resources_json=?, position=?, updated_at=? WHERE bundle_id=? AND id=?`,
		iv.Name, nullable(string(iv.Zone)), string(iv.Complexity), tasks, resources, iv.Position, iv.UpdatedAt, iv.BundleID, iv.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteIntervention(ctx context.Context, tx *sql.Tx, bundleID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM interventions WHERE bundle_id=? AND id=?`, bundleID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetIntervention(ctx context.Context, bundleID, id string) (domain.Intervention, error) {
	return r.GetInterventionTx(ctx, nil, bundleID, id)
}

func (r Repo) GetInterventionTx(ctx context.Context, tx *sql.Tx, bundleID, id string) (domain.Intervention, error) {
	return scanIntervention(r.q(tx).QueryRowContext(ctx, `SELECT `+interventionColumns+` FROM interventions WHERE bundle_id=? AND id=?`, bundleID, id))
}

func (r Repo) ListInterventions(ctx context.Context, bundleID string) ([]domain.Intervention, error) {
	return r.ListInterventionsTx(ctx, nil, bundleID)
}

func (r Repo) ListInterventionsTx(ctx context.Context, tx *sql.Tx, bundleID string) ([]domain.Intervention, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+interventionColumns+` FROM interventions WHERE bundle_id=? ORDER BY position, created_at, id`, bundleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Intervention{}
	for rows.Next() {
		iv, err := scanIntervention(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, iv)
	}
	return res, rows.Err()
}

// NextInterventionPosition returns one past the highest position in the bundle.
func (r Repo) NextInterventionPosition(ctx context.Context, tx *sql.Tx, bundleID string) (int, error) {
	var pos int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COALESCE(MAX(position)+1,0) FROM interventions WHERE bundle_id=?`, bundleID).Scan(&pos)
	return pos, err
}
