package repo

import (
	"context"
	"database/sql"

	"hearth/internal/domain"
)

func scanHousehold(row *sql.Row) (domain.Household, error) {
	var h domain.Household
	err := row.Scan(&h.ID, &h.Name, &h.CreatedAt, &h.UpdatedAt)
	if err == sql.ErrNoRows {
		return h, ErrNotFound
	}
	return h, err
}

func (r Repo) InsertHousehold(ctx context.Context, h domain.Household) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO households(id,name,created_at,updated_at) VALUES (?,?,?,?)`,
		h.ID, h.Name, h.CreatedAt, h.UpdatedAt)
	return err
}

func (r Repo) GetHousehold(ctx context.Context, id string) (domain.Household, error) {
	return scanHousehold(r.DB.QueryRowContext(ctx, `SELECT id,name,created_at,updated_at FROM households WHERE id=?`, id))
}

func (r Repo) GetHouseholdByName(ctx context.Context, name string) (domain.Household, error) {
	return scanHousehold(r.DB.QueryRowContext(ctx, `SELECT id,name,created_at,updated_at FROM households WHERE name=?`, name))
}

func (r Repo) ListHouseholds(ctx context.Context) ([]domain.Household, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at,updated_at FROM households ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Household
	for rows.Next() {
		var h domain.Household
		if err := rows.Scan(&h.ID, &h.Name, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}
