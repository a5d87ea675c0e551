package repo

import (
	"context"
	"database/sql"
	"errors"

	"hearth/internal/domain"
)

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	if u.Username == "" {
		return errors.New("username required")
	}
	if u.HouseholdID == "" {
		return errors.New("household_id required")
	}
	if u.PasswordHash == "" {
		return errors.New("password_hash required")
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(username,household_id,password_hash,created_at,updated_at) VALUES (?,?,?,?,?)`,
		u.Username, u.HouseholdID, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, username string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT username,household_id,password_hash,created_at,updated_at FROM users WHERE username=?`, username)
	var u domain.User
	err := row.Scan(&u.Username, &u.HouseholdID, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

func (r Repo) ListUsers(ctx context.Context, householdID string) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT username,household_id,password_hash,created_at,updated_at FROM users WHERE household_id=? ORDER BY username ASC`, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.Username, &u.HouseholdID, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
