package repo

import (
	"context"
	"database/sql"
	"errors"

	"hearth/internal/domain"
)

// GetPreferences returns the user's saved chore preferences. A user who
// never saved any reads as the zero value, not ErrNotFound.
func (r Repo) GetPreferences(ctx context.Context, username string) (domain.Preferences, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT pet_care,laundry,cooking,organization,plant_care,house_work,yard_work,family_care FROM user_preferences WHERE username=?`, username)
	var p domain.Preferences
	err := row.Scan(&p.PetCare, &p.Laundry, &p.Cooking, &p.Organization, &p.PlantCare, &p.HouseWork, &p.YardWork, &p.FamilyCare)
	if err == sql.ErrNoRows {
		return domain.Preferences{}, nil
	}
	return p, err
}

// SavePreferences upserts the user's chore preferences.
func (r Repo) SavePreferences(ctx context.Context, username string, p domain.Preferences, updatedAt string) error {
	if username == "" {
		return errors.New("username required")
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO user_preferences(username,pet_care,laundry,cooking,organization,plant_care,house_work,yard_work,family_care,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(username) DO UPDATE SET
			pet_care=excluded.pet_care,
			laundry=excluded.laundry,
			cooking=excluded.cooking,
			organization=excluded.organization,
			plant_care=excluded.plant_care,
			house_work=excluded.house_work,
			yard_work=excluded.yard_work,
			family_care=excluded.family_care,
			updated_at=excluded.updated_at`,
		username, p.PetCare, p.Laundry, p.Cooking, p.Organization, p.PlantCare, p.HouseWork, p.YardWork, p.FamilyCare, updatedAt)
	return err
}
