package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cardiosense/assessment-api/internal/model"
)

// ProfileRepo stores per-user display settings in `profiles`.
type ProfileRepo struct{ db *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{db: db} }

// Get returns the user's profile. A user without a row gets a profile
// carrying model.DefaultPreferences and a nil error.
func (r *ProfileRepo) Get(ctx context.Context, userID string) (model.Profile, error) {
	p := model.Profile{UserID: userID, Preferences: model.DefaultPreferences()}
	err := r.db.QueryRowContext(ctx,
		"SELECT display_name, disclaimer_dismissed, theme, updated_at FROM profiles WHERE user_id=?", userID,
	).Scan(&p.DisplayName, &p.Preferences.DisclaimerDismissed, &p.Preferences.Theme, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return model.Profile{}, err
	}
	if !model.ValidTheme(p.Preferences.Theme) {
		p.Preferences.Theme = model.ThemeSystem
	}
	return p, nil
}

// Upsert writes the profile keyed by user id. An UPDATE is tried first;
// when no row exists an INSERT follows, and a concurrent insert that wins
// the race is resolved by one more UPDATE.
func (r *ProfileRepo) Upsert(ctx context.Context, p *model.Profile) error {
	p.UpdatedAt = time.Now().UTC()
	update := func() (int64, error) {
		res, err := r.db.ExecContext(ctx,
			"UPDATE profiles SET display_name=?, disclaimer_dismissed=?, theme=?, updated_at=? WHERE user_id=?",
			p.DisplayName, p.Preferences.DisclaimerDismissed, p.Preferences.Theme, p.UpdatedAt, p.UserID)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
	n, err := update()
	if err != nil || n > 0 {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO profiles (user_id, display_name, disclaimer_dismissed, theme, updated_at) VALUES (?,?,?,?,?)",
		p.UserID, p.DisplayName, p.Preferences.DisclaimerDismissed, p.Preferences.Theme, p.UpdatedAt)
	if isDuplicate(err) {
		_, err = update()
	}
	return err
}
