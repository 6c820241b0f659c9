package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vitapersonal/authserver/types"
)

const profileColumns = `id, user_id, name, birthday, male, smoker,
		vegetarian, pregnancy, coffee_cups, health_goals,
		created_at, updated_at`

// ProfileRepository handles persistence for wellness profiles.
type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) GetByID(ctx context.Context, id int) (types.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Profile{}, ErrNotFound
		}
		return types.Profile{}, err
	}
	return profile, nil
}

func (r *ProfileRepository) ListByUser(ctx context.Context, userID int) ([]types.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE user_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]types.Profile, 0, 4)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *ProfileRepository) Create(ctx context.Context, profile types.Profile) (types.Profile, error) {
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	const query = `
		INSERT INTO profiles (user_id, name, birthday, male, smoker,
			vegetarian, pregnancy, coffee_cups, health_goals,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		profile.UserID,
		profile.Name,
		profile.Birthday,
		profile.Male,
		profile.Smoker,
		profile.Vegetarian,
		profile.Pregnancy,
		profile.CoffeeCups,
		profile.HealthGoals,
		profile.CreatedAt,
		profile.UpdatedAt,
	).Scan(&profile.ID); err != nil {
		return types.Profile{}, err
	}
	return profile, nil
}

func (r *ProfileRepository) Update(ctx context.Context, profile types.Profile) (types.Profile, error) {
	profile.UpdatedAt = time.Now()

	const query = `
		UPDATE profiles
		SET name = $1,
			birthday = $2,
			male = $3,
			smoker = $4,
			vegetarian = $5,
			pregnancy = $6,
			coffee_cups = $7,
			health_goals = $8,
			updated_at = $9
		WHERE id = $10`
	result, err := r.db.ExecContext(
		ctx,
		query,
		profile.Name,
		profile.Birthday,
		profile.Male,
		profile.Smoker,
		profile.Vegetarian,
		profile.Pregnancy,
		profile.CoffeeCups,
		profile.HealthGoals,
		profile.UpdatedAt,
		profile.ID,
	)
	if err != nil {
		return types.Profile{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Profile{}, err
	}
	if affected == 0 {
		return types.Profile{}, ErrNotFound
	}
	return profile, nil
}

func scanProfile(row rowScanner) (types.Profile, error) {
	var profile types.Profile
	var birthday sql.NullTime

	if err := row.Scan(
		&profile.ID,
		&profile.UserID,
		&profile.Name,
		&birthday,
		&profile.Male,
		&profile.Smoker,
		&profile.Vegetarian,
		&profile.Pregnancy,
		&profile.CoffeeCups,
		&profile.HealthGoals,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		return types.Profile{}, err
	}

	if birthday.Valid {
		t := birthday.Time
		profile.Birthday = &t
	}
	return profile, nil
}
