package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vitapersonal/authserver/types"
)

const userColumns = `id, email, password_hash, is_staff, is_superuser,
		first_name, last_name, phone, registration_ip, last_ip,
		last_activity, country, timezone, image_key,
		show_welcome_dialog, status, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByEmail looks the user up case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(email) = LOWER($1)`
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (types.User, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// Create inserts the user. The email is normalized to lowercase before
// persistence.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Status == "" {
		user.Status = types.StatusActive
	}

	const query = `
		INSERT INTO users (email, password_hash, is_staff, is_superuser,
			first_name, last_name, phone, registration_ip, last_ip,
			country, timezone, show_welcome_dialog, status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.PasswordHash,
		user.IsStaff,
		user.IsSuperuser,
		user.FirstName,
		user.LastName,
		user.Phone,
		nullString(user.RegistrationIP),
		nullString(user.LastIP),
		nullString(user.Country),
		nullString(user.Timezone),
		user.ShowWelcomeDialog,
		user.Status,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, err
	}
	return user, nil
}

// Update writes the editable attributes of the user. Bookkeeping
// columns (registration_ip, last_ip, last_activity, country, timezone)
// are owned by UpdateActivity and left untouched here.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	const query = `
		UPDATE users
		SET email = $1,
			password_hash = $2,
			first_name = $3,
			last_name = $4,
			phone = $5,
			show_welcome_dialog = $6,
			image_key = $7,
			timezone = $8,
			updated_at = $9
		WHERE id = $10`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.ShowWelcomeDialog,
		nullString(user.ImageKey),
		nullString(user.Timezone),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// ActivityUpdate is a partial write of per-request bookkeeping columns.
// Nil fields are left untouched.
type ActivityUpdate struct {
	LastActivity   *time.Time
	LastIP         *string
	RegistrationIP *string
	Country        *string
	Timezone       *string
}

// UpdateActivity applies a partial update, writing only the fields that
// are present.
func (r *UserRepository) UpdateActivity(ctx context.Context, id int, update ActivityUpdate) error {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.LastActivity != nil {
		add("last_activity", *update.LastActivity)
	}
	if update.LastIP != nil {
		add("last_ip", *update.LastIP)
	}
	if update.RegistrationIP != nil {
		add("registration_ip", *update.RegistrationIP)
	}
	if update.Country != nil {
		add("country", *update.Country)
	}
	if update.Timezone != nil {
		add("timezone", *update.Timezone)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns users visible under the given owner filter. A non-nil
// onlyUserID narrows the set to that single owner.
func (r *UserRepository) List(ctx context.Context, onlyUserID *int, offset, limit int) ([]types.User, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	where := ""
	countArgs := []any{}
	listArgs := []any{}
	if onlyUserID != nil {
		where = " WHERE id = $1"
		countArgs = append(countArgs, *onlyUserID)
		listArgs = append(listArgs, *onlyUserID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM users"+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs = append(listArgs, offset, limit)
	query := fmt.Sprintf(`
		SELECT %s
		FROM users%s
		ORDER BY id
		OFFSET $%d LIMIT $%d`, userColumns, where, len(listArgs)-1, len(listArgs))

	rows, err := r.db.QueryContext(ctx, query, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]types.User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

// Close transitions the account to the closed status. Accounts are
// never deleted.
func (r *UserRepository) Close(ctx context.Context, id int) error {
	const query = `
		UPDATE users
		SET status = $1, updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, types.StatusClosed, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var registrationIP, lastIP, country, timezone, imageKey sql.NullString
	var lastActivity sql.NullTime

	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.IsStaff,
		&user.IsSuperuser,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&registrationIP,
		&lastIP,
		&lastActivity,
		&country,
		&timezone,
		&imageKey,
		&user.ShowWelcomeDialog,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return types.User{}, err
	}

	user.RegistrationIP = registrationIP.String
	user.LastIP = lastIP.String
	user.Country = country.String
	user.Timezone = timezone.String
	user.ImageKey = imageKey.String
	if lastActivity.Valid {
		t := lastActivity.Time
		user.LastActivity = &t
	}
	return user, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
