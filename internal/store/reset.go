package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vitapersonal/authserver/types"
)

// ResetRepository handles persistence for password reset requests.
type ResetRepository struct {
	db *sql.DB
}

func NewResetRepository(db *sql.DB) *ResetRepository {
	return &ResetRepository{db: db}
}

// Replace deletes any prior reset request for the user and inserts the
// new one in a single transaction, so at most one live request exists
// per user.
func (r *ResetRepository) Replace(ctx context.Context, request types.PasswordResetRequest) (types.PasswordResetRequest, error) {
	request.CreatedAt = time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.PasswordResetRequest{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM password_reset_requests WHERE user_id = $1`,
		request.UserID,
	); err != nil {
		return types.PasswordResetRequest{}, err
	}

	const insert = `
		INSERT INTO password_reset_requests (user_id, hash, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`
	if err := tx.QueryRowContext(ctx, insert,
		request.UserID,
		request.Hash,
		request.CreatedAt,
	).Scan(&request.ID); err != nil {
		return types.PasswordResetRequest{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.PasswordResetRequest{}, err
	}
	return request, nil
}

func (r *ResetRepository) GetByHash(ctx context.Context, hash string) (types.PasswordResetRequest, error) {
	const query = `
		SELECT id, user_id, hash, created_at
		FROM password_reset_requests
		WHERE hash = $1`
	var request types.PasswordResetRequest
	err := r.db.QueryRowContext(ctx, query, hash).Scan(
		&request.ID,
		&request.UserID,
		&request.Hash,
		&request.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PasswordResetRequest{}, ErrNotFound
		}
		return types.PasswordResetRequest{}, err
	}
	return request, nil
}

// DeleteForUser consumes any live reset request for the user.
func (r *ResetRepository) DeleteForUser(ctx context.Context, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM password_reset_requests WHERE user_id = $1`, userID)
	return err
}
