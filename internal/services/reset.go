package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/vitapersonal/authserver/types"
)

// ResetRepository defines persistence operations for password reset
// requests.
type ResetRepository interface {
	Replace(ctx context.Context, request types.PasswordResetRequest) (types.PasswordResetRequest, error)
	GetByHash(ctx context.Context, hash string) (types.PasswordResetRequest, error)
	DeleteForUser(ctx context.Context, userID int) error
}

// ResetService encapsulates the password-reset token lifecycle.
type ResetService struct {
	repo ResetRepository
}

func NewResetService(repo ResetRepository) *ResetService {
	return &ResetService{repo: repo}
}

// Request creates a fresh reset request for the user, invalidating any
// prior one.
func (s *ResetService) Request(ctx context.Context, userID int) (types.PasswordResetRequest, error) {
	return s.repo.Replace(ctx, types.PasswordResetRequest{
		UserID: userID,
		Hash:   NewResetHash(),
	})
}

func (s *ResetService) GetByHash(ctx context.Context, hash string) (types.PasswordResetRequest, error) {
	return s.repo.GetByHash(ctx, hash)
}

// Consume deletes any live reset request for the user.
func (s *ResetService) Consume(ctx context.Context, userID int) error {
	return s.repo.DeleteForUser(ctx, userID)
}

// NewResetHash returns a 40-character random hex token.
func NewResetHash() string {
	var buf [20]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
