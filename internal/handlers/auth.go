package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vitapersonal/authserver/config"
	"github.com/vitapersonal/authserver/internal/jobs"
	smtpmail "github.com/vitapersonal/authserver/internal/mail"
	"github.com/vitapersonal/authserver/internal/services"
	"github.com/vitapersonal/authserver/internal/store"
	"github.com/vitapersonal/authserver/types"
)

// AuthHandler provides login, logout, and password-reset endpoints.
type AuthHandler struct {
	users      *services.UserService
	resets     *services.ResetService
	dispatcher *jobs.Dispatcher
	secret     []byte
	tokenTTL   time.Duration
	minPwLen   int
	external   config.ExternalConfig
	fromName   string
}

// AuthHandlerConfig carries the AuthHandler dependencies.
type AuthHandlerConfig struct {
	Users             *services.UserService
	Resets            *services.ResetService
	Dispatcher        *jobs.Dispatcher
	JWTSecret         string
	TokenTTL          time.Duration
	MinPasswordLength int
	External          config.ExternalConfig
	SenderName        string
}

func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		users:      cfg.Users,
		resets:     cfg.Resets,
		dispatcher: cfg.Dispatcher,
		secret:     []byte(cfg.JWTSecret),
		tokenTTL:   cfg.TokenTTL,
		minPwLen:   cfg.MinPasswordLength,
		external:   cfg.External,
		fromName:   cfg.SenderName,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/login", handler.Login)
	// Logout answers both verbs for client compatibility.
	r.Get("/logout", handler.Logout)
	r.Post("/logout", handler.Logout)
	r.Post("/password_reset", handler.PasswordReset)
	r.Post("/password_reset_complete", handler.PasswordResetComplete)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries a token plus the authenticated user.
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// Login verifies credentials and returns a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if IdentityFromContext(r.Context()).Authenticated {
		errs := NewValidationErrors()
		errs.Add("Already logged in.")
		writeValidationErrors(w, errs)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.rejectLogin(w)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	if user.Status == types.StatusClosed {
		h.rejectLogin(w)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.rejectLogin(w)
		return
	}

	token, err := issueToken(user.ID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Token: token,
		User:  buildUserResponse(user, selfVisibility, h.external),
	})
}

func (h *AuthHandler) rejectLogin(w http.ResponseWriter) {
	errs := NewValidationErrors()
	errs.Add("Invalid E-mail or password.")
	writeValidationErrors(w, errs)
}

// Logout acknowledges the logout. Tokens are stateless; the client
// discards its copy.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if !IdentityFromContext(r.Context()).Authenticated {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, ResultResponse{Result: "Logged out"})
}

type PasswordResetRequestPayload struct {
	Email string `json:"email"`
}

// PasswordReset initiates the reset flow: any prior request for the
// user is invalidated, a fresh token is stored, and the reset email is
// dispatched as a side job. Unknown and malformed emails produce the
// same generic error, so the endpoint does not reveal whether an
// account exists.
func (h *AuthHandler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		h.rejectResetEmail(w)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.rejectResetEmail(w)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to process reset")
		return
	}

	request, err := h.resets.Request(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process reset")
		return
	}

	h.sendResetEmail(r, user, request.Hash)
	writeJSON(w, http.StatusOK, ResultResponse{Result: "Please check your E-mail"})
}

func (h *AuthHandler) rejectResetEmail(w http.ResponseWriter) {
	errs := NewValidationErrors()
	errs.AddField("email", "E-mail", "Invalid E-mail.")
	writeValidationErrors(w, errs)
}

func (h *AuthHandler) sendResetEmail(r *http.Request, user types.User, hash string) {
	body, err := smtpmail.RenderResetEmail(smtpmail.ResetEmailParams{
		Name:     user.ShortName(),
		ResetURL: smtpmail.ResetURL(h.external, hash),
		Sender:   h.fromName,
	})
	if err != nil {
		// Rendering is static; an error here is a programming bug, but
		// the reset request itself already succeeded.
		return
	}

	h.dispatcher.SubmitEmail(r.Context(), jobs.EmailJob{
		To:      user.Email,
		Subject: smtpmail.ResetEmailSubject,
		Body:    body,
	})
}

type PasswordResetCompletePayload struct {
	Hash     string `json:"hash"`
	Password string `json:"password"`
}

// PasswordResetComplete consumes a valid reset token, replaces the
// credential, and logs the user in with a fresh token.
func (h *AuthHandler) PasswordResetComplete(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetCompletePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	errs := NewValidationErrors()
	hash := strings.TrimSpace(req.Hash)
	if hash == "" {
		errs.AddField("hash", "Password reset hash", "This field is required.")
	}
	validatePassword(errs, req.Password, h.minPwLen, true)
	if !errs.Empty() {
		writeValidationErrors(w, errs)
		return
	}

	request, err := h.resets.GetByHash(r.Context(), hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			errs.AddField("hash", "Password reset hash", "Invalid password reset hash")
			writeValidationErrors(w, errs)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to process reset")
		return
	}

	user, err := h.users.GetByID(r.Context(), request.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process reset")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process reset")
		return
	}
	user.PasswordHash = string(hashed)

	if _, err := h.users.Update(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process reset")
		return
	}

	if err := h.resets.Consume(r.Context(), user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process reset")
		return
	}

	token, err := issueToken(user.ID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Token: token,
		User:  buildUserResponse(user, selfVisibility, h.external),
	})
}

func validatePassword(errs *ValidationErrors, password string, minLen int, required bool) {
	if password == "" {
		if required {
			errs.AddField("password", "Password", "This field is required.")
		}
		return
	}
	if len(password) < minLen {
		errs.AddField("password", "Password",
			fmt.Sprintf("The password should be at least %d characters long.", minLen))
	}
}
