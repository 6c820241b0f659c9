package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vitapersonal/authserver/config"
	"github.com/vitapersonal/authserver/internal/policy"
	"github.com/vitapersonal/authserver/internal/services"
	"github.com/vitapersonal/authserver/internal/storage"
	"github.com/vitapersonal/authserver/internal/store"
	"github.com/vitapersonal/authserver/types"
)

// UserHandler provides the account endpoints: registration, listing,
// retrieval, updates, and account closing.
type UserHandler struct {
	users    *services.UserService
	activity *services.ActivityService
	images   *ImageHandler
	secret   []byte
	tokenTTL time.Duration
	minPwLen int
	external config.ExternalConfig
}

// UserHandlerConfig carries the UserHandler dependencies.
type UserHandlerConfig struct {
	Users             *services.UserService
	Activity          *services.ActivityService
	Images            *ImageHandler
	JWTSecret         string
	TokenTTL          time.Duration
	MinPasswordLength int
	External          config.ExternalConfig
}

func NewUserHandler(cfg UserHandlerConfig) *UserHandler {
	return &UserHandler{
		users:    cfg.Users,
		activity: cfg.Activity,
		images:   cfg.Images,
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: cfg.TokenTTL,
		minPwLen: cfg.MinPasswordLength,
		external: cfg.External,
	}
}

// UsersRouter registers user routes on the given router. Registration
// and listing are open; everything else goes through the
// authenticated policy.
func UsersRouter(r chi.Router, handler *UserHandler, auth *AuthMiddleware) {
	r.Post("/", handler.Register)
	// Listing is open: the scoper narrows anonymous callers to an
	// empty set rather than rejecting them.
	r.Get("/", handler.List)
	r.Group(func(r chi.Router) {
		r.Use(auth.Require)
		r.Get("/{userID}", handler.Get)
		r.Put("/{userID}", handler.Update)
		r.Patch("/{userID}", handler.Update)
		// Accounts are closed, never deleted.
		r.Post("/{userID}/close", handler.Close)
		if handler.images != nil {
			r.Put("/{userID}/image", handler.images.Upload)
		}
	})
}

// userVisibility controls which bookkeeping fields a response exposes.
type userVisibility int

const (
	publicVisibility userVisibility = iota
	selfVisibility
)

// UserResponse is the wire shape of an account. Bookkeeping fields are
// present only when the viewer is the account owner or a superuser.
type UserResponse struct {
	ID                int        `json:"id"`
	Email             string     `json:"email"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	Phone             string     `json:"phone"`
	IsStaff           bool       `json:"is_staff"`
	IsSuperuser       bool       `json:"is_superuser"`
	Country           string     `json:"country,omitempty"`
	Timezone          string     `json:"timezone,omitempty"`
	Status            string     `json:"status"`
	LastActivity      *time.Time `json:"last_activity,omitempty"`
	RegistrationIP    string     `json:"registration_ip,omitempty"`
	LastIP            string     `json:"last_ip,omitempty"`
	ShowWelcomeDialog *bool      `json:"show_welcome_dialog,omitempty"`
	Image             string     `json:"image,omitempty"`
	ImageCropMini     string     `json:"image_crop_mini,omitempty"`
	ImageCrop100      string     `json:"image_crop_100,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func buildUserResponse(user types.User, vis userVisibility, external config.ExternalConfig) UserResponse {
	resp := UserResponse{
		ID:           user.ID,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Phone:        user.Phone,
		IsStaff:      user.IsStaff,
		IsSuperuser:  user.IsSuperuser,
		Country:      user.Country,
		Timezone:     user.Timezone,
		Status:       user.Status,
		LastActivity: user.LastActivity,
		CreatedAt:    user.CreatedAt,
	}
	if user.ImageKey != "" {
		resp.Image = mediaURL(external, user.ImageKey)
		resp.ImageCropMini = mediaURL(external, storage.ThumbnailKey(user.ImageKey, "mini"))
		resp.ImageCrop100 = mediaURL(external, storage.ThumbnailKey(user.ImageKey, "100"))
	}
	if vis == selfVisibility {
		resp.RegistrationIP = user.RegistrationIP
		resp.LastIP = user.LastIP
		show := user.ShowWelcomeDialog
		resp.ShowWelcomeDialog = &show
	}
	return resp
}

// visibilityFor returns selfVisibility when the actor owns the account
// or is a superuser.
func visibilityFor(actor policy.Identity, targetID int) userVisibility {
	if actor.Superuser || (actor.Authenticated && actor.ID == targetID) {
		return selfVisibility
	}
	return publicVisibility
}

// RegisterRequest carries the fields accepted on account creation.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// Register creates a new account. Creation is open to anyone,
// including authenticated callers (admins provision accounts for
// others); only an anonymous creator is logged in as the new account.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	actor := IdentityFromContext(r.Context())

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	errs := NewValidationErrors()
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		errs.AddField("email", "E-mail", "This field is required.")
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs.AddField("email", "E-mail", "Invalid E-mail.")
	}
	if strings.TrimSpace(req.FirstName) == "" {
		errs.AddField("first_name", "First name", "This field is required.")
	}
	if strings.TrimSpace(req.LastName) == "" {
		errs.AddField("last_name", "Last name", "This field is required.")
	}
	validatePassword(errs, req.Password, h.minPwLen, true)
	if !errs.Empty() {
		writeValidationErrors(w, errs)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	ip := remoteIP(r)
	user := types.User{
		Email:             email,
		PasswordHash:      string(hashed),
		FirstName:         strings.TrimSpace(req.FirstName),
		LastName:          strings.TrimSpace(req.LastName),
		Phone:             strings.TrimSpace(req.Phone),
		RegistrationIP:    ip,
		LastIP:            ip,
		ShowWelcomeDialog: true,
		Status:            types.StatusActive,
	}

	if err := h.activity.DeriveLocaleOnCreate(r.Context(), &user); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	created, err := h.users.Create(r.Context(), user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			errs.AddField("email", "E-mail", "A user with this E-mail already exists.")
			writeValidationErrors(w, errs)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	if actor.Authenticated {
		writeJSON(w, http.StatusCreated, buildUserResponse(created, visibilityFor(actor, created.ID), h.external))
		return
	}

	token, err := issueToken(created.ID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{
		Token: token,
		User:  buildUserResponse(created, selfVisibility, h.external),
	})
}

// ListUsersResponse is the paginated listing shape.
type ListUsersResponse struct {
	Users []UserResponse `json:"users"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// List returns accounts visible to the actor: all of them for staff
// and superusers, only their own for everyone else.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := IdentityFromContext(r.Context())

	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var onlyUserID *int
	switch policy.ScopeList(actor, true) {
	case policy.ScopeAll:
	case policy.ScopeSelf:
		id := actor.ID
		onlyUserID = &id
	default:
		writeJSON(w, http.StatusOK, ListUsersResponse{Users: []UserResponse{}, Page: page, Limit: limit})
		return
	}

	users, total, err := h.users.List(r.Context(), onlyUserID, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	resp := ListUsersResponse{
		Users: make([]UserResponse, 0, len(users)),
		Total: total,
		Page:  page,
		Limit: limit,
	}
	for _, u := range users {
		resp.Users = append(resp.Users, buildUserResponse(u, visibilityFor(actor, u.ID), h.external))
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolveUserID turns the path parameter into a concrete account ID.
// The "me" alias resolves to the actor and requires authentication,
// even on endpoints that would otherwise reject the request later.
func resolveUserID(r *http.Request, actor policy.Identity) (int, error) {
	raw := chi.URLParam(r, "userID")
	if raw == selfAlias {
		if !policy.CanResolveSelf(actor) {
			return 0, errUnauthorized
		}
		return actor.ID, nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user ID")
	}
	return id, nil
}

var errUnauthorized = errors.New("unauthorized")

// Get returns a single account.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor := IdentityFromContext(r.Context())

	id, err := resolveUserID(r, actor)
	if err != nil {
		if errors.Is(err, errUnauthorized) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !policy.CanAccessUser(actor, id, true) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, buildUserResponse(user, visibilityFor(actor, user.ID), h.external))
}

// UpdateUserRequest carries the editable account fields. Pointers
// distinguish absent fields from zero values, so PATCH semantics work
// for PUT too.
type UpdateUserRequest struct {
	Email             *string `json:"email"`
	Password          *string `json:"password"`
	FirstName         *string `json:"first_name"`
	LastName          *string `json:"last_name"`
	Phone             *string `json:"phone"`
	ShowWelcomeDialog *bool   `json:"show_welcome_dialog"`
}

// Update applies a partial update to an account the actor may write.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor := IdentityFromContext(r.Context())

	id, err := resolveUserID(r, actor)
	if err != nil {
		if errors.Is(err, errUnauthorized) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !policy.CanAccessUser(actor, id, false) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	errs := NewValidationErrors()
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			errs.AddField("email", "E-mail", "Invalid E-mail.")
		} else {
			user.Email = email
		}
	}
	if req.Password != nil {
		validatePassword(errs, *req.Password, h.minPwLen, false)
		if errs.Empty() && *req.Password != "" {
			hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to update user")
				return
			}
			user.PasswordHash = string(hashed)
		}
	}
	// Names are required on a full update; a partial update may leave
	// them untouched but never clears them.
	fullUpdate := r.Method == http.MethodPut
	if fullUpdate && req.FirstName == nil {
		errs.AddField("first_name", "First name", "This field is required.")
	}
	if fullUpdate && req.LastName == nil {
		errs.AddField("last_name", "Last name", "This field is required.")
	}
	if req.FirstName != nil {
		if name := strings.TrimSpace(*req.FirstName); name == "" {
			errs.AddField("first_name", "First name", "This field is required.")
		} else {
			user.FirstName = name
		}
	}
	if req.LastName != nil {
		if name := strings.TrimSpace(*req.LastName); name == "" {
			errs.AddField("last_name", "Last name", "This field is required.")
		} else {
			user.LastName = name
		}
	}
	if req.Phone != nil {
		user.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.ShowWelcomeDialog != nil {
		user.ShowWelcomeDialog = *req.ShowWelcomeDialog
	}
	if !errs.Empty() {
		writeValidationErrors(w, errs)
		return
	}

	updated, err := h.users.Update(r.Context(), user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			errs.AddField("email", "E-mail", "A user with this E-mail already exists.")
			writeValidationErrors(w, errs)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	writeJSON(w, http.StatusOK, buildUserResponse(updated, visibilityFor(actor, updated.ID), h.external))
}

// Close transitions an account to the closed status. The row is kept.
func (h *UserHandler) Close(w http.ResponseWriter, r *http.Request) {
	actor := IdentityFromContext(r.Context())

	if !policy.CanCloseUser(actor) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	id, err := resolveUserID(r, actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.users.Close(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to close user")
		return
	}

	writeJSON(w, http.StatusOK, ResultResponse{Result: "Account closed"})
}

// mediaURL builds a public URL for an object storage key.
func mediaURL(external config.ExternalConfig, key string) string {
	return fmt.Sprintf("%s://%s/media/%s", external.Scheme, external.Domain, key)
}
