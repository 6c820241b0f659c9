package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vitapersonal/authserver/internal/policy"
	"github.com/vitapersonal/authserver/internal/services"
	"github.com/vitapersonal/authserver/internal/store"
	"github.com/vitapersonal/authserver/types"
)

// ProfileHandler provides the health profile endpoints. Profiles hang
// off an account; a user may keep several (for example one per family
// member).
type ProfileHandler struct {
	profiles *services.ProfileService
}

func NewProfileHandler(profiles *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// ProfilesRouter registers the nested per-user profile routes.
func ProfilesRouter(r chi.Router, handler *ProfileHandler, auth *AuthMiddleware) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Require)
		r.Get("/{userID}/profiles", handler.ListForUser)
		r.Post("/{userID}/profiles", handler.Create)
	})
}

// StandaloneProfilesRouter registers the direct profile routes.
func StandaloneProfilesRouter(r chi.Router, handler *ProfileHandler, auth *AuthMiddleware) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Require)
		r.Get("/{profileID}", handler.Get)
		r.Put("/{profileID}", handler.Update)
		r.Patch("/{profileID}", handler.Update)
	})
}

// ListProfilesResponse wraps a user's profiles.
type ListProfilesResponse struct {
	Profiles []types.Profile `json:"profiles"`
}

// ListForUser returns the profiles owned by the addressed account.
func (h *ProfileHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	actor := IdentityFromContext(r.Context())

	userID, err := resolveUserID(r, actor)
	if err != nil {
		if errors.Is(err, errUnauthorized) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !policy.CanAccessUser(actor, userID, true) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	profiles, err := h.profiles.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list profiles")
		return
	}
	if profiles == nil {
		profiles = []types.Profile{}
	}

	writeJSON(w, http.StatusOK, ListProfilesResponse{Profiles: profiles})
}

// ProfileRequest carries the editable profile fields. Pointers
// distinguish absent fields from zero values on partial updates.
type ProfileRequest struct {
	Name        *string `json:"name"`
	Birthday    *string `json:"birthday"`
	Male        *bool   `json:"male"`
	Smoker      *bool   `json:"smoker"`
	Vegetarian  *bool   `json:"vegetarian"`
	Pregnancy   *bool   `json:"pregnancy"`
	CoffeeCups  *int    `json:"coffee_cups"`
	HealthGoals *string `json:"health_goals"`
}

func (req ProfileRequest) apply(profile *types.Profile, errs *ValidationErrors) {
	if req.Name != nil {
		profile.Name = strings.TrimSpace(*req.Name)
	}
	if req.Birthday != nil {
		if *req.Birthday == "" {
			profile.Birthday = nil
		} else {
			birthday, err := time.Parse("2006-01-02", *req.Birthday)
			if err != nil {
				errs.AddField("birthday", "Birthday", "Invalid date, expected YYYY-MM-DD.")
			} else {
				profile.Birthday = &birthday
			}
		}
	}
	if req.Male != nil {
		profile.Male = *req.Male
	}
	if req.Smoker != nil {
		profile.Smoker = *req.Smoker
	}
	if req.Vegetarian != nil {
		profile.Vegetarian = *req.Vegetarian
	}
	if req.Pregnancy != nil {
		profile.Pregnancy = *req.Pregnancy
	}
	if req.CoffeeCups != nil {
		if *req.CoffeeCups < 0 || *req.CoffeeCups > types.CoffeeCupsThree {
			errs.AddField("coffee_cups", "Coffee cups", "Invalid choice.")
		} else {
			profile.CoffeeCups = *req.CoffeeCups
		}
	}
	if req.HealthGoals != nil {
		profile.HealthGoals = strings.TrimSpace(*req.HealthGoals)
	}
}

// Create adds a profile under the addressed account.
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := IdentityFromContext(r.Context())

	userID, err := resolveUserID(r, actor)
	if err != nil {
		if errors.Is(err, errUnauthorized) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !policy.CanAccessUser(actor, userID, false) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	errs := NewValidationErrors()
	profile := types.Profile{UserID: userID}
	req.apply(&profile, errs)
	if profile.Name == "" {
		errs.AddField("name", "Name", "This field is required.")
	}
	if !errs.Empty() {
		writeValidationErrors(w, errs)
		return
	}

	created, err := h.profiles.Create(r.Context(), profile)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create profile")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// getOwned fetches a profile and checks the actor may touch it.
func (h *ProfileHandler) getOwned(w http.ResponseWriter, r *http.Request, safe bool) (types.Profile, bool) {
	actor := IdentityFromContext(r.Context())

	id, err := strconv.Atoi(chi.URLParam(r, "profileID"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid profile ID")
		return types.Profile{}, false
	}

	profile, err := h.profiles.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return types.Profile{}, false
		}
		writeError(w, http.StatusInternalServerError, "failed to get profile")
		return types.Profile{}, false
	}

	if !policy.CanAccessUser(actor, profile.UserID, safe) {
		writeError(w, http.StatusForbidden, "forbidden")
		return types.Profile{}, false
	}
	return profile, true
}

// Get returns a single profile.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.getOwned(w, r, true)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Update applies a partial update to a profile.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.getOwned(w, r, false)
	if !ok {
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	errs := NewValidationErrors()
	req.apply(&profile, errs)
	if profile.Name == "" {
		errs.AddField("name", "Name", "This field is required.")
	}
	if !errs.Empty() {
		writeValidationErrors(w, errs)
		return
	}

	updated, err := h.profiles.Update(r.Context(), profile)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}
