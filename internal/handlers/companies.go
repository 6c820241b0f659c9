package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vitapersonal/authserver/internal/services"
	"github.com/vitapersonal/authserver/internal/store"
	"github.com/vitapersonal/authserver/types"
)

// CompanyHandler provides company and role administration endpoints.
// Companies are managed by staff; roles within a company can also be
// granted by that company's admins.
type CompanyHandler struct {
	companies *services.CompanyService
}

func NewCompanyHandler(companies *services.CompanyService) *CompanyHandler {
	return &CompanyHandler{companies: companies}
}

// CompaniesRouter registers company routes on the given router.
func CompaniesRouter(r chi.Router, handler *CompanyHandler, auth *AuthMiddleware) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Require)
		r.Get("/", handler.List)
		r.Post("/", handler.Create)
		r.Get("/{companyID}", handler.Get)
		r.Put("/{companyID}", handler.Update)
		r.Patch("/{companyID}", handler.Update)
		r.Get("/{companyID}/roles", handler.ListRoles)
		r.Post("/{companyID}/roles", handler.CreateRole)
	})
}

// ListCompaniesResponse is the paginated company listing shape.
type ListCompaniesResponse struct {
	Companies []types.Company `json:"companies"`
	Total     int             `json:"total"`
	Page      int             `json:"page"`
	Limit     int             `json:"limit"`
}

func companyID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "companyID"))
	if err != nil || id <= 0 {
		return 0, errors.New("invalid company ID")
	}
	return id, nil
}

// List returns all companies. Visible to any authenticated user.
func (h *CompanyHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	companies, total, err := h.companies.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list companies")
		return
	}
	if companies == nil {
		companies = []types.Company{}
	}

	writeJSON(w, http.StatusOK, ListCompaniesResponse{
		Companies: companies,
		Total:     total,
		Page:      page,
		Limit:     limit,
	})
}

// Get returns a single company.
func (h *CompanyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := companyID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	company, err := h.companies.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "company not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get company")
		return
	}

	writeJSON(w, http.StatusOK, company)
}

// CompanyRequest carries the editable company fields.
type CompanyRequest struct {
	Name     *string `json:"name"`
	IsActive *bool   `json:"is_active"`
}

// Create adds a company. Staff only.
func (h *CompanyHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := IdentityFromContext(r.Context())
	if !actor.Staff && !actor.Superuser {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req CompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	name := ""
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}
	if name == "" {
		errs := NewValidationErrors()
		errs.AddField("name", "Name", "This field is required.")
		writeValidationErrors(w, errs)
		return
	}

	company := types.Company{Name: name, IsActive: true}
	if req.IsActive != nil {
		company.IsActive = *req.IsActive
	}

	created, err := h.companies.Create(r.Context(), company)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create company")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// Update modifies a company. Staff only.
func (h *CompanyHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor := IdentityFromContext(r.Context())
	if !actor.Staff && !actor.Superuser {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	id, err := companyID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	company, err := h.companies.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "company not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update company")
		return
	}

	var req CompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			errs := NewValidationErrors()
			errs.AddField("name", "Name", "This field is required.")
			writeValidationErrors(w, errs)
			return
		}
		company.Name = name
	}
	if req.IsActive != nil {
		company.IsActive = *req.IsActive
	}

	updated, err := h.companies.Update(r.Context(), company)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update company")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// ListRolesResponse wraps a company's roles.
type ListRolesResponse struct {
	Roles []types.Role `json:"roles"`
}

// canManageRoles reports whether the actor may view or grant roles in
// the company: staff, superusers, and the company's own admins.
func (h *CompanyHandler) canManageRoles(r *http.Request, companyID int) (bool, error) {
	actor := IdentityFromContext(r.Context())
	if actor.Staff || actor.Superuser {
		return true, nil
	}
	return h.companies.IsCompanyAdmin(r.Context(), actor.ID, companyID)
}

// ListRoles returns the roles granted within a company.
func (h *CompanyHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	id, err := companyID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	allowed, err := h.canManageRoles(r, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list roles")
		return
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	roles, err := h.companies.ListRoles(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list roles")
		return
	}
	if roles == nil {
		roles = []types.Role{}
	}

	writeJSON(w, http.StatusOK, ListRolesResponse{Roles: roles})
}

// RoleRequest carries a role grant.
type RoleRequest struct {
	UserID int    `json:"user_id"`
	Type   string `json:"type"`
}

// CreateRole grants a role within a company.
func (h *CompanyHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	id, err := companyID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	allowed, err := h.canManageRoles(r, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create role")
		return
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	errs := NewValidationErrors()
	if req.UserID <= 0 {
		errs.AddField("user_id", "User", "This field is required.")
	}
	if !types.ValidRoleType(req.Type) {
		errs.AddField("type", "Type", "Invalid choice.")
	}
	if !errs.Empty() {
		writeValidationErrors(w, errs)
		return
	}

	role := types.Role{
		UserID:    req.UserID,
		CompanyID: id,
		Type:      req.Type,
		IsActive:  true,
	}
	created, err := h.companies.CreateRole(r.Context(), role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create role")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}
