package services

import (
	"context"

	"github.com/vitapersonal/authserver/types"
)

// CompanyRepository defines persistence operations for companies and
// role grants.
type CompanyRepository interface {
	GetByID(ctx context.Context, id int) (types.Company, error)
	List(ctx context.Context, offset, limit int) ([]types.Company, int, error)
	Create(ctx context.Context, company types.Company) (types.Company, error)
	Update(ctx context.Context, company types.Company) (types.Company, error)
	ListRoles(ctx context.Context, companyID int) ([]types.Role, error)
	CreateRole(ctx context.Context, role types.Role) (types.Role, error)
	HasActiveRole(ctx context.Context, userID, companyID int, roleType string) (bool, error)
}

// CompanyService encapsulates company administration use-cases.
type CompanyService struct {
	repo CompanyRepository
}

func NewCompanyService(repo CompanyRepository) *CompanyService {
	return &CompanyService{repo: repo}
}

func (s *CompanyService) GetByID(ctx context.Context, id int) (types.Company, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *CompanyService) List(ctx context.Context, offset, limit int) ([]types.Company, int, error) {
	return s.repo.List(ctx, offset, limit)
}

func (s *CompanyService) Create(ctx context.Context, company types.Company) (types.Company, error) {
	return s.repo.Create(ctx, company)
}

func (s *CompanyService) Update(ctx context.Context, company types.Company) (types.Company, error) {
	return s.repo.Update(ctx, company)
}

func (s *CompanyService) ListRoles(ctx context.Context, companyID int) ([]types.Role, error) {
	return s.repo.ListRoles(ctx, companyID)
}

func (s *CompanyService) CreateRole(ctx context.Context, role types.Role) (types.Role, error) {
	return s.repo.CreateRole(ctx, role)
}

// IsCompanyAdmin reports whether the user holds an active admin grant
// in the company.
func (s *CompanyService) IsCompanyAdmin(ctx context.Context, userID, companyID int) (bool, error) {
	return s.repo.HasActiveRole(ctx, userID, companyID, types.RoleAdmin)
}
