package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vitapersonal/authserver/types"
)

// CompanyRepository handles persistence for companies and their role
// grants.
type CompanyRepository struct {
	db *sql.DB
}

func NewCompanyRepository(db *sql.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

func (r *CompanyRepository) GetByID(ctx context.Context, id int) (types.Company, error) {
	const query = `
		SELECT id, name, is_active, created_at, updated_at
		FROM companies
		WHERE id = $1`
	var company types.Company
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&company.ID,
		&company.Name,
		&company.IsActive,
		&company.CreatedAt,
		&company.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Company{}, ErrNotFound
		}
		return types.Company{}, err
	}
	return company, nil
}

func (r *CompanyRepository) List(ctx context.Context, offset, limit int) ([]types.Company, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `SELECT COUNT(1) FROM companies`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT id, name, is_active, created_at, updated_at
		FROM companies
		ORDER BY id
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, listQuery, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	companies := make([]types.Company, 0, limit)
	for rows.Next() {
		var company types.Company
		if err := rows.Scan(
			&company.ID,
			&company.Name,
			&company.IsActive,
			&company.CreatedAt,
			&company.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		companies = append(companies, company)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return companies, total, nil
}

func (r *CompanyRepository) Create(ctx context.Context, company types.Company) (types.Company, error) {
	now := time.Now()
	company.CreatedAt = now
	company.UpdatedAt = now

	const query = `
		INSERT INTO companies (name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		company.Name,
		company.IsActive,
		company.CreatedAt,
		company.UpdatedAt,
	).Scan(&company.ID); err != nil {
		return types.Company{}, err
	}
	return company, nil
}

func (r *CompanyRepository) Update(ctx context.Context, company types.Company) (types.Company, error) {
	company.UpdatedAt = time.Now()

	const query = `
		UPDATE companies
		SET name = $1,
			is_active = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(
		ctx,
		query,
		company.Name,
		company.IsActive,
		company.UpdatedAt,
		company.ID,
	)
	if err != nil {
		return types.Company{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Company{}, err
	}
	if affected == 0 {
		return types.Company{}, ErrNotFound
	}
	return company, nil
}

func (r *CompanyRepository) ListRoles(ctx context.Context, companyID int) ([]types.Role, error) {
	const query = `
		SELECT id, user_id, company_id, type, is_active, created_at
		FROM roles
		WHERE company_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]types.Role, 0, 8)
	for rows.Next() {
		var role types.Role
		if err := rows.Scan(
			&role.ID,
			&role.UserID,
			&role.CompanyID,
			&role.Type,
			&role.IsActive,
			&role.CreatedAt,
		); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *CompanyRepository) CreateRole(ctx context.Context, role types.Role) (types.Role, error) {
	role.CreatedAt = time.Now()

	const query = `
		INSERT INTO roles (user_id, company_id, type, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		role.UserID,
		role.CompanyID,
		role.Type,
		role.IsActive,
		role.CreatedAt,
	).Scan(&role.ID); err != nil {
		return types.Role{}, err
	}
	return role, nil
}

// HasActiveRole reports whether the user holds an active grant of the
// given type in the company.
func (r *CompanyRepository) HasActiveRole(ctx context.Context, userID, companyID int, roleType string) (bool, error) {
	const query = `
		SELECT COUNT(1)
		FROM roles
		WHERE user_id = $1 AND company_id = $2 AND type = $3 AND is_active`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, companyID, roleType).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
