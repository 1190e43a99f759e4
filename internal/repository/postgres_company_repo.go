package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/wasteflow/internal/model"
)

// PostgresCompanyRepo はPostgreSQLを使用した会社リポジトリ。
type PostgresCompanyRepo struct {
	db *sql.DB
}

// NewPostgresCompanyRepo はPostgresCompanyRepoを生成する。
func NewPostgresCompanyRepo(db *sql.DB) *PostgresCompanyRepo {
	return &PostgresCompanyRepo{db: db}
}

const companyColumns = `id, name, description, plan, COALESCE(assigned_user_uid::text, ''),
	cover_image_url, created_at, updated_at`

// scanCompany は1行分の会社をスキャンする。
func scanCompany(row interface{ Scan(...any) error }) (*model.Company, error) {
	c := &model.Company{}
	err := row.Scan(
		&c.ID, &c.Name, &c.Description, &c.Plan, &c.AssignedUserUID,
		&c.CoverImageURL, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindByID は指定IDの会社を取得する。見つからない場合はnilを返す。
func (r *PostgresCompanyRepo) FindByID(ctx context.Context, id string) (*model.Company, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)

	c, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find company by ID: %w", err)
	}
	return c, nil
}

// List は全会社を名前順で返す。
func (r *PostgresCompanyRepo) List(ctx context.Context) ([]*model.Company, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+companyColumns+` FROM companies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	return collectCompanies(rows)
}

// ListByAssignedUser は指定ユーザーに割り当てられた会社を返す。
func (r *PostgresCompanyRepo) ListByAssignedUser(ctx context.Context, userID string) ([]*model.Company, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE assigned_user_uid = $1 ORDER BY name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies by assigned user: %w", err)
	}
	defer rows.Close()

	return collectCompanies(rows)
}

func collectCompanies(rows *sql.Rows) ([]*model.Company, error) {
	var companies []*model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate companies: %w", err)
	}
	return companies, nil
}

// Create は会社を作成する。
func (r *PostgresCompanyRepo) Create(ctx context.Context, company *model.Company) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO companies
		 (id, name, description, plan, assigned_user_uid, cover_image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, $8)`,
		company.ID, company.Name, company.Description, company.Plan,
		company.AssignedUserUID, company.CoverImageURL, company.CreatedAt, company.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert company: %w", err)
	}
	return nil
}

// Update は会社の名前・説明・カバー画像を上書き更新する。
func (r *PostgresCompanyRepo) Update(ctx context.Context, company *model.Company) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE companies
		 SET name = $2, description = $3, cover_image_url = $4, updated_at = now()
		 WHERE id = $1`,
		company.ID, company.Name, company.Description, company.CoverImageURL,
	)
	if err != nil {
		return fmt.Errorf("failed to update company: %w", err)
	}
	return requireRowAffected(result, "company", company.ID)
}

// UpdatePlan は会社のプランを更新する。
func (r *PostgresCompanyRepo) UpdatePlan(ctx context.Context, companyID string, plan model.Plan) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE companies SET plan = $2, updated_at = now() WHERE id = $1`,
		companyID, plan,
	)
	if err != nil {
		return fmt.Errorf("failed to update company plan: %w", err)
	}
	return requireRowAffected(result, "company", companyID)
}

// AssignUser は会社の割当ユーザーを更新する。userIDが空の場合は未割当にする。
func (r *PostgresCompanyRepo) AssignUser(ctx context.Context, companyID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE companies SET assigned_user_uid = NULLIF($2, '')::uuid, updated_at = now()
		 WHERE id = $1`,
		companyID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign user to company: %w", err)
	}
	return requireRowAffected(result, "company", companyID)
}

// Delete は会社を削除する。関連するテナントスコープデータはCASCADE削除される。
func (r *PostgresCompanyRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete company: %w", err)
	}
	return requireRowAffected(result, "company", id)
}

// compile-time interface check
var _ CompanyRepository = (*PostgresCompanyRepo)(nil)
