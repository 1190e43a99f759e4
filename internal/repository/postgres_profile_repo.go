package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/wasteflow/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, email, role, account_type, company_name, tax_id, id_number,
	plan, COALESCE(assigned_company_id::text, ''), created_at, updated_at`

// scanProfile は1行分のプロフィールをスキャンする。
func scanProfile(row interface{ Scan(...any) error }) (*model.UserProfile, error) {
	p := &model.UserProfile{}
	err := row.Scan(
		&p.ID, &p.Email, &p.Role, &p.AccountType, &p.CompanyName, &p.TaxID,
		&p.IDNumber, &p.Plan, &p.AssignedCompanyID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)

	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}
	return p, nil
}

// Create はプロフィールを作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, profile *model.UserProfile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles
		 (id, email, role, account_type, company_name, tax_id, id_number, plan,
		  assigned_company_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, '')::uuid, $10, $11)`,
		profile.ID, profile.Email, profile.Role, profile.AccountType,
		profile.CompanyName, profile.TaxID, profile.IDNumber, profile.Plan,
		profile.AssignedCompanyID, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// Update はプロフィールの可変フィールドを上書き更新する。
// role、plan、assigned_company_idはこのメソッドでは変更しない。
func (r *PostgresProfileRepo) Update(ctx context.Context, profile *model.UserProfile) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET company_name = $2, tax_id = $3, id_number = $4, updated_at = now()
		 WHERE id = $1`,
		profile.ID, profile.CompanyName, profile.TaxID, profile.IDNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return requireRowAffected(result, "profile", profile.ID)
}

// UpdatePlan は指定ユーザーのプランを更新する。
func (r *PostgresProfileRepo) UpdatePlan(ctx context.Context, userID string, plan model.Plan) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET plan = $2, updated_at = now() WHERE id = $1`,
		userID, plan,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile plan: %w", err)
	}
	return requireRowAffected(result, "profile", userID)
}

// UpdateAssignedCompany は指定ユーザーの所属会社IDを更新する。空文字で未所属にする。
func (r *PostgresProfileRepo) UpdateAssignedCompany(ctx context.Context, userID, companyID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET assigned_company_id = NULLIF($2, '')::uuid, updated_at = now()
		 WHERE id = $1`,
		userID, companyID,
	)
	if err != nil {
		return fmt.Errorf("failed to update assigned company: %w", err)
	}
	return requireRowAffected(result, "profile", userID)
}

// ListClients はrole=clientの全プロフィールをメールアドレス順で返す。
func (r *PostgresProfileRepo) ListClients(ctx context.Context) ([]*model.UserProfile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE role = $1 ORDER BY email`,
		model.RoleClient,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list client profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*model.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}

	return profiles, nil
}

// requireRowAffected は更新・削除が1行以上に適用されたことを検証する。
func requireRowAffected(result sql.Result, kind, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s not found: %s", kind, id)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
