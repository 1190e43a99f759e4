// Package company は会社（テナント）の管理機能を提供する。
//
// 会社レコードの作成・更新・プラン変更・割当・削除はadminのみが行える
// （authz.CanMutateTenantData）。clientは自分に割り当てられた会社の
// 参照と選択のみ可能。
package company

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/wasteflow/internal/authz"
	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/repository"
	"github.com/hitoshi/wasteflow/internal/scope"
	"github.com/hitoshi/wasteflow/internal/security"
)

// ScopeResetter は会社削除時に全セッションの選択をリセットするインターフェース。
// session.Managerが実装する。
type ScopeResetter interface {
	ResetScope(companyID string) int
}

// CreateInput は会社作成の入力値。
type CreateInput struct {
	Name          string
	Description   string
	Plan          model.Plan
	CoverImageURL string
}

// UpdateInput は会社更新の入力値。
type UpdateInput struct {
	Name          string
	Description   string
	CoverImageURL string
}

// Service は会社操作のサービス。
type Service struct {
	companies repository.CompanyRepository
	profiles  repository.ProfileRepository
	sanitizer security.FieldSanitizerService
	scopes    ScopeResetter
}

// NewService は会社サービスを生成する。
func NewService(
	companies repository.CompanyRepository,
	profiles repository.ProfileRepository,
	sanitizer security.FieldSanitizerService,
	scopes ScopeResetter,
) *Service {
	return &Service{
		companies: companies,
		profiles:  profiles,
		sanitizer: sanitizer,
		scopes:    scopes,
	}
}

// List は参照可能な会社一覧を返す。
// adminは全会社、clientは自分に割り当てられた会社のみ。
func (s *Service) List(ctx context.Context, session *model.Session) ([]*model.Company, error) {
	if session == nil || session.Identity == nil {
		return nil, model.NewForbiddenError()
	}

	if authz.IsAdmin(session) {
		companies, err := s.companies.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list companies: %w", err)
		}
		return companies, nil
	}

	companies, err := s.companies.ListByAssignedUser(ctx, session.Identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned companies: %w", err)
	}
	return companies, nil
}

// Get は指定IDの会社を返す。
// clientは自分に割り当てられた会社のみ参照できる。
func (s *Service) Get(ctx context.Context, session *model.Session, companyID string) (*model.Company, error) {
	if session == nil || session.Identity == nil {
		return nil, model.NewForbiddenError()
	}

	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	if company == nil {
		return nil, model.NewCompanyNotFoundError(companyID)
	}

	if !authz.IsAdmin(session) && company.AssignedUserUID != session.Identity.ID {
		return nil, model.NewForbiddenError()
	}
	return company, nil
}

// Select はセッションのアクティブな会社選択を更新する。
// companyIDが空の場合は選択を解除する。clientは自分に割り当てられた
// 会社のみ選択できる。選択された会社を返す（解除時はnil）。
func (s *Service) Select(ctx context.Context, session *model.Session, selector *scope.Selector, companyID string) (*model.Company, error) {
	if companyID == "" {
		selector.Set(nil)
		return nil, nil
	}

	company, err := s.Get(ctx, session, companyID)
	if err != nil {
		return nil, err
	}

	selector.Set(company)
	return company, nil
}

// Create は会社を作成する。adminのみ許可される。
func (s *Service) Create(ctx context.Context, session *model.Session, input CreateInput) (*model.Company, error) {
	if !authz.CanMutateTenantData(session) {
		return nil, model.NewForbiddenError()
	}

	name := s.sanitizer.Sanitize(input.Name)
	if name == "" {
		return nil, model.NewInvalidInputError("company name is required")
	}

	plan := input.Plan
	if plan == "" {
		plan = model.PlanFree
	}

	now := time.Now()
	company := &model.Company{
		ID:            uuid.New().String(),
		Name:          name,
		Description:   s.sanitizer.Sanitize(input.Description),
		Plan:          plan,
		CoverImageURL: input.CoverImageURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.companies.Create(ctx, company); err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}

	slog.Info("company created",
		slog.String("company_id", company.ID),
		slog.String("created_by", session.Identity.ID),
	)
	return company, nil
}

// Update は会社の名前・説明・カバー画像を更新する。adminのみ許可される。
func (s *Service) Update(ctx context.Context, session *model.Session, companyID string, input UpdateInput) (*model.Company, error) {
	if !authz.CanMutateTenantData(session) {
		return nil, model.NewForbiddenError()
	}

	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	if company == nil {
		return nil, model.NewCompanyNotFoundError(companyID)
	}

	name := s.sanitizer.Sanitize(input.Name)
	if name == "" {
		return nil, model.NewInvalidInputError("company name is required")
	}

	company.Name = name
	company.Description = s.sanitizer.Sanitize(input.Description)
	company.CoverImageURL = input.CoverImageURL
	company.UpdatedAt = time.Now()

	if err := s.companies.Update(ctx, company); err != nil {
		return nil, fmt.Errorf("failed to update company: %w", err)
	}
	return company, nil
}

// UpdatePlan は会社のプランを更新する。adminのみ許可される。
// 決済Webhook経由のプラン更新はbillingパッケージが直接リポジトリを呼ぶため、
// この認可チェックの対象外。
func (s *Service) UpdatePlan(ctx context.Context, session *model.Session, companyID string, plan model.Plan) error {
	if !authz.CanMutateTenantData(session) {
		return model.NewForbiddenError()
	}
	if plan != model.PlanFree && plan != model.PlanPremium && plan != model.PlanCustom {
		return model.NewInvalidInputError(fmt.Sprintf("unknown plan: %s", plan))
	}

	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return fmt.Errorf("failed to get company: %w", err)
	}
	if company == nil {
		return model.NewCompanyNotFoundError(companyID)
	}

	if err := s.companies.UpdatePlan(ctx, companyID, plan); err != nil {
		return fmt.Errorf("failed to update company plan: %w", err)
	}

	slog.Info("company plan updated",
		slog.String("company_id", companyID),
		slog.String("plan", string(plan)),
		slog.String("updated_by", session.Identity.ID),
	)
	return nil
}

// AssignUser は会社の割当ユーザーを変更する。adminのみ許可される。
// 会社側のassigned_user_uidとプロフィール側のassigned_company_idの
// 両方を更新する。userIDが空の場合は未割当にする。
// 旧割当ユーザーのプロフィールからは所属会社を解除する。
func (s *Service) AssignUser(ctx context.Context, session *model.Session, companyID, userID string) error {
	if !authz.CanMutateTenantData(session) {
		return model.NewForbiddenError()
	}

	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return fmt.Errorf("failed to get company: %w", err)
	}
	if company == nil {
		return model.NewCompanyNotFoundError(companyID)
	}

	if userID != "" {
		profile, err := s.profiles.FindByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get assignee profile: %w", err)
		}
		if profile == nil {
			return model.NewProfileNotFoundError(userID)
		}
	}

	previous := company.AssignedUserUID
	if err := s.companies.AssignUser(ctx, companyID, userID); err != nil {
		return fmt.Errorf("failed to assign user to company: %w", err)
	}

	if previous != "" && previous != userID {
		if err := s.profiles.UpdateAssignedCompany(ctx, previous, ""); err != nil {
			return fmt.Errorf("failed to clear previous assignee: %w", err)
		}
	}
	if userID != "" {
		if err := s.profiles.UpdateAssignedCompany(ctx, userID, companyID); err != nil {
			return fmt.Errorf("failed to update assignee profile: %w", err)
		}
	}

	slog.Info("company assignee updated",
		slog.String("company_id", companyID),
		slog.String("assigned_user_uid", userID),
		slog.String("updated_by", session.Identity.ID),
	)
	return nil
}

// Delete は会社を削除する。adminのみ許可される。
// テナントスコープのデータ（廃棄物ログ、イベント、証明書）はCASCADE削除される。
// 削除後、この会社を選択中の全セッションの選択をnilにリセットし、
// 割当ユーザーのプロフィールから所属会社を解除する。
func (s *Service) Delete(ctx context.Context, session *model.Session, companyID string) error {
	if !authz.CanMutateTenantData(session) {
		return model.NewForbiddenError()
	}

	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return fmt.Errorf("failed to get company: %w", err)
	}
	if company == nil {
		return model.NewCompanyNotFoundError(companyID)
	}

	if err := s.companies.Delete(ctx, companyID); err != nil {
		return fmt.Errorf("failed to delete company: %w", err)
	}

	if company.AssignedUserUID != "" {
		if err := s.profiles.UpdateAssignedCompany(ctx, company.AssignedUserUID, ""); err != nil {
			// 会社自体は削除済みのため、解除失敗はログに留める
			slog.Error("failed to clear assignee after company delete",
				slog.String("company_id", companyID),
				slog.String("user_id", company.AssignedUserUID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.scopes.ResetScope(companyID)

	slog.Info("company deleted",
		slog.String("company_id", companyID),
		slog.String("deleted_by", session.Identity.ID),
	)
	return nil
}
