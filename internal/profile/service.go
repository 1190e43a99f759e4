// Package profile はユーザープロフィールの参照・更新機能を提供する。
package profile

import (
	"context"
	"fmt"

	"github.com/hitoshi/wasteflow/internal/authz"
	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/repository"
	"github.com/hitoshi/wasteflow/internal/security"
)

// UpdateInput はプロフィール更新の入力値。
// role、plan、所属会社はこの経路では変更できない（adminの割当操作と
// 決済Webhookのみが変更できる）。
type UpdateInput struct {
	CompanyName string
	TaxID       string
	IDNumber    string
}

// Service はプロフィール操作のサービス。
type Service struct {
	profiles  repository.ProfileRepository
	sanitizer security.FieldSanitizerService
}

// NewService はプロフィールサービスを生成する。
func NewService(profiles repository.ProfileRepository, sanitizer security.FieldSanitizerService) *Service {
	return &Service{
		profiles:  profiles,
		sanitizer: sanitizer,
	}
}

// Get は現在のセッションのプロフィールを返す。
// プロフィールが存在しない場合はPROFILE_NOT_FOUNDを返す
// （オンボーディング未完了として扱う）。
func (s *Service) Get(ctx context.Context, session *model.Session) (*model.UserProfile, error) {
	if session == nil || session.Identity == nil {
		return nil, model.NewForbiddenError()
	}

	profile, err := s.profiles.FindByID(ctx, session.Identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError(session.Identity.ID)
	}
	return profile, nil
}

// Update は現在のセッションのプロフィールを更新する。
// 自由記述フィールドは保存前にサニタイズされる。
func (s *Service) Update(ctx context.Context, session *model.Session, input UpdateInput) (*model.UserProfile, error) {
	profile, err := s.Get(ctx, session)
	if err != nil {
		return nil, err
	}

	profile.CompanyName = s.sanitizer.Sanitize(input.CompanyName)
	profile.TaxID = s.sanitizer.Sanitize(input.TaxID)
	profile.IDNumber = s.sanitizer.Sanitize(input.IDNumber)

	if profile.AccountType == model.AccountTypeCompany && profile.CompanyName == "" {
		return nil, model.NewInvalidInputError("company name is required for company accounts")
	}

	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return profile, nil
}

// ListClients はrole=clientの全プロフィールを返す。adminのみ許可される。
// 会社の割当先ユーザー選択画面で使用する。
func (s *Service) ListClients(ctx context.Context, session *model.Session) ([]*model.UserProfile, error) {
	if !authz.IsAdmin(session) {
		return nil, model.NewForbiddenError()
	}

	clients, err := s.profiles.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}
