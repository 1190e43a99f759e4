// Package billing は決済プロバイダーのWebhook処理とプラン更新を提供する。
//
// Webhookのペイロードは信用しない。決済IDでプロバイダーAPIに照会し、
// 承認が確認できた場合のみプランを更新する。同一イベントの再送は
// 重複排除キーと決済記録のUNIQUE制約の二段構えで冪等に処理される。
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/repository"
)

// SessionRefresher はプラン更新後にログイン中セッションのプロフィールを
// 再取得させるインターフェース。session.Managerが実装する。
type SessionRefresher interface {
	RefreshProfilesFor(ctx context.Context, userID string)
}

// WebhookEvent はWebhookハンドラがパースしたイベントの最小表現。
// PaymentIDはプロバイダー照会に使用する。その他の内容はペイロードからは読まない。
type WebhookEvent struct {
	EventID   string
	PaymentID string
}

// Service は決済Webhook処理のサービス。
type Service struct {
	verifiers   map[string]Verifier
	idempotency IdempotencyStore
	payments    repository.PaymentRepository
	profiles    repository.ProfileRepository
	companies   repository.CompanyRepository
	sessions    SessionRefresher
}

// NewService は決済サービスを生成する。
// verifiersのキーはプロバイダー名（URLパスの{provider}と一致させる）。
func NewService(
	verifiers map[string]Verifier,
	idempotency IdempotencyStore,
	payments repository.PaymentRepository,
	profiles repository.ProfileRepository,
	companies repository.CompanyRepository,
	sessions SessionRefresher,
) *Service {
	return &Service{
		verifiers:   verifiers,
		idempotency: idempotency,
		payments:    payments,
		profiles:    profiles,
		companies:   companies,
		sessions:    sessions,
	}
}

// SupportsProvider は指定プロバイダーのWebhookを処理できるかを返す。
func (s *Service) SupportsProvider(provider string) bool {
	_, ok := s.verifiers[provider]
	return ok
}

// HandleWebhook は決済Webhookイベントを処理する。
//
// 処理の流れ:
//  1. 重複排除キーの請求。既に処理済みのイベントはno-opで正常終了する
//  2. 決済IDでプロバイダーAPIに照会し、承認状態とメタデータを確認する
//  3. external referenceのユーザーIDからプロフィールを明示的に引き、
//     プロフィールと所属会社の両方のプランを更新する
//  4. 決済記録を作成する（UNIQUE制約が重複適用の最終防壁）
//  5. ログイン中のセッションにプロフィールの再取得を指示する
//
// 承認が確認できない場合はWEBHOOK_REJECTEDを返し、プランは変更しない。
func (s *Service) HandleWebhook(ctx context.Context, provider string, event WebhookEvent) error {
	verifier, ok := s.verifiers[provider]
	if !ok {
		return model.NewWebhookRejectedError(fmt.Sprintf("unknown provider: %s", provider))
	}
	if event.EventID == "" || event.PaymentID == "" {
		return model.NewWebhookRejectedError("event id and payment id are required")
	}

	claimKey := provider + ":" + event.EventID
	acquired, err := s.idempotency.Claim(ctx, claimKey)
	if err != nil {
		// 重複排除ストアの障害時は決済記録の存在確認にフォールバックする
		slog.Error("idempotency claim failed, falling back to payment record check",
			slog.String("provider", provider),
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
	} else if !acquired {
		slog.Info("duplicate webhook event ignored",
			slog.String("provider", provider),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	applied, err := s.payments.ExistsByProviderEvent(ctx, provider, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check payment record: %w", err)
	}
	if applied {
		slog.Info("webhook event already applied",
			slog.String("provider", provider),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	verified, err := verifier.Verify(ctx, event.PaymentID)
	if err != nil {
		slog.Error("payment verification failed",
			slog.String("provider", provider),
			slog.String("payment_id", event.PaymentID),
			slog.String("error", err.Error()),
		)
		return model.NewWebhookRejectedError("決済プロバイダーへの照会に失敗しました")
	}

	if !verified.Approved {
		s.recordPayment(ctx, provider, event, verified, "", model.PaymentStatusRejected)
		return model.NewWebhookRejectedError("決済が承認されていません")
	}
	if verified.UserID == "" {
		s.recordPayment(ctx, provider, event, verified, "", model.PaymentStatusRejected)
		return model.NewWebhookRejectedError("決済にユーザー参照がありません")
	}
	if verified.Plan != model.PlanPremium && verified.Plan != model.PlanCustom {
		s.recordPayment(ctx, provider, event, verified, "", model.PaymentStatusRejected)
		return model.NewWebhookRejectedError(fmt.Sprintf("不明なプランです: %s", verified.Plan))
	}

	// ユーザー→会社の解決は推測せず、プロフィールの所属会社IDを明示的に引く
	profile, err := s.profiles.FindByID(ctx, verified.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve payment user: %w", err)
	}
	if profile == nil {
		s.recordPayment(ctx, provider, event, verified, "", model.PaymentStatusRejected)
		return model.NewWebhookRejectedError(fmt.Sprintf("ユーザーが見つかりません: %s", verified.UserID))
	}

	if err := s.profiles.UpdatePlan(ctx, profile.ID, verified.Plan); err != nil {
		return fmt.Errorf("failed to update profile plan: %w", err)
	}
	if profile.AssignedCompanyID != "" {
		if err := s.companies.UpdatePlan(ctx, profile.AssignedCompanyID, verified.Plan); err != nil {
			return fmt.Errorf("failed to update company plan: %w", err)
		}
	}

	s.recordPayment(ctx, provider, event, verified, profile.AssignedCompanyID, model.PaymentStatusApplied)
	s.sessions.RefreshProfilesFor(ctx, profile.ID)

	slog.Info("payment applied",
		slog.String("provider", provider),
		slog.String("event_id", event.EventID),
		slog.String("user_id", profile.ID),
		slog.String("company_id", profile.AssignedCompanyID),
		slog.String("plan", string(verified.Plan)),
	)
	return nil
}

// recordPayment は決済記録を作成する。
// UNIQUE制約違反（並行再送との競合）は適用済みとして扱い、エラーにしない。
func (s *Service) recordPayment(ctx context.Context, provider string, event WebhookEvent, verified *VerifiedPayment, companyID string, status model.PaymentStatus) {
	payment := &model.Payment{
		ID:              uuid.New().String(),
		Provider:        provider,
		ProviderEventID: event.EventID,
		UserID:          verified.UserID,
		CompanyID:       companyID,
		Plan:            verified.Plan,
		AmountCents:     verified.AmountCents,
		Currency:        verified.Currency,
		Status:          status,
		CreatedAt:       time.Now(),
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		slog.Error("failed to record payment",
			slog.String("provider", provider),
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
	}
}
