// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/wasteflow/internal/model"
)

// Credential はローカル認証プロバイダーの資格情報レコード。
// プロフィールとは独立したライフサイクルを持つ（プロバイダー側の内部データ）。
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// CredentialRepository は認証資格情報の永続化インターフェース。
type CredentialRepository interface {
	// FindByEmail はメールアドレスで資格情報を検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	// FindByUserID はユーザーIDで資格情報を検索する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*Credential, error)
	// Create は資格情報を作成する。
	Create(ctx context.Context, cred *Credential) error
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.AuthSession) error
	// FindByToken は指定トークンのセッションを取得する。期限切れの場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.AuthSession, error)
	// DeleteByToken は指定トークンのセッションを削除する。
	DeleteByToken(ctx context.Context, token string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除されたセッションを返す。
	// セッション失効の状態変化通知に使用する。
	DeleteExpired(ctx context.Context, now time.Time) ([]*model.AuthSession, error)
}

// ProfileRepository はユーザープロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.UserProfile, error)
	// Create はプロフィールを作成する。
	Create(ctx context.Context, profile *model.UserProfile) error
	// Update はプロフィールの可変フィールドを上書き更新する。
	// role、plan、assigned_company_idはこのメソッドでは変更しない。
	Update(ctx context.Context, profile *model.UserProfile) error
	// UpdatePlan は指定ユーザーのプランを更新する。
	UpdatePlan(ctx context.Context, userID string, plan model.Plan) error
	// UpdateAssignedCompany は指定ユーザーの所属会社IDを更新する。空文字で未所属にする。
	UpdateAssignedCompany(ctx context.Context, userID, companyID string) error
	// ListClients はrole=clientの全プロフィールを返す。
	ListClients(ctx context.Context) ([]*model.UserProfile, error)
}

// CompanyRepository は会社（テナント）の永続化インターフェース。
type CompanyRepository interface {
	// FindByID は指定IDの会社を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Company, error)
	// List は全会社を名前順で返す。
	List(ctx context.Context) ([]*model.Company, error)
	// ListByAssignedUser は指定ユーザーに割り当てられた会社を返す。
	ListByAssignedUser(ctx context.Context, userID string) ([]*model.Company, error)
	// Create は会社を作成する。
	Create(ctx context.Context, company *model.Company) error
	// Update は会社の名前・説明・カバー画像を上書き更新する。
	Update(ctx context.Context, company *model.Company) error
	// UpdatePlan は会社のプランを更新する。
	UpdatePlan(ctx context.Context, companyID string, plan model.Plan) error
	// AssignUser は会社の割当ユーザーを更新する。userIDが空の場合は未割当にする。
	AssignUser(ctx context.Context, companyID, userID string) error
	// Delete は会社を削除する。関連するテナントスコープデータはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// WasteEntryRepository は廃棄物ログの永続化インターフェース。
type WasteEntryRepository interface {
	// FindByID は指定IDのエントリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.WasteEntry, error)
	// ListByCompany は指定会社のエントリをentry_date降順で返す。
	ListByCompany(ctx context.Context, companyID string) ([]*model.WasteEntry, error)
	// Create はエントリを作成する。
	Create(ctx context.Context, entry *model.WasteEntry) error
	// DeleteByID は指定IDのエントリを削除する。
	DeleteByID(ctx context.Context, id string) error
	// SummarizeMonthly は指定会社・指定年の月次集計を返す。エントリのない月は含まれない。
	SummarizeMonthly(ctx context.Context, companyID string, year int) ([]*model.MonthlyReportRow, error)
}

// DisposalEventRepository は処分イベントの永続化インターフェース。
type DisposalEventRepository interface {
	// ListByCompanyAndRange は指定会社の[from, to)期間のイベントをscheduled_at昇順で返す。
	ListByCompanyAndRange(ctx context.Context, companyID string, from, to time.Time) ([]*model.DisposalEvent, error)
	// Create はイベントを作成する。
	Create(ctx context.Context, event *model.DisposalEvent) error
}

// CertificateRepository は処分証明書の永続化インターフェース。
type CertificateRepository interface {
	// Create は証明書をファイル本体ごと作成する。
	Create(ctx context.Context, cert *model.DisposalCertificate) error
	// ListByCompany は指定会社の証明書メタデータ一覧を返す。FileDataは含まれない。
	ListByCompany(ctx context.Context, companyID string) ([]*model.DisposalCertificate, error)
	// FindByID は指定IDの証明書をファイル本体込みで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.DisposalCertificate, error)
}

// PaymentRepository は決済イベント記録の永続化インターフェース。
type PaymentRepository interface {
	// Create は決済記録を作成する。(provider, provider_event_id)が重複する場合はエラーを返す。
	Create(ctx context.Context, payment *model.Payment) error
	// ExistsByProviderEvent は指定プロバイダーイベントが適用済みかを返す。
	ExistsByProviderEvent(ctx context.Context, provider, eventID string) (bool, error)
}
