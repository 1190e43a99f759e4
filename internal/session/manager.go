package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/wasteflow/internal/auth"
	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/scope"
)

// ProfileCreator はサインアップ時のプロフィール作成インターフェース。
type ProfileCreator interface {
	Create(ctx context.Context, profile *model.UserProfile) error
}

// CompanyCreator はサインアップ時の会社作成インターフェース。
type CompanyCreator interface {
	Create(ctx context.Context, company *model.Company) error
}

// ActiveSession は1つのログインセッションに対応する解決器とテナント選択の組。
type ActiveSession struct {
	Token    string
	Resolver *Resolver
	Scope    *scope.Selector

	mu      sync.Mutex
	pending <-chan struct{}
}

// setPending は処理中のコールバック完了チャネルを記録する。
func (a *ActiveSession) setPending(ch <-chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = ch
}

// Settle は直近のコールバック処理の完了を待つ。
func (a *ActiveSession) Settle() {
	a.mu.Lock()
	ch := a.pending
	a.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

// Manager はログインセッションごとのResolverとScope Selectorを管理する。
// 認証プロバイダーの状態変化を該当セッションの解決器へルーティングし、
// サインアウト・失効時にエントリを破棄する。
type Manager struct {
	provider       auth.Provider
	profiles       ProfileStore
	profileCreator ProfileCreator
	companyCreator CompanyCreator

	mu     sync.RWMutex
	active map[string]*ActiveSession
}

// NewManager はManagerを生成し、プロバイダーの状態変化通知を購読する。
func NewManager(
	provider auth.Provider,
	profiles ProfileStore,
	profileCreator ProfileCreator,
	companyCreator CompanyCreator,
) *Manager {
	m := &Manager{
		provider:       provider,
		profiles:       profiles,
		profileCreator: profileCreator,
		companyCreator: companyCreator,
		active:         make(map[string]*ActiveSession),
	}
	provider.OnStateChanged(m.handleStateChange)
	return m
}

// handleStateChange はプロバイダーの状態変化を該当セッションへルーティングする。
// identityがnilの場合（サインアウト・失効）はエントリを破棄する。
func (m *Manager) handleStateChange(token string, identity *model.Identity) {
	if identity == nil {
		m.mu.Lock()
		as := m.active[token]
		delete(m.active, token)
		m.mu.Unlock()

		if as != nil {
			as.Resolver.HandleStateChange(nil)
			as.Scope.Set(nil)
		}
		return
	}

	as := m.getOrCreate(token)
	as.setPending(as.Resolver.HandleStateChange(identity))
}

// getOrCreate はトークンに対応するActiveSessionを取得または作成する。
func (m *Manager) getOrCreate(token string) *ActiveSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	if as, ok := m.active[token]; ok {
		return as
	}

	as := &ActiveSession{
		Token:    token,
		Resolver: NewResolver(m.profiles),
		Scope:    scope.NewSelector(),
	}
	m.active[token] = as
	return as
}

// Login は認証プロバイダーにサインインを委譲する。
// セッション状態の更新はプロバイダーの状態変化コールバック経由で行われる。
// 資格情報が不正な場合はmodel.APIError（INVALID_CREDENTIALS）を返し、
// セッションはAnonymousのまま変化しない。
func (m *Manager) Login(ctx context.Context, email, password string) (*model.AuthSession, error) {
	authSession, _, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	// ログイン直後の参照でプロフィール解決済みであることを保証する
	if as := m.lookup(authSession.Token); as != nil {
		as.Settle()
	}

	return authSession, nil
}

// SignUp は新規アイデンティティとプロフィールを作成し、サインインする。
// 作成されるプロフィールのroleは常にclient（呼び出し側からは指定不可）。
// accountTypeがcompanyの場合、割当ユーザーを新規ユーザーとする会社レコードを
// 同時に作成し、その会社IDをプロフィールのassignedCompanyIdに設定する。
func (m *Manager) SignUp(ctx context.Context, email, password string, seed model.ProfileSeed) (*model.AuthSession, error) {
	if seed.AccountType == "" {
		seed.AccountType = model.AccountTypeIndividual
	}
	if seed.AccountType == model.AccountTypeCompany && seed.CompanyName == "" {
		return nil, model.NewInvalidInputError("company name is required for company accounts")
	}

	identity, err := m.provider.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	profile := &model.UserProfile{
		ID:          identity.ID,
		Email:       identity.Email,
		Role:        model.RoleClient,
		AccountType: seed.AccountType,
		CompanyName: seed.CompanyName,
		TaxID:       seed.TaxID,
		IDNumber:    seed.IDNumber,
		Plan:        model.PlanFree,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if seed.AccountType == model.AccountTypeCompany {
		company := &model.Company{
			ID:              uuid.New().String(),
			Name:            seed.CompanyName,
			Plan:            model.PlanFree,
			AssignedUserUID: identity.ID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := m.companyCreator.Create(ctx, company); err != nil {
			return nil, fmt.Errorf("failed to create company for signup: %w", err)
		}
		profile.AssignedCompanyID = company.ID

		slog.Info("company created at signup",
			slog.String("company_id", company.ID),
			slog.String("assigned_user_uid", identity.ID),
		)
	}

	if err := m.profileCreator.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	return m.Login(ctx, email, password)
}

// Logout は認証プロバイダーにサインアウトを委譲する。
// エントリの破棄は状態変化コールバック経由で行われる。
func (m *Manager) Logout(ctx context.Context, token string) error {
	return m.provider.SignOut(ctx, token)
}

// Resolve はセッショントークンからActiveSessionを解決する。
// メモリ上にエントリがない場合（プロセス再起動後など）はプロバイダーに
// トークンの検証を委譲し、有効であれば解決済みエントリを再構築する。
// 無効または期限切れの場合はnilを返す。
func (m *Manager) Resolve(ctx context.Context, token string) (*ActiveSession, error) {
	if as := m.lookup(token); as != nil {
		as.Settle()
		return as, nil
	}

	identity, err := m.provider.ResolveToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session token: %w", err)
	}
	if identity == nil {
		return nil, nil
	}

	as := m.getOrCreate(token)
	as.setPending(as.Resolver.HandleStateChange(identity))
	as.Settle()
	return as, nil
}

// lookup はメモリ上のエントリを返す。存在しない場合はnil。
func (m *Manager) lookup(token string) *ActiveSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[token]
}

// RefreshProfilesFor は指定ユーザーの全アクティブセッションのプロフィールを再取得する。
// 決済Webhookによるプラン更新後など、帯域外のプロフィール変更を
// ログイン中のセッションへ反映するために使用する。
func (m *Manager) RefreshProfilesFor(ctx context.Context, userID string) {
	for _, as := range m.snapshot() {
		s := as.Resolver.Session()
		if s.Identity == nil || s.Identity.ID != userID {
			continue
		}
		if err := as.Resolver.Refresh(ctx); err != nil {
			slog.Error("failed to refresh session profile",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ResetScope は指定会社を選択中の全セッションの選択をnilにリセットする。
// 会社削除時に呼び出される。リセットしたセッション数を返す。
func (m *Manager) ResetScope(companyID string) int {
	reset := 0
	for _, as := range m.snapshot() {
		if as.Scope.ResetIf(companyID) {
			reset++
		}
	}
	if reset > 0 {
		slog.Info("company scope reset",
			slog.String("company_id", companyID),
			slog.Int("sessions", reset),
		)
	}
	return reset
}

// ActiveCount は現在メモリ上にあるアクティブセッション数を返す。
// テストおよびメトリクス用。
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// snapshot はアクティブセッションの一覧のコピーを返す。
func (m *Manager) snapshot() []*ActiveSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*ActiveSession, 0, len(m.active))
	for _, as := range m.active {
		list = append(list, as)
	}
	return list
}
