package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/repository"
)

// StateChangeFunc は認証状態の変化を受け取るコールバック。
// identityがnilの場合、そのトークンのセッションが失効した（サインアウトまたは期限切れ）ことを示す。
type StateChangeFunc func(token string, identity *model.Identity)

// Provider は認証プロバイダーのインターフェース。
// アイデンティティの発行・検証とセッショントークンの管理を行い、
// 状態変化をコールバックでプッシュ通知する。
type Provider interface {
	// SignIn は資格情報を検証し、新しいセッションとアイデンティティを返す。
	// 資格情報が不正な場合はmodel.APIError（INVALID_CREDENTIALS）を返す。
	SignIn(ctx context.Context, email, password string) (*model.AuthSession, *model.Identity, error)
	// SignUp は新しいアイデンティティを作成する。セッションは発行しない。
	// メールアドレスが登録済みの場合はmodel.APIError（DUPLICATE_EMAIL）を返す。
	SignUp(ctx context.Context, email, password string) (*model.Identity, error)
	// SignOut は指定トークンのセッションを破棄する。
	SignOut(ctx context.Context, token string) error
	// ResolveToken はセッショントークンからアイデンティティを解決する。
	// 無効または期限切れの場合はnilを返す。
	ResolveToken(ctx context.Context, token string) (*model.Identity, error)
	// OnStateChanged は認証状態変化のコールバックを登録する。
	OnStateChanged(fn StateChangeFunc)
}

// ProviderConfig はローカル認証プロバイダーの設定。
type ProviderConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// LocalProvider は資格情報テーブルとbcryptを使用するProviderの実装。
type LocalProvider struct {
	credRepo    repository.CredentialRepository
	sessionRepo repository.SessionRepository
	config      ProviderConfig

	mu        sync.RWMutex
	callbacks []StateChangeFunc
}

// NewLocalProvider はLocalProviderを生成する。
func NewLocalProvider(
	credRepo repository.CredentialRepository,
	sessionRepo repository.SessionRepository,
	config ProviderConfig,
) *LocalProvider {
	return &LocalProvider{
		credRepo:    credRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// OnStateChanged は認証状態変化のコールバックを登録する。
func (p *LocalProvider) OnStateChanged(fn StateChangeFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, fn)
}

// emit は登録済みの全コールバックに状態変化を通知する。
func (p *LocalProvider) emit(token string, identity *model.Identity) {
	p.mu.RLock()
	callbacks := make([]StateChangeFunc, len(p.callbacks))
	copy(callbacks, p.callbacks)
	p.mu.RUnlock()

	for _, fn := range callbacks {
		fn(token, identity)
	}
}

// SignIn は資格情報を検証し、新しいセッションとアイデンティティを返す。
// 存在しないメールアドレスとパスワード不一致は同一のエラーを返す（列挙攻撃対策）。
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*model.AuthSession, *model.Identity, error) {
	cred, err := p.credRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find credential: %w", err)
	}
	if cred == nil || !CheckPassword(password, cred.PasswordHash) {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &model.AuthSession{
		Token:     token,
		UserID:    cred.UserID,
		ExpiresAt: time.Now().Add(time.Duration(p.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}
	if err := p.sessionRepo.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to save session: %w", err)
	}

	identity := &model.Identity{ID: cred.UserID, Email: cred.Email}

	slog.Info("user signed in", slog.String("user_id", cred.UserID))
	p.emit(token, identity)

	return session, identity, nil
}

// SignUp は新しいアイデンティティを作成する。
func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	existing, err := p.credRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing credential: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError()
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, model.NewInvalidInputError(err.Error())
	}

	cred := &repository.Credential{
		UserID:       uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := p.credRepo.Create(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	slog.Info("identity created",
		slog.String("user_id", cred.UserID),
		slog.String("email", email),
	)

	return &model.Identity{ID: cred.UserID, Email: cred.Email}, nil
}

// SignOut は指定トークンのセッションを破棄し、状態変化を通知する。
func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("session token is required")
	}

	if err := p.sessionRepo.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	p.emit(token, nil)
	return nil
}

// ResolveToken はセッショントークンからアイデンティティを解決する。
// 無効または期限切れの場合はnilを返す。
func (p *LocalProvider) ResolveToken(ctx context.Context, token string) (*model.Identity, error) {
	session, err := p.sessionRepo.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	cred, err := p.credRepo.FindByUserID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	if cred == nil {
		return nil, nil
	}

	return &model.Identity{ID: cred.UserID, Email: cred.Email}, nil
}

// SweepExpired は期限切れセッションを削除し、各トークンの失効を通知する。
// バックグラウンドジョブから定期的に呼び出される。
func (p *LocalProvider) SweepExpired(ctx context.Context) (int, error) {
	expired, err := p.sessionRepo.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired sessions: %w", err)
	}

	for _, s := range expired {
		p.emit(s.Token, nil)
	}

	return len(expired), nil
}

// generateSessionToken は暗号的に安全なセッショントークンを生成する。
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// compile-time interface check
var _ Provider = (*LocalProvider)(nil)
