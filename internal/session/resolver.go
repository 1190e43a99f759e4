// Package session は外部認証状態をアプリケーションレベルのセッションに解決する。
//
// 認証プロバイダーの状態変化コールバックからプロフィールを解決し、
// 読み取り専用のセッションスナップショットとして公開する。
// コールバックは短時間に連続して発火しうるため、解決結果のコミットは
// 「最後に受信したコールバック」を基準に収束させる（コールバックの受信順で
// 勝敗を決め、プロフィール取得の完了順では決めない）。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/wasteflow/internal/model"
)

// State はセッション解決の状態を表す。
type State string

const (
	// StateUnresolved は最初のコールバック受信前の初期状態。
	StateUnresolved State = "unresolved"
	// StateAnonymous は未認証（アイデンティティなし）の状態。
	StateAnonymous State = "anonymous"
	// StateAuthenticated はアイデンティティとプロフィールの解決が完了した状態。
	StateAuthenticated State = "authenticated"
)

// ProfileStore は解決器が必要とするプロフィール参照の最小インターフェース。
type ProfileStore interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.UserProfile, error)
}

// Resolver は1アクターの認証状態をアプリケーションセッションに解決する状態機械。
// Unresolved → Anonymous / Authenticated と遷移し、ログアウトまたは
// セッション失効でAnonymousに戻る。
type Resolver struct {
	profiles     ProfileStore
	fetchTimeout time.Duration

	mu      sync.Mutex
	seq     uint64 // 受信したコールバックの連番。最新のみがコミットできる
	state   State
	session model.Session
}

// NewResolver は初期状態（Unresolved）のResolverを生成する。
func NewResolver(profiles ProfileStore) *Resolver {
	return &Resolver{
		profiles:     profiles,
		fetchTimeout: 10 * time.Second,
		state:        StateUnresolved,
	}
}

// HandleStateChange は認証状態変化のコールバックを処理する。
// identityがnilの場合はセッションを即座にクリアしAnonymousへ遷移する。
// identityがある場合はプロフィール取得を非同期に開始し、取得完了時に
// このコールバックがまだ最新である場合のみ結果をコミットする。
// 返り値のチャネルはこのコールバックの処理（コミットまたは破棄）完了で閉じられる。
// 同一identityで複数回呼び出しても同一の状態に収束する（冪等）。
func (r *Resolver) HandleStateChange(identity *model.Identity) <-chan struct{} {
	done := make(chan struct{})

	r.mu.Lock()
	r.seq++
	seq := r.seq

	if identity == nil {
		r.state = StateAnonymous
		r.session = model.Session{}
		r.mu.Unlock()
		close(done)
		return done
	}
	r.mu.Unlock()

	go func() {
		defer close(done)
		r.resolve(seq, identity)
	}()

	return done
}

// resolve はプロフィールを取得し、seqがまだ最新の場合のみセッションをコミットする。
func (r *Resolver) resolve(seq uint64, identity *model.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), r.fetchTimeout)
	defer cancel()

	profile, err := r.profiles.FindByID(ctx, identity.ID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if seq != r.seq {
		// 後続のコールバックに追い越された。取得結果は破棄する
		slog.Debug("stale profile fetch discarded",
			slog.String("user_id", identity.ID),
			slog.Uint64("seq", seq),
		)
		return
	}

	if err != nil {
		// フェイルクローズ: アイデンティティは保持するがロールは付与しない
		slog.Error("profile fetch failed",
			slog.String("user_id", identity.ID),
			slog.String("error", err.Error()),
		)
		r.state = StateAuthenticated
		r.session = model.Session{Identity: identity}
		return
	}

	var role model.Role
	if profile != nil {
		role = profile.Role
	}

	r.state = StateAuthenticated
	r.session = model.Session{
		Identity: identity,
		Profile:  profile,
		Role:     role,
	}
}

// Refresh は現在のアイデンティティのプロフィールを再取得してセッションを更新する。
// プラン更新のWebhookなどプロフィールの帯域外変更の後に呼び出すこと。
// 未認証の場合は何もしない。再取得中に新しいコールバックが到着した場合、
// 再取得の結果は破棄される。
func (r *Resolver) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateAuthenticated || r.session.Identity == nil {
		r.mu.Unlock()
		return nil
	}
	seq := r.seq
	identity := r.session.Identity
	r.mu.Unlock()

	profile, err := r.profiles.FindByID(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("failed to refresh profile: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if seq != r.seq {
		return nil
	}

	var role model.Role
	if profile != nil {
		role = profile.Role
	}
	r.session = model.Session{Identity: identity, Profile: profile, Role: role}
	return nil
}

// State は現在の解決状態を返す。
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Session は現在のセッションのスナップショットを返す。
// 未解決・未認証の場合はゼロ値のセッションを返す（認可述語は拒否する）。
func (r *Resolver) Session() *model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.session
	return &s
}
