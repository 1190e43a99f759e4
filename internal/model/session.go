package model

import "time"

// AuthSession は認証プロバイダーが発行するログインセッションを表す。
// トークンはHTTP Only Cookieでクライアントに渡される。
type AuthSession struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Session は現在の認証済みアクターを解決したインメモリ表現。
// 永続化されない。認可判定（authzパッケージ）の入力となる。
type Session struct {
	Identity *Identity
	Profile  *UserProfile
	Role     Role // Profileから導出。未解決の場合は空
}

// Plan はセッションのプロフィールから導出されるプランを返す。
// プロフィールが未解決の場合は空を返す。
func (s *Session) Plan() Plan {
	if s == nil || s.Profile == nil {
		return ""
	}
	return s.Profile.Plan
}
