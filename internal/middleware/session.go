// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/wasteflow/internal/authz"
	"github.com/hitoshi/wasteflow/internal/session"
)

const sessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// activeSessionContextKey はリクエストコンテキストにActiveSessionを格納するためのキー。
var activeSessionContextKey = contextKey("active_session")

// SessionResolver はセッショントークンの解決に必要なインターフェース。
// session.Managerの部分集合として定義する。
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*session.ActiveSession, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッショントークンを読み取り、
// 解決済みのActiveSessionをリクエストコンテキストに注入するミドルウェアを返す。
// トークンが無効・期限切れの場合は401 Unauthorizedを返す。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			as, err := resolver.Resolve(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if as == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := ContextWithActiveSession(r.Context(), as)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAdminRequiredMiddleware はadminロールを要求するミドルウェアを返す。
// SessionMiddlewareの後に配置すること。admin以外には403 Forbiddenを返す。
func NewAdminRequiredMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			as, err := ActiveSessionFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !authz.IsAdmin(as.Resolver.Session()) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActiveSessionFromContext はリクエストコンテキストからActiveSessionを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func ActiveSessionFromContext(ctx context.Context) (*session.ActiveSession, error) {
	as, ok := ctx.Value(activeSessionContextKey).(*session.ActiveSession)
	if !ok || as == nil {
		return nil, fmt.Errorf("active session not found in context")
	}
	return as, nil
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	as, err := ActiveSessionFromContext(ctx)
	if err != nil {
		return "", err
	}
	s := as.Resolver.Session()
	if s.Identity == nil || s.Identity.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return s.Identity.ID, nil
}

// ContextWithActiveSession はコンテキストにActiveSessionを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithActiveSession(ctx context.Context, as *session.ActiveSession) context.Context {
	return context.WithValue(ctx, activeSessionContextKey, as)
}
