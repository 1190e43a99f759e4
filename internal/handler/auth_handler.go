// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/wasteflow/internal/metrics"
	"github.com/hitoshi/wasteflow/internal/middleware"
	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/session"
)

const sessionCookieName = "session_id"

// SessionManagerInterface は認証ハンドラーが必要とするセッション管理インターフェース。
type SessionManagerInterface interface {
	Login(ctx context.Context, email, password string) (*model.AuthSession, error)
	SignUp(ctx context.Context, email, password string, seed model.ProfileSeed) (*model.AuthSession, error)
	Logout(ctx context.Context, token string) error
	Resolve(ctx context.Context, token string) (*session.ActiveSession, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はメール・パスワード認証のHTTPハンドラー。
type AuthHandler struct {
	manager   SessionManagerInterface
	config    AuthHandlerConfig
	collector metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(manager SessionManagerInterface, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	return &AuthHandler{
		manager:   manager,
		config:    config,
		collector: collector,
	}
}

// signupRequest はサインアップのリクエストボディ。
type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	AccountType string `json:"account_type"`
	CompanyName string `json:"company_name"`
	TaxID       string `json:"tax_id"`
	IDNumber    string `json:"id_number"`
}

// loginRequest はログインのリクエストボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup は新規アカウントを登録し、サインインした状態で返す。
// POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidInputError("invalid JSON body"))
		return
	}
	if req.Email == "" || req.Password == "" {
		middleware.WriteError(w, model.NewInvalidInputError("email and password are required"))
		return
	}

	seed := model.ProfileSeed{
		AccountType: model.AccountType(req.AccountType),
		CompanyName: req.CompanyName,
		TaxID:       req.TaxID,
		IDNumber:    req.IDNumber,
	}

	authSession, err := h.manager.SignUp(r.Context(), req.Email, req.Password, seed)
	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			slog.Error("signup failed", slog.String("error", err.Error()))
		}
		middleware.WriteError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordSignup(req.AccountType)
	}

	h.setSessionCookie(w, authSession.Token)
	h.writeCurrentSession(w, r.WithContext(r.Context()), authSession.Token, http.StatusCreated)
}

// Login はメール・パスワードでサインインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidInputError("invalid JSON body"))
		return
	}

	authSession, err := h.manager.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.collector != nil {
			h.collector.RecordLoginFailure()
		}
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			slog.Error("login failed", slog.String("error", err.Error()))
		}
		middleware.WriteError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordLoginSuccess()
	}

	h.setSessionCookie(w, authSession.Token)
	h.writeCurrentSession(w, r, authSession.Token, http.StatusOK)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.manager.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインセッションの解決結果を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	h.writeCurrentSession(w, r, cookie.Value, http.StatusOK)
}

// Refresh は現在のセッションのプロフィールを再取得して返す。
// 決済完了直後など、帯域外のプロフィール変更を即座に反映させたい場合に使用する。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	as, err := h.manager.Resolve(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to resolve session", slog.String("error", err.Error()))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if as == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := as.Resolver.Refresh(r.Context()); err != nil {
		slog.Error("failed to refresh profile", slog.String("error", err.Error()))
		middleware.WriteError(w, model.NewDataFetchFailedError())
		return
	}

	writeSessionJSON(w, http.StatusOK, as)
}

// writeCurrentSession はトークンを解決してセッション情報をJSONで返す。
func (h *AuthHandler) writeCurrentSession(w http.ResponseWriter, r *http.Request, token string, statusCode int) {
	as, err := h.manager.Resolve(r.Context(), token)
	if err != nil {
		slog.Error("failed to resolve session", slog.String("error", err.Error()))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if as == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeSessionJSON(w, statusCode, as)
}

// writeSessionJSON はセッションの解決結果をJSONで書き込む。
func writeSessionJSON(w http.ResponseWriter, statusCode int, as *session.ActiveSession) {
	s := as.Resolver.Session()

	body := map[string]interface{}{
		"state": string(as.Resolver.State()),
	}
	if s.Identity != nil {
		body["user"] = map[string]interface{}{
			"id":    s.Identity.ID,
			"email": s.Identity.Email,
		}
	}
	if s.Profile != nil {
		body["profile"] = profileJSON(s.Profile)
	}
	if company := as.Scope.Get(); company != nil {
		body["selected_company"] = companyJSON(company)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// setSessionCookie はセッションCookie（HTTP Only）を設定する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieをクリアする。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
