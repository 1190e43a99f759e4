package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/scope"
	"github.com/hitoshi/wasteflow/internal/session"
)

// --- モック定義 ---

type mockSessionResolver struct {
	resolveFn func(ctx context.Context, token string) (*session.ActiveSession, error)
}

func (m *mockSessionResolver) Resolve(ctx context.Context, token string) (*session.ActiveSession, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, token)
	}
	return nil, nil
}

type staticProfileStore struct {
	profile *model.UserProfile
}

func (s *staticProfileStore) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	return s.profile, nil
}

// activeSessionFor は解決済みのActiveSessionをテスト用に構築する。
func activeSessionFor(t *testing.T, identity *model.Identity, profile *model.UserProfile) *session.ActiveSession {
	t.Helper()
	resolver := session.NewResolver(&staticProfileStore{profile: profile})
	select {
	case <-resolver.HandleStateChange(identity):
	case <-time.After(2 * time.Second):
		t.Fatal("timed out resolving test session")
	}
	return &session.ActiveSession{
		Token:    "tok-1",
		Resolver: resolver,
		Scope:    scope.NewSelector(),
	}
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

// --- SessionMiddleware ---

func TestSessionMiddleware_NoCookie_Unauthorized(t *testing.T) {
	called := false
	handler := NewSessionMiddleware(&mockSessionResolver{})(okHandler(&called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("handler must not run without a session cookie")
	}
}

func TestSessionMiddleware_UnknownToken_Unauthorized(t *testing.T) {
	called := false
	handler := NewSessionMiddleware(&mockSessionResolver{})(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "tok-unknown"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || called {
		t.Errorf("status = %d, called = %v, want 401 without handler run", rec.Code, called)
	}
}

func TestSessionMiddleware_ValidToken_InjectsSession(t *testing.T) {
	as := activeSessionFor(t,
		&model.Identity{ID: "user-1", Email: "a@example.com"},
		&model.UserProfile{ID: "user-1", Role: model.RoleClient},
	)
	resolver := &mockSessionResolver{
		resolveFn: func(ctx context.Context, token string) (*session.ActiveSession, error) {
			if token != "tok-1" {
				t.Errorf("token = %q, want tok-1", token)
			}
			return as, nil
		},
	}

	var gotUserID string
	handler := NewSessionMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("UserIDFromContext() error = %v", err)
		}
		gotUserID = userID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "tok-1"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUserID != "user-1" {
		t.Errorf("user ID = %q, want user-1", gotUserID)
	}
}

// --- AdminRequiredMiddleware ---

func TestAdminRequiredMiddleware_AdminPasses(t *testing.T) {
	as := activeSessionFor(t,
		&model.Identity{ID: "admin-1"},
		&model.UserProfile{ID: "admin-1", Role: model.RoleAdmin},
	)

	called := false
	handler := NewAdminRequiredMiddleware()(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/api/companies", nil)
	req = req.WithContext(ContextWithActiveSession(req.Context(), as))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !called {
		t.Errorf("status = %d, called = %v, want admin to pass", rec.Code, called)
	}
}

func TestAdminRequiredMiddleware_ClientForbidden(t *testing.T) {
	as := activeSessionFor(t,
		&model.Identity{ID: "client-1"},
		&model.UserProfile{ID: "client-1", Role: model.RoleClient},
	)

	called := false
	handler := NewAdminRequiredMiddleware()(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/api/companies", nil)
	req = req.WithContext(ContextWithActiveSession(req.Context(), as))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden || called {
		t.Errorf("status = %d, called = %v, want 403 without handler run", rec.Code, called)
	}
}

func TestAdminRequiredMiddleware_NoSession_Unauthorized(t *testing.T) {
	called := false
	handler := NewAdminRequiredMiddleware()(okHandler(&called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/companies", nil))

	if rec.Code != http.StatusUnauthorized || called {
		t.Errorf("status = %d, called = %v, want 401 without handler run", rec.Code, called)
	}
}

// --- コンテキストヘルパー ---

func TestUserIDFromContext_MissingSession(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("UserIDFromContext should fail without a session")
	}
}
