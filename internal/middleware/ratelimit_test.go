package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/wasteflow/internal/model"
	"golang.org/x/time/rate"
)

func newTestRateLimiter(generalBurst, analysisBurst int) *RateLimiter {
	return NewRateLimiter(RateLimiterConfig{
		GeneralRate:     rate.Limit(0.001), // テスト中に補充されないレート
		GeneralBurst:    generalBurst,
		AnalysisRate:    rate.Limit(0.001),
		AnalysisBurst:   analysisBurst,
		CleanupInterval: time.Hour,
	})
}

func requestAs(t *testing.T, userID string) *http.Request {
	t.Helper()
	as := activeSessionFor(t,
		&model.Identity{ID: userID},
		&model.UserProfile{ID: userID, Role: model.RoleClient},
	)
	req := httptest.NewRequest(http.MethodGet, "/api/waste/entries", nil)
	return req.WithContext(ContextWithActiveSession(req.Context(), as))
}

func TestGeneralMiddleware_AllowsWithinBurst(t *testing.T) {
	rl := newTestRateLimiter(3, 1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := requestAs(t, "user-1")
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestGeneralMiddleware_RejectsOverBurst(t *testing.T) {
	rl := newTestRateLimiter(2, 1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := requestAs(t, "user-1")
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}
}

// ユーザーごとに独立したリミッターを持つこと。
func TestGeneralMiddleware_PerUserLimits(t *testing.T) {
	rl := newTestRateLimiter(1, 1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// user-1はバーストを使い切る
	reqUser1 := requestAs(t, "user-1")
	handler.ServeHTTP(httptest.NewRecorder(), reqUser1)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, reqUser1)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("user-1 second request: status = %d, want 429", rec.Code)
	}

	// user-2は影響を受けない
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(t, "user-2"))
	if rec.Code != http.StatusOK {
		t.Errorf("user-2 first request: status = %d, want 200", rec.Code)
	}

	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("limiter count = %d, want 2", rl.GeneralLimiterCount())
	}
}

// API全般とAI分析のレート制限は独立に動作すること。
func TestAnalysisMiddleware_IndependentOfGeneral(t *testing.T) {
	rl := newTestRateLimiter(1, 1)
	defer rl.Stop()

	general := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	analysis := rl.AnalysisMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := requestAs(t, "user-1")

	// API全般のバーストを使い切る
	general.ServeHTTP(httptest.NewRecorder(), req)
	rec := httptest.NewRecorder()
	general.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("general: status = %d, want 429", rec.Code)
	}

	// AI分析のリミッターは未消費
	rec = httptest.NewRecorder()
	analysis.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("analysis: status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_NoSession_Unauthorized(t *testing.T) {
	rl := newTestRateLimiter(1, 1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/waste/entries", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLimiterPool_Cleanup(t *testing.T) {
	pool := newLimiterPool(rate.Limit(1), 1)

	pool.getOrCreate("user-1")
	pool.getOrCreate("user-2")
	if pool.count() != 2 {
		t.Fatalf("count = %d, want 2", pool.count())
	}

	// TTLゼロで全エントリが期限切れになる
	time.Sleep(time.Millisecond)
	pool.cleanup(0)
	if pool.count() != 0 {
		t.Errorf("count after cleanup = %d, want 0", pool.count())
	}
}

func TestNewRateLimiterConfig_ConvertsPerMinute(t *testing.T) {
	config := NewRateLimiterConfig(60, 6)

	if config.GeneralRate != rate.Limit(1.0) {
		t.Errorf("GeneralRate = %v, want 1.0", config.GeneralRate)
	}
	if config.AnalysisRate != rate.Limit(0.1) {
		t.Errorf("AnalysisRate = %v, want 0.1", config.AnalysisRate)
	}
	if config.GeneralBurst != 60 || config.AnalysisBurst != 6 {
		t.Errorf("bursts = (%d, %d), want (60, 6)", config.GeneralBurst, config.AnalysisBurst)
	}
}
