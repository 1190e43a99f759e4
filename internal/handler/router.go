package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/wasteflow/internal/metrics"
	"github.com/hitoshi/wasteflow/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// メトリクス
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer

	// 認証
	SessionManager SessionManagerInterface
	AuthConfig     AuthHandlerConfig

	// ドメインサービス
	ProfileService     ProfileServiceInterface
	CompanyService     CompanyServiceInterface
	WasteService       WasteServiceInterface
	CertificateService CertificateServiceInterface
	AnalysisService    AnalysisServiceInterface
	BillingService     BillingServiceInterface

	// アップロード上限（バイト）
	MaxUploadSize int64

	// ヘルスチェック
	HealthChecker HealthChecker
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → Session → RateLimit(General)
//
// 認証ルート（/auth/*）、ヘルスチェック、メトリクス、Webhookは
// セッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.SessionManager, deps.AuthConfig, deps.Collector)
	profileHandler := NewProfileHandler(deps.ProfileService)
	companyHandler := NewCompanyHandler(deps.CompanyService)
	wasteHandler := NewWasteHandler(deps.WasteService)
	certHandler := NewCertificateHandler(deps.CertificateService, deps.MaxUploadSize)
	analysisHandler := NewAnalysisHandler(deps.AnalysisService, deps.Collector)
	webhookHandler := NewWebhookHandler(deps.BillingService, deps.Collector)

	// --- 認証不要のルート ---

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.Post("/refresh", authHandler.Refresh)
	})

	// 決済プロバイダーWebhook（サーバー間通信）
	r.Post("/webhooks/payments/{provider}", webhookHandler.Handle)

	r.Get("/health", NewHealthHandler(deps.HealthChecker))

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// セッションのテナント選択
		r.Route("/api/session/company", func(r chi.Router) {
			r.Get("/", companyHandler.SelectedCompany)
			r.Put("/", companyHandler.SelectCompany)
		})

		// プロフィール
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.Get)
			r.Put("/", profileHandler.Update)
		})
		r.With(middleware.NewAdminRequiredMiddleware()).
			Get("/api/profiles/clients", profileHandler.ListClients)

		// 会社管理
		r.Route("/api/companies", func(r chi.Router) {
			r.Get("/", companyHandler.List)
			r.With(middleware.NewAdminRequiredMiddleware()).Post("/", companyHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", companyHandler.Get)

				r.Group(func(r chi.Router) {
					r.Use(middleware.NewAdminRequiredMiddleware())
					r.Put("/", companyHandler.Update)
					r.Put("/plan", companyHandler.UpdatePlan)
					r.Put("/assignee", companyHandler.AssignUser)
					r.Delete("/", companyHandler.Delete)
				})
			})
		})

		// 廃棄物ログ
		r.Route("/api/waste", func(r chi.Router) {
			r.Route("/entries", func(r chi.Router) {
				r.Get("/", wasteHandler.ListEntries)
				r.Post("/", wasteHandler.AddEntry)
				r.Delete("/{id}", wasteHandler.DeleteEntry)
			})

			// 処分イベントカレンダー
			r.Route("/events", func(r chi.Router) {
				r.Get("/", wasteHandler.ListEvents)
				r.Post("/", wasteHandler.AddEvent)
			})

			// 処分証明書
			r.Route("/certificates", func(r chi.Router) {
				r.Get("/", certHandler.List)
				r.Post("/", certHandler.Upload)
				r.Get("/{id}/file", certHandler.Download)
			})
		})

		// 月次財務レポート
		r.Get("/api/reports/monthly", wasteHandler.MonthlyReport)

		// AI分析（プレミアム機能、専用レート制限）
		r.With(deps.RateLimiter.AnalysisMiddleware()).
			Post("/api/analysis", analysisHandler.Run)
	})

	return r
}
