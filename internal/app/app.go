// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/wasteflow/internal/analysis"
	"github.com/hitoshi/wasteflow/internal/auth"
	"github.com/hitoshi/wasteflow/internal/billing"
	"github.com/hitoshi/wasteflow/internal/company"
	"github.com/hitoshi/wasteflow/internal/config"
	"github.com/hitoshi/wasteflow/internal/database"
	"github.com/hitoshi/wasteflow/internal/handler"
	"github.com/hitoshi/wasteflow/internal/logger"
	"github.com/hitoshi/wasteflow/internal/metrics"
	"github.com/hitoshi/wasteflow/internal/middleware"
	"github.com/hitoshi/wasteflow/internal/profile"
	"github.com/hitoshi/wasteflow/internal/repository"
	"github.com/hitoshi/wasteflow/internal/security"
	"github.com/hitoshi/wasteflow/internal/session"
	"github.com/hitoshi/wasteflow/internal/waste"
)

// Init はアプリケーションの初期化を行う。
// .envファイル（存在する場合）と環境変数からConfigを読み込み、
// JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// .envはローカル開発用。存在しなくてもエラーにしない
	_ = godotenv.Load()

	// ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	credRepo := repository.NewPostgresCredentialRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	companyRepo := repository.NewPostgresCompanyRepo(db)
	entryRepo := repository.NewPostgresWasteEntryRepo(db)
	eventRepo := repository.NewPostgresDisposalEventRepo(db)
	certRepo := repository.NewPostgresCertificateRepo(db)
	paymentRepo := repository.NewPostgresPaymentRepo(db)

	// 3. セキュリティサービスの初期化
	outboundGuard := security.NewOutboundGuard()
	sanitizer := security.NewFieldSanitizer()

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. 認証プロバイダーとセッション管理の初期化
	provider := auth.NewLocalProvider(credRepo, sessionRepo, auth.ProviderConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})
	sessionManager := session.NewManager(provider, profileRepo, profileRepo, companyRepo)

	// 6. ドメインサービスの初期化
	profileService := profile.NewService(profileRepo, sanitizer)
	companyService := company.NewService(companyRepo, profileRepo, sanitizer, &scopeResetAdapter{
		manager:   sessionManager,
		collector: collector,
	})
	wasteService := waste.NewService(entryRepo, eventRepo, certRepo, sanitizer, cfg.MaxUploadSize)

	analysisService, err := analysis.NewService(
		entryRepo, outboundGuard,
		cfg.AnalysisURL, cfg.AnalysisAPIKey, cfg.AnalysisTimeout,
	)
	if err != nil {
		return fmt.Errorf("failed to init analysis service: %w", err)
	}

	// 7. 決済サービスの初期化
	idempotency, redisClient, err := buildIdempotencyStore(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to init idempotency store: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	verifiers, err := buildVerifiers(cfg, outboundGuard)
	if err != nil {
		return fmt.Errorf("failed to init payment verifiers: %w", err)
	}
	billingService := billing.NewService(
		verifiers, idempotency,
		paymentRepo, profileRepo, companyRepo, sessionManager,
	)

	// 8. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAnalysis),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		SessionResolver:   sessionManager,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		Collector: collector,
		Gatherer:  registry,

		SessionManager: sessionManager,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ProfileService:     profileService,
		CompanyService:     companyService,
		WasteService:       wasteService,
		CertificateService: wasteService,
		AnalysisService:    analysisService,
		BillingService:     billingService,

		MaxUploadSize: cfg.MaxUploadSize,
		HealthChecker: db,
	}

	router := handler.NewRouter(deps)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// 期限切れセッションの定期掃除。失効したトークンはプロバイダーの
	// 状態変化通知経由でセッション管理から破棄される
	go runSessionSweep(ctx, provider, cfg.SessionSweepInterval)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// scopeResetAdapter はセッション管理のスコープリセットにメトリクス記録を加える。
type scopeResetAdapter struct {
	manager   *session.Manager
	collector metrics.MetricsCollector
}

func (a *scopeResetAdapter) ResetScope(companyID string) int {
	count := a.manager.ResetScope(companyID)
	if a.collector != nil && count > 0 {
		a.collector.RecordScopeReset(count)
	}
	return count
}

// buildIdempotencyStore はWebhook重複排除ストアを構築する。
// REDIS_URLが設定されている場合はRedis、未設定の場合はインメモリを使用する。
func buildIdempotencyStore(redisURL string) (billing.IdempotencyStore, *redis.Client, error) {
	if redisURL == "" {
		slog.Info("webhook idempotency store: in-memory (REDIS_URL not set)")
		return billing.NewMemoryIdempotencyStore(), nil, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("webhook idempotency store: redis")
	return billing.NewRedisIdempotencyStore(client), client, nil
}

// buildVerifiers は設定済みの決済プロバイダー照会クライアントを構築する。
// アクセストークンが設定されているプロバイダーのみ有効化する。
func buildVerifiers(cfg *config.Config, guard security.OutboundGuardService) (map[string]billing.Verifier, error) {
	verifiers := make(map[string]billing.Verifier)

	if cfg.MercadoPagoToken != "" {
		v, err := billing.NewMercadoPagoVerifier(guard, cfg.MercadoPagoAPIURL, cfg.MercadoPagoToken, 15*time.Second)
		if err != nil {
			return nil, err
		}
		verifiers["mercadopago"] = v
	}
	if cfg.StripeToken != "" {
		v, err := billing.NewStripeVerifier(guard, cfg.StripeAPIURL, cfg.StripeToken, 15*time.Second)
		if err != nil {
			return nil, err
		}
		verifiers["stripe"] = v
	}

	slog.Info("payment providers configured", slog.Int("count", len(verifiers)))
	return verifiers, nil
}

// runSessionSweep は期限切れセッションを定期的に削除する。
func runSessionSweep(ctx context.Context, provider *auth.LocalProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := provider.SweepExpired(ctx)
			if err != nil {
				slog.Error("session sweep failed", slog.String("error", err.Error()))
				continue
			}
			if count > 0 {
				slog.Info("expired sessions swept", slog.Int("count", count))
			}
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
