package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/wasteflow/internal/billing"
	"github.com/hitoshi/wasteflow/internal/metrics"
	"github.com/hitoshi/wasteflow/internal/middleware"
	"github.com/hitoshi/wasteflow/internal/model"
)

// maxWebhookBodyBytes はWebhookリクエストボディのサイズ上限。
const maxWebhookBodyBytes = 64 * 1024

// BillingServiceInterface はWebhookハンドラーが必要とするサービスインターフェース。
type BillingServiceInterface interface {
	SupportsProvider(provider string) bool
	HandleWebhook(ctx context.Context, provider string, event billing.WebhookEvent) error
}

// WebhookHandler は決済プロバイダーWebhookのHTTPハンドラー。
// セッション認証の対象外（プロバイダーからのサーバー間通信）。
// ペイロードからはイベントIDと決済IDのみを読み、内容の検証は
// billingサービスのプロバイダー照会に委ねる。
type WebhookHandler struct {
	service   BillingServiceInterface
	collector metrics.MetricsCollector
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(service BillingServiceInterface, collector metrics.MetricsCollector) *WebhookHandler {
	return &WebhookHandler{
		service:   service,
		collector: collector,
	}
}

// webhookRequest は決済Webhookのリクエストボディのうちパースするフィールド。
// Mercado Pagoは{"id": ..., "data": {"id": ...}}、Stripeは
// {"id": ..., "data": {"object": {"id": ...}}}形式で送信する。
type webhookRequest struct {
	ID   string `json:"id"`
	Data struct {
		ID     string `json:"id"`
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// Handle は決済Webhookイベントを処理する。
// 同一イベントの再送には200を返す（プロバイダーの再送を止めるため）。
// POST /webhooks/payments/{provider}
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !h.service.SupportsProvider(provider) {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	var req webhookRequest
	body := http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewWebhookRejectedError("invalid JSON body"))
		return
	}

	paymentID := req.Data.ID
	if paymentID == "" {
		paymentID = req.Data.Object.ID
	}

	event := billing.WebhookEvent{
		EventID:   req.ID,
		PaymentID: paymentID,
	}

	err := h.service.HandleWebhook(r.Context(), provider, event)
	if err != nil {
		outcome := "error"
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeWebhookRejected {
			outcome = "rejected"
		} else {
			slog.Error("webhook processing failed",
				slog.String("provider", provider),
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		if h.collector != nil {
			h.collector.RecordWebhook(provider, outcome)
		}
		middleware.WriteError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordWebhook(provider, "applied")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
