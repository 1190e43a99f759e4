package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/wasteflow/internal/metrics"
	"github.com/hitoshi/wasteflow/internal/middleware"
	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/scope"
)

// AnalysisServiceInterface は分析ハンドラーが必要とするサービスインターフェース。
type AnalysisServiceInterface interface {
	Run(ctx context.Context, session *model.Session, selector *scope.Selector) (*model.AnalysisResult, error)
}

// AnalysisHandler はAIデータ分析のHTTPハンドラー。
type AnalysisHandler struct {
	service   AnalysisServiceInterface
	collector metrics.MetricsCollector
}

// NewAnalysisHandler はAnalysisHandlerを生成する。
func NewAnalysisHandler(service AnalysisServiceInterface, collector metrics.MetricsCollector) *AnalysisHandler {
	return &AnalysisHandler{
		service:   service,
		collector: collector,
	}
}

// Run は選択中の会社の廃棄物ログを分析する。プレミアム機能。
// POST /api/analysis
func (h *AnalysisHandler) Run(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	started := time.Now()
	result, err := h.service.Run(r.Context(), as.Resolver.Session(), as.Scope)
	if h.collector != nil {
		h.collector.RecordAnalysisLatency(time.Since(started))
	}
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":         result.Summary,
		"recommendations": result.Recommendations,
	})
}
