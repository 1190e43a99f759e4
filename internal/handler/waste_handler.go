package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/wasteflow/internal/middleware"
	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/scope"
	"github.com/hitoshi/wasteflow/internal/waste"
)

// WasteServiceInterface は廃棄物ハンドラーが必要とするサービスインターフェース。
type WasteServiceInterface interface {
	ListEntries(ctx context.Context, selector *scope.Selector) ([]*model.WasteEntry, error)
	AddEntry(ctx context.Context, session *model.Session, selector *scope.Selector, input waste.EntryInput) (*model.WasteEntry, error)
	DeleteEntry(ctx context.Context, session *model.Session, selector *scope.Selector, entryID string) error
	ListEvents(ctx context.Context, selector *scope.Selector, year, month int) ([]*model.DisposalEvent, error)
	AddEvent(ctx context.Context, session *model.Session, selector *scope.Selector, input waste.EventInput) (*model.DisposalEvent, error)
	MonthlyReport(ctx context.Context, selector *scope.Selector, year int) ([]*model.MonthlyReportRow, error)
}

// WasteHandler は廃棄物ログ・処分イベント・月次レポートのHTTPハンドラー。
type WasteHandler struct {
	service WasteServiceInterface
}

// NewWasteHandler はWasteHandlerを生成する。
func NewWasteHandler(service WasteServiceInterface) *WasteHandler {
	return &WasteHandler{service: service}
}

// ListEntries は選択中の会社の廃棄物ログ一覧を返す。
// 会社が未選択の場合は空のリストを返す。
// GET /api/waste/entries
func (h *WasteHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	entries, err := h.service.ListEntries(r.Context(), as.Scope)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	list := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		list = append(list, entryJSON(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": list})
}

// AddEntry は選択中の会社に廃棄物ログエントリを作成する。
// POST /api/waste/entries
func (h *WasteHandler) AddEntry(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		WasteType  string  `json:"waste_type"`
		QuantityKg float64 `json:"quantity_kg"`
		UnitCost   float64 `json:"unit_cost"`
		EntryDate  string  `json:"entry_date"`
		Notes      string  `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidInputError("invalid JSON body"))
		return
	}

	var entryDate time.Time
	if req.EntryDate != "" {
		entryDate, err = time.Parse("2006-01-02", req.EntryDate)
		if err != nil {
			middleware.WriteError(w, model.NewInvalidInputError("entry_date must be YYYY-MM-DD"))
			return
		}
	}

	entry, err := h.service.AddEntry(r.Context(), as.Resolver.Session(), as.Scope, waste.EntryInput{
		WasteType:  req.WasteType,
		QuantityKg: req.QuantityKg,
		UnitCost:   req.UnitCost,
		EntryDate:  entryDate,
		Notes:      req.Notes,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entryJSON(entry))
}

// DeleteEntry は廃棄物ログエントリを削除する。作成者本人またはadminのみ。
// DELETE /api/waste/entries/{id}
func (h *WasteHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.DeleteEntry(r.Context(), as.Resolver.Session(), as.Scope, chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEvents は選択中の会社の指定年月の処分イベントを返す。
// 会社が未選択の場合は空のリストを返す。
// GET /api/waste/events?year=2026&month=8
func (h *WasteHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	now := time.Now()
	year := queryInt(r, "year", now.Year())
	month := queryInt(r, "month", int(now.Month()))

	events, err := h.service.ListEvents(r.Context(), as.Scope, year, month)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	list := make([]map[string]interface{}, 0, len(events))
	for _, e := range events {
		list = append(list, eventJSON(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": list})
}

// AddEvent は選択中の会社に処分イベントを作成する。
// POST /api/waste/events
func (h *WasteHandler) AddEvent(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Title       string `json:"title"`
		WasteType   string `json:"waste_type"`
		ScheduledAt string `json:"scheduled_at"`
		Notes       string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidInputError("invalid JSON body"))
		return
	}

	var scheduledAt time.Time
	if req.ScheduledAt != "" {
		scheduledAt, err = time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			middleware.WriteError(w, model.NewInvalidInputError("scheduled_at must be RFC3339"))
			return
		}
	}

	event, err := h.service.AddEvent(r.Context(), as.Resolver.Session(), as.Scope, waste.EventInput{
		Title:       req.Title,
		WasteType:   req.WasteType,
		ScheduledAt: scheduledAt,
		Notes:       req.Notes,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, eventJSON(event))
}

// MonthlyReport は選択中の会社の指定年の月次財務レポートを返す。
// 会社が未選択の場合は空のリストを返す。
// GET /api/reports/monthly?year=2026
func (h *WasteHandler) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	year := queryInt(r, "year", time.Now().Year())

	rows, err := h.service.MonthlyReport(r.Context(), as.Scope, year)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	list := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		list = append(list, reportRowJSON(row))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"year":   year,
		"months": list,
	})
}

// queryInt はクエリパラメータを整数として読む。無効な場合はデフォルト値を返す。
func queryInt(r *http.Request, key string, defaultValue int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}
