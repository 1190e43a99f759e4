package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/wasteflow/internal/middleware"
	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/profile"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, session *model.Session) (*model.UserProfile, error)
	Update(ctx context.Context, session *model.Session, input profile.UpdateInput) (*model.UserProfile, error)
	ListClients(ctx context.Context, session *model.Session) ([]*model.UserProfile, error)
}

// ProfileHandler はプロフィールのHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// Get は現在のユーザーのプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	p, err := h.service.Get(r.Context(), as.Resolver.Session())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileJSON(p))
}

// Update は現在のユーザーのプロフィールを更新する。
// PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		CompanyName string `json:"company_name"`
		TaxID       string `json:"tax_id"`
		IDNumber    string `json:"id_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidInputError("invalid JSON body"))
		return
	}

	p, err := h.service.Update(r.Context(), as.Resolver.Session(), profile.UpdateInput{
		CompanyName: req.CompanyName,
		TaxID:       req.TaxID,
		IDNumber:    req.IDNumber,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileJSON(p))
}

// ListClients はrole=clientの全プロフィールを返す。adminのみ。
// GET /api/profiles/clients
func (h *ProfileHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	clients, err := h.service.ListClients(r.Context(), as.Resolver.Session())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	list := make([]map[string]interface{}, 0, len(clients))
	for _, p := range clients {
		list = append(list, profileJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"clients": list})
}
