package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/wasteflow/internal/company"
	"github.com/hitoshi/wasteflow/internal/middleware"
	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/scope"
)

// CompanyServiceInterface は会社ハンドラーが必要とするサービスインターフェース。
type CompanyServiceInterface interface {
	List(ctx context.Context, session *model.Session) ([]*model.Company, error)
	Get(ctx context.Context, session *model.Session, companyID string) (*model.Company, error)
	Select(ctx context.Context, session *model.Session, selector *scope.Selector, companyID string) (*model.Company, error)
	Create(ctx context.Context, session *model.Session, input company.CreateInput) (*model.Company, error)
	Update(ctx context.Context, session *model.Session, companyID string, input company.UpdateInput) (*model.Company, error)
	UpdatePlan(ctx context.Context, session *model.Session, companyID string, plan model.Plan) error
	AssignUser(ctx context.Context, session *model.Session, companyID, userID string) error
	Delete(ctx context.Context, session *model.Session, companyID string) error
}

// CompanyHandler は会社管理のHTTPハンドラー。
type CompanyHandler struct {
	service CompanyServiceInterface
}

// NewCompanyHandler はCompanyHandlerを生成する。
func NewCompanyHandler(service CompanyServiceInterface) *CompanyHandler {
	return &CompanyHandler{service: service}
}

// companyRequest は会社の作成・更新のリクエストボディ。
type companyRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Plan          string `json:"plan"`
	CoverImageURL string `json:"cover_image_url"`
}

// List は参照可能な会社一覧を返す。
// GET /api/companies
func (h *CompanyHandler) List(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	companies, err := h.service.List(r.Context(), as.Resolver.Session())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	list := make([]map[string]interface{}, 0, len(companies))
	for _, c := range companies {
		list = append(list, companyJSON(c))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"companies": list})
}

// Get は指定IDの会社を返す。
// GET /api/companies/{id}
func (h *CompanyHandler) Get(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	c, err := h.service.Get(r.Context(), as.Resolver.Session(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, companyJSON(c))
}

// Create は会社を作成する。adminのみ。
// POST /api/companies
func (h *CompanyHandler) Create(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req companyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidInputError("invalid JSON body"))
		return
	}

	c, err := h.service.Create(r.Context(), as.Resolver.Session(), company.CreateInput{
		Name:          req.Name,
		Description:   req.Description,
		Plan:          model.Plan(req.Plan),
		CoverImageURL: req.CoverImageURL,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, companyJSON(c))
}

// Update は会社の名前・説明・カバー画像を更新する。adminのみ。
// PUT /api/companies/{id}
func (h *CompanyHandler) Update(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req companyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidInputError("invalid JSON body"))
		return
	}

	c, err := h.service.Update(r.Context(), as.Resolver.Session(), chi.URLParam(r, "id"), company.UpdateInput{
		Name:          req.Name,
		Description:   req.Description,
		CoverImageURL: req.CoverImageURL,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, companyJSON(c))
}

// UpdatePlan は会社のプランを更新する。adminのみ。
// PUT /api/companies/{id}/plan
func (h *CompanyHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Plan string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidInputError("invalid JSON body"))
		return
	}

	if err := h.service.UpdatePlan(r.Context(), as.Resolver.Session(), chi.URLParam(r, "id"), model.Plan(req.Plan)); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignUser は会社の割当ユーザーを変更する。adminのみ。
// PUT /api/companies/{id}/assignee
func (h *CompanyHandler) AssignUser(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidInputError("invalid JSON body"))
		return
	}

	if err := h.service.AssignUser(r.Context(), as.Resolver.Session(), chi.URLParam(r, "id"), req.UserID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete は会社を削除する。adminのみ。
// この会社を選択中の全セッションの選択はnilにリセットされる。
// DELETE /api/companies/{id}
func (h *CompanyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.Delete(r.Context(), as.Resolver.Session(), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectCompany はセッションのアクティブな会社選択を更新する。
// company_idが空の場合は選択を解除する。
// PUT /api/session/company
func (h *CompanyHandler) SelectCompany(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		CompanyID string `json:"company_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidInputError("invalid JSON body"))
		return
	}

	c, err := h.service.Select(r.Context(), as.Resolver.Session(), as.Scope, req.CompanyID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	if c == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"selected_company": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"selected_company": companyJSON(c)})
}

// SelectedCompany は現在のアクティブな会社選択を返す。
// GET /api/session/company
func (h *CompanyHandler) SelectedCompany(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	c := as.Scope.Get()
	if c == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"selected_company": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"selected_company": companyJSON(c)})
}
