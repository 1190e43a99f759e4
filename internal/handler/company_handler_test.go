package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/wasteflow/internal/company"
	"github.com/hitoshi/wasteflow/internal/middleware"
	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/scope"
)

type mockCompanyService struct {
	listFn       func(ctx context.Context, session *model.Session) ([]*model.Company, error)
	getFn        func(ctx context.Context, session *model.Session, companyID string) (*model.Company, error)
	selectFn     func(ctx context.Context, session *model.Session, selector *scope.Selector, companyID string) (*model.Company, error)
	createFn     func(ctx context.Context, session *model.Session, input company.CreateInput) (*model.Company, error)
	updateFn     func(ctx context.Context, session *model.Session, companyID string, input company.UpdateInput) (*model.Company, error)
	updatePlanFn func(ctx context.Context, session *model.Session, companyID string, plan model.Plan) error
	assignUserFn func(ctx context.Context, session *model.Session, companyID, userID string) error
	deleteFn     func(ctx context.Context, session *model.Session, companyID string) error
}

func (m *mockCompanyService) List(ctx context.Context, session *model.Session) ([]*model.Company, error) {
	if m.listFn != nil {
		return m.listFn(ctx, session)
	}
	return nil, nil
}

func (m *mockCompanyService) Get(ctx context.Context, session *model.Session, companyID string) (*model.Company, error) {
	if m.getFn != nil {
		return m.getFn(ctx, session, companyID)
	}
	return nil, nil
}

func (m *mockCompanyService) Select(ctx context.Context, session *model.Session, selector *scope.Selector, companyID string) (*model.Company, error) {
	if m.selectFn != nil {
		return m.selectFn(ctx, session, selector, companyID)
	}
	return nil, nil
}

func (m *mockCompanyService) Create(ctx context.Context, session *model.Session, input company.CreateInput) (*model.Company, error) {
	if m.createFn != nil {
		return m.createFn(ctx, session, input)
	}
	return nil, nil
}

func (m *mockCompanyService) Update(ctx context.Context, session *model.Session, companyID string, input company.UpdateInput) (*model.Company, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, session, companyID, input)
	}
	return nil, nil
}

func (m *mockCompanyService) UpdatePlan(ctx context.Context, session *model.Session, companyID string, plan model.Plan) error {
	if m.updatePlanFn != nil {
		return m.updatePlanFn(ctx, session, companyID, plan)
	}
	return nil
}

func (m *mockCompanyService) AssignUser(ctx context.Context, session *model.Session, companyID, userID string) error {
	if m.assignUserFn != nil {
		return m.assignUserFn(ctx, session, companyID, userID)
	}
	return nil
}

func (m *mockCompanyService) Delete(ctx context.Context, session *model.Session, companyID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, session, companyID)
	}
	return nil
}

func requestWithSession(t *testing.T, method, target, body string, role model.Role) *http.Request {
	t.Helper()
	as := resolvedSession(t, "tok-1",
		&model.Identity{ID: "user-1"},
		&model.UserProfile{ID: "user-1", Role: role},
	)
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(middleware.ContextWithActiveSession(req.Context(), as))
}

// --- SelectCompany ---

func TestSelectCompany_SetsSelection(t *testing.T) {
	var gotCompanyID string
	h := NewCompanyHandler(&mockCompanyService{
		selectFn: func(ctx context.Context, session *model.Session, selector *scope.Selector, companyID string) (*model.Company, error) {
			gotCompanyID = companyID
			c := &model.Company{ID: companyID, Name: "エコ商事"}
			selector.Set(c)
			return c, nil
		},
	})

	req := requestWithSession(t, http.MethodPut, "/api/session/company",
		`{"company_id":"co-1"}`, model.RoleClient)
	rec := httptest.NewRecorder()
	h.SelectCompany(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotCompanyID != "co-1" {
		t.Errorf("company ID = %q, want co-1", gotCompanyID)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	selected, ok := body["selected_company"].(map[string]interface{})
	if !ok || selected["id"] != "co-1" {
		t.Errorf("selected_company = %v", body["selected_company"])
	}
}

// 空のcompany_idは選択を解除し、nullを返すこと。
func TestSelectCompany_EmptyID_ClearsSelection(t *testing.T) {
	h := NewCompanyHandler(&mockCompanyService{
		selectFn: func(ctx context.Context, session *model.Session, selector *scope.Selector, companyID string) (*model.Company, error) {
			selector.Set(nil)
			return nil, nil
		},
	})

	req := requestWithSession(t, http.MethodPut, "/api/session/company",
		`{"company_id":""}`, model.RoleClient)
	rec := httptest.NewRecorder()
	h.SelectCompany(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["selected_company"] != nil {
		t.Errorf("selected_company = %v, want null", body["selected_company"])
	}
}

func TestSelectCompany_ForeignCompany_Forbidden(t *testing.T) {
	h := NewCompanyHandler(&mockCompanyService{
		selectFn: func(ctx context.Context, session *model.Session, selector *scope.Selector, companyID string) (*model.Company, error) {
			return nil, model.NewForbiddenError()
		},
	})

	req := requestWithSession(t, http.MethodPut, "/api/session/company",
		`{"company_id":"co-other"}`, model.RoleClient)
	rec := httptest.NewRecorder()
	h.SelectCompany(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestSelectCompany_NoSession_Unauthorized(t *testing.T) {
	h := NewCompanyHandler(&mockCompanyService{})

	req := httptest.NewRequest(http.MethodPut, "/api/session/company",
		strings.NewReader(`{"company_id":"co-1"}`))
	rec := httptest.NewRecorder()
	h.SelectCompany(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// --- SelectedCompany ---

func TestSelectedCompany_ReflectsScope(t *testing.T) {
	h := NewCompanyHandler(&mockCompanyService{})

	req := requestWithSession(t, http.MethodGet, "/api/session/company", "", model.RoleClient)
	as, _ := middleware.ActiveSessionFromContext(req.Context())
	as.Scope.Set(&model.Company{ID: "co-1", Name: "エコ商事"})

	rec := httptest.NewRecorder()
	h.SelectedCompany(rec, req)

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	selected, ok := body["selected_company"].(map[string]interface{})
	if !ok || selected["id"] != "co-1" {
		t.Errorf("selected_company = %v", body["selected_company"])
	}
}

// --- List / Create ---

func TestListCompanies_ReturnsCompanies(t *testing.T) {
	h := NewCompanyHandler(&mockCompanyService{
		listFn: func(ctx context.Context, session *model.Session) ([]*model.Company, error) {
			return []*model.Company{{ID: "co-1"}, {ID: "co-2"}}, nil
		},
	})

	req := requestWithSession(t, http.MethodGet, "/api/companies", "", model.RoleAdmin)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Companies []map[string]interface{} `json:"companies"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Companies) != 2 {
		t.Errorf("companies = %d, want 2", len(body.Companies))
	}
}

func TestCreateCompany_PassesInput(t *testing.T) {
	var gotInput company.CreateInput
	h := NewCompanyHandler(&mockCompanyService{
		createFn: func(ctx context.Context, session *model.Session, input company.CreateInput) (*model.Company, error) {
			gotInput = input
			return &model.Company{ID: "co-new", Name: input.Name, Plan: input.Plan}, nil
		},
	})

	req := requestWithSession(t, http.MethodPost, "/api/companies",
		`{"name":"エコ商事","description":"廃棄物処理","plan":"Premium"}`, model.RoleAdmin)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if gotInput.Name != "エコ商事" || gotInput.Plan != model.PlanPremium {
		t.Errorf("input = %+v", gotInput)
	}
}
