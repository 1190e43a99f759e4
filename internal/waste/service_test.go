package waste

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/scope"
)

// --- モック定義 ---

type mockEntryRepo struct {
	findByIDFn         func(ctx context.Context, id string) (*model.WasteEntry, error)
	listByCompanyFn    func(ctx context.Context, companyID string) ([]*model.WasteEntry, error)
	createFn           func(ctx context.Context, entry *model.WasteEntry) error
	deleteByIDFn       func(ctx context.Context, id string) error
	summarizeMonthlyFn func(ctx context.Context, companyID string, year int) ([]*model.MonthlyReportRow, error)
}

func (m *mockEntryRepo) FindByID(ctx context.Context, id string) (*model.WasteEntry, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockEntryRepo) ListByCompany(ctx context.Context, companyID string) ([]*model.WasteEntry, error) {
	if m.listByCompanyFn != nil {
		return m.listByCompanyFn(ctx, companyID)
	}
	return nil, nil
}

func (m *mockEntryRepo) Create(ctx context.Context, entry *model.WasteEntry) error {
	if m.createFn != nil {
		return m.createFn(ctx, entry)
	}
	return nil
}

func (m *mockEntryRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockEntryRepo) SummarizeMonthly(ctx context.Context, companyID string, year int) ([]*model.MonthlyReportRow, error) {
	if m.summarizeMonthlyFn != nil {
		return m.summarizeMonthlyFn(ctx, companyID, year)
	}
	return nil, nil
}

type mockEventRepo struct {
	listByRangeFn func(ctx context.Context, companyID string, from, to time.Time) ([]*model.DisposalEvent, error)
	createFn      func(ctx context.Context, event *model.DisposalEvent) error
}

func (m *mockEventRepo) ListByCompanyAndRange(ctx context.Context, companyID string, from, to time.Time) ([]*model.DisposalEvent, error) {
	if m.listByRangeFn != nil {
		return m.listByRangeFn(ctx, companyID, from, to)
	}
	return nil, nil
}

func (m *mockEventRepo) Create(ctx context.Context, event *model.DisposalEvent) error {
	if m.createFn != nil {
		return m.createFn(ctx, event)
	}
	return nil
}

type mockCertRepo struct {
	createFn        func(ctx context.Context, cert *model.DisposalCertificate) error
	listByCompanyFn func(ctx context.Context, companyID string) ([]*model.DisposalCertificate, error)
	findByIDFn      func(ctx context.Context, id string) (*model.DisposalCertificate, error)
}

func (m *mockCertRepo) Create(ctx context.Context, cert *model.DisposalCertificate) error {
	if m.createFn != nil {
		return m.createFn(ctx, cert)
	}
	return nil
}

func (m *mockCertRepo) ListByCompany(ctx context.Context, companyID string) ([]*model.DisposalCertificate, error) {
	if m.listByCompanyFn != nil {
		return m.listByCompanyFn(ctx, companyID)
	}
	return nil, nil
}

func (m *mockCertRepo) FindByID(ctx context.Context, id string) (*model.DisposalCertificate, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// passthroughSanitizer はサニタイズをそのまま通すモック。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(input string) string { return strings.TrimSpace(input) }

const testMaxUpload = 1024

func newTestService(entries *mockEntryRepo, events *mockEventRepo, certs *mockCertRepo) *Service {
	if entries == nil {
		entries = &mockEntryRepo{}
	}
	if events == nil {
		events = &mockEventRepo{}
	}
	if certs == nil {
		certs = &mockCertRepo{}
	}
	return NewService(entries, events, certs, passthroughSanitizer{}, testMaxUpload)
}

func adminSession() *model.Session {
	return &model.Session{
		Identity: &model.Identity{ID: "admin-1"},
		Profile:  &model.UserProfile{ID: "admin-1", Role: model.RoleAdmin},
		Role:     model.RoleAdmin,
	}
}

func clientSession(userID string) *model.Session {
	return &model.Session{
		Identity: &model.Identity{ID: userID},
		Profile:  &model.UserProfile{ID: userID, Role: model.RoleClient},
		Role:     model.RoleClient,
	}
}

func selectorFor(company *model.Company) *scope.Selector {
	s := scope.NewSelector()
	s.Set(company)
	return s
}

// --- 未選択時の空結果 ---

// 会社が未選択の間、テナントスコープの取得は下位ストアを呼ばずに
// 空の結果を返すこと。
func TestListEntries_NoSelection_EmptyWithoutStoreCall(t *testing.T) {
	storeCalled := false
	svc := newTestService(&mockEntryRepo{
		listByCompanyFn: func(ctx context.Context, companyID string) ([]*model.WasteEntry, error) {
			storeCalled = true
			return nil, nil
		},
	}, nil, nil)

	entries, err := svc.ListEntries(context.Background(), scope.NewSelector())
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
	if entries == nil {
		t.Error("should return empty slice, not nil")
	}
	if storeCalled {
		t.Error("store must not be called when no company is selected")
	}
}

func TestMonthlyReport_NoSelection_EmptyWithoutStoreCall(t *testing.T) {
	storeCalled := false
	svc := newTestService(&mockEntryRepo{
		summarizeMonthlyFn: func(ctx context.Context, companyID string, year int) ([]*model.MonthlyReportRow, error) {
			storeCalled = true
			return nil, nil
		},
	}, nil, nil)

	rows, err := svc.MonthlyReport(context.Background(), scope.NewSelector(), 2026)
	if err != nil {
		t.Fatalf("MonthlyReport() error = %v", err)
	}
	if len(rows) != 0 || storeCalled {
		t.Error("no-selection report should be empty without store call")
	}
}

func TestListEvents_NoSelection_EmptyWithoutStoreCall(t *testing.T) {
	storeCalled := false
	svc := newTestService(nil, &mockEventRepo{
		listByRangeFn: func(ctx context.Context, companyID string, from, to time.Time) ([]*model.DisposalEvent, error) {
			storeCalled = true
			return nil, nil
		},
	}, nil)

	events, err := svc.ListEvents(context.Background(), scope.NewSelector(), 2026, 8)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 0 || storeCalled {
		t.Error("no-selection events should be empty without store call")
	}
}

// --- 取得中の選択切り替え ---

// 取得完了時に選択が変わっていた場合、取得結果は破棄されること。
func TestListEntries_SelectionChangedDuringFetch_ResultDiscarded(t *testing.T) {
	selector := selectorFor(&model.Company{ID: "co-1"})

	svc := newTestService(&mockEntryRepo{
		listByCompanyFn: func(ctx context.Context, companyID string) ([]*model.WasteEntry, error) {
			// 取得中に別の会社へ切り替わる
			selector.Set(&model.Company{ID: "co-2"})
			return []*model.WasteEntry{{ID: "e-1", CompanyID: "co-1"}}, nil
		},
	}, nil, nil)

	entries, err := svc.ListEntries(context.Background(), selector)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("stale fetch should be discarded, got %d entries", len(entries))
	}
}

func TestListEntries_FetchError_ReturnsDataFetchFailed(t *testing.T) {
	svc := newTestService(&mockEntryRepo{
		listByCompanyFn: func(ctx context.Context, companyID string) ([]*model.WasteEntry, error) {
			return nil, errors.New("db down")
		},
	}, nil, nil)

	_, err := svc.ListEntries(context.Background(), selectorFor(&model.Company{ID: "co-1"}))

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDataFetchFailed {
		t.Errorf("error = %v, want DATA_FETCH_FAILED", err)
	}
}

// --- 書き込み権限 ---

func TestAddEntry_NoSelection_Fails(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	_, err := svc.AddEntry(context.Background(), adminSession(), scope.NewSelector(), EntryInput{
		WasteType: "plastic", QuantityKg: 10,
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNoCompanySelected {
		t.Errorf("error = %v, want NO_COMPANY_SELECTED", err)
	}
}

func TestAddEntry_AssignedClient_Succeeds(t *testing.T) {
	var created *model.WasteEntry
	svc := newTestService(&mockEntryRepo{
		createFn: func(ctx context.Context, entry *model.WasteEntry) error {
			created = entry
			return nil
		},
	}, nil, nil)

	selector := selectorFor(&model.Company{ID: "co-1", AssignedUserUID: "client-1"})
	entry, err := svc.AddEntry(context.Background(), clientSession("client-1"), selector, EntryInput{
		WasteType:  "plastic",
		QuantityKg: 12.5,
		UnitCost:   3.0,
		Notes:      "  月次回収分  ",
	})
	if err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}

	if created == nil {
		t.Fatal("entry should be persisted")
	}
	if entry.CompanyID != "co-1" {
		t.Errorf("CompanyID = %q, want co-1", entry.CompanyID)
	}
	if entry.CreatedBy != "client-1" {
		t.Errorf("CreatedBy = %q, want client-1", entry.CreatedBy)
	}
	if entry.Notes != "月次回収分" {
		t.Errorf("Notes = %q, want sanitized", entry.Notes)
	}
}

func TestAddEntry_UnassignedClient_Forbidden(t *testing.T) {
	svc := newTestService(nil, nil, nil)
	selector := selectorFor(&model.Company{ID: "co-1", AssignedUserUID: "someone-else"})

	_, err := svc.AddEntry(context.Background(), clientSession("client-1"), selector, EntryInput{
		WasteType: "plastic", QuantityKg: 1,
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeForbidden {
		t.Errorf("error = %v, want FORBIDDEN", err)
	}
}

func TestAddEntry_Admin_AnySelectedCompany(t *testing.T) {
	svc := newTestService(nil, nil, nil)
	selector := selectorFor(&model.Company{ID: "co-1", AssignedUserUID: "someone-else"})

	if _, err := svc.AddEntry(context.Background(), adminSession(), selector, EntryInput{
		WasteType: "organic", QuantityKg: 5,
	}); err != nil {
		t.Errorf("AddEntry() error = %v", err)
	}
}

func TestAddEntry_InvalidQuantity_Fails(t *testing.T) {
	svc := newTestService(nil, nil, nil)
	selector := selectorFor(&model.Company{ID: "co-1"})

	_, err := svc.AddEntry(context.Background(), adminSession(), selector, EntryInput{
		WasteType: "plastic", QuantityKg: 0,
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidInput {
		t.Errorf("error = %v, want INVALID_INPUT", err)
	}
}

// --- 削除権限 ---

func TestDeleteEntry_Author_Succeeds(t *testing.T) {
	deleted := false
	svc := newTestService(&mockEntryRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.WasteEntry, error) {
			return &model.WasteEntry{ID: id, CompanyID: "co-1", CreatedBy: "client-1"}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = true
			return nil
		},
	}, nil, nil)

	selector := selectorFor(&model.Company{ID: "co-1", AssignedUserUID: "client-1"})
	if err := svc.DeleteEntry(context.Background(), clientSession("client-1"), selector, "e-1"); err != nil {
		t.Fatalf("DeleteEntry() error = %v", err)
	}
	if !deleted {
		t.Error("entry should be deleted")
	}
}

func TestDeleteEntry_NonAuthorClient_Forbidden(t *testing.T) {
	svc := newTestService(&mockEntryRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.WasteEntry, error) {
			return &model.WasteEntry{ID: id, CompanyID: "co-1", CreatedBy: "other-user"}, nil
		},
	}, nil, nil)

	selector := selectorFor(&model.Company{ID: "co-1", AssignedUserUID: "client-1"})
	err := svc.DeleteEntry(context.Background(), clientSession("client-1"), selector, "e-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeForbidden {
		t.Errorf("error = %v, want FORBIDDEN", err)
	}
}

func TestDeleteEntry_Admin_AnyAuthor(t *testing.T) {
	svc := newTestService(&mockEntryRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.WasteEntry, error) {
			return &model.WasteEntry{ID: id, CompanyID: "co-1", CreatedBy: "other-user"}, nil
		},
	}, nil, nil)

	selector := selectorFor(&model.Company{ID: "co-1"})
	if err := svc.DeleteEntry(context.Background(), adminSession(), selector, "e-1"); err != nil {
		t.Errorf("DeleteEntry() error = %v", err)
	}
}

// 別テナントのエントリは存在しないものとして扱うこと。
func TestDeleteEntry_EntryInOtherCompany_NotFound(t *testing.T) {
	svc := newTestService(&mockEntryRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.WasteEntry, error) {
			return &model.WasteEntry{ID: id, CompanyID: "co-other", CreatedBy: "admin-1"}, nil
		},
	}, nil, nil)

	selector := selectorFor(&model.Company{ID: "co-1"})
	err := svc.DeleteEntry(context.Background(), adminSession(), selector, "e-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEntryNotFound {
		t.Errorf("error = %v, want ENTRY_NOT_FOUND", err)
	}
}

// --- イベント ---

func TestListEvents_InvalidMonth_Fails(t *testing.T) {
	svc := newTestService(nil, nil, nil)
	selector := selectorFor(&model.Company{ID: "co-1"})

	_, err := svc.ListEvents(context.Background(), selector, 2026, 13)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidInput {
		t.Errorf("error = %v, want INVALID_INPUT", err)
	}
}

func TestListEvents_QueriesMonthRange(t *testing.T) {
	var gotFrom, gotTo time.Time
	svc := newTestService(nil, &mockEventRepo{
		listByRangeFn: func(ctx context.Context, companyID string, from, to time.Time) ([]*model.DisposalEvent, error) {
			gotFrom, gotTo = from, to
			return []*model.DisposalEvent{}, nil
		},
	}, nil)

	selector := selectorFor(&model.Company{ID: "co-1"})
	if _, err := svc.ListEvents(context.Background(), selector, 2026, 8); err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}

	wantFrom := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if !gotFrom.Equal(wantFrom) || !gotTo.Equal(wantTo) {
		t.Errorf("range = [%v, %v), want [%v, %v)", gotFrom, gotTo, wantFrom, wantTo)
	}
}

// --- 証明書 ---

func TestUploadCertificate_TooLarge_Fails(t *testing.T) {
	svc := newTestService(nil, nil, nil)
	selector := selectorFor(&model.Company{ID: "co-1"})

	_, err := svc.UploadCertificate(context.Background(), adminSession(), selector, CertificateInput{
		FileName: "cert.pdf",
		FileData: make([]byte, testMaxUpload+1),
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeFileTooLarge {
		t.Errorf("error = %v, want FILE_TOO_LARGE", err)
	}
}

func TestUploadCertificate_StoresFileWithMetadata(t *testing.T) {
	var created *model.DisposalCertificate
	svc := newTestService(nil, nil, &mockCertRepo{
		createFn: func(ctx context.Context, cert *model.DisposalCertificate) error {
			created = cert
			return nil
		},
	})

	data := []byte("%PDF-1.7 dummy")
	selector := selectorFor(&model.Company{ID: "co-1"})
	cert, err := svc.UploadCertificate(context.Background(), adminSession(), selector, CertificateInput{
		FileName: "disposal_2026-08.pdf",
		MimeType: "application/pdf",
		FileData: data,
	})
	if err != nil {
		t.Fatalf("UploadCertificate() error = %v", err)
	}

	if created == nil {
		t.Fatal("certificate should be persisted")
	}
	if cert.FileSize != int64(len(data)) {
		t.Errorf("FileSize = %d, want %d", cert.FileSize, len(data))
	}
	if cert.CompanyID != "co-1" || cert.UploadedBy != "admin-1" {
		t.Errorf("scope fields wrong: %+v", cert)
	}
}

func TestGetCertificateFile_OtherCompany_NotFound(t *testing.T) {
	svc := newTestService(nil, nil, &mockCertRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.DisposalCertificate, error) {
			return &model.DisposalCertificate{ID: id, CompanyID: "co-other"}, nil
		},
	})

	_, err := svc.GetCertificateFile(context.Background(), selectorFor(&model.Company{ID: "co-1"}), "cert-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEntryNotFound {
		t.Errorf("error = %v, want ENTRY_NOT_FOUND", err)
	}
}
