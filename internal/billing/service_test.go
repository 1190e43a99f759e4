package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/wasteflow/internal/model"
)

// --- モック定義 ---

type mockVerifier struct {
	verifyFn func(ctx context.Context, paymentID string) (*VerifiedPayment, error)
}

func (m *mockVerifier) Verify(ctx context.Context, paymentID string) (*VerifiedPayment, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, paymentID)
	}
	return nil, errors.New("verify not configured")
}

type mockIdempotencyStore struct {
	claimFn func(ctx context.Context, key string) (bool, error)
}

func (m *mockIdempotencyStore) Claim(ctx context.Context, key string) (bool, error) {
	if m.claimFn != nil {
		return m.claimFn(ctx, key)
	}
	return true, nil
}

type mockPaymentRepo struct {
	createFn func(ctx context.Context, payment *model.Payment) error
	existsFn func(ctx context.Context, provider, eventID string) (bool, error)
}

func (m *mockPaymentRepo) Create(ctx context.Context, payment *model.Payment) error {
	if m.createFn != nil {
		return m.createFn(ctx, payment)
	}
	return nil
}

func (m *mockPaymentRepo) ExistsByProviderEvent(ctx context.Context, provider, eventID string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, provider, eventID)
	}
	return false, nil
}

type mockProfileRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.UserProfile, error)
	updatePlanFn func(ctx context.Context, userID string, plan model.Plan) error
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockProfileRepo) Create(ctx context.Context, profile *model.UserProfile) error { return nil }
func (m *mockProfileRepo) Update(ctx context.Context, profile *model.UserProfile) error { return nil }

func (m *mockProfileRepo) UpdatePlan(ctx context.Context, userID string, plan model.Plan) error {
	if m.updatePlanFn != nil {
		return m.updatePlanFn(ctx, userID, plan)
	}
	return nil
}

func (m *mockProfileRepo) UpdateAssignedCompany(ctx context.Context, userID, companyID string) error {
	return nil
}

func (m *mockProfileRepo) ListClients(ctx context.Context) ([]*model.UserProfile, error) {
	return nil, nil
}

type mockCompanyRepo struct {
	updatePlanFn func(ctx context.Context, companyID string, plan model.Plan) error
}

func (m *mockCompanyRepo) FindByID(ctx context.Context, id string) (*model.Company, error) {
	return nil, nil
}

func (m *mockCompanyRepo) List(ctx context.Context) ([]*model.Company, error) { return nil, nil }

func (m *mockCompanyRepo) ListByAssignedUser(ctx context.Context, userID string) ([]*model.Company, error) {
	return nil, nil
}

func (m *mockCompanyRepo) Create(ctx context.Context, company *model.Company) error { return nil }
func (m *mockCompanyRepo) Update(ctx context.Context, company *model.Company) error { return nil }

func (m *mockCompanyRepo) UpdatePlan(ctx context.Context, companyID string, plan model.Plan) error {
	if m.updatePlanFn != nil {
		return m.updatePlanFn(ctx, companyID, plan)
	}
	return nil
}

func (m *mockCompanyRepo) AssignUser(ctx context.Context, companyID, userID string) error {
	return nil
}

func (m *mockCompanyRepo) Delete(ctx context.Context, companyID string) error { return nil }

type mockSessionRefresher struct {
	refreshedUserIDs []string
}

func (m *mockSessionRefresher) RefreshProfilesFor(ctx context.Context, userID string) {
	m.refreshedUserIDs = append(m.refreshedUserIDs, userID)
}

type serviceDeps struct {
	verifier    *mockVerifier
	idempotency *mockIdempotencyStore
	payments    *mockPaymentRepo
	profiles    *mockProfileRepo
	companies   *mockCompanyRepo
	refresher   *mockSessionRefresher
}

func newTestService(deps serviceDeps) *Service {
	if deps.verifier == nil {
		deps.verifier = &mockVerifier{}
	}
	if deps.idempotency == nil {
		deps.idempotency = &mockIdempotencyStore{}
	}
	if deps.payments == nil {
		deps.payments = &mockPaymentRepo{}
	}
	if deps.profiles == nil {
		deps.profiles = &mockProfileRepo{}
	}
	if deps.companies == nil {
		deps.companies = &mockCompanyRepo{}
	}
	if deps.refresher == nil {
		deps.refresher = &mockSessionRefresher{}
	}
	return NewService(
		map[string]Verifier{"mercadopago": deps.verifier},
		deps.idempotency,
		deps.payments,
		deps.profiles,
		deps.companies,
		deps.refresher,
	)
}

func approvedPayment(userID string, plan model.Plan) *VerifiedPayment {
	return &VerifiedPayment{
		Approved:    true,
		UserID:      userID,
		Plan:        plan,
		AmountCents: 9900,
		Currency:    "JPY",
	}
}

func testEvent() WebhookEvent {
	return WebhookEvent{EventID: "evt-1", PaymentID: "pay-1"}
}

// --- 冪等性 ---

// 重複排除キーが取得できなかったイベントは照会なしでno-opになること。
func TestHandleWebhook_DuplicateClaim_NoopWithoutVerification(t *testing.T) {
	verified := false
	svc := newTestService(serviceDeps{
		verifier: &mockVerifier{
			verifyFn: func(ctx context.Context, paymentID string) (*VerifiedPayment, error) {
				verified = true
				return approvedPayment("user-1", model.PlanPremium), nil
			},
		},
		idempotency: &mockIdempotencyStore{
			claimFn: func(ctx context.Context, key string) (bool, error) { return false, nil },
		},
	})

	if err := svc.HandleWebhook(context.Background(), "mercadopago", testEvent()); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if verified {
		t.Error("duplicate event must not be verified again")
	}
}

// 決済記録が既に存在するイベントはno-opになること（重複排除の最終防壁）。
func TestHandleWebhook_AlreadyApplied_Noop(t *testing.T) {
	planUpdated := false
	svc := newTestService(serviceDeps{
		payments: &mockPaymentRepo{
			existsFn: func(ctx context.Context, provider, eventID string) (bool, error) {
				return true, nil
			},
		},
		profiles: &mockProfileRepo{
			updatePlanFn: func(ctx context.Context, userID string, plan model.Plan) error {
				planUpdated = true
				return nil
			},
		},
	})

	if err := svc.HandleWebhook(context.Background(), "mercadopago", testEvent()); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if planUpdated {
		t.Error("already-applied event must not update plans")
	}
}

// 重複排除ストアの障害時は決済記録の存在確認にフォールバックして処理が続くこと。
func TestHandleWebhook_ClaimStoreDown_FallsBackToPaymentCheck(t *testing.T) {
	refresher := &mockSessionRefresher{}
	svc := newTestService(serviceDeps{
		verifier: &mockVerifier{
			verifyFn: func(ctx context.Context, paymentID string) (*VerifiedPayment, error) {
				return approvedPayment("user-1", model.PlanPremium), nil
			},
		},
		idempotency: &mockIdempotencyStore{
			claimFn: func(ctx context.Context, key string) (bool, error) {
				return false, errors.New("redis down")
			},
		},
		profiles: &mockProfileRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.UserProfile, error) {
				return &model.UserProfile{ID: id, Role: model.RoleClient, Plan: model.PlanFree}, nil
			},
		},
		refresher: refresher,
	})

	if err := svc.HandleWebhook(context.Background(), "mercadopago", testEvent()); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if len(refresher.refreshedUserIDs) != 1 {
		t.Error("payment should still be applied when the claim store is down")
	}
}

// --- 検証 ---

func TestHandleWebhook_UnknownProvider_Rejected(t *testing.T) {
	svc := newTestService(serviceDeps{})

	err := svc.HandleWebhook(context.Background(), "paypal", testEvent())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeWebhookRejected {
		t.Errorf("error = %v, want WEBHOOK_REJECTED", err)
	}
}

func TestHandleWebhook_MissingIDs_Rejected(t *testing.T) {
	svc := newTestService(serviceDeps{})

	err := svc.HandleWebhook(context.Background(), "mercadopago", WebhookEvent{EventID: "evt-1"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeWebhookRejected {
		t.Errorf("error = %v, want WEBHOOK_REJECTED", err)
	}
}

func TestHandleWebhook_UnapprovedPayment_RejectedAndRecorded(t *testing.T) {
	var recorded *model.Payment
	planUpdated := false
	svc := newTestService(serviceDeps{
		verifier: &mockVerifier{
			verifyFn: func(ctx context.Context, paymentID string) (*VerifiedPayment, error) {
				return &VerifiedPayment{Approved: false, UserID: "user-1"}, nil
			},
		},
		payments: &mockPaymentRepo{
			createFn: func(ctx context.Context, payment *model.Payment) error {
				recorded = payment
				return nil
			},
		},
		profiles: &mockProfileRepo{
			updatePlanFn: func(ctx context.Context, userID string, plan model.Plan) error {
				planUpdated = true
				return nil
			},
		},
	})

	err := svc.HandleWebhook(context.Background(), "mercadopago", testEvent())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeWebhookRejected {
		t.Fatalf("error = %v, want WEBHOOK_REJECTED", err)
	}
	if planUpdated {
		t.Error("unapproved payment must not change plans")
	}
	if recorded == nil || recorded.Status != model.PaymentStatusRejected {
		t.Errorf("payment record = %+v, want rejected status", recorded)
	}
}

func TestHandleWebhook_UnknownPlan_Rejected(t *testing.T) {
	svc := newTestService(serviceDeps{
		verifier: &mockVerifier{
			verifyFn: func(ctx context.Context, paymentID string) (*VerifiedPayment, error) {
				return approvedPayment("user-1", model.PlanFree), nil
			},
		},
	})

	err := svc.HandleWebhook(context.Background(), "mercadopago", testEvent())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeWebhookRejected {
		t.Errorf("error = %v, want WEBHOOK_REJECTED", err)
	}
}

func TestHandleWebhook_UnknownUser_Rejected(t *testing.T) {
	svc := newTestService(serviceDeps{
		verifier: &mockVerifier{
			verifyFn: func(ctx context.Context, paymentID string) (*VerifiedPayment, error) {
				return approvedPayment("ghost-user", model.PlanPremium), nil
			},
		},
	})

	err := svc.HandleWebhook(context.Background(), "mercadopago", testEvent())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeWebhookRejected {
		t.Errorf("error = %v, want WEBHOOK_REJECTED", err)
	}
}

// --- 適用 ---

// 承認済み決済はプロフィールと所属会社の両方のプランを更新し、
// 決済記録を作成してセッションの再取得を指示すること。
func TestHandleWebhook_ApprovedPayment_UpdatesProfileAndCompany(t *testing.T) {
	var profilePlan, companyPlan model.Plan
	var companyID string
	var recorded *model.Payment
	refresher := &mockSessionRefresher{}

	svc := newTestService(serviceDeps{
		verifier: &mockVerifier{
			verifyFn: func(ctx context.Context, paymentID string) (*VerifiedPayment, error) {
				return approvedPayment("user-1", model.PlanPremium), nil
			},
		},
		payments: &mockPaymentRepo{
			createFn: func(ctx context.Context, payment *model.Payment) error {
				recorded = payment
				return nil
			},
		},
		profiles: &mockProfileRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.UserProfile, error) {
				return &model.UserProfile{
					ID: id, Role: model.RoleClient, Plan: model.PlanFree,
					AssignedCompanyID: "co-1",
				}, nil
			},
			updatePlanFn: func(ctx context.Context, userID string, plan model.Plan) error {
				profilePlan = plan
				return nil
			},
		},
		companies: &mockCompanyRepo{
			updatePlanFn: func(ctx context.Context, cID string, plan model.Plan) error {
				companyID, companyPlan = cID, plan
				return nil
			},
		},
		refresher: refresher,
	})

	if err := svc.HandleWebhook(context.Background(), "mercadopago", testEvent()); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}

	if profilePlan != model.PlanPremium {
		t.Errorf("profile plan = %q, want Premium", profilePlan)
	}
	if companyID != "co-1" || companyPlan != model.PlanPremium {
		t.Errorf("company plan update = (%q, %q), want (co-1, Premium)", companyID, companyPlan)
	}
	if recorded == nil || recorded.Status != model.PaymentStatusApplied {
		t.Errorf("payment record = %+v, want applied status", recorded)
	}
	if len(refresher.refreshedUserIDs) != 1 || refresher.refreshedUserIDs[0] != "user-1" {
		t.Errorf("refreshed users = %v, want [user-1]", refresher.refreshedUserIDs)
	}
}

// 所属会社を持たないユーザーの決済はプロフィールのみ更新すること。
func TestHandleWebhook_UserWithoutCompany_UpdatesProfileOnly(t *testing.T) {
	companyUpdated := false
	svc := newTestService(serviceDeps{
		verifier: &mockVerifier{
			verifyFn: func(ctx context.Context, paymentID string) (*VerifiedPayment, error) {
				return approvedPayment("user-1", model.PlanCustom), nil
			},
		},
		profiles: &mockProfileRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.UserProfile, error) {
				return &model.UserProfile{ID: id, Role: model.RoleClient, Plan: model.PlanFree}, nil
			},
		},
		companies: &mockCompanyRepo{
			updatePlanFn: func(ctx context.Context, companyID string, plan model.Plan) error {
				companyUpdated = true
				return nil
			},
		},
	})

	if err := svc.HandleWebhook(context.Background(), "mercadopago", testEvent()); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if companyUpdated {
		t.Error("user without an assigned company must not trigger a company plan update")
	}
}

func TestSupportsProvider(t *testing.T) {
	svc := newTestService(serviceDeps{})

	if !svc.SupportsProvider("mercadopago") {
		t.Error("mercadopago should be supported")
	}
	if svc.SupportsProvider("paypal") {
		t.Error("paypal should not be supported")
	}
}
