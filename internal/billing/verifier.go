package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/security"
)

// maxVerifyResponseBytes はプロバイダー照会応答のサイズ上限。
const maxVerifyResponseBytes = 1 << 20 // 1MB

// VerifiedPayment はプロバイダー照会で確認された決済の内容。
type VerifiedPayment struct {
	Approved    bool
	UserID      string // プロバイダー側のexternal referenceに格納されたユーザーID
	Plan        model.Plan
	AmountCents int64
	Currency    string
}

// Verifier は決済プロバイダーへの照会インターフェース。
// Webhookのペイロードは信用せず、決済IDでプロバイダーAPIに照会して
// 承認状態とメタデータを確認する。
type Verifier interface {
	// Verify は決済IDでプロバイダーに照会する。決済が存在しない場合はエラーを返す。
	Verify(ctx context.Context, paymentID string) (*VerifiedPayment, error)
}

// mercadoPagoVerifier はMercado Pagoの照会実装。
// GET /v1/payments/{id} をアクセストークン付きで呼び出す。
type mercadoPagoVerifier struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewMercadoPagoVerifier はMercado Pagoの照会クライアントを生成する。
func NewMercadoPagoVerifier(guard security.OutboundGuardService, baseURL, token string, timeout time.Duration) (*mercadoPagoVerifier, error) {
	if err := guard.ValidateURL(baseURL); err != nil {
		return nil, fmt.Errorf("invalid mercadopago API URL: %w", err)
	}
	return &mercadoPagoVerifier{
		client:  guard.NewSafeClient(timeout),
		baseURL: baseURL,
		token:   token,
	}, nil
}

// mercadoPagoPayment はMercado Pagoの決済照会応答のうち使用するフィールド。
type mercadoPagoPayment struct {
	Status            string  `json:"status"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
	Metadata          struct {
		Plan string `json:"plan"`
	} `json:"metadata"`
}

// Verify は決済IDでMercado Pagoに照会する。
func (v *mercadoPagoVerifier) Verify(ctx context.Context, paymentID string) (*VerifiedPayment, error) {
	endpoint := fmt.Sprintf("%s/v1/payments/%s", v.baseURL, url.PathEscape(paymentID))
	body, err := fetchJSON(ctx, v.client, endpoint, "Bearer "+v.token)
	if err != nil {
		return nil, fmt.Errorf("mercadopago verify failed: %w", err)
	}

	var payment mercadoPagoPayment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, fmt.Errorf("failed to parse mercadopago response: %w", err)
	}

	return &VerifiedPayment{
		Approved:    payment.Status == "approved",
		UserID:      payment.ExternalReference,
		Plan:        planFromString(payment.Metadata.Plan),
		AmountCents: int64(payment.TransactionAmount * 100),
		Currency:    payment.CurrencyID,
	}, nil
}

// stripeVerifier はStripeの照会実装。
// GET /v1/checkout/sessions/{id} をシークレットキー付きで呼び出す。
type stripeVerifier struct {
	client  *http.Client
	baseURL string
	key     string
}

// NewStripeVerifier はStripeの照会クライアントを生成する。
func NewStripeVerifier(guard security.OutboundGuardService, baseURL, key string, timeout time.Duration) (*stripeVerifier, error) {
	if err := guard.ValidateURL(baseURL); err != nil {
		return nil, fmt.Errorf("invalid stripe API URL: %w", err)
	}
	return &stripeVerifier{
		client:  guard.NewSafeClient(timeout),
		baseURL: baseURL,
		key:     key,
	}, nil
}

// stripeCheckoutSession はStripeのチェックアウトセッション照会応答のうち使用するフィールド。
type stripeCheckoutSession struct {
	PaymentStatus     string `json:"payment_status"`
	ClientReferenceID string `json:"client_reference_id"`
	AmountTotal       int64  `json:"amount_total"`
	Currency          string `json:"currency"`
	Metadata          struct {
		Plan string `json:"plan"`
	} `json:"metadata"`
}

// Verify は決済IDでStripeに照会する。
func (v *stripeVerifier) Verify(ctx context.Context, paymentID string) (*VerifiedPayment, error) {
	endpoint := fmt.Sprintf("%s/v1/checkout/sessions/%s", v.baseURL, url.PathEscape(paymentID))
	body, err := fetchJSON(ctx, v.client, endpoint, "Bearer "+v.key)
	if err != nil {
		return nil, fmt.Errorf("stripe verify failed: %w", err)
	}

	var session stripeCheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to parse stripe response: %w", err)
	}

	return &VerifiedPayment{
		Approved:    session.PaymentStatus == "paid",
		UserID:      session.ClientReferenceID,
		Plan:        planFromString(session.Metadata.Plan),
		AmountCents: session.AmountTotal,
		Currency:    session.Currency,
	}, nil
}

// fetchJSON は認証ヘッダー付きでGETし、2xx応答の本文を返す。
func fetchJSON(ctx context.Context, client *http.Client, endpoint, authorization string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", authorization)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxVerifyResponseBytes))
}

// planFromString はプロバイダーのメタデータからプランを解決する。
// 不明な値はPremiumにフォールバックしない（呼び出し側で拒否される）。
func planFromString(value string) model.Plan {
	switch value {
	case string(model.PlanPremium):
		return model.PlanPremium
	case string(model.PlanCustom):
		return model.PlanCustom
	case string(model.PlanFree):
		return model.PlanFree
	default:
		return ""
	}
}

// compile-time interface checks
var (
	_ Verifier = (*mercadoPagoVerifier)(nil)
	_ Verifier = (*stripeVerifier)(nil)
)
