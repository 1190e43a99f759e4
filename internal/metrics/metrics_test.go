package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollector_RecordsAndExposesMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)

	c.RecordLoginSuccess()
	c.RecordLoginSuccess()
	c.RecordLoginFailure()
	c.RecordSignup("company")
	c.RecordWebhook("mercadopago", "applied")
	c.RecordWebhook("mercadopago", "rejected")
	c.RecordAnalysisLatency(150 * time.Millisecond)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)
	c.RecordScopeReset(3)

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	expected := []string{
		"wasteflow_login_success_total 2",
		"wasteflow_login_fail_total 1",
		`wasteflow_signup_total{account_type="company"} 1`,
		`wasteflow_webhook_total{outcome="applied",provider="mercadopago"} 1`,
		`wasteflow_webhook_total{outcome="rejected",provider="mercadopago"} 1`,
		"wasteflow_analysis_latency_seconds_count 1",
		`wasteflow_http_status_total{status_code="200"} 1`,
		`wasteflow_http_status_total{status_code="404"} 1`,
		"wasteflow_scope_reset_total 3",
	}
	for _, want := range expected {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCollector_ImplementsMetricsCollector(t *testing.T) {
	var _ MetricsCollector = NewCollector(prometheus.NewRegistry())
}
