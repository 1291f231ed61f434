package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLoginSuccess()
	c.RecordLoginSuccess()
	c.RecordLoginFailure()
	c.RecordRateLimitRejection("auth")
	c.RecordUserProvisioned("USER")
	c.RecordUserProvisioned("ADMIN")
	c.RecordResetRequested()
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(429)
	c.RecordRequestLatency(50 * time.Millisecond)

	if got := testutil.ToFloat64(c.loginSuccess); got != 2 {
		t.Errorf("expected 2 login successes, got %v", got)
	}
	if got := testutil.ToFloat64(c.loginFailure); got != 1 {
		t.Errorf("expected 1 login failure, got %v", got)
	}
	if got := testutil.ToFloat64(c.rateLimitReject.WithLabelValues("auth")); got != 1 {
		t.Errorf("expected 1 rate limit rejection, got %v", got)
	}
	if got := testutil.ToFloat64(c.usersProvisioned.WithLabelValues("USER")); got != 1 {
		t.Errorf("expected 1 USER provisioned, got %v", got)
	}
	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("200")); got != 2 {
		t.Errorf("expected 2 responses with status 200, got %v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordLoginSuccess()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "tenantry_login_success_total 1") {
		t.Errorf("expected login success metric in scrape output, got:\n%s", body)
	}
}
