package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Strike("SPAM")
	m.SetInFlight(3)
	m.GatewayOutcome("skipped_budget")
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Strike("BET")
	m.Strike("BET")
	m.Mute("permanent")

	if got := testutil.ToFloat64(m.strikes.WithLabelValues("BET")); got != 2 {
		t.Fatalf("expected 2 BET strikes, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "moderator_mutes_total") {
		t.Fatalf("expected mutes counter in exposition")
	}
}
