package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/mohammad-safakhou/wxbrief/internal/feature"
	"github.com/mohammad-safakhou/wxbrief/internal/router"
	"github.com/mohammad-safakhou/wxbrief/internal/sources"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestObservePackCountsByStatus(t *testing.T) {
	m := New()
	pack := &feature.Pack{
		Results: []sources.Result{
			{Source: "obs", Status: sources.StatusOk, Elapsed: 120 * time.Millisecond},
			{Source: "alerts", Status: sources.StatusTimedOut, Elapsed: 3 * time.Second},
			{Source: "obs", Status: sources.StatusOk, Elapsed: 90 * time.Millisecond},
		},
	}
	m.ObservePack(pack)

	if got := counterValue(t, m, "wxbrief_source_fetch_total", map[string]string{"source": "obs", "status": "ok"}); got != 2 {
		t.Fatalf("obs ok count = %v, want 2", got)
	}
	if got := counterValue(t, m, "wxbrief_source_fetch_total", map[string]string{"source": "alerts", "status": "timed_out"}); got != 1 {
		t.Fatalf("alerts timed_out count = %v, want 1", got)
	}
}

func TestObserveRoutingCountsAttempts(t *testing.T) {
	m := New()
	res := &router.Result{
		Attempts: []router.Attempt{
			{Provider: "openrouter", Model: "a", Number: 1, Outcome: router.OutcomeRetryable},
			{Provider: "openrouter", Model: "a", Number: 2, Outcome: router.OutcomeSuccess},
		},
		Elapsed: 2 * time.Second,
	}
	m.ObserveRouting(res)

	if got := counterValue(t, m, "wxbrief_provider_attempts_total", map[string]string{"provider": "openrouter", "outcome": "retryable_error"}); got != 1 {
		t.Fatalf("retryable count = %v, want 1", got)
	}
	if got := counterValue(t, m, "wxbrief_provider_attempts_total", map[string]string{"provider": "openrouter", "outcome": "success"}); got != 1 {
		t.Fatalf("success count = %v, want 1", got)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	m := New()
	m.ObserveBrief("ask", false)
	m.ObserveBrief("ask", true)
	m.ObserveBrief("worldview", false)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	if !strings.Contains(text, `wxbrief_briefs_total{kind="ask",synthetic="true"} 1`) {
		t.Fatalf("missing synthetic ask counter in exposition:\n%s", text)
	}
	if !strings.Contains(text, `wxbrief_briefs_total{kind="worldview",synthetic="false"} 1`) {
		t.Fatalf("missing worldview counter in exposition:\n%s", text)
	}
}

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	m.ObservePack(&feature.Pack{Results: []sources.Result{{Source: "obs", Status: sources.StatusOk}}})
	m.ObserveRouting(&router.Result{Elapsed: time.Second})
	m.ObserveBrief("ask", false)
	if m.Handler() == nil {
		t.Fatalf("nil metrics should still return a handler")
	}
}
