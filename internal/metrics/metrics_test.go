package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名のメトリクスファミリーを返す。見つからない場合はnilを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// labelValue はメトリクスから指定ラベルの値を取得する。
func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordCacheHitAndMiss_IncrementsCountersByResource はキャッシュカウンタがリソース別に増加することを検証する。
func TestRecordCacheHitAndMiss_IncrementsCountersByResource(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCacheHit("events")
	c.RecordCacheHit("events")
	c.RecordCacheHit("calendars")
	c.RecordCacheMiss("events")

	hits := findMetric(t, reg, "roomcal_cache_hits_total")
	if hits == nil {
		t.Fatal("roomcal_cache_hits_total metric not found")
	}
	if len(hits.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(hits.GetMetric()))
	}
	for _, m := range hits.GetMetric() {
		val := m.GetCounter().GetValue()
		switch labelValue(m, "resource") {
		case "events":
			if val != 2 {
				t.Errorf("cache_hits_total{resource=events} = %v, want 2", val)
			}
		case "calendars":
			if val != 1 {
				t.Errorf("cache_hits_total{resource=calendars} = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected label value: %s", labelValue(m, "resource"))
		}
	}

	misses := findMetric(t, reg, "roomcal_cache_misses_total")
	if misses == nil {
		t.Fatal("roomcal_cache_misses_total metric not found")
	}
	if val := misses.GetMetric()[0].GetCounter().GetValue(); val != 1 {
		t.Errorf("cache_misses_total = %v, want 1", val)
	}
}

// TestRecordCacheInvalidation_IncrementsCounter はキャッシュ無効化カウンタが増加することを検証する。
func TestRecordCacheInvalidation_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCacheInvalidation("events")
	c.RecordCacheInvalidation("events")
	c.RecordCacheInvalidation("events")

	mf := findMetric(t, reg, "roomcal_cache_invalidations_total")
	if mf == nil {
		t.Fatal("roomcal_cache_invalidations_total metric not found")
	}
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 3 {
		t.Errorf("cache_invalidations_total = %v, want 3", val)
	}
}

// TestObserveProviderCall_RecordsResultAndLatency はプロバイダ呼び出しの結果とレイテンシが記録されることを検証する。
func TestObserveProviderCall_RecordsResultAndLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveProviderCall("events.list", 100*time.Millisecond, nil)
	c.ObserveProviderCall("events.list", 2*time.Second, errors.New("timeout"))

	calls := findMetric(t, reg, "roomcal_provider_calls_total")
	if calls == nil {
		t.Fatal("roomcal_provider_calls_total metric not found")
	}
	if len(calls.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(calls.GetMetric()))
	}
	for _, m := range calls.GetMetric() {
		if labelValue(m, "op") != "events.list" {
			t.Errorf("op = %q, want events.list", labelValue(m, "op"))
		}
		if m.GetCounter().GetValue() != 1 {
			t.Errorf("provider_calls_total{result=%s} = %v, want 1", labelValue(m, "result"), m.GetCounter().GetValue())
		}
	}

	latency := findMetric(t, reg, "roomcal_provider_latency_seconds")
	if latency == nil {
		t.Fatal("roomcal_provider_latency_seconds metric not found")
	}
	h := latency.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.1 + 2.0 = 2.1秒
	if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
	}
}

// TestRecordMeetingAction_IncrementsCounterWithLabel は会議操作カウンタがラベル付きで増加することを検証する。
func TestRecordMeetingAction_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMeetingAction("create")
	c.RecordMeetingAction("extend")
	c.RecordMeetingAction("extend")

	mf := findMetric(t, reg, "roomcal_meeting_actions_total")
	if mf == nil {
		t.Fatal("roomcal_meeting_actions_total metric not found")
	}
	for _, m := range mf.GetMetric() {
		val := m.GetCounter().GetValue()
		switch labelValue(m, "action") {
		case "create":
			if val != 1 {
				t.Errorf("meeting_actions_total{action=create} = %v, want 1", val)
			}
		case "extend":
			if val != 2 {
				t.Errorf("meeting_actions_total{action=extend} = %v, want 2", val)
			}
		default:
			t.Errorf("unexpected label value: %s", labelValue(m, "action"))
		}
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	mf := findMetric(t, reg, "roomcal_http_status_total")
	if mf == nil {
		t.Fatal("roomcal_http_status_total metric not found")
	}
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		val := m.GetCounter().GetValue()
		switch labelValue(m, "status_code") {
		case "200":
			if val != 2 {
				t.Errorf("http_status_total{status_code=200} = %v, want 2", val)
			}
		case "404":
			if val != 1 {
				t.Errorf("http_status_total{status_code=404} = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected label value: %s", labelValue(m, "status_code"))
		}
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCacheHit("events")
	c.RecordCacheMiss("calendar")
	c.ObserveProviderCall("events.insert", 300*time.Millisecond, nil)
	c.RecordMeetingAction("create")
	c.RecordHTTPStatus(201)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"roomcal_cache_hits_total",
		"roomcal_cache_misses_total",
		"roomcal_provider_calls_total",
		"roomcal_provider_latency_seconds",
		"roomcal_meeting_actions_total",
		"roomcal_http_status_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordMeetingAction("create")
	c2.RecordMeetingAction("create")
	c2.RecordMeetingAction("create")

	val1 := findMetric(t, reg1, "roomcal_meeting_actions_total").GetMetric()[0].GetCounter().GetValue()
	val2 := findMetric(t, reg2, "roomcal_meeting_actions_total").GetMetric()[0].GetCounter().GetValue()

	if val1 != 1 {
		t.Errorf("reg1 meeting_actions = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 meeting_actions = %v, want 2", val2)
	}
}
