package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/livefeed/internal/model"
)

// value returns the first sample of name whose labels include want.
func value(t *testing.T, reg *Registry, name string, want map[string]string) (float64, bool) {
	t.Helper()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue(), true
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue(), true
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount()), true
			}
		}
	}
	return 0, false
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("expected non-nil registry")
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(mfs) == 0 {
		t.Error("expected some metrics to be registered")
	}

	if v, _ := value(t, reg, "livefeed_status", map[string]string{"status": "closed"}); v != 1 {
		t.Errorf("initial closed gauge = %v, want 1", v)
	}
}

func TestRegistry_StatusOneHot(t *testing.T) {
	reg := NewRegistry()

	reg.StatusChanged(model.StatusConnecting)
	reg.StatusChanged(model.StatusOpen)

	for _, s := range model.AllStatuses {
		want := 0.0
		if s == model.StatusOpen {
			want = 1
		}
		got, ok := value(t, reg, "livefeed_status", map[string]string{"status": string(s)})
		if !ok {
			t.Fatalf("missing status series %s", s)
		}
		if got != want {
			t.Errorf("status %s = %v, want %v", s, got, want)
		}
	}
}

func TestRegistry_GiveUps(t *testing.T) {
	reg := NewRegistry()

	reg.StatusChanged(model.StatusClosed)
	reg.StatusChanged(model.StatusGivenUp)

	if v, _ := value(t, reg, "livefeed_give_ups_total", nil); v != 1 {
		t.Errorf("give_ups_total = %v, want 1", v)
	}
}

func TestRegistry_FeedCounters(t *testing.T) {
	reg := NewRegistry()

	reg.MessageReceived()
	reg.MessageReceived()
	reg.DecodeFailed(errors.New("bad frame"))
	reg.RetryScheduled(1, time.Second)
	reg.RetryScheduled(2, 2*time.Second)

	tests := []struct {
		name string
		want float64
	}{
		{"livefeed_messages_received_total", 2},
		{"livefeed_decode_failures_total", 1},
		{"livefeed_retries_scheduled_total", 2},
		{"livefeed_retry_delay_seconds", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := value(t, reg, tt.name, nil)
			if !ok {
				t.Fatalf("expected %s metric", tt.name)
			}
			if got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

type fixedCount int

func (c fixedCount) ReconnectCount() int { return int(c) }

func TestRegistry_BindReconnectCount(t *testing.T) {
	reg := NewRegistry()
	reg.BindReconnectCount(fixedCount(3))

	if v, _ := value(t, reg, "livefeed_reconnect_count", nil); v != 3 {
		t.Errorf("reconnect_count = %v, want 3", v)
	}
}

func TestRegistry_PollAndWriter(t *testing.T) {
	reg := NewRegistry()

	reg.PollCompleted(50*time.Millisecond, nil)
	reg.PollCompleted(10*time.Millisecond, errors.New("timeout"))
	reg.Flushed(4, 1, nil)
	reg.Flushed(0, 0, errors.New("connection reset"))

	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"livefeed_poll_cycles_total", map[string]string{"result": "ok"}, 1},
		{"livefeed_poll_cycles_total", map[string]string{"result": "error"}, 1},
		{"livefeed_poll_duration_seconds", nil, 2},
		{"livefeed_writer_rows_total", map[string]string{"result": "inserted"}, 4},
		{"livefeed_writer_rows_total", map[string]string{"result": "conflict"}, 1},
		{"livefeed_writer_flushes_total", map[string]string{"result": "error"}, 1},
	}

	for _, c := range checks {
		got, ok := value(t, reg, c.name, c.labels)
		if !ok {
			t.Errorf("missing %s %v", c.name, c.labels)
			continue
		}
		if got != c.want {
			t.Errorf("%s %v = %v, want %v", c.name, c.labels, got, c.want)
		}
	}
}

func TestRegistry_RecordRequest_StatusCodes(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			reg := NewRegistry()
			reg.RecordRequest("GET", "/test", tt.status, 0.01)

			if _, ok := value(t, reg, "http_requests_total", map[string]string{"status": tt.expected}); !ok {
				t.Errorf("expected status label %s", tt.expected)
			}
		})
	}
}

func TestHTTPMiddleware(t *testing.T) {
	reg := NewRegistry()

	handler := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed/latest", nil))

	got, ok := value(t, reg, "http_requests_total", map[string]string{"path": "/feed/latest", "status": "4xx"})
	if !ok || got != 1 {
		t.Errorf("http_requests_total = %v (found %v), want 1", got, ok)
	}
	if v, _ := value(t, reg, "http_requests_in_flight", nil); v != 0 {
		t.Errorf("in flight = %v, want 0", v)
	}
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	reg.MessageReceived()

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "livefeed_messages_received_total 1") {
		t.Error("exposition should include the message counter")
	}
}
