package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/livefeed/internal/api"
)

func newDashboardServer(t *testing.T, failPortfolio *atomic.Bool, inFlight, maxInFlight *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inFlight != nil {
			current := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				old := maxInFlight.Load()
				if current <= old || maxInFlight.CompareAndSwap(old, current) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
		}

		switch r.URL.Path {
		case "/api/klines":
			if r.URL.Query().Get("limit") != "120" {
				t.Errorf("kline limit = %q, want 120", r.URL.Query().Get("limit"))
			}
			w.Write([]byte(`{"items":[{"symbol":"BTCUSDT","timeframe":"1h","open_time":"2025-03-01T12:00:00Z","open":1,"high":2,"low":0.5,"close":1.5,"volume":10}]}`))
		case "/api/portfolio":
			if failPortfolio != nil && failPortfolio.Load() {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Write([]byte(`{"symbol":"BTCUSDT","equity":10000,"positions":[]}`))
		case "/api/decisions":
			if r.URL.Query().Get("limit") != "30" {
				t.Errorf("decision limit = %q, want 30", r.URL.Query().Get("limit"))
			}
			w.Write([]byte(`{"items":[{"id":1,"decision":"hold"},{"id":2,"decision":"buy"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

type recordingObserver struct {
	cycles atomic.Int32
	errors atomic.Int32
}

func (o *recordingObserver) PollCompleted(_ time.Duration, err error) {
	o.cycles.Add(1)
	if err != nil {
		o.errors.Add(1)
	}
}

func TestPoller_Poll(t *testing.T) {
	server := newDashboardServer(t, nil, nil, nil)
	defer server.Close()

	client := api.NewClient(server.URL, api.WithTimeout(5*time.Second))

	var handled atomic.Int32
	handler := SnapshotHandlerFunc(func(s DashboardSnapshot) error {
		handled.Add(1)
		return nil
	})

	cfg := DefaultConfig()
	cfg.Interval = time.Hour // Long interval, we'll trigger manually.
	p := New(cfg, client, handler, nil)

	if err := p.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	if got := handled.Load(); got != 1 {
		t.Errorf("handled = %d, want 1", got)
	}

	snap, ok := p.Latest()
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if len(snap.Klines) != 1 || len(snap.Decisions) != 2 {
		t.Errorf("snapshot = %d klines, %d decisions", len(snap.Klines), len(snap.Decisions))
	}
	if snap.Portfolio == nil || snap.Portfolio.Equity.String() != "10000" {
		t.Errorf("Portfolio = %+v", snap.Portfolio)
	}
	if snap.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
	if p.LastError() != nil {
		t.Errorf("LastError = %v, want nil", p.LastError())
	}
}

func TestPoller_FailureKeepsPreviousSnapshot(t *testing.T) {
	var fail atomic.Bool
	server := newDashboardServer(t, &fail, nil, nil)
	defer server.Close()

	client := api.NewClient(server.URL, api.WithRetries(0, time.Millisecond))
	obs := &recordingObserver{}

	cfg := DefaultConfig()
	cfg.Interval = time.Hour
	p := New(cfg, client, nil, nil, WithObserver(obs))

	if err := p.Poll(context.Background()); err != nil {
		t.Fatalf("first Poll failed: %v", err)
	}
	first, _ := p.Latest()

	fail.Store(true)
	err := p.Poll(context.Background())

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("Poll error = %v, want 400 APIError", err)
	}
	if !errors.Is(p.LastError(), err) {
		t.Errorf("LastError = %v, want %v", p.LastError(), err)
	}

	kept, ok := p.Latest()
	if !ok || !kept.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("previous snapshot not kept: %+v", kept)
	}

	if obs.cycles.Load() != 2 || obs.errors.Load() != 1 {
		t.Errorf("observer cycles=%d errors=%d, want 2/1", obs.cycles.Load(), obs.errors.Load())
	}
}

func TestPoller_HandlerError(t *testing.T) {
	server := newDashboardServer(t, nil, nil, nil)
	defer server.Close()

	handlerErr := errors.New("sink full")
	p := New(DefaultConfig(), api.NewClient(server.URL), SnapshotHandlerFunc(func(DashboardSnapshot) error {
		return handlerErr
	}), nil)

	if err := p.Poll(context.Background()); !errors.Is(err, handlerErr) {
		t.Fatalf("Poll error = %v, want %v", err, handlerErr)
	}
	if _, ok := p.Latest(); ok {
		t.Error("snapshot should not be stored when the handler fails")
	}
}

func TestPoller_FetchesConcurrently(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	server := newDashboardServer(t, nil, &inFlight, &maxInFlight)
	defer server.Close()

	p := New(DefaultConfig(), api.NewClient(server.URL), nil, nil)

	if err := p.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	if got := maxInFlight.Load(); got < 2 {
		t.Errorf("maxInFlight = %d, want concurrent fetches", got)
	}
}

func TestPoller_StartStop(t *testing.T) {
	server := newDashboardServer(t, nil, nil, nil)
	defer server.Close()

	var called atomic.Int32
	handler := SnapshotHandlerFunc(func(s DashboardSnapshot) error {
		called.Add(1)
		return nil
	})

	cfg := DefaultConfig()
	cfg.Interval = 100 * time.Millisecond

	p := New(cfg, api.NewClient(server.URL), handler, nil)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Immediate poll plus at least one tick.
	time.Sleep(250 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := called.Load(); got < 2 {
		t.Errorf("handler called %d times, want >= 2", got)
	}
	if p.LastPoll().IsZero() {
		t.Error("LastPoll should be set")
	}
}
