package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/livefeed/internal/model"
)

// fakeClient is a scripted Client. With connectErr set, Connect fails;
// with hang set, Connect blocks until its context ends.
type fakeClient struct {
	connectErr error
	hang       bool

	messages chan TimestampedMessage
	errors   chan error

	mu     sync.Mutex
	closed bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages: make(chan TimestampedMessage, 16),
		errors:   make(chan error, 1),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	if f.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.connectErr
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Messages() <-chan TimestampedMessage { return f.messages }
func (f *fakeClient) Errors() <-chan error                { return f.errors }

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed && f.connectErr == nil
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeClient) send(data string) {
	f.messages <- TimestampedMessage{Data: []byte(data), ReceivedAt: time.Now()}
}

// fakeDialer hands out clients from a script; once the script runs out,
// every further client uses the fallback builder.
type fakeDialer struct {
	mu       sync.Mutex
	script   []*fakeClient
	fallback func() *fakeClient
	dialed   []*fakeClient
}

func (d *fakeDialer) factory() Client {
	d.mu.Lock()
	defer d.mu.Unlock()

	var c *fakeClient
	if len(d.script) > 0 {
		c = d.script[0]
		d.script = d.script[1:]
	} else {
		c = d.fallback()
	}
	d.dialed = append(d.dialed, c)
	return c
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed)
}

func (d *fakeDialer) client(i int) *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialed[i]
}

func failing() *fakeClient {
	c := newFakeClient()
	c.connectErr = errors.New("connection refused")
	return c
}

func hanging() *fakeClient {
	c := newFakeClient()
	c.hang = true
	return c
}

// recordingStore captures every store mutation in order.
type recordingStore struct {
	mu       sync.Mutex
	statuses []model.ConnectionStatus
	counts   []int
	payloads []model.LivePayload
}

func (s *recordingStore) Publish(p model.LivePayload) {
	s.mu.Lock()
	s.payloads = append(s.payloads, p)
	s.mu.Unlock()
}

func (s *recordingStore) SetStatus(st model.ConnectionStatus) {
	s.mu.Lock()
	s.statuses = append(s.statuses, st)
	s.mu.Unlock()
}

func (s *recordingStore) SetReconnectCount(n int) {
	s.mu.Lock()
	s.counts = append(s.counts, n)
	s.mu.Unlock()
}

func (s *recordingStore) status() model.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

func (s *recordingStore) snapshot() ([]model.ConnectionStatus, []int, []model.LivePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ConnectionStatus(nil), s.statuses...),
		append([]int(nil), s.counts...),
		append([]model.LivePayload(nil), s.payloads...)
}

func (s *recordingStore) mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.statuses) + len(s.counts) + len(s.payloads)
}

type retry struct {
	attempt int
	delay   time.Duration
}

type recordingObserver struct {
	mu        sync.Mutex
	retries   []retry
	received  int
	decodeErr int
}

func (o *recordingObserver) StatusChanged(model.ConnectionStatus) {}

func (o *recordingObserver) MessageReceived() {
	o.mu.Lock()
	o.received++
	o.mu.Unlock()
}

func (o *recordingObserver) DecodeFailed(error) {
	o.mu.Lock()
	o.decodeErr++
	o.mu.Unlock()
}

func (o *recordingObserver) RetryScheduled(attempt int, delay time.Duration) {
	o.mu.Lock()
	o.retries = append(o.retries, retry{attempt, delay})
	o.mu.Unlock()
}

func (o *recordingObserver) scheduled() []retry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]retry(nil), o.retries...)
}

func testBackoff() Backoff {
	return Backoff{Base: 10 * time.Millisecond, Max: 200 * time.Millisecond, MaxAttempts: 10}
}

func newTestController(t *testing.T, b Backoff, d *fakeDialer) (*Controller, *recordingStore, *recordingObserver) {
	t.Helper()
	store := &recordingStore{}
	obs := &recordingObserver{}
	cfg := ControllerConfig{Client: DefaultClientConfig(), Backoff: b}
	c := NewController(cfg, store, nil, WithClientFactory(d.factory), WithObserver(obs))
	t.Cleanup(c.Stop)
	return c, store, obs
}

const payloadJSON = `{"timestamp":"2025-03-01T12:00:00Z","symbol":"BTCUSDT","price":64250.5,"latest_decision_id":7,"latest_decision":"buy"}`

func TestController_OpenAndPublish(t *testing.T) {
	d := &fakeDialer{fallback: newFakeClient}
	c, store, obs := newTestController(t, testBackoff(), d)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return c.State() == StateOpen }, time.Second, 5*time.Millisecond)

	d.client(0).send(payloadJSON)
	require.Eventually(t, func() bool {
		_, _, payloads := store.snapshot()
		return len(payloads) == 1
	}, time.Second, 5*time.Millisecond)

	statuses, counts, payloads := store.snapshot()
	assert.Equal(t, []model.ConnectionStatus{model.StatusConnecting, model.StatusOpen}, statuses)
	assert.Equal(t, []int{0}, counts)
	assert.Equal(t, "BTCUSDT", payloads[0].Symbol)
	assert.Equal(t, "64250.5", payloads[0].Price.String())
	assert.Equal(t, 1, d.count())

	obs.mu.Lock()
	assert.Equal(t, 1, obs.received)
	obs.mu.Unlock()
}

func TestController_StartIsIdempotent(t *testing.T) {
	d := &fakeDialer{fallback: newFakeClient}
	c, _, _ := newTestController(t, testBackoff(), d)

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return c.State() == StateOpen }, time.Second, 5*time.Millisecond)

	assert.True(t, c.Running())
	assert.Equal(t, 1, d.count())
}

func TestController_MalformedMessageKeepsSocketOpen(t *testing.T) {
	d := &fakeDialer{fallback: newFakeClient}
	c, store, obs := newTestController(t, testBackoff(), d)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return c.State() == StateOpen }, time.Second, 5*time.Millisecond)

	fc := d.client(0)
	fc.send(`{"symbol":"BTCUSDT","price":1}`)
	fc.send(`not json`)
	fc.send(payloadJSON)

	require.Eventually(t, func() bool {
		_, _, payloads := store.snapshot()
		return len(payloads) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, model.StatusOpen, store.status())
	assert.False(t, fc.isClosed())
	assert.Equal(t, 1, d.count())

	obs.mu.Lock()
	assert.Equal(t, 2, obs.decodeErr)
	obs.mu.Unlock()
}

func TestController_ThreeFailuresThenConnecting(t *testing.T) {
	d := &fakeDialer{
		script:   []*fakeClient{failing(), failing(), failing()},
		fallback: hanging,
	}
	c, store, obs := newTestController(t, testBackoff(), d)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return d.count() == 4 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return c.State() == StateConnecting }, time.Second, 5*time.Millisecond)

	statuses, counts, _ := store.snapshot()
	assert.Equal(t, []model.ConnectionStatus{
		model.StatusConnecting,
		model.StatusError, model.StatusClosed, model.StatusConnecting,
		model.StatusError, model.StatusClosed, model.StatusConnecting,
		model.StatusError, model.StatusClosed, model.StatusConnecting,
	}, statuses)
	assert.Equal(t, []int{1, 2, 3}, counts)
	assert.Equal(t, []retry{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
	}, obs.scheduled())
}

func TestController_GivesUp(t *testing.T) {
	b := Backoff{Base: time.Millisecond, Max: 2 * time.Millisecond, MaxAttempts: 10}
	d := &fakeDialer{fallback: failing}
	c, store, obs := newTestController(t, b, d)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return c.State() == StateGivenUp }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, model.StatusGivenUp, store.status())
	assert.Len(t, obs.scheduled(), b.MaxAttempts)
	assert.Equal(t, b.MaxAttempts+1, d.count())

	// No timer is pending once the budget is spent.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, b.MaxAttempts+1, d.count())
	assert.Equal(t, StateGivenUp, c.State())
}

func TestController_OpenResetsBackoff(t *testing.T) {
	opened := newFakeClient()
	d := &fakeDialer{
		script:   []*fakeClient{failing(), failing(), opened},
		fallback: hanging,
	}
	c, store, obs := newTestController(t, testBackoff(), d)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return c.State() == StateOpen }, time.Second, 5*time.Millisecond)

	opened.errors <- errors.New("connection reset")
	require.Eventually(t, func() bool { return d.count() == 4 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []retry{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{1, 10 * time.Millisecond},
	}, obs.scheduled())

	_, counts, _ := store.snapshot()
	assert.Equal(t, []int{1, 2, 0, 1}, counts)
	assert.True(t, opened.isClosed())
}

func TestController_CleanCloseSkipsError(t *testing.T) {
	fc := newFakeClient()
	d := &fakeDialer{script: []*fakeClient{fc}, fallback: hanging}
	c, store, _ := newTestController(t, testBackoff(), d)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return c.State() == StateOpen }, time.Second, 5*time.Millisecond)

	fc.errors <- &websocket.CloseError{Code: websocket.CloseNormalClosure}
	require.Eventually(t, func() bool { return d.count() == 2 }, time.Second, 5*time.Millisecond)

	statuses, _, _ := store.snapshot()
	assert.Equal(t, []model.ConnectionStatus{
		model.StatusConnecting, model.StatusOpen, model.StatusClosed, model.StatusConnecting,
	}, statuses)
}

func TestController_StopSilencesLateEvents(t *testing.T) {
	fc := newFakeClient()
	d := &fakeDialer{script: []*fakeClient{fc}, fallback: hanging}
	c, store, _ := newTestController(t, testBackoff(), d)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return c.State() == StateOpen }, time.Second, 5*time.Millisecond)

	c.Stop()

	assert.True(t, fc.isClosed())
	assert.Equal(t, StateIdle, c.State())
	assert.False(t, c.Running())
	assert.Equal(t, model.StatusClosed, store.status())

	before := store.mutations()

	// A late error and frame from the closed socket change nothing.
	fc.errors <- errors.New("late failure")
	fc.send(payloadJSON)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, before, store.mutations())
	assert.Equal(t, 1, d.count())
}

func TestController_StopDuringReconnectCancelsTimer(t *testing.T) {
	b := Backoff{Base: 50 * time.Millisecond, Max: time.Second, MaxAttempts: 10}
	d := &fakeDialer{fallback: failing}
	c, store, _ := newTestController(t, b, d)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return c.State() == StateReconnecting }, time.Second, time.Millisecond)

	c.Stop()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, d.count())
	assert.Equal(t, model.StatusClosed, store.status())
}

func TestController_StopDuringConnectCancelsAttempt(t *testing.T) {
	d := &fakeDialer{fallback: hanging}
	c, store, _ := newTestController(t, testBackoff(), d)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return d.count() == 1 }, time.Second, time.Millisecond)

	c.Stop()

	assert.True(t, d.client(0).isClosed())
	statuses, _, _ := store.snapshot()
	assert.Equal(t, []model.ConnectionStatus{model.StatusConnecting, model.StatusClosed}, statuses)
}

func TestController_RestartBeginsAtAttemptZero(t *testing.T) {
	d := &fakeDialer{
		script:   []*fakeClient{failing(), failing()},
		fallback: hanging,
	}
	c, _, obs := newTestController(t, testBackoff(), d)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(obs.scheduled()) == 2 }, time.Second, time.Millisecond)
	c.Stop()

	d.mu.Lock()
	d.script = []*fakeClient{failing()}
	d.mu.Unlock()

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(obs.scheduled()) == 3 }, time.Second, time.Millisecond)

	assert.Equal(t, retry{1, 10 * time.Millisecond}, obs.scheduled()[2])
}

func TestController_ParentContextCancel(t *testing.T) {
	d := &fakeDialer{fallback: newFakeClient}
	c, store, _ := newTestController(t, testBackoff(), d)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool { return c.State() == StateOpen }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !c.Running() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.StatusClosed, store.status())

	// A new Start after the parent ended reconnects.
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return d.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestController_RealSocket(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(payloadJSON))
		drainUntilClosed(conn)
	})
	defer server.Close()

	store := &recordingStore{}
	cfg := DefaultControllerConfig()
	cfg.Client = testClientConfig(wsURL(server))
	c := NewController(cfg, store, nil)
	defer c.Stop()

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		_, _, payloads := store.snapshot()
		return len(payloads) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, model.StatusOpen, store.status())
}
