package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-tracker/internal/general/contracts"
	"bus-tracker/internal/general/logger"
	"bus-tracker/internal/tracker/domain"
)

// fakeConn feeds ReadMessage from a channel and records writes.
type fakeConn struct {
	mu     sync.Mutex
	writes []any
	inbox  chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, v)
	return nil
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-f.inbox:
		return msg, nil
	case <-f.closed:
		return nil, errors.New("connection closed")
	}
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) written() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.writes...)
}

// fakeDialer fails the first failures dials, then hands out fresh fakeConns.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func testConfig() Config {
	return Config{
		URL:            "ws://test/ws",
		MaxAttempts:    5,
		Backoff:        time.Millisecond,
		ConnectTimeout: 100 * time.Millisecond,
	}
}

func TestController_FailsAfterMaxAttempts(t *testing.T) {
	dialer := &fakeDialer{failures: 100}
	ctrl := New(testConfig(), dialer, logger.New("test"))

	var states []State
	var mu sync.Mutex
	ctrl.OnState = func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}

	err := ctrl.Run(context.Background())
	assert.ErrorIs(t, err, ErrMaxAttempts)
	assert.ErrorIs(t, err, domain.ErrTransportFailure)
	assert.Equal(t, StateFailed, ctrl.State())
	assert.Equal(t, 5, dialer.dialCount(), "exactly MaxAttempts dials")

	mu.Lock()
	assert.Equal(t, StateFailed, states[len(states)-1])
	mu.Unlock()

	// terminal until Reset: no further dialing
	err = ctrl.Run(context.Background())
	assert.ErrorIs(t, err, ErrMaxAttempts)
	assert.Equal(t, 5, dialer.dialCount())
}

func TestController_ResetClearsFailedState(t *testing.T) {
	dialer := &fakeDialer{failures: 100}
	ctrl := New(testConfig(), dialer, logger.New("test"))

	require.ErrorIs(t, ctrl.Run(context.Background()), ErrMaxAttempts)
	require.Equal(t, 5, dialer.dialCount())

	ctrl.Reset()
	assert.Equal(t, StateDisconnected, ctrl.State())

	require.ErrorIs(t, ctrl.Run(context.Background()), ErrMaxAttempts)
	assert.Equal(t, 10, dialer.dialCount(), "a full fresh attempt budget after Reset")
}

func TestController_RegistrationReplayAfterReconnect(t *testing.T) {
	dialer := &fakeDialer{failures: 1}
	ctrl := New(testConfig(), dialer, logger.New("test"))
	require.NoError(t, ctrl.Register(domain.RoleDriver, "bus1", "bus1", ""))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.Run(ctx) }()

	// first dial fails, second connects and must replay the registration
	require.Eventually(t, func() bool {
		c := dialer.conn(0)
		return c != nil && len(c.written()) == 1
	}, time.Second, 5*time.Millisecond)

	reg, ok := dialer.conn(0).written()[0].(*contracts.Register)
	require.True(t, ok)
	assert.Equal(t, "driver", reg.UserType)
	assert.Equal(t, "bus1", reg.Identity)

	// drop the session; the controller reconnects and replays again
	dialer.conn(0).Close()
	require.Eventually(t, func() bool {
		c := dialer.conn(1)
		return c != nil && len(c.written()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, StateConnected, ctrl.State())

	cancel()
	select {
	case err := <-runDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestController_SuccessResetsAttemptCounter(t *testing.T) {
	// 4 failures, one success, then endless failures: without the reset the
	// budget would already be exhausted on the first post-success failure
	dialer := &fakeDialer{failures: 4}
	ctrl := New(testConfig(), dialer, logger.New("test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.Run(ctx) }()

	require.Eventually(t, func() bool {
		return dialer.conn(0) != nil
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 5, dialer.dialCount())

	// keep killing every session; the counter reset on each success means the
	// controller dials well past the 5-attempt budget
	require.Eventually(t, func() bool {
		for i := 0; ; i++ {
			c := dialer.conn(i)
			if c == nil {
				break
			}
			c.Close()
		}
		return dialer.dialCount() >= 8
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-runDone
}

func TestController_SendRequiresConnection(t *testing.T) {
	ctrl := New(testConfig(), &fakeDialer{failures: 100}, logger.New("test"))
	assert.ErrorIs(t, ctrl.Send("anything"), domain.ErrTransportFailure)
}

func TestController_RegisterValidatesRole(t *testing.T) {
	ctrl := New(testConfig(), &fakeDialer{}, logger.New("test"))
	assert.ErrorIs(t, ctrl.Register(domain.Role("admin"), "u", "u", ""), domain.ErrInvalidRole)
}

func TestController_OnMessage(t *testing.T) {
	dialer := &fakeDialer{}
	ctrl := New(testConfig(), dialer, logger.New("test"))

	received := make(chan []byte, 1)
	ctrl.OnMessage = func(b []byte) { received <- b }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.Run(ctx) }()

	require.Eventually(t, func() bool {
		return dialer.conn(0) != nil
	}, time.Second, 5*time.Millisecond)

	dialer.conn(0).inbox <- []byte(`{"type":"predictions"}`)

	select {
	case b := <-received:
		assert.JSONEq(t, `{"type":"predictions"}`, string(b))
	case <-time.After(time.Second):
		t.Fatal("inbound frame never reached OnMessage")
	}

	cancel()
	<-runDone
}
