package client

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/coffersTech/nanotail/internal/model"
)

const testDelay = 25 * time.Millisecond

type fakeConn struct {
	frames chan []byte
	errs   chan error

	once   sync.Once
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out a fresh conn per dial and records them.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (d *fakeDialer) dial(string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type frameSink struct {
	mu     sync.Mutex
	frames []string
}

func (fs *frameSink) take(data []byte) {
	fs.mu.Lock()
	fs.frames = append(fs.frames, string(data))
	fs.mu.Unlock()
}

func (fs *frameSink) all() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.frames...)
}

func newTestManager(t *testing.T, d *fakeDialer, sink *frameSink) *Manager {
	t.Helper()
	if sink == nil {
		sink = &frameSink{}
	}
	m := New(Options{
		URL:            "ws://test/logs",
		ReconnectDelay: testDelay,
		Dial:           d.dial,
	}, sink.take)
	t.Cleanup(m.Teardown)
	return m
}

func TestConnectLifecycle(t *testing.T) {
	d := &fakeDialer{}
	sink := &frameSink{}
	m := newTestManager(t, d, sink)

	if m.State() != model.StateDisconnected {
		t.Fatalf("initial state: %v", m.State())
	}

	m.Connect()
	waitFor(t, "connected state", func() bool { return m.State() == model.StateConnected })
	if m.Status() != "Connected" {
		t.Errorf("status: got %q", m.Status())
	}

	d.conn(0).frames <- []byte("frame-1")
	d.conn(0).frames <- []byte("frame-2")
	waitFor(t, "frames delivered", func() bool { return len(sink.all()) == 2 })

	got := sink.all()
	if got[0] != "frame-1" || got[1] != "frame-2" {
		t.Errorf("frames out of order: %v", got)
	}
}

func TestCloseSignalSchedulesReconnect(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, nil)

	m.Connect()
	waitFor(t, "first connection", func() bool { return m.State() == model.StateConnected })

	// Orderly remote close: no error status, just disconnect + retry.
	d.conn(0).errs <- io.EOF
	waitFor(t, "disconnected state", func() bool { return m.State() == model.StateDisconnected })

	waitFor(t, "reconnect dial", func() bool { return d.dials() == 2 })
	waitFor(t, "second connection", func() bool { return m.State() == model.StateConnected })
}

func TestDialFailureRetries(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	m := newTestManager(t, d, nil)

	m.Connect()
	waitFor(t, "disconnected state", func() bool { return m.State() == model.StateDisconnected })

	// Let the retry succeed.
	d.mu.Lock()
	d.err = nil
	d.mu.Unlock()
	waitFor(t, "eventual connection", func() bool { return m.State() == model.StateConnected })
}

func TestErrorSignalDoesNotTransitionState(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, nil)

	// Posted against the current generation with no socket in play: the
	// status changes, the state machine does not move.
	m.post(event{kind: evError, err: errors.New("transport hiccup")})
	waitFor(t, "error status", func() bool { return m.Status() == StatusError })

	if m.State() != model.StateDisconnected {
		t.Errorf("error signal moved the state to %v", m.State())
	}
	if d.dials() != 0 {
		t.Errorf("error signal must not trigger a connect, got %d dials", d.dials())
	}
}

func TestReadErrorPublishesErrorThenReconnects(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, nil)

	m.Connect()
	waitFor(t, "connected state", func() bool { return m.State() == model.StateConnected })

	d.conn(0).errs <- errors.New("connection reset")
	waitFor(t, "reconnect dial", func() bool { return d.dials() == 2 })
}

func TestTeardownCancelsPendingReconnect(t *testing.T) {
	// Generous delay so teardown always lands before the timer fires.
	const delay = 250 * time.Millisecond

	d := &fakeDialer{}
	m := New(Options{
		URL:            "ws://test/logs",
		ReconnectDelay: delay,
		Dial:           d.dial,
	}, func([]byte) {})

	m.Connect()
	waitFor(t, "connected state", func() bool { return m.State() == model.StateConnected })

	// Drop the connection, then tear down before the delay elapses.
	d.conn(0).errs <- io.EOF
	waitFor(t, "disconnected state", func() bool { return m.State() == model.StateDisconnected })
	m.Teardown()

	time.Sleep(2 * delay)
	if d.dials() != 1 {
		t.Errorf("reconnect fired after teardown: %d dials", d.dials())
	}
	if m.State() != model.StateClosed {
		t.Errorf("state after teardown: %v", m.State())
	}

	// Closed is terminal: connect requests are ignored.
	m.Connect()
	time.Sleep(testDelay)
	if d.dials() != 1 {
		t.Errorf("connect after teardown dialed: %d dials", d.dials())
	}
}

func TestConnectCancelsPendingRetry(t *testing.T) {
	const delay = 250 * time.Millisecond

	d := &fakeDialer{}
	m := New(Options{
		URL:            "ws://test/logs",
		ReconnectDelay: delay,
		Dial:           d.dial,
	}, func([]byte) {})
	t.Cleanup(m.Teardown)

	m.Connect()
	waitFor(t, "first connection", func() bool { return m.State() == model.StateConnected })

	// Drop the connection so a retry is pending, then connect manually:
	// the replace must absorb the pending timer, not stack a second
	// attempt on top.
	d.conn(0).errs <- io.EOF
	waitFor(t, "disconnected state", func() bool { return m.State() == model.StateDisconnected })
	m.Connect()
	waitFor(t, "manual reconnect", func() bool { return m.State() == model.StateConnected })

	time.Sleep(2 * delay)
	if got := d.dials(); got != 2 {
		t.Errorf("expected 2 dials, got %d", got)
	}
}

func TestTeardownClosesSocket(t *testing.T) {
	d := &fakeDialer{}
	m := New(Options{
		URL:            "ws://test/logs",
		ReconnectDelay: testDelay,
		Dial:           d.dial,
	}, func([]byte) {})

	m.Connect()
	waitFor(t, "connected state", func() bool { return m.State() == model.StateConnected })

	m.Teardown()
	if !d.conn(0).isClosed() {
		t.Error("teardown should close the active socket")
	}

	// Idempotent.
	m.Teardown()
}

func TestTeardownClosesLateDialedSocket(t *testing.T) {
	// A dial that only completes after teardown must not leave its
	// socket open: nothing is left running to claim it.
	release := make(chan struct{})
	var mu sync.Mutex
	var late *fakeConn

	dial := func(string) (Conn, error) {
		<-release
		c := newFakeConn()
		mu.Lock()
		late = c
		mu.Unlock()
		return c, nil
	}

	m := New(Options{
		URL:            "ws://test/logs",
		ReconnectDelay: testDelay,
		Dial:           dial,
	}, func([]byte) {})

	m.Connect()
	m.Teardown()
	close(release)

	waitFor(t, "late socket closed", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return late != nil && late.isClosed()
	})
}

func TestRapidConnectReplacesSocket(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, nil)

	m.Connect()
	m.Connect()

	waitFor(t, "two dials", func() bool { return d.dials() == 2 })
	waitFor(t, "connected state", func() bool { return m.State() == model.StateConnected })

	// The first socket's generation was replaced before it opened, so it
	// must have been closed; only the second stays live.
	waitFor(t, "first socket closed", func() bool { return d.conn(0).isClosed() })
	if d.conn(1).isClosed() {
		t.Error("second socket should remain open")
	}
}

func TestSerialConnectClosesPrevious(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, nil)

	m.Connect()
	waitFor(t, "first connection", func() bool { return m.State() == model.StateConnected })

	m.Connect()
	waitFor(t, "second dial", func() bool { return d.dials() == 2 })
	waitFor(t, "first socket closed", func() bool { return d.conn(0).isClosed() })
	waitFor(t, "connected again", func() bool {
		return m.State() == model.StateConnected && !d.conn(1).isClosed()
	})
}
