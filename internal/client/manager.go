// Package client owns the socket lifecycle: dialing, the reconnect
// timer, and delivery of inbound frames to the normalizer.
//
// All state lives in a single event-loop goroutine. Dialers and readers
// run in their own goroutines but only post events; the loop applies
// them one at a time, so no frame's mutations interleave with another's
// and the socket/timer ownership invariants hold without fine-grained
// locking. Events carry the generation of the socket they came from,
// and the loop discards anything from a generation it has already
// replaced.
package client

import (
	"log"
	"sync"
	"time"

	"github.com/coffersTech/nanotail/internal/model"
)

// DefaultEndpoint is the log source address a bare nanotail talks to.
const DefaultEndpoint = "ws://127.0.0.1:9280/logs"

// DefaultReconnectDelay is the fixed wait before retrying a dropped
// connection.
const DefaultReconnectDelay = 3 * time.Second

// StatusError is the status string published on a transport error
// signal. It is not a connection state: the close signal that usually
// follows is what drives reconnection.
const StatusError = "Error"

// Options configures a Manager.
type Options struct {
	// URL of the log source. Defaults to DefaultEndpoint.
	URL string

	// ReconnectDelay between a close signal and the retry. Defaults to
	// DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// Dial opens the transport. Defaults to the WebSocket dialer.
	Dial DialFunc

	// Trace receives lifecycle diagnostics. Nil disables tracing.
	Trace *log.Logger
}

type eventKind int

const (
	evConnect eventKind = iota
	evOpened
	evFrame
	evError
	evClosed
	evTeardown
)

type event struct {
	kind eventKind
	gen  uint64
	data []byte
	err  error
}

// Manager drives the connection state machine and hands every inbound
// frame to onFrame in arrival order.
type Manager struct {
	opts    Options
	onFrame func([]byte)

	events chan event
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	state  model.ConnectionState
	status string

	// pendMu serializes the handoff of freshly dialed sockets between
	// dial goroutines and the loop. A socket sits in pending from the
	// moment its dial returns until the loop claims it or teardown
	// reaps it, so a dial that lands after shutdown can never orphan
	// an open socket.
	pendMu  sync.Mutex
	pending map[uint64]Conn
	stopped bool

	// Loop-owned; never touched outside the run goroutine.
	conn  Conn
	gen   uint64
	timer *time.Timer
}

// New creates a Manager and starts its event loop. Nothing is dialed
// until Connect.
func New(opts Options, onFrame func([]byte)) *Manager {
	if opts.URL == "" {
		opts.URL = DefaultEndpoint
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Dial == nil {
		opts.Dial = Dial
	}
	m := &Manager{
		opts:    opts,
		onFrame: onFrame,
		events:  make(chan event, 64),
		done:    make(chan struct{}),
		pending: make(map[uint64]Conn),
		state:   model.StateDisconnected,
		status:  model.StateDisconnected.String(),
	}
	go m.run()
	return m
}

// Connect requests a connection. Any existing socket is closed first,
// so repeated calls replace rather than stack connections. After
// Teardown this is a no-op.
func (m *Manager) Connect() {
	m.post(event{kind: evConnect})
}

// Teardown permanently shuts the manager down: the pending reconnect
// timer is canceled, the active socket closed, and every future connect
// request or late close signal ignored. Idempotent; blocks until the
// event loop has exited.
func (m *Manager) Teardown() {
	m.once.Do(func() {
		select {
		case m.events <- event{kind: evTeardown}:
		case <-m.done:
		}
	})
	<-m.done
}

// Status returns the string the presentation layer displays. It tracks
// the connection state except after an error signal, which overwrites
// it with StatusError until the next transition.
func (m *Manager) Status() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// State returns the current connection state.
func (m *Manager) State() model.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// post delivers an event unless the loop has already shut down.
func (m *Manager) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// parkConn offers a freshly dialed socket to the loop. It reports false
// once teardown has run, at which point the caller still owns the
// socket and must close it.
func (m *Manager) parkConn(gen uint64, c Conn) bool {
	m.pendMu.Lock()
	defer m.pendMu.Unlock()
	if m.stopped {
		return false
	}
	m.pending[gen] = c
	return true
}

// takeConn claims a parked socket. Nil means teardown reaped it first.
func (m *Manager) takeConn(gen uint64) Conn {
	m.pendMu.Lock()
	defer m.pendMu.Unlock()
	c := m.pending[gen]
	delete(m.pending, gen)
	return c
}

// closePending stops the handoff and closes every unclaimed socket.
func (m *Manager) closePending() {
	m.pendMu.Lock()
	defer m.pendMu.Unlock()
	m.stopped = true
	for _, c := range m.pending {
		c.Close()
	}
	m.pending = nil
}

func (m *Manager) run() {
	for {
		var timerC <-chan time.Time
		if m.timer != nil {
			timerC = m.timer.C
		}

		select {
		case ev := <-m.events:
			if ev.kind == evTeardown {
				m.teardown()
				return
			}
			m.handle(ev)

		case <-timerC:
			m.timer = nil
			m.setState(model.StateReconnecting)
			m.connect()
		}
	}
}

func (m *Manager) handle(ev event) {
	switch ev.kind {
	case evConnect:
		m.connect()

	case evOpened:
		c := m.takeConn(ev.gen)
		if c == nil {
			return
		}
		if ev.gen != m.gen {
			// A stale dial finally landed; its socket was replaced
			// before it opened.
			c.Close()
			return
		}
		m.conn = c
		m.setState(model.StateConnected)
		go m.read(c, ev.gen)

	case evFrame:
		if ev.gen != m.gen {
			return
		}
		m.onFrame(ev.data)

	case evError:
		if ev.gen != m.gen {
			return
		}
		m.tracef("transport error: %v", ev.err)
		m.setStatus(StatusError)

	case evClosed:
		if ev.gen != m.gen {
			return
		}
		m.conn = nil
		m.setState(model.StateDisconnected)
		if m.timer == nil {
			m.timer = time.NewTimer(m.opts.ReconnectDelay)
		}
	}
}

// connect performs the idempotent replace: cancel any pending retry,
// close the old socket, bump the generation so its remaining events are
// discarded, and dial a new one off-loop.
func (m *Manager) connect() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.gen++
	gen := m.gen
	m.setState(model.StateConnecting)
	m.tracef("connecting to %s", m.opts.URL)

	go func() {
		c, err := m.opts.Dial(m.opts.URL)
		if err != nil {
			// A failed dial behaves like an immediate close: report the
			// error, then let the close signal arm the retry.
			m.post(event{kind: evError, gen: gen, err: err})
			m.post(event{kind: evClosed, gen: gen})
			return
		}
		if !m.parkConn(gen, c) {
			c.Close()
			return
		}
		m.post(event{kind: evOpened, gen: gen})
	}()
}

// read pumps frames from one socket into the event loop until it fails.
// Runs once per socket generation.
func (m *Manager) read(c Conn, gen uint64) {
	for {
		data, err := c.ReadMessage()
		if err != nil {
			if !isCleanClose(err) {
				m.post(event{kind: evError, gen: gen, err: err})
			}
			m.post(event{kind: evClosed, gen: gen})
			return
		}
		m.post(event{kind: evFrame, gen: gen, data: data})
	}
}

func (m *Manager) teardown() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.gen++ // orphan any in-flight dial or reader
	m.closePending()
	m.setState(model.StateClosed)
	m.tracef("torn down")
	close(m.done)
}

func (m *Manager) setState(s model.ConnectionState) {
	m.mu.Lock()
	m.state = s
	m.status = s.String()
	m.mu.Unlock()
}

func (m *Manager) setStatus(status string) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func (m *Manager) tracef(format string, args ...interface{}) {
	if m.opts.Trace != nil {
		m.opts.Trace.Printf(format, args...)
	}
}
