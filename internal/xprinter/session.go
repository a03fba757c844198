package xprinter

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateActive
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s == StateClosed || s == StateFailed
}

var errNotConnected = errors.New("session is not connected")

// Session owns one printer socket from connect to close. Every exit path
// goes through finish, which closes the socket exactly once.
type Session struct {
	addr  string
	conn  net.Conn
	state atomic.Int32

	mu   sync.Mutex // serializes finish against ctx aborts
	stop func() bool
}

func newSession(addr string) *Session {
	return &Session{addr: addr}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Addr is the host:port the session dialed.
func (s *Session) Addr() string {
	return s.addr
}

// Conn exposes the live socket. It must not be closed directly.
func (s *Session) Conn() net.Conn {
	return s.conn
}

func (s *Session) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// attach binds a freshly dialed socket and arms ctx cancellation: when ctx
// ends first, every pending and future I/O on the socket fails immediately.
func (s *Session) attach(ctx context.Context, conn net.Conn) bool {
	s.conn = conn
	if !s.transition(StateConnecting, StateConnected) {
		return false
	}
	s.stop = context.AfterFunc(ctx, s.abort)
	return true
}

func (s *Session) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State().terminal() || s.conn == nil {
		return
	}
	_ = s.conn.SetDeadline(time.Unix(1, 0))
}

// finish moves the session to a terminal state and releases the socket.
// Only the first caller wins; later calls are no-ops and return false.
func (s *Session) finish(to State) (bool, error) {
	for {
		cur := s.State()
		if cur.terminal() {
			return false, nil
		}
		if s.transition(cur, to) {
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		s.stop()
	}
	if s.conn == nil {
		return true, nil
	}
	return true, s.conn.Close()
}

// Close releases the socket. Calling it again, or after a failure, is a no-op.
func (s *Session) Close() error {
	_, err := s.finish(StateClosed)
	return err
}

func (s *Session) fail() {
	_, _ = s.finish(StateFailed)
}

// write sends data in full with an idle guard of timeout.
func (s *Session) write(data []byte, timeout time.Duration) (int, error) {
	if !s.transition(StateConnected, StateActive) && s.State() != StateActive {
		return 0, errNotConnected
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	return s.conn.Write(data)
}

// drain half-closes the socket and discards anything the printer sends back
// until the peer closes or linger elapses.
func (s *Session) drain(linger time.Duration) {
	if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	if linger <= 0 {
		return
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(linger)); err != nil {
		return
	}
	buf := make([]byte, 512)
	for {
		if _, err := s.conn.Read(buf); err != nil {
			return
		}
	}
}
