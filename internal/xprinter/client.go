// Package xprinter talks to network thermal printers over raw TCP (port
// 9100). Each call owns exactly one socket; nothing is pooled or queued, so
// two jobs sent to the same printer at once may interleave on paper.
package xprinter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/escpos"
	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/model"
	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/printerr"
)

const (
	DefaultConnectTimeout  = 2 * time.Second
	DefaultProbeTimeout    = 3 * time.Second
	DefaultTransmitTimeout = 4 * time.Second

	// DefaultProbeDelay leaves room for a status reply before the probe hangs up.
	DefaultProbeDelay = 100 * time.Millisecond
	// DefaultLinger lets in-flight bytes leave the host before the socket is destroyed.
	DefaultLinger = 250 * time.Millisecond
)

// DialFunc opens a stream connection. It matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Client is the connection manager. The zero value is not usable; use NewClient.
type Client struct {
	logger     *zap.Logger
	dial       DialFunc
	probeDelay time.Duration
	linger     time.Duration
}

type Option func(*Client)

// WithDialer replaces the TCP dialer.
func WithDialer(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

func WithProbeDelay(d time.Duration) Option {
	return func(c *Client) { c.probeDelay = d }
}

func WithLinger(d time.Duration) Option {
	return func(c *Client) { c.linger = d }
}

func NewClient(logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &net.Dialer{KeepAlive: -1}
	c := &Client{
		logger:     logger,
		dial:       d.DialContext,
		probeDelay: DefaultProbeDelay,
		linger:     DefaultLinger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// --- Connect ---

// Connect dials t, racing the dial against t.Timeout (DefaultConnectTimeout
// when zero) and ctx. The returned Session must be closed by the caller.
func (c *Client) Connect(ctx context.Context, t model.Target) (*Session, error) {
	if t.Host == "" {
		return nil, &printerr.ValidationError{Field: "host", Reason: "missing"}
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	s := newSession(t.Addr())
	s.transition(StateIdle, StateConnecting)

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := c.dial(dctx, "tcp", s.addr)
	if err != nil {
		s.fail()
		err = classifyDialError(ctx, s.addr, err)
		c.logger.Debug("Printer connect failed",
			zap.String("addr", s.addr),
			zap.String("job_id", model.JobIDFrom(ctx)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, err
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetKeepAlive(false)
		_ = tcp.SetNoDelay(true)
	}
	if !s.attach(ctx, conn) {
		_ = conn.Close()
		return nil, fmt.Errorf("connect %s: %w", s.addr, errNotConnected)
	}

	c.logger.Debug("Printer connected",
		zap.String("addr", s.addr),
		zap.String("job_id", model.JobIDFrom(ctx)),
		zap.Duration("elapsed", time.Since(start)))
	return s, nil
}

// --- Probe ---

// Probe checks that a printer accepts connections: it connects, sends the
// real-time status request and hangs up after a short delay. No reply is
// required since many printers never answer it.
func (c *Client) Probe(ctx context.Context, t model.Target) error {
	if t.Timeout <= 0 {
		t.Timeout = DefaultProbeTimeout
	}
	s, err := c.Connect(ctx, t)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.write(escpos.StatusRequest(), t.Timeout)
	if err != nil {
		s.fail()
		return classifyWriteError(ctx, s.addr, n, err)
	}

	timer := time.NewTimer(c.probeDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	c.logger.Info("Printer probe succeeded", zap.String("addr", s.addr))
	return nil
}

// --- Transmit ---

// Transmit sends data to the printer and returns once every byte has been
// accepted by the transport. A printer that takes the connection but stops
// reading fails the call with a TimeoutError after t.Timeout
// (DefaultTransmitTimeout when zero). On success the socket is half-closed
// and destroyed after the linger window; the peer is never waited for.
func (c *Client) Transmit(ctx context.Context, t model.Target, data []byte) error {
	if t.Timeout <= 0 {
		t.Timeout = DefaultTransmitTimeout
	}
	s, err := c.Connect(ctx, t)
	if err != nil {
		return err
	}
	defer s.Close()

	start := time.Now()
	n, err := s.write(data, t.Timeout)
	if err != nil {
		s.fail()
		err = classifyWriteError(ctx, s.addr, n, err)
		c.logger.Warn("Printer write failed",
			zap.String("addr", s.addr),
			zap.String("job_id", model.JobIDFrom(ctx)),
			zap.Int("written", n),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		return err
	}

	s.drain(c.linger)
	if err := s.Close(); err != nil {
		c.logger.Debug("Printer close error", zap.String("addr", s.addr), zap.Error(err))
	}

	c.logger.Info("Print job sent",
		zap.String("addr", s.addr),
		zap.String("job_id", model.JobIDFrom(ctx)),
		zap.String("printer", model.PrinterNameFrom(ctx)),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// --- Error Classification ---

func classifyDialError(ctx context.Context, addr string, err error) error {
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("connect %s: %w", addr, ctx.Err())
	}
	if isTimeout(err) {
		return &printerr.TimeoutError{Op: "connect", Addr: addr, Err: err}
	}
	if code := reasonCode(err); code != "" {
		return &printerr.NetworkError{Addr: addr, Code: code, Err: err}
	}
	return fmt.Errorf("connect %s: %w", addr, err)
}

func classifyWriteError(ctx context.Context, addr string, written int, err error) error {
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("write %s: %w", addr, ctx.Err())
	}
	if isTimeout(err) {
		return &printerr.TimeoutError{Op: "write", Addr: addr, Err: err}
	}
	return &printerr.ProtocolWriteError{Addr: addr, Written: written, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// reasonCode names the network failures that mean "printer offline".
func reasonCode(err error) string {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return "ECONNREFUSED"
	case errors.Is(err, syscall.EHOSTUNREACH):
		return "EHOSTUNREACH"
	case errors.Is(err, syscall.ENETUNREACH):
		return "ENETUNREACH"
	case errors.As(err, &dnsErr):
		return "ENOTFOUND"
	default:
		return ""
	}
}
