package xprinter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/model"
	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/printerr"
)

// --- Test Helpers ---

func listen(t *testing.T) (net.Listener, model.Target) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	addr := ln.Addr().(*net.TCPAddr)
	return ln, model.Target{Host: "127.0.0.1", Port: addr.Port}
}

// refusedTarget returns a loopback port nobody listens on.
func refusedTarget(t *testing.T) model.Target {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return model.Target{Host: "127.0.0.1", Port: port}
}

type countingConn struct {
	net.Conn
	closes *atomic.Int32
}

func (c countingConn) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

// countingDialer wraps every dialed socket so tests can see how often it was closed.
type countingDialer struct {
	mu    sync.Mutex
	conns []*atomic.Int32
}

func (d *countingDialer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	n := new(atomic.Int32)
	d.mu.Lock()
	d.conns = append(d.conns, n)
	d.mu.Unlock()
	return countingConn{Conn: conn, closes: n}, nil
}

func (d *countingDialer) assertClosedOnce(t *testing.T, want int) {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) != want {
		t.Fatalf("unexpected dial count: got=%d want=%d", len(d.conns), want)
	}
	for i, n := range d.conns {
		if got := n.Load(); got != 1 {
			t.Fatalf("socket %d closed %d times", i, got)
		}
	}
}

func acceptAll(ln net.Listener, handle func(net.Conn)) {
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(conn)
		}
	}()
}

// --- Connect ---

func TestConnect_Session(t *testing.T) {
	ln, target := listen(t)
	acceptAll(ln, func(c net.Conn) { io.Copy(io.Discard, c); c.Close() })

	client := NewClient(nil)
	s, err := client.Connect(context.Background(), target)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if s.State() != StateConnected {
		t.Fatalf("unexpected state: %s", s.State())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("unexpected state after close: %s", s.State())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}

func TestConnect_Timeout(t *testing.T) {
	hang := func(ctx context.Context, network, addr string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	client := NewClient(nil, WithDialer(hang))

	start := time.Now()
	_, err := client.Connect(context.Background(), model.Target{Host: "192.0.2.10", Timeout: 150 * time.Millisecond})

	var terr *printerr.TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
	if terr.Op != "connect" {
		t.Fatalf("unexpected op: %q", terr.Op)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("timed out too early: %v", elapsed)
	}
}

func TestConnect_Canceled(t *testing.T) {
	hang := func(ctx context.Context, network, addr string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	client := NewClient(nil, WithDialer(hang))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err := client.Connect(ctx, model.Target{Host: "192.0.2.10", Timeout: 5 * time.Second})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if printerr.KindOf(err) == printerr.KindTimeout {
		t.Fatalf("cancellation must not look like a timeout")
	}
}

func TestConnect_MissingHost(t *testing.T) {
	_, err := NewClient(nil).Connect(context.Background(), model.Target{})
	if printerr.KindOf(err) != printerr.KindValidation {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

// --- Probe ---

func TestProbe_SendsStatusRequest(t *testing.T) {
	ln, target := listen(t)
	got := make(chan []byte, 1)
	acceptAll(ln, func(c net.Conn) {
		defer c.Close()
		buf, _ := io.ReadAll(c)
		got <- buf
	})

	dialer := &countingDialer{}
	client := NewClient(nil, WithDialer(dialer.dial), WithProbeDelay(10*time.Millisecond))
	if err := client.Probe(context.Background(), target); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	select {
	case buf := <-got:
		if !bytes.Equal(buf, []byte{0x10, 0x04, 0x02}) {
			t.Fatalf("unexpected probe bytes: % x", buf)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("printer never saw the probe")
	}
	dialer.assertClosedOnce(t, 1)
}

func TestProbe_Refused(t *testing.T) {
	target := refusedTarget(t)
	target.Timeout = time.Second
	client := NewClient(nil)

	for i := 0; i < 20; i++ {
		start := time.Now()
		err := client.Probe(context.Background(), target)

		var nerr *printerr.NetworkError
		if !errors.As(err, &nerr) {
			t.Fatalf("attempt %d: expected NetworkError, got %T: %v", i, err, err)
		}
		if nerr.Code != "ECONNREFUSED" {
			t.Fatalf("unexpected reason code: %q", nerr.Code)
		}
		if !errors.Is(err, syscall.ECONNREFUSED) {
			t.Fatalf("underlying errno should be kept: %v", err)
		}
		if elapsed := time.Since(start); elapsed > target.Timeout {
			t.Fatalf("refusal took longer than the timeout: %v", elapsed)
		}
	}
}

func TestProbe_RepeatedCallsReleaseSockets(t *testing.T) {
	ln, target := listen(t)
	acceptAll(ln, func(c net.Conn) { io.Copy(io.Discard, c); c.Close() })

	dialer := &countingDialer{}
	client := NewClient(nil, WithDialer(dialer.dial), WithProbeDelay(time.Millisecond))
	for i := 0; i < 10; i++ {
		if err := client.Probe(context.Background(), target); err != nil {
			t.Fatalf("Probe %d failed: %v", i, err)
		}
	}
	dialer.assertClosedOnce(t, 10)
}

// --- Transmit ---

func TestTransmit_DeliversAllBytes(t *testing.T) {
	ln, target := listen(t)
	got := make(chan []byte, 1)
	acceptAll(ln, func(c net.Conn) {
		defer c.Close()
		buf, _ := io.ReadAll(c)
		got <- buf
	})

	data := bytes.Repeat([]byte{0x1B, 0x40, 'h', 'i', 0x0A}, 100_000)
	dialer := &countingDialer{}
	client := NewClient(nil, WithDialer(dialer.dial), WithLinger(50*time.Millisecond))
	if err := client.Transmit(context.Background(), target, data); err != nil {
		t.Fatalf("Transmit failed: %v", err)
	}

	select {
	case buf := <-got:
		if !bytes.Equal(buf, data) {
			t.Fatalf("printer received %d bytes, want %d", len(buf), len(data))
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("printer never saw end of output")
	}
	dialer.assertClosedOnce(t, 1)
}

func TestTransmit_DoesNotWaitForPeerClose(t *testing.T) {
	ln, target := listen(t)
	release := make(chan struct{})
	defer close(release)
	acceptAll(ln, func(c net.Conn) {
		defer c.Close()
		io.Copy(io.Discard, c)
		<-release
	})

	client := NewClient(nil, WithLinger(100*time.Millisecond))
	start := time.Now()
	if err := client.Transmit(context.Background(), target, []byte("hello\n")); err != nil {
		t.Fatalf("Transmit failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Transmit waited on the printer: %v", elapsed)
	}
}

func TestTransmit_StalledPrinter(t *testing.T) {
	ln, target := listen(t)
	release := make(chan struct{})
	defer close(release)
	acceptAll(ln, func(c net.Conn) {
		// Accept and never read, like a printer out of paper.
		<-release
		c.Close()
	})

	target.Timeout = 300 * time.Millisecond
	dialer := &countingDialer{}
	client := NewClient(nil, WithDialer(dialer.dial))
	data := make([]byte, 64<<20)

	start := time.Now()
	err := client.Transmit(context.Background(), target, data)
	elapsed := time.Since(start)

	var terr *printerr.TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
	if terr.Op != "write" {
		t.Fatalf("unexpected op: %q", terr.Op)
	}
	if elapsed < target.Timeout {
		t.Fatalf("timed out before the idle guard: %v", elapsed)
	}
	dialer.assertClosedOnce(t, 1)
}

func TestTransmit_CanceledDuringWrite(t *testing.T) {
	ln, target := listen(t)
	release := make(chan struct{})
	defer close(release)
	acceptAll(ln, func(c net.Conn) {
		<-release
		c.Close()
	})

	target.Timeout = 10 * time.Second
	dialer := &countingDialer{}
	client := NewClient(nil, WithDialer(dialer.dial))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	err := client.Transmit(ctx, target, make([]byte, 64<<20))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancellation did not interrupt the write: %v", elapsed)
	}
	dialer.assertClosedOnce(t, 1)
}

type brokenConn struct {
	net.Conn
}

func (brokenConn) Write([]byte) (int, error) { return 0, syscall.EPIPE }

func TestTransmit_WriteError(t *testing.T) {
	closes := new(atomic.Int32)
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		a, b := net.Pipe()
		go io.Copy(io.Discard, b)
		return countingConn{Conn: brokenConn{a}, closes: closes}, nil
	}
	client := NewClient(nil, WithDialer(dial))

	err := client.Transmit(context.Background(), model.Target{Host: "printer.local"}, []byte("x"))

	var werr *printerr.ProtocolWriteError
	if !errors.As(err, &werr) {
		t.Fatalf("expected ProtocolWriteError, got %T: %v", err, err)
	}
	if got := closes.Load(); got != 1 {
		t.Fatalf("socket closed %d times", got)
	}
}

func TestTransmit_Concurrent(t *testing.T) {
	ln, target := listen(t)
	acceptAll(ln, func(c net.Conn) {
		defer c.Close()
		io.Copy(io.Discard, c)
	})

	client := NewClient(nil, WithLinger(10*time.Millisecond))
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.Transmit(context.Background(), target, make([]byte, 1024))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Transmit failed: %v", err)
		}
	}
}
