package httpserver

import (
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ByteSource is the transport capability the Reader pulls bytes through
// and the response writer pushes bytes into. Plain and TLS transports
// are the two concrete variants.
type ByteSource interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
	RemoteAddr() net.Addr
	Secure() bool
}

type plainSource struct {
	net.Conn
}

// PlainSource wraps an unencrypted connection.
func PlainSource(nc net.Conn) ByteSource {
	return plainSource{Conn: nc}
}

func (plainSource) Secure() bool { return false }

type tlsSource struct {
	*tls.Conn
}

// TLSSource wraps nc in a server-side TLS session. The handshake runs on
// the first read, bounded by whatever read deadline is armed at the time.
func TLSSource(nc net.Conn, cfg *tls.Config) ByteSource {
	return tlsSource{Conn: tls.Server(nc, cfg)}
}

func (s tlsSource) Read(p []byte) (int, error) {
	if err := s.Conn.Handshake(); err != nil {
		return 0, err
	}
	return s.Conn.Read(p)
}

func (tlsSource) Secure() bool { return true }

// Lifecycle is the post-response action for a connection.
type Lifecycle uint32

const (
	LifecycleClose Lifecycle = iota
	LifecycleKeepAlive
)

// String returns "close" or "keep-alive".
func (l Lifecycle) String() string {
	if l == LifecycleKeepAlive {
		return "keep-alive"
	}
	return "close"
}

// Conn is a reference-counted handle to one transport session, shared by
// the Reader while reading and by the response path while responding.
//
// The creator holds the first reference. The socket is closed when the
// last reference is released, or when Finish runs with LifecycleClose.
type Conn struct {
	source       ByteSource
	writeTimeout time.Duration

	refs      atomic.Int32
	lifecycle atomic.Uint32
	closed    atomic.Bool
	responded atomic.Bool
	status    atomic.Int32

	mu       sync.Mutex
	leftover []byte

	finished chan struct{}
}

// NewConn creates a connection handle holding one reference.
func NewConn(source ByteSource) *Conn {
	c := &Conn{
		source:   source,
		finished: make(chan struct{}, 1),
	}
	c.refs.Store(1)
	return c
}

// SetWriteTimeout bounds each Write. Zero disables the bound.
func (c *Conn) SetWriteTimeout(d time.Duration) {
	c.writeTimeout = d
}

// Retain adds a reference.
func (c *Conn) Retain() {
	c.refs.Add(1)
}

// Release drops a reference and closes the socket when none remain.
func (c *Conn) Release() {
	if c.refs.Add(-1) <= 0 {
		c.Close()
	}
}

// IsOpen reports whether the socket has not been closed.
func (c *Conn) IsOpen() bool {
	return !c.closed.Load()
}

// Close closes the socket. Safe to call multiple times.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.source.Close()
}

// SetLifecycle sets the post-response action.
func (c *Conn) SetLifecycle(l Lifecycle) {
	c.lifecycle.Store(uint32(l))
}

// Lifecycle returns the post-response action.
func (c *Conn) Lifecycle() Lifecycle {
	return Lifecycle(c.lifecycle.Load())
}

// KeepAlive reports whether the connection will be reused after the
// current response.
func (c *Conn) KeepAlive() bool {
	return c.Lifecycle() == LifecycleKeepAlive && c.IsOpen()
}

// RemoteAddr returns the peer address as a string.
func (c *Conn) RemoteAddr() string {
	if a := c.source.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// IsSecure reports whether the transport is encrypted.
func (c *Conn) IsSecure() bool {
	return c.source.Secure()
}

// Read reads pipelined bytes carried over from the previous cycle first,
// then from the transport.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if len(c.leftover) > 0 {
		n := copy(p, c.leftover)
		c.leftover = c.leftover[n:]
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()
	return c.source.Read(p)
}

// Pending reports whether bytes from an earlier read are waiting.
func (c *Conn) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.leftover) > 0
}

// SetReadDeadline arms or clears the transport read deadline.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.source.SetReadDeadline(t)
}

// Write writes to the transport, bounded by the write timeout.
func (c *Conn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		_ = c.source.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.source.Write(p)
}

// Finish signals that the response for the current cycle is complete.
// With LifecycleClose the socket is closed immediately.
func (c *Conn) Finish() {
	c.responded.Store(true)
	if c.Lifecycle() == LifecycleClose {
		c.Close()
	}
	select {
	case c.finished <- struct{}{}:
	default:
	}
}

// Status returns the status code of the last response sent in the
// current cycle, or 0.
func (c *Conn) Status() int {
	return int(c.status.Load())
}

// Responded reports whether Finish ran during the current cycle.
func (c *Conn) Responded() bool {
	return c.responded.Load()
}

// Finished returns a channel that receives once per completed cycle.
func (c *Conn) Finished() <-chan struct{} {
	return c.finished
}

// unread stashes bytes that belong to the next message.
func (c *Conn) unread(b []byte) {
	if len(b) == 0 {
		return
	}
	c.mu.Lock()
	c.leftover = append(b, c.leftover...)
	c.mu.Unlock()
}

// beginCycle resets the per-cycle response state.
func (c *Conn) beginCycle() {
	c.responded.Store(false)
	c.status.Store(0)
	select {
	case <-c.finished:
	default:
	}
}
