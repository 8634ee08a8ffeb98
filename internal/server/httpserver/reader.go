package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/yndnr/routemesh-go/internal/core/domain"
	"github.com/yndnr/routemesh-go/internal/server/httpserver/parser"
)

// DefaultReadTimeout bounds the read-and-parse phase of one message.
const DefaultReadTimeout = 10 * time.Second

const readBufferSize = 8 * 1024

// ReaderState is the intake state of a Reader.
type ReaderState uint32

const (
	StateIdle ReaderState = iota
	StateAwaitingBytes
	StateParsing
	StateComplete
	StateParseError
	StateTransportError
	StateTimedOut
)

// String returns the state name.
func (s ReaderState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingBytes:
		return "awaiting-bytes"
	case StateParsing:
		return "parsing"
	case StateComplete:
		return "complete"
	case StateParseError:
		return "parse-error"
	case StateTransportError:
		return "transport-error"
	case StateTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a cycle.
func (s ReaderState) Terminal() bool {
	return s >= StateComplete
}

// FinishedFunc receives the outcome of one Reader cycle. On success err
// is nil and req is the parsed message; on failure req is nil and err is
// a protocol- or transport-classified domain error.
type FinishedFunc func(req *domain.Request, conn *Conn, err error)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReadTimeout bounds the whole message. Zero disables the timeout.
func WithReadTimeout(d time.Duration) ReaderOption {
	return func(r *Reader) {
		r.timeout = d
	}
}

// WithMaxContentLength limits the accepted body size.
func WithMaxContentLength(n int64) ReaderOption {
	return func(r *Reader) {
		r.maxContentLength = n
	}
}

// WithReaderLogger sets the logger.
func WithReaderLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Reader turns one connection's byte stream into exactly one parsed
// request or one classified failure. A Reader runs a single cycle; the
// caller creates a new Reader for the next message on a kept-alive
// connection.
type Reader struct {
	conn             *Conn
	finished         FinishedFunc
	timeout          time.Duration
	maxContentLength int64
	logger           *slog.Logger

	state atomic.Uint32
}

// NewReader binds a Reader to conn. finished is invoked exactly once.
func NewReader(conn *Conn, finished FinishedFunc, opts ...ReaderOption) *Reader {
	r := &Reader{
		conn:     conn,
		finished: finished,
		timeout:  DefaultReadTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetTimeout changes the read timeout before Receive is called.
func (r *Reader) SetTimeout(d time.Duration) {
	r.timeout = d
}

// State returns the current intake state.
func (r *Reader) State() ReaderState {
	return ReaderState(r.state.Load())
}

// Receive runs the intake cycle and delivers the outcome through the
// finished callback. It returns after the callback returns. Calls after
// the first are no-ops.
//
// The deadline is armed once and bounds the whole message, not each
// partial read. Cancelling ctx aborts a pending read.
func (r *Reader) Receive(ctx context.Context) {
	if !r.state.CompareAndSwap(uint32(StateIdle), uint32(StateAwaitingBytes)) {
		return
	}
	if !r.conn.IsOpen() {
		r.fail(StateTransportError, domain.ErrConnectionClosed.WithDetails("connection not open"))
		return
	}
	r.conn.beginCycle()

	if r.timeout > 0 {
		_ = r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	p := parser.New(r.maxContentLength)
	buf := make([]byte, readBufferSize)
	received := 0

	for {
		r.state.Store(uint32(StateAwaitingBytes))
		n, err := r.conn.Read(buf)
		if n > 0 {
			received += n
			r.state.Store(uint32(StateParsing))
			status, perr := p.Feed(buf[:n])
			switch status {
			case parser.StatusComplete:
				r.complete(p)
				return
			case parser.StatusError:
				r.fail(StateParseError, perr)
				return
			}
		}
		if err != nil {
			state, cerr := r.classify(ctx, err, received)
			r.fail(state, cerr)
			return
		}
	}
}

func (r *Reader) complete(p *parser.Parser) {
	_ = r.conn.SetReadDeadline(time.Time{})
	r.conn.unread(p.Remaining())

	req := p.Request()
	req.RemoteAddr = r.conn.RemoteAddr()
	if req.KeepAlive() {
		r.conn.SetLifecycle(LifecycleKeepAlive)
	} else {
		r.conn.SetLifecycle(LifecycleClose)
	}

	r.state.Store(uint32(StateComplete))
	r.logger.Debug("http request read",
		"request_id", req.ID,
		"method", req.Method,
		"resource", req.OriginalResource(),
		"remote_addr", req.RemoteAddr,
	)
	r.finished(req, r.conn, nil)
}

func (r *Reader) fail(state ReaderState, err error) {
	r.conn.SetLifecycle(LifecycleClose)
	r.state.Store(uint32(state))
	r.finished(nil, r.conn, err)
}

// classify maps a transport read failure onto the error taxonomy.
func (r *Reader) classify(ctx context.Context, err error, received int) (ReaderState, error) {
	if ctx.Err() != nil {
		return StateTransportError, domain.ErrConnectionClosed.WithDetails("read cancelled").WithCause(ctx.Err())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StateTimedOut, domain.ErrReadTimeout.WithDetails(r.timeout.String()).WithCause(err)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		if received == 0 {
			return StateTransportError, domain.ErrConnectionClosed.WithCause(err)
		}
		return StateTransportError, domain.ErrConnectionLost.WithDetails("closed mid-message").WithCause(err)
	}

	return StateTransportError, domain.ErrConnectionLost.WithCause(err)
}
