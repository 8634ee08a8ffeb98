package httpserver

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/yndnr/routemesh-go/internal/core/domain"
)

// ServerName is sent in the Server header.
const ServerName = "routemesh"

// ErrAlreadySent is returned by Send on a writer that already sent.
var ErrAlreadySent = errors.New("httpserver: response already sent")

// ResponseWriter buffers one response and serializes it onto the
// connection. It holds a connection reference until Send returns.
type ResponseWriter struct {
	conn *Conn
	req  *domain.Request
	resp *domain.Response
	body bytes.Buffer
	sent atomic.Bool
}

// NewResponseWriter creates a writer answering req on conn. req may be
// nil when the request could not be parsed.
func NewResponseWriter(req *domain.Request, conn *Conn) *ResponseWriter {
	conn.Retain()
	return &ResponseWriter{
		conn: conn,
		req:  req,
		resp: domain.NewResponse(),
	}
}

// Response returns the response record.
func (w *ResponseWriter) Response() *domain.Response { return w.resp }

// Header returns the response headers.
func (w *ResponseWriter) Header() http.Header { return w.resp.Header }

// SetStatus sets the status code with its canonical reason phrase.
func (w *ResponseWriter) SetStatus(code int) { w.resp.SetStatus(code) }

// SetStatusMessage overrides the reason phrase.
func (w *ResponseWriter) SetStatusMessage(msg string) { w.resp.StatusMessage = msg }

// Write appends to the body.
func (w *ResponseWriter) Write(p []byte) (int, error) { return w.body.Write(p) }

// WriteString appends to the body.
func (w *ResponseWriter) WriteString(s string) (int, error) { return w.body.WriteString(s) }

// Discard drops the buffered response and ends the cycle without
// writing anything. The client gets no answer, so the connection is
// closed rather than kept alive.
func (w *ResponseWriter) Discard() {
	if w.sent.CompareAndSwap(false, true) {
		w.conn.SetLifecycle(LifecycleClose)
		w.conn.Finish()
		w.conn.Release()
	}
}

// Send writes the response and signals the end of the cycle to the
// connection. The connection is closed afterwards unless both the
// transport and the request allow keep-alive.
func (w *ResponseWriter) Send() error {
	if !w.sent.CompareAndSwap(false, true) {
		return ErrAlreadySent
	}
	defer w.conn.Release()
	defer w.conn.Finish()

	w.resp.Body = w.body.Bytes()
	w.conn.status.Store(int32(w.resp.StatusCode))
	if _, err := w.conn.Write(w.serialize()); err != nil {
		w.conn.SetLifecycle(LifecycleClose)
		return domain.ErrConnectionLost.WithDetails("write response").WithCause(err)
	}
	return nil
}

func (w *ResponseWriter) serialize() []byte {
	version := domain.HTTP11
	keepAlive := false
	if w.req != nil {
		version = w.req.Version
		keepAlive = w.req.KeepAlive()
	}
	keepAlive = keepAlive && w.conn.Lifecycle() == LifecycleKeepAlive
	if !keepAlive {
		w.conn.SetLifecycle(LifecycleClose)
	}

	h := w.resp.Header
	switch {
	case !keepAlive:
		h.Set("Connection", "close")
	case !version.AtLeast(1, 1):
		h.Set("Connection", "keep-alive")
	}
	if h.Get("Date") == "" {
		h.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if h.Get("Server") == "" {
		h.Set("Server", ServerName)
	}

	body := w.resp.Body
	if bodyAllowed(w.resp.StatusCode) {
		if h.Get("Content-Type") == "" && len(body) > 0 {
			h.Set("Content-Type", http.DetectContentType(body))
		}
		h.Set("Content-Length", strconv.Itoa(len(body)))
	} else {
		h.Del("Content-Length")
		body = nil
	}
	if w.req != nil && w.req.Method == http.MethodHead {
		body = nil
	}

	msg := w.resp.StatusMessage
	if msg == "" {
		msg = http.StatusText(w.resp.StatusCode)
	}

	var buf bytes.Buffer
	buf.Grow(256 + len(body))
	buf.WriteString(version.String())
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(w.resp.StatusCode))
	buf.WriteByte(' ')
	buf.WriteString(msg)
	buf.WriteString("\r\n")
	_ = h.Write(&buf)
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
