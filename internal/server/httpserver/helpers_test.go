package httpserver

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/routemesh-go/internal/core/domain"
)

// newPipeConn returns a server-side Conn over an in-memory pipe and the
// client end of the pipe.
func newPipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return NewConn(PlainSource(server)), client
}

// collect reads from client until EOF in the background.
func collect(client net.Conn) <-chan string {
	out := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(client)
		out <- string(b)
	}()
	return out
}

func waitOutput(t *testing.T, out <-chan string) string {
	t.Helper()
	select {
	case s := <-out:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection output")
		return ""
	}
}

// dispatchRaw runs d.HandleRequest on a fresh pipe and returns every byte
// the client received.
func dispatchRaw(t *testing.T, d *Dispatcher, req *domain.Request, readErr error) string {
	t.Helper()
	conn, client := newPipeConn(t)
	out := collect(client)
	d.HandleRequest(req, conn, readErr)
	conn.Release()
	return waitOutput(t, out)
}

// dispatch is dispatchRaw with the output parsed as an HTTP response.
func dispatch(t *testing.T, d *Dispatcher, req *domain.Request) (*http.Response, string) {
	t.Helper()
	raw := dispatchRaw(t, d, req, nil)
	return parseResponse(t, raw, req.Method)
}

func parseResponse(t *testing.T, raw, method string) (*http.Response, string) {
	t.Helper()
	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(raw)), &http.Request{Method: method})
	if err != nil {
		t.Fatalf("ReadResponse(%q) error = %v", raw, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

// textHandler answers every request with its name.
type textHandler struct {
	name  string
	calls atomic.Int32
}

func (h *textHandler) HandleRequest(req *domain.Request, conn *Conn) error {
	h.calls.Add(1)
	w := NewResponseWriter(req, conn)
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.WriteString(h.name)
	return w.Send()
}

func newRequest(method, resource string) *domain.Request {
	req := domain.NewRequest(method, resource)
	req.RemoteAddr = "192.0.2.10:40000"
	return req
}
