package handler

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/routemesh-go/internal/core/domain"
	"github.com/yndnr/routemesh-go/internal/server/httpserver"
)

// serve runs h against req over an in-memory connection and returns the
// parsed response.
func serve(t *testing.T, h httpserver.Handler, req *domain.Request) (*http.Response, string) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	conn := httpserver.NewConn(httpserver.PlainSource(server))

	out := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(client)
		out <- string(b)
	}()

	if err := h.HandleRequest(req, conn); err != nil {
		t.Fatalf("HandleRequest() error = %v", err)
	}
	conn.Release()

	var raw string
	select {
	case raw = <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}

	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(raw)), &http.Request{Method: req.Method})
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

func mustNew(t *testing.T, name, resource string, opts Options, deps Deps) httpserver.Handler {
	t.Helper()
	h, err := New(name, resource, opts, deps)
	if err != nil {
		t.Fatalf("New(%q) error = %v", name, err)
	}
	return h
}
