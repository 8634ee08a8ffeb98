package auth

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/routemesh-go/internal/core/domain"
	"github.com/yndnr/routemesh-go/internal/server/httpserver"
	"github.com/yndnr/routemesh-go/internal/storage"
)

// exchange runs fn on a fresh in-memory connection. resp is nil when fn
// wrote nothing.
func exchange(t *testing.T, req *domain.Request, fn func(*httpserver.Conn) bool) (bool, *http.Response, string) {
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

	ok := fn(conn)
	conn.Release()

	var raw string
	select {
	case raw = <-out:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for response")
	}
	if raw == "" {
		return ok, nil, ""
	}
	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(raw)), &http.Request{Method: req.Method})
	if err != nil {
		t.Fatalf("ReadResponse(%q) error = %v", raw, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return ok, resp, string(body)
}

func newRequest(resource string) *domain.Request {
	req := domain.NewRequest(http.MethodGet, resource)
	req.RemoteAddr = "198.51.100.7:50000"
	return req
}

func basicHeader(name, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(name+":"+password))
}

func newUserStore(t *testing.T, users map[string]string) storage.UserStore {
	t.Helper()
	store := storage.NewMemoryUserStore()
	for name, password := range users {
		hash, err := HashPassword(password)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.Put(context.Background(), &storage.User{Name: name, PasswordHash: hash}); err != nil {
			t.Fatal(err)
		}
	}
	return store
}
