package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/yndnr/routemesh-go/internal/core/domain"
)

func TestStripTrailingSlash(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"/", "/"},
		{"/foo/", "/foo"},
		{"/foo", "/foo"},
		{"/foo//", "/foo/"},
	}
	for _, tt := range tests {
		if got := StripTrailingSlash(tt.in); got != tt.want {
			t.Errorf("StripTrailingSlash(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDispatcher_FindHandler_LongestPrefix(t *testing.T) {
	d := NewDispatcher()
	root, a, ab := &textHandler{name: "root"}, &textHandler{name: "a"}, &textHandler{name: "ab"}
	d.AddResource("", root)
	d.AddResource("/a", a)
	d.AddResource("/a/b", ab)
	d.AddResource("/a/b-c", &textHandler{name: "abc-dash"})

	tests := []struct {
		resource string
		wantKey  string
	}{
		{"/a/b/c", "/a/b"},
		{"/a/b", "/a/b"},
		{"/a/bc", "/a"},
		{"/a", "/a"},
		{"/ab", ""},
		{"/zzz", ""},
		{"*", ""},
		{"/a/b-c/d", "/a/b-c"},
	}
	for _, tt := range tests {
		t.Run(tt.resource, func(t *testing.T) {
			_, key, ok := d.FindHandler(tt.resource)
			if !ok {
				t.Fatalf("FindHandler(%q) found nothing", tt.resource)
			}
			if key != tt.wantKey {
				t.Errorf("FindHandler(%q) key = %q, want %q", tt.resource, key, tt.wantKey)
			}
		})
	}
}

func TestDispatcher_FindHandler_BoundaryWithoutRoot(t *testing.T) {
	d := NewDispatcher()
	d.AddResource("/ab", &textHandler{name: "ab"})

	if _, _, ok := d.FindHandler("/abc"); ok {
		t.Error("/ab must not match /abc")
	}
	if _, _, ok := d.FindHandler("/a"); ok {
		t.Error("/ab must not match /a")
	}
	if _, key, ok := d.FindHandler("/ab/c"); !ok || key != "/ab" {
		t.Errorf("FindHandler(/ab/c) = %q, %v", key, ok)
	}
}

func TestDispatcher_RootSlashKey(t *testing.T) {
	d := NewDispatcher()
	d.AddResource("/", &textHandler{name: "slash"})
	d.AddResource("/api", &textHandler{name: "api"})

	if _, key, _ := d.FindHandler("/index.html"); key != "/" {
		t.Errorf("FindHandler(/index.html) key = %q, want /", key)
	}
	if _, key, _ := d.FindHandler("/api/v1"); key != "/api" {
		t.Errorf("FindHandler(/api/v1) key = %q, want /api", key)
	}
}

func TestDispatcher_TrailingSlashNormalization(t *testing.T) {
	d := NewDispatcher()
	foo := &textHandler{name: "foo"}
	d.AddResource("/foo/", foo)

	if got := d.Resources(); len(got) != 1 || got[0] != "/foo" {
		t.Fatalf("Resources() = %v, want [/foo]", got)
	}

	resp, body := dispatch(t, d, newRequest("GET", "/foo/"))
	if resp.StatusCode != http.StatusOK || body != "foo" {
		t.Errorf("GET /foo/ = %d %q", resp.StatusCode, body)
	}
}

func TestDispatcher_FirstRegistrationWins(t *testing.T) {
	d := NewDispatcher()
	first, second := &textHandler{name: "first"}, &textHandler{name: "second"}

	if !d.AddResource("/dup", first) {
		t.Fatal("first AddResource should succeed")
	}
	if d.AddResource("/dup/", second) {
		t.Error("second AddResource should be ignored")
	}

	_, body := dispatch(t, d, newRequest("GET", "/dup"))
	if body != "first" {
		t.Errorf("body = %q, want first", body)
	}
	if second.calls.Load() != 0 {
		t.Error("second handler should never run")
	}
}

func TestDispatcher_RemoveResource(t *testing.T) {
	d := NewDispatcher()
	d.AddResource("/x", &textHandler{name: "x"})
	d.RemoveResource("/x/")
	d.RemoveResource("/never-registered")

	if d.ResourceCount() != 0 {
		t.Errorf("ResourceCount() = %d, want 0", d.ResourceCount())
	}
	resp, _ := dispatch(t, d, newRequest("GET", "/x"))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	d.AddResource("/y", &textHandler{name: "y"})
	d.ClearResources()
	if len(d.Resources()) != 0 {
		t.Error("ClearResources should empty the registry")
	}
}

func redirectChain(d *Dispatcher, hops int) {
	for i := 0; i < hops; i++ {
		d.AddRedirect("/r"+strconv.Itoa(i), "/r"+strconv.Itoa(i+1))
	}
}

func TestDispatcher_RedirectBound(t *testing.T) {
	t.Run("ten hops resolve", func(t *testing.T) {
		d := NewDispatcher()
		redirectChain(d, 10)
		d.AddResource("/r10", &textHandler{name: "final"})

		req := newRequest("GET", "/r0")
		resp, body := dispatch(t, d, req)
		if resp.StatusCode != http.StatusOK || body != "final" {
			t.Errorf("status = %d body = %q", resp.StatusCode, body)
		}
		if req.Resource() != "/r10" || req.OriginalResource() != "/r0" {
			t.Errorf("resource = %q original = %q", req.Resource(), req.OriginalResource())
		}
	})

	t.Run("eleven hops overflow", func(t *testing.T) {
		d := NewDispatcher()
		redirectChain(d, 11)
		final := &textHandler{name: "final"}
		d.AddResource("/r11", final)

		resp, body := dispatch(t, d, newRequest("GET", "/r0"))
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", resp.StatusCode)
		}
		if !strings.Contains(body, "maximum redirects") {
			t.Errorf("body %q lacks diagnostic", body)
		}
		if final.calls.Load() != 0 {
			t.Error("handler must not run after overflow")
		}
	})

	t.Run("two cycle", func(t *testing.T) {
		d := NewDispatcher()
		d.AddRedirect("/ping", "/pong")
		d.AddRedirect("/pong/", "/ping/")

		resp, body := dispatch(t, d, newRequest("GET", "/ping"))
		if resp.StatusCode != http.StatusInternalServerError || !strings.Contains(body, "maximum redirects") {
			t.Errorf("status = %d body = %q", resp.StatusCode, body)
		}
	})

	t.Run("custom bound", func(t *testing.T) {
		d := NewDispatcher(WithMaxRedirects(1))
		redirectChain(d, 2)
		resp, _ := dispatch(t, d, newRequest("GET", "/r0"))
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", resp.StatusCode)
		}
	})
}

func TestDispatcher_AddRedirectOverwrites(t *testing.T) {
	d := NewDispatcher()
	d.AddRedirect("/old", "/first")
	d.AddRedirect("/old/", "/second/")

	if got := d.Redirects()["/old"]; got != "/second" {
		t.Errorf("redirect = %q, want /second", got)
	}

	d.SetRedirects(map[string]string{"/a/": "/b/"})
	if got := d.Redirects(); len(got) != 1 || got["/a"] != "/b" {
		t.Errorf("Redirects() = %v", got)
	}
	if d.RedirectCount() != 1 {
		t.Errorf("RedirectCount() = %d", d.RedirectCount())
	}
}

func TestDispatcher_NotFoundNamesOriginalResource(t *testing.T) {
	d := NewDispatcher()
	d.AddRedirect("/old", "/missing")

	resp, body := dispatch(t, d, newRequest("GET", "/old/"))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if !strings.Contains(body, "The requested URL /old/ was not found") {
		t.Errorf("body = %q", body)
	}
}

func TestDispatcher_HandlerErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler HandlerFunc
		want    string
	}{
		{
			name: "returned error",
			handler: func(*domain.Request, *Conn) error {
				return errors.New("database unavailable")
			},
			want: "database unavailable",
		},
		{
			name: "panic",
			handler: func(*domain.Request, *Conn) error {
				panic("boom")
			},
			want: "handler panic: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher()
			d.AddResource("/h", tt.handler)

			resp, body := dispatch(t, d, newRequest("GET", "/h"))
			if resp.StatusCode != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", resp.StatusCode)
			}
			if !strings.Contains(body, tt.want) {
				t.Errorf("body %q lacks %q", body, tt.want)
			}
		})
	}
}

func TestDispatcher_ErrorAfterResponseClosesConnection(t *testing.T) {
	d := NewDispatcher()
	d.AddResource("/h", HandlerFunc(func(req *domain.Request, conn *Conn) error {
		w := NewResponseWriter(req, conn)
		_, _ = w.WriteString("partial")
		_ = w.Send()
		return errors.New("late failure")
	}))

	raw := dispatchRaw(t, d, newRequest("GET", "/h"), nil)
	if strings.Count(raw, "HTTP/1.1 ") != 1 {
		t.Errorf("expected exactly one response, got %q", raw)
	}
}

func TestDispatcher_FatalErrorPropagates(t *testing.T) {
	d := NewDispatcher()
	d.AddResource("/fatal", HandlerFunc(func(*domain.Request, *Conn) error {
		Abort("out of memory", nil)
		return nil
	}))

	conn, client := newPipeConn(t)
	out := collect(client)

	func() {
		defer func() {
			r := recover()
			fatal, ok := r.(*FatalError)
			if !ok {
				t.Fatalf("recovered %v, want *FatalError", r)
			}
			if fatal.Reason != "out of memory" {
				t.Errorf("Reason = %q", fatal.Reason)
			}
		}()
		d.HandleRequest(newRequest("GET", "/fatal"), conn, nil)
	}()

	conn.Release()
	if raw := waitOutput(t, out); raw != "" {
		t.Errorf("no response expected after fatal error, got %q", raw)
	}
}

func TestDispatcher_ReadFailureTriage(t *testing.T) {
	d := NewDispatcher()
	d.AddResource("", &textHandler{name: "root"})

	t.Run("protocol error answers 400", func(t *testing.T) {
		raw := dispatchRaw(t, d, nil, domain.ErrMalformedMessage.WithDetails("bad line"))
		resp, body := parseResponse(t, raw, "GET")
		if resp.StatusCode != http.StatusBadRequest || resp.Status != "400 Bad Request" {
			t.Errorf("status = %q", resp.Status)
		}
		if body != badRequestHTML {
			t.Errorf("body = %q", body)
		}
		if !resp.Close {
			t.Error("400 response should close the connection")
		}
	})

	t.Run("transport error closes silently", func(t *testing.T) {
		raw := dispatchRaw(t, d, nil, domain.ErrReadTimeout)
		if raw != "" {
			t.Errorf("expected no bytes, got %q", raw)
		}
	})

	t.Run("invalid request closes silently", func(t *testing.T) {
		raw := dispatchRaw(t, d, &domain.Request{}, nil)
		if raw != "" {
			t.Errorf("expected no bytes, got %q", raw)
		}
	})
}

type gate struct {
	allow   bool
	respond bool
	seen    string
}

func (g *gate) Authenticate(req *domain.Request, conn *Conn) bool {
	g.seen = req.Resource()
	if !g.allow && g.respond {
		_ = RespondForbidden(req, conn, "no entry")
	}
	return g.allow
}

func TestDispatcher_AuthenticationGate(t *testing.T) {
	t.Run("rejection stops dispatch", func(t *testing.T) {
		h := &textHandler{name: "secret"}
		g := &gate{allow: false, respond: true}
		d := NewDispatcher(WithAuthenticator(g))
		d.AddRedirect("/old", "/secret")
		d.AddResource("/secret", h)

		resp, body := dispatch(t, d, newRequest("GET", "/old"))
		if resp.StatusCode != http.StatusForbidden || !strings.Contains(body, "no entry") {
			t.Errorf("status = %d body = %q", resp.StatusCode, body)
		}
		if g.seen != "/secret" {
			t.Errorf("gate saw %q, want redirected resource", g.seen)
		}
		if h.calls.Load() != 0 {
			t.Error("handler ran after rejection")
		}
	})

	t.Run("acceptance proceeds", func(t *testing.T) {
		d := NewDispatcher()
		d.SetAuthenticator(&gate{allow: true})
		d.AddResource("/secret", &textHandler{name: "secret"})

		_, body := dispatch(t, d, newRequest("GET", "/secret"))
		if body != "secret" {
			t.Errorf("body = %q", body)
		}
	})

	t.Run("silent rejection closes", func(t *testing.T) {
		d := NewDispatcher(WithAuthenticator(&gate{allow: false}))
		d.AddResource("/secret", &textHandler{name: "secret"})
		if raw := dispatchRaw(t, d, newRequest("GET", "/secret"), nil); raw != "" {
			t.Errorf("expected no bytes, got %q", raw)
		}
	})
}

func TestDispatcher_CustomResponders(t *testing.T) {
	var got string
	d := NewDispatcher(WithNotFoundResponder(func(req *domain.Request, conn *Conn) error {
		got = req.Resource()
		conn.Finish()
		return nil
	}))
	dispatchRaw(t, d, newRequest("GET", "/nothing/"), nil)
	if got != "/nothing" {
		t.Errorf("custom responder saw %q", got)
	}
}

func TestDispatcher_ConcurrentMutationAndLookup(t *testing.T) {
	d := NewDispatcher()
	d.AddResource("", &textHandler{name: "root"})

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				p := fmt.Sprintf("/w%d/%d", w, i)
				d.AddResource(p, &textHandler{name: p})
				d.AddRedirect(p+"/old", p)
				d.RemoveResource(p)
			}
		}(w)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if _, _, ok := d.FindHandler(fmt.Sprintf("/w%d/%d/x", w, i)); !ok {
					t.Error("root handler should always match")
					return
				}
			}
		}(w)
	}
	wg.Wait()
}
