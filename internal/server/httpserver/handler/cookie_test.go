package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/yndnr/routemesh-go/internal/core/domain"
)

func cookieRequest(method string, query map[string]string) *domain.Request {
	req := domain.NewRequest(method, "/cookies")
	for k, v := range query {
		req.Query.Set(k, v)
	}
	return req
}

func TestCookieService_ListsCookies(t *testing.T) {
	h := mustNew(t, "cookie", "/cookies", nil, Deps{})
	req := cookieRequest(http.MethodGet, nil)
	req.Header.Add("Cookie", "theme=dark; lang=en")

	resp, body := serve(t, h, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "text/html" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	for _, want := range []string{"<li>theme: dark</li>", "<li>lang: en</li>"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if len(resp.Header.Values("Set-Cookie")) != 0 {
		t.Error("listing should not set cookies")
	}
}

func TestCookieService_NoCookies(t *testing.T) {
	h := mustNew(t, "cookie", "/cookies", nil, Deps{})
	_, body := serve(t, h, cookieRequest(http.MethodGet, nil))
	if !strings.Contains(body, "No cookies received.") {
		t.Errorf("body = %q", body)
	}
}

func TestCookieService_Actions(t *testing.T) {
	tests := []struct {
		name  string
		query map[string]string
		want  []string
	}{
		{
			name:  "add",
			query: map[string]string{"action": "add", "name": "session", "value": "abc"},
			want:  []string{"session=abc", "Path=/"},
		},
		{
			name:  "delete",
			query: map[string]string{"action": "delete", "name": "session"},
			want:  []string{"session=", "Max-Age=0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := mustNew(t, "cookie", "/cookies", nil, Deps{})
			resp, body := serve(t, h, cookieRequest(http.MethodGet, tt.query))
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			set := resp.Header.Get("Set-Cookie")
			for _, w := range tt.want {
				if !strings.Contains(set, w) {
					t.Errorf("Set-Cookie = %q, missing %q", set, w)
				}
			}
			if !strings.Contains(body, "Updated cookie <b>session</b>") {
				t.Errorf("body = %q", body)
			}
		})
	}
}

func TestCookieService_CustomPath(t *testing.T) {
	h := mustNew(t, "cookie", "/cookies", Options{"path": "/app"}, Deps{})
	resp, _ := serve(t, h, cookieRequest(http.MethodGet, map[string]string{"action": "add", "name": "a", "value": "1"}))
	if !strings.Contains(resp.Header.Get("Set-Cookie"), "Path=/app") {
		t.Errorf("Set-Cookie = %q", resp.Header.Get("Set-Cookie"))
	}
}

func TestCookieService_BadRequests(t *testing.T) {
	tests := []struct {
		name  string
		query map[string]string
	}{
		{"unknown action", map[string]string{"action": "bake"}},
		{"add without name", map[string]string{"action": "add", "value": "x"}},
		{"invalid name", map[string]string{"action": "add", "name": "bad name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := mustNew(t, "cookie", "/cookies", nil, Deps{})
			resp, _ := serve(t, h, cookieRequest(http.MethodGet, tt.query))
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestCookieService_MethodNotAllowed(t *testing.T) {
	h := mustNew(t, "cookie", "/cookies", nil, Deps{})
	resp, _ := serve(t, h, cookieRequest(http.MethodPost, nil))
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Allow") != "GET, HEAD" {
		t.Errorf("Allow = %q", resp.Header.Get("Allow"))
	}
}
