package domain

import (
	"strings"
	"testing"
)

func TestNewRequest(t *testing.T) {
	req := NewRequest("GET", "/a/b/")
	if req.Resource() != "/a/b/" || req.OriginalResource() != "/a/b/" {
		t.Fatalf("resources = %q / %q", req.Resource(), req.OriginalResource())
	}
	if !strings.HasPrefix(req.ID, RequestIDPrefix) {
		t.Errorf("ID = %q, want prefix %q", req.ID, RequestIDPrefix)
	}
	if !req.IsValid() {
		t.Error("request should be valid")
	}

	req.ChangeResource("/c")
	if req.Resource() != "/c" {
		t.Errorf("Resource() = %q, want /c", req.Resource())
	}
	if req.OriginalResource() != "/a/b/" {
		t.Errorf("OriginalResource() changed to %q", req.OriginalResource())
	}
}

func TestRequest_IsValid(t *testing.T) {
	var nilReq *Request
	if nilReq.IsValid() {
		t.Error("nil request should be invalid")
	}
	if (&Request{}).IsValid() {
		t.Error("empty request should be invalid")
	}
}

func TestGenerateRequestID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestRequest_KeepAlive(t *testing.T) {
	tests := []struct {
		name       string
		version    Version
		connection string
		want       bool
	}{
		{"http/1.1 default", HTTP11, "", true},
		{"http/1.1 close", HTTP11, "close", false},
		{"http/1.1 close mixed case list", HTTP11, "Upgrade, Close", false},
		{"http/1.0 default", HTTP10, "", false},
		{"http/1.0 keep-alive", HTTP10, "keep-alive", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewRequest("GET", "/")
			req.Version = tt.version
			if tt.connection != "" {
				req.Header.Set("Connection", tt.connection)
			}
			if got := req.KeepAlive(); got != tt.want {
				t.Errorf("KeepAlive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequest_Cookies(t *testing.T) {
	req := NewRequest("GET", "/")
	req.Header.Add("Cookie", "a=1; b=two")
	req.Header.Add("Cookie", "c=3")

	cookies := req.Cookies()
	if len(cookies) != 3 {
		t.Fatalf("len(Cookies()) = %d, want 3", len(cookies))
	}
	if c := req.Cookie("b"); c == nil || c.Value != "two" {
		t.Errorf("Cookie(b) = %v", c)
	}
	if req.Cookie("missing") != nil {
		t.Error("Cookie(missing) should be nil")
	}
}

func TestVersion(t *testing.T) {
	if HTTP11.String() != "HTTP/1.1" || HTTP10.String() != "HTTP/1.0" {
		t.Error("unexpected version strings")
	}
	if !HTTP11.AtLeast(1, 0) || HTTP10.AtLeast(1, 1) {
		t.Error("AtLeast misbehaves")
	}
}

func TestResponse_SetStatus(t *testing.T) {
	resp := NewResponse()
	if resp.StatusCode != 200 || resp.StatusMessage != "OK" {
		t.Fatalf("default status = %d %q", resp.StatusCode, resp.StatusMessage)
	}
	resp.SetStatus(404)
	if resp.StatusCode != 404 || resp.StatusMessage != "Not Found" {
		t.Errorf("status = %d %q", resp.StatusCode, resp.StatusMessage)
	}
}
