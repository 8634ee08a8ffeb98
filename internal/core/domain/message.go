package domain

import (
	"crypto/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestIDPrefix is the prefix for request IDs.
const RequestIDPrefix = "rmrq-"

// Version is an HTTP protocol version.
type Version struct {
	Major int
	Minor int
}

// Common protocol versions.
var (
	HTTP10 = Version{1, 0}
	HTTP11 = Version{1, 1}
)

// String returns the wire form, e.g. "HTTP/1.1".
func (v Version) String() string {
	return "HTTP/" + strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// AtLeast reports whether v >= major.minor.
func (v Version) AtLeast(major, minor int) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

// Request is a parsed HTTP request.
//
// The original resource is fixed once parsed; the current resource is
// rewritten in place by redirect resolution.
type Request struct {
	ID         string
	Method     string
	Version    Version
	RequestURI string // raw request target as received
	Query      url.Values
	Header     http.Header
	Trailer    http.Header
	Body       []byte
	Host       string
	RemoteAddr string

	// User is the authenticated principal, set by the authentication gate.
	User string

	originalResource string
	resource         string
}

// NewRequest creates a request for method and an already decoded
// resource path.
func NewRequest(method, resource string) *Request {
	return &Request{
		ID:               GenerateRequestID(),
		Method:           method,
		Version:          HTTP11,
		RequestURI:       resource,
		Query:            url.Values{},
		Header:           make(http.Header),
		originalResource: resource,
		resource:         resource,
	}
}

// GenerateRequestID returns a new request ID: rmrq-{ulid_lowercase}.
func GenerateRequestID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return RequestIDPrefix + "unknown"
	}
	return RequestIDPrefix + strings.ToLower(id.String())
}

// Resource returns the current resource path.
func (r *Request) Resource() string { return r.resource }

// OriginalResource returns the resource path as it was parsed.
func (r *Request) OriginalResource() string { return r.originalResource }

// ChangeResource rewrites the current resource path.
func (r *Request) ChangeResource(resource string) { r.resource = resource }

// IsValid reports whether the request carries the minimum structure
// needed for dispatch.
func (r *Request) IsValid() bool {
	return r != nil && r.Method != "" && r.originalResource != ""
}

// KeepAlive reports whether the client asked to reuse the connection.
// HTTP/1.1 defaults to keep-alive, HTTP/1.0 requires an explicit token.
func (r *Request) KeepAlive() bool {
	if hasToken(r.Header, "Connection", "close") {
		return false
	}
	if r.Version.AtLeast(1, 1) {
		return true
	}
	return hasToken(r.Header, "Connection", "keep-alive")
}

// Cookies parses all Cookie headers. Malformed cookie lines are skipped.
func (r *Request) Cookies() []*http.Cookie {
	var out []*http.Cookie
	for _, line := range r.Header.Values("Cookie") {
		cookies, err := http.ParseCookie(line)
		if err != nil {
			continue
		}
		out = append(out, cookies...)
	}
	return out
}

// Cookie returns the named cookie, or nil.
func (r *Request) Cookie(name string) *http.Cookie {
	for _, c := range r.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func hasToken(h http.Header, key, token string) bool {
	for _, v := range h.Values(key) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// Response is the mutable response record filled in by handlers and
// responders before it is serialized.
type Response struct {
	StatusCode    int
	StatusMessage string
	Header        http.Header
	Body          []byte
}

// NewResponse creates a 200 OK response.
func NewResponse() *Response {
	return &Response{
		StatusCode:    http.StatusOK,
		StatusMessage: http.StatusText(http.StatusOK),
		Header:        make(http.Header),
	}
}

// SetStatus sets the status code and its canonical reason phrase.
func (r *Response) SetStatus(code int) {
	r.StatusCode = code
	r.StatusMessage = http.StatusText(code)
}
