package handler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yndnr/routemesh-go/internal/core/domain"
	"github.com/yndnr/routemesh-go/internal/server/httpserver"
)

// EchoService writes a plain-text description of the request back to the
// client.
type EchoService struct {
	showBody bool
}

func newEchoService(resource string, opts Options, deps Deps) (httpserver.Handler, error) {
	showBody, err := opts.Bool("show_body", true)
	if err != nil {
		return nil, err
	}
	return &EchoService{showBody: showBody}, nil
}

// HandleRequest implements httpserver.Handler.
func (s *EchoService) HandleRequest(req *domain.Request, conn *httpserver.Conn) error {
	var b strings.Builder
	b.WriteString("[Request Information]\n")
	fmt.Fprintf(&b, "Request ID: %s\n", req.ID)
	fmt.Fprintf(&b, "HTTP method: %s\n", req.Method)
	fmt.Fprintf(&b, "Resource originally requested: %s\n", req.OriginalResource())
	fmt.Fprintf(&b, "Resource delivered: %s\n", req.Resource())
	fmt.Fprintf(&b, "Query string: %s\n", req.Query.Encode())
	fmt.Fprintf(&b, "HTTP version: %s\n", req.Version)
	fmt.Fprintf(&b, "Content length: %d\n", len(req.Body))
	fmt.Fprintf(&b, "Remote address: %s\n", req.RemoteAddr)
	if req.User != "" {
		fmt.Fprintf(&b, "Authenticated user: %s\n", req.User)
	}

	writeSection(&b, "Request Headers", req.Header)
	writeSection(&b, "Query Parameters", req.Query)

	cookies := make(map[string][]string)
	for _, c := range req.Cookies() {
		cookies[c.Name] = append(cookies[c.Name], c.Value)
	}
	writeSection(&b, "Cookie Headers", cookies)

	if s.showBody && len(req.Body) > 0 {
		b.WriteString("\n[POST Content]\n")
		b.Write(req.Body)
		b.WriteByte('\n')
	}

	w := httpserver.NewResponseWriter(req, conn)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteString(b.String())
	return w.Send()
}

func writeSection(b *strings.Builder, title string, values map[string][]string) {
	b.WriteString("\n[")
	b.WriteString(title)
	b.WriteString("]\n")
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range values[k] {
			fmt.Fprintf(b, "%s: %s\n", k, v)
		}
	}
}
