package handler

import (
	"html"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/routemesh-go/internal/core/domain"
	"github.com/yndnr/routemesh-go/internal/server/httpserver"
)

// CookieService renders the cookies sent with a request as an HTML page.
//
// The query string can modify the client's cookies:
//
//	?action=add&name=NAME&value=VALUE
//	?action=delete&name=NAME
type CookieService struct {
	path   string
	logger *slog.Logger
}

func newCookieService(resource string, opts Options, deps Deps) (httpserver.Handler, error) {
	return &CookieService{
		path:   opts.String("path", "/"),
		logger: deps.logger().With("service", "cookie"),
	}, nil
}

// HandleRequest implements httpserver.Handler.
func (s *CookieService) HandleRequest(req *domain.Request, conn *httpserver.Conn) error {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return httpserver.RespondMethodNotAllowed(req, conn, http.MethodGet, http.MethodHead)
	}

	var setCookie *http.Cookie
	switch action := req.Query.Get("action"); action {
	case "":
	case "add", "delete":
		name := req.Query.Get("name")
		if name == "" {
			return httpserver.RespondBadRequest(req, conn)
		}
		setCookie = &http.Cookie{Name: name, Path: s.path}
		if action == "add" {
			setCookie.Value = req.Query.Get("value")
		} else {
			setCookie.MaxAge = -1
		}
		if setCookie.Valid() != nil {
			return httpserver.RespondBadRequest(req, conn)
		}
		s.logger.Debug("cookie updated", "action", action, "name", name, "request_id", req.ID)
	default:
		return httpserver.RespondBadRequest(req, conn)
	}

	var b strings.Builder
	b.WriteString("<html><head>\n<title>Cookie Service</title>\n</head><body>\n<h1>Cookie Service</h1>\n")
	cookies := req.Cookies()
	if len(cookies) == 0 {
		b.WriteString("<p>No cookies received.</p>\n")
	} else {
		b.WriteString("<h2>Cookies in Request</h2>\n<ul>\n")
		for _, c := range cookies {
			b.WriteString("<li>")
			b.WriteString(html.EscapeString(c.Name))
			b.WriteString(": ")
			b.WriteString(html.EscapeString(c.Value))
			b.WriteString("</li>\n")
		}
		b.WriteString("</ul>\n")
	}
	if setCookie != nil {
		b.WriteString("<p>Updated cookie <b>")
		b.WriteString(html.EscapeString(setCookie.Name))
		b.WriteString("</b>.</p>\n")
	}
	b.WriteString("</body></html>\n")

	w := httpserver.NewResponseWriter(req, conn)
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Cache-Control", "no-cache")
	if setCookie != nil {
		w.Header().Add("Set-Cookie", setCookie.String())
	}
	w.WriteString(b.String())
	return w.Send()
}
