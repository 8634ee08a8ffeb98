package httpserver

import (
	"log/slog"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/yndnr/routemesh-go/internal/core/domain"
)

// Middleware wraps a Handler with additional behavior.
type Middleware func(Handler) Handler

// Chain chains middlewares; the first one listed runs outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Audit logs every handled request with its status and duration.
func Audit(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(req *domain.Request, conn *Conn) error {
			start := time.Now()
			err := next.HandleRequest(req, conn)

			status := conn.Status()
			attrs := []any{
				"request_id", req.ID,
				"method", req.Method,
				"resource", req.Resource(),
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", ClientIP(req),
			}
			if req.User != "" {
				attrs = append(attrs, "user", req.User)
			}
			if req.Resource() != req.OriginalResource() {
				attrs = append(attrs, "original_resource", req.OriginalResource())
			}

			switch {
			case err != nil:
				logger.Error("request failed", append(attrs, "error", err)...)
			case status >= 500:
				logger.Error("request completed with error", attrs...)
			case status >= 400:
				logger.Warn("request completed with client error", attrs...)
			default:
				logger.Info("request completed", attrs...)
			}
			return err
		})
	}
}

// AllowMethods answers any other method with the canonical 405 response.
func AllowMethods(methods ...string) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(req *domain.Request, conn *Conn) error {
			if !slices.Contains(methods, req.Method) {
				return RespondMethodNotAllowed(req, conn, methods...)
			}
			return next.HandleRequest(req, conn)
		})
	}
}

// NetworkACL answers clients outside allowList with the canonical 403
// response. Entries are single IPs or CIDR blocks; invalid entries are
// logged and skipped. An empty list allows everyone.
func NetworkACL(allowList []string, logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	var networks []*net.IPNet
	for _, entry := range allowList {
		if !strings.Contains(entry, "/") {
			if strings.Contains(entry, ":") {
				entry += "/128"
			} else {
				entry += "/32"
			}
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn("invalid entry in allowlist", "entry", entry, "error", err)
			continue
		}
		networks = append(networks, ipNet)
	}

	return func(next Handler) Handler {
		return HandlerFunc(func(req *domain.Request, conn *Conn) error {
			if len(networks) == 0 {
				return next.HandleRequest(req, conn)
			}
			ip := net.ParseIP(PeerIP(req))
			if ip != nil {
				for _, n := range networks {
					if n.Contains(ip) {
						return next.HandleRequest(req, conn)
					}
				}
			}
			return RespondForbidden(req, conn, "client address not allowed")
		})
	}
}

// ClientIP returns the client address of req, preferring proxy headers.
// The headers are client-controlled; use PeerIP for access decisions.
func ClientIP(req *domain.Request) string {
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := req.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return PeerIP(req)
}

// PeerIP returns the host part of the transport peer address.
func PeerIP(req *domain.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
