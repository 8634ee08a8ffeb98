package auth

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/yndnr/routemesh-go/internal/core/domain"
	"github.com/yndnr/routemesh-go/internal/server/httpserver"
)

// Verifier checks the credentials carried by a request. On rejection it
// sends the response itself and returns false. It records the principal
// in req.User once the credentials are proven, including when a proven
// principal is then refused access.
type Verifier interface {
	Verify(req *domain.Request, conn *httpserver.Conn) bool
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLimiter throttles clients that keep failing verification.
func WithLimiter(l *AttemptLimiter) GateOption {
	return func(g *Gate) {
		g.limiter = l
	}
}

// WithGateLogger sets the gate's logger.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Gate is the dispatcher's authentication hook. It implements
// httpserver.Authenticator.
type Gate struct {
	scope    Scope
	verifier Verifier
	limiter  *AttemptLimiter
	logger   *slog.Logger
}

// NewGate creates a gate that asks verifier for every resource in scope.
func NewGate(scope Scope, verifier Verifier, opts ...GateOption) *Gate {
	g := &Gate{
		scope:    scope,
		verifier: verifier,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Scope returns the gate's scope.
func (g *Gate) Scope() Scope { return g.scope }

// Authenticate implements httpserver.Authenticator.
func (g *Gate) Authenticate(req *domain.Request, conn *httpserver.Conn) bool {
	// the principal is only ever set by a verifier
	req.User = ""
	if !g.scope.Requires(req.Resource()) {
		return true
	}

	client := httpserver.PeerIP(req)
	if blocked, retry := g.limiter.Blocked(client); blocked {
		g.logger.Warn("authentication throttled",
			"request_id", req.ID,
			"client_ip", client,
			"retry_after", retry,
		)
		if err := RespondTooManyRequests(req, conn, retry); err != nil {
			g.logger.Debug("failed to send throttle response", "error", err)
		}
		return false
	}

	if g.verifier.Verify(req, conn) {
		return true
	}
	if req.User != "" {
		// valid credentials without access are not guessing
		g.logger.Info("access denied",
			"request_id", req.ID,
			"resource", req.Resource(),
			"user", req.User,
		)
		return false
	}
	g.limiter.Fail(client)
	g.logger.Info("authentication rejected",
		"request_id", req.ID,
		"resource", req.Resource(),
		"client_ip", client,
	)
	return false
}

// RespondUnauthorized sends a 401 response carrying challenge in the
// WWW-Authenticate header.
func RespondUnauthorized(req *domain.Request, conn *httpserver.Conn, challenge string) error {
	body := "<html><head>\n" +
		"<title>401 Unauthorized</title>\n" +
		"</head><body>\n" +
		"<h1>Unauthorized</h1>\n" +
		"<p>This server could not verify that you are authorized to access the requested URL.</p>\n" +
		"</body></html>\n"
	w := httpserver.NewResponseWriter(req, conn)
	w.SetStatus(http.StatusUnauthorized)
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "text/html")
	w.WriteString(body)
	return w.Send()
}

// RespondTooManyRequests sends a 429 response advising the client to wait
// for retry.
func RespondTooManyRequests(req *domain.Request, conn *httpserver.Conn, retry time.Duration) error {
	body := "<html><head>\n" +
		"<title>429 Too Many Requests</title>\n" +
		"</head><body>\n" +
		"<h1>Too Many Requests</h1>\n" +
		"<p>Too many failed authentication attempts. Try again later.</p>\n" +
		"</body></html>\n"
	w := httpserver.NewResponseWriter(req, conn)
	w.SetStatus(http.StatusTooManyRequests)
	secs := int(math.Ceil(retry.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.Header().Set("Content-Type", "text/html")
	w.WriteString(body)
	return w.Send()
}
