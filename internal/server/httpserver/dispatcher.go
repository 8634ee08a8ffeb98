package httpserver

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/yndnr/routemesh-go/internal/core/domain"
	"github.com/yndnr/routemesh-go/internal/telemetry/metric"
)

// DefaultMaxRedirects bounds redirect resolution per request.
const DefaultMaxRedirects = 10

// Handler produces the response for a request routed to it. It owns
// sending the response. A returned error is answered with a 500 response
// and must only be returned when nothing has been sent yet.
type Handler interface {
	HandleRequest(req *domain.Request, conn *Conn) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req *domain.Request, conn *Conn) error

// HandleRequest calls f.
func (f HandlerFunc) HandleRequest(req *domain.Request, conn *Conn) error {
	return f(req, conn)
}

// Authenticator gates requests before handler lookup. Returning false
// means the authenticator has already sent a complete response.
type Authenticator interface {
	Authenticate(req *domain.Request, conn *Conn) bool
}

// FatalError is the unrecoverable signal raised by Abort. The dispatcher
// never converts it into a response.
type FatalError struct {
	Reason string
	Cause  error
}

func (e *FatalError) Error() string {
	if e.Cause != nil {
		return "fatal: " + e.Reason + ": " + e.Cause.Error()
	}
	return "fatal: " + e.Reason
}

func (e *FatalError) Unwrap() error { return e.Cause }

// Abort raises a FatalError from inside a handler. Use it only when the
// process state can no longer be trusted, e.g. resource exhaustion.
func Abort(reason string, cause error) {
	panic(&FatalError{Reason: reason, Cause: cause})
}

// StripTrailingSlash removes one trailing slash. The root path "/" is
// kept as is.
func StripTrailingSlash(path string) string {
	if len(path) > 1 && path[len(path)-1] == '/' {
		return path[:len(path)-1]
	}
	return path
}

// MatchesResource applies the path-boundary rule: key must be a prefix
// of resource ending at a segment boundary. The empty key matches every
// path; "/" already ends on a boundary.
func MatchesResource(resource, key string) bool {
	if key == "" {
		return true
	}
	if !strings.HasPrefix(resource, key) {
		return false
	}
	return len(resource) == len(key) || resource[len(key)] == '/' || key[len(key)-1] == '/'
}

type resourceEntry struct {
	path    string
	handler Handler
}

func resourceLess(a, b resourceEntry) bool { return a.path < b.path }

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxRedirects sets the redirect hop bound.
func WithMaxRedirects(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.maxRedirects = n
		}
	}
}

// WithAuthenticator installs an authentication gate.
func WithAuthenticator(a Authenticator) DispatcherOption {
	return func(d *Dispatcher) {
		d.auth = a
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) DispatcherOption {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithBadRequestResponder replaces the 400 responder.
func WithBadRequestResponder(fn RequestResponder) DispatcherOption {
	return func(d *Dispatcher) { d.badRequest = fn }
}

// WithNotFoundResponder replaces the 404 responder.
func WithNotFoundResponder(fn RequestResponder) DispatcherOption {
	return func(d *Dispatcher) { d.notFound = fn }
}

// WithServerErrorResponder replaces the 500 responder.
func WithServerErrorResponder(fn MessageResponder) DispatcherOption {
	return func(d *Dispatcher) { d.serverError = fn }
}

// Dispatcher routes parsed requests to registered handlers.
//
// The resource registry and the redirect map share one lock. Lookups
// copy the handler out and release the lock before invoking it.
type Dispatcher struct {
	mu        sync.RWMutex
	resources *btree.BTreeG[resourceEntry]
	redirects map[string]string
	auth      Authenticator

	maxRedirects int
	badRequest   RequestResponder
	notFound     RequestResponder
	serverError  MessageResponder

	logger  *slog.Logger
	metrics *metric.Registry
}

// NewDispatcher creates a dispatcher with the canonical responders.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		resources:    btree.NewG(16, resourceLess),
		redirects:    make(map[string]string),
		maxRedirects: DefaultMaxRedirects,
		badRequest:   RespondBadRequest,
		notFound:     RespondNotFound,
		serverError:  RespondServerError,
		logger:       slog.Default(),
		metrics:      metric.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AddResource registers h for path. When the normalized path is already
// registered the existing handler is kept and false is returned.
func (d *Dispatcher) AddResource(path string, h Handler) bool {
	clean := StripTrailingSlash(path)
	d.mu.Lock()
	if d.resources.Has(resourceEntry{path: clean}) {
		d.mu.Unlock()
		d.logger.Debug("http resource already registered", "resource", clean)
		return false
	}
	d.resources.ReplaceOrInsert(resourceEntry{path: clean, handler: h})
	d.mu.Unlock()

	d.logger.Info("added request handler for http resource", "resource", clean)
	return true
}

// RemoveResource unregisters path. Unknown paths are ignored.
func (d *Dispatcher) RemoveResource(path string) {
	clean := StripTrailingSlash(path)
	d.mu.Lock()
	_, removed := d.resources.Delete(resourceEntry{path: clean})
	d.mu.Unlock()

	if removed {
		d.logger.Info("removed request handler for http resource", "resource", clean)
	}
}

// ClearResources unregisters every handler.
func (d *Dispatcher) ClearResources() {
	d.mu.Lock()
	d.resources.Clear(false)
	d.mu.Unlock()
}

// AddRedirect maps requests for from onto to, replacing any earlier
// mapping for from. Cycles are allowed here and caught at resolution.
func (d *Dispatcher) AddRedirect(from, to string) {
	cleanFrom, cleanTo := StripTrailingSlash(from), StripTrailingSlash(to)
	d.mu.Lock()
	d.redirects[cleanFrom] = cleanTo
	d.mu.Unlock()

	d.logger.Info("added redirection for http resource", "resource", cleanFrom, "target", cleanTo)
}

// SetRedirects atomically replaces the whole redirect map.
func (d *Dispatcher) SetRedirects(redirects map[string]string) {
	next := make(map[string]string, len(redirects))
	for from, to := range redirects {
		next[StripTrailingSlash(from)] = StripTrailingSlash(to)
	}
	d.mu.Lock()
	d.redirects = next
	d.mu.Unlock()

	d.logger.Info("replaced http redirects", "count", len(next))
}

// Redirects returns a copy of the redirect map.
func (d *Dispatcher) Redirects() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.redirects))
	for k, v := range d.redirects {
		out[k] = v
	}
	return out
}

// Resources returns the registered paths in order.
func (d *Dispatcher) Resources() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, d.resources.Len())
	d.resources.Ascend(func(e resourceEntry) bool {
		out = append(out, e.path)
		return true
	})
	return out
}

// ResourceCount returns the number of registered handlers.
func (d *Dispatcher) ResourceCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.resources.Len()
}

// RedirectCount returns the number of redirects.
func (d *Dispatcher) RedirectCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.redirects)
}

// SetAuthenticator installs or, with nil, removes the authentication gate.
func (d *Dispatcher) SetAuthenticator(a Authenticator) {
	d.mu.Lock()
	d.auth = a
	d.mu.Unlock()
}

func (d *Dispatcher) authenticator() Authenticator {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.auth
}

// FindHandler returns the handler registered at the longest prefix of
// resource that ends on a path boundary, and the key it was found under.
func (d *Dispatcher) FindHandler(resource string) (Handler, string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var found resourceEntry
	ok := false
	// Keys at or before resource in descending order: the first one that
	// passes the boundary rule is the longest match.
	d.resources.DescendLessOrEqual(resourceEntry{path: resource}, func(e resourceEntry) bool {
		if MatchesResource(resource, e.path) {
			found, ok = e, true
			return false
		}
		return true
	})
	return found.handler, found.path, ok
}

// resolveRedirects rewrites req's current resource through the redirect
// map and returns the number of hops taken.
func (d *Dispatcher) resolveRedirects(req *domain.Request) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	hops := 0
	for {
		target, ok := d.redirects[req.Resource()]
		if !ok {
			return hops, nil
		}
		hops++
		if hops > d.maxRedirects {
			return hops, domain.ErrMaxRedirects.WithDetails(
				"limit " + strconv.Itoa(d.maxRedirects) + " for requested resource " + req.OriginalResource())
		}
		req.ChangeResource(target)
	}
}

// HandleRequest is the Reader completion callback: it triages read
// failures and dispatches valid requests. Exactly one response is sent,
// or the connection is closed silently.
func (d *Dispatcher) HandleRequest(req *domain.Request, conn *Conn, readErr error) {
	if readErr != nil || !req.IsValid() {
		conn.SetLifecycle(LifecycleClose)
		d.handleReadFailure(req, conn, readErr)
		return
	}

	start := time.Now()
	outcome := d.dispatch(req, conn)
	d.metrics.RequestsTotal.WithLabelValues(outcome).Inc()
	d.metrics.RequestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func (d *Dispatcher) handleReadFailure(req *domain.Request, conn *Conn, readErr error) {
	if domain.IsProtocol(readErr) {
		d.logger.Info("invalid http request",
			"remote_addr", conn.RemoteAddr(),
			"error", readErr,
		)
		d.metrics.ReadFailures.WithLabelValues(domain.KindProtocol.String()).Inc()
		d.metrics.RequestsTotal.WithLabelValues(metric.OutcomeBadRequest).Inc()
		if err := d.badRequest(req, conn); err != nil {
			d.logger.Debug("failed to send bad request response", "error", err)
		}
		return
	}

	class := domain.KindTransport.String()
	if domain.IsDomainError(readErr, domain.ErrReadTimeout.Code) {
		class = "timeout"
	}
	if domain.IsDomainError(readErr, domain.ErrConnectionClosed.Code) {
		d.logger.Debug("connection closed by peer", "remote_addr", conn.RemoteAddr())
	} else {
		d.logger.Info("lost connection",
			"remote_addr", conn.RemoteAddr(),
			"error", readErr,
		)
	}
	d.metrics.ReadFailures.WithLabelValues(class).Inc()
	conn.Finish()
}

func (d *Dispatcher) dispatch(req *domain.Request, conn *Conn) string {
	logger := d.logger.With("request_id", req.ID)

	req.ChangeResource(StripTrailingSlash(req.Resource()))

	hops, err := d.resolveRedirects(req)
	d.metrics.RedirectHops.Observe(float64(hops))
	if err != nil {
		logger.Error("maximum number of redirects exceeded",
			"original_resource", req.OriginalResource(),
			"max_redirects", d.maxRedirects,
		)
		d.respondServerError(logger, req, conn, domain.ErrMaxRedirects.Message+
			" ("+strconv.Itoa(d.maxRedirects)+") for requested resource")
		return metric.OutcomeRedirectOverflow
	}

	if auth := d.authenticator(); auth != nil && !auth.Authenticate(req, conn) {
		logger.Debug("authentication required for http resource", "resource", req.Resource())
		if !conn.Responded() {
			// The gate must answer before rejecting; close instead of
			// leaving the client waiting.
			conn.SetLifecycle(LifecycleClose)
			conn.Finish()
		}
		return metric.OutcomeAuthRejected
	}

	h, key, ok := d.FindHandler(req.Resource())
	if !ok {
		logger.Info("no http request handlers found for resource", "resource", req.Resource())
		if req.Resource() != req.OriginalResource() {
			logger.Debug("original resource requested", "original_resource", req.OriginalResource())
		}
		if err := d.notFound(req, conn); err != nil {
			logger.Debug("failed to send not found response", "error", err)
		}
		return metric.OutcomeNotFound
	}

	if err := d.invoke(h, req, conn); err != nil {
		logger.Error("http request handler failed",
			"resource", req.Resource(),
			"handler_resource", key,
			"error", err,
		)
		if conn.Responded() {
			// Part of a response already went out; nothing safe to add.
			conn.SetLifecycle(LifecycleClose)
			conn.Close()
			return metric.OutcomeServerError
		}
		d.respondServerError(logger, req, conn, err.Error())
		return metric.OutcomeServerError
	}

	logger.Debug("found request handler for http resource",
		"resource", req.Resource(),
		"handler_resource", key,
	)
	if req.Resource() != req.OriginalResource() {
		logger.Debug("original resource requested", "original_resource", req.OriginalResource())
	}
	return metric.OutcomeHandled
}

// invoke calls h, converting ordinary panics into errors. A FatalError
// panic is re-raised unchanged.
func (d *Dispatcher) invoke(h Handler, req *domain.Request, conn *Conn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if fatal, ok := r.(*FatalError); ok {
				panic(fatal)
			}
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.HandleRequest(req, conn)
}

func (d *Dispatcher) respondServerError(logger *slog.Logger, req *domain.Request, conn *Conn, msg string) {
	if err := d.serverError(req, conn, msg); err != nil {
		logger.Debug("failed to send server error response", "error", err)
	}
}
