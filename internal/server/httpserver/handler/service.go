package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/routemesh-go/internal/server/httpserver"
	"github.com/yndnr/routemesh-go/internal/telemetry/metric"
)

// ErrUnknownService is returned by New for a name with no registered factory.
var ErrUnknownService = errors.New("handler: unknown service")

// Options carries per-resource service settings from configuration.
type Options map[string]string

// String returns the named option, or def when it is unset.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok && v != "" {
		return v
	}
	return def
}

// Duration parses the named option as a time.Duration.
func (o Options) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := o[key]
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return d, nil
}

// Bool parses the named option as a boolean.
func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("option %s: %w", key, err)
	}
	return b, nil
}

// Deps are the shared dependencies handed to every service factory.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metric.Registry
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Factory builds a service mounted at resource.
type Factory func(resource string, opts Options, deps Deps) (httpserver.Handler, error)

var factories = map[string]Factory{
	"cookie":  newCookieService,
	"echo":    newEchoService,
	"file":    newFileService,
	"health":  newHealthService,
	"metrics": newMetricsService,
}

// New builds the named service for the given resource.
func New(name, resource string, opts Options, deps Deps) (httpserver.Handler, error) {
	f, ok := factories[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	h, err := f(resource, opts, deps)
	if err != nil {
		return nil, fmt.Errorf("service %s at %q: %w", name, resource, err)
	}
	return h, nil
}

// Names lists the registered service names in sorted order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// relativePath returns the part of resource below the mount point. The
// result always starts with "/".
func relativePath(resource, mount string) string {
	rel := resource
	if mount != "" && mount != "/" {
		rel = strings.TrimPrefix(resource, mount)
	}
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return rel
}
