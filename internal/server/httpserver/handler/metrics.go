package handler

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/yndnr/routemesh-go/internal/core/domain"
	"github.com/yndnr/routemesh-go/internal/server/httpserver"
	"github.com/yndnr/routemesh-go/internal/telemetry/metric"
)

// MetricsService exposes a metric registry in the Prometheus text format.
type MetricsService struct {
	registry *metric.Registry
}

func newMetricsService(resource string, opts Options, deps Deps) (httpserver.Handler, error) {
	if deps.Metrics == nil {
		return nil, errors.New("metrics registry is not configured")
	}
	return &MetricsService{registry: deps.Metrics}, nil
}

// HandleRequest implements httpserver.Handler.
func (s *MetricsService) HandleRequest(req *domain.Request, conn *httpserver.Conn) error {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return httpserver.RespondMethodNotAllowed(req, conn, http.MethodGet, http.MethodHead)
	}
	var body bytes.Buffer
	if err := s.registry.WriteText(&body); err != nil {
		return err
	}
	w := httpserver.NewResponseWriter(req, conn)
	w.Header().Set("Content-Type", metric.ContentType)
	_, _ = w.Write(body.Bytes())
	return w.Send()
}
