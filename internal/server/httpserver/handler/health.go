package handler

import (
	"encoding/json"
	"time"

	"github.com/yndnr/routemesh-go/internal/core/domain"
	"github.com/yndnr/routemesh-go/internal/infra/buildinfo"
	"github.com/yndnr/routemesh-go/internal/server/httpserver"
)

// HealthStatus is the body returned by HealthService.
type HealthStatus struct {
	Status    string         `json:"status"`
	Timestamp int64          `json:"timestamp"`
	Uptime    string         `json:"uptime"`
	RequestID string         `json:"request_id"`
	Build     buildinfo.Info `json:"build"`
}

// HealthService reports that the engine is serving requests.
type HealthService struct {
	started time.Time
	now     func() time.Time
}

func newHealthService(resource string, opts Options, deps Deps) (httpserver.Handler, error) {
	return &HealthService{started: time.Now(), now: time.Now}, nil
}

// HandleRequest implements httpserver.Handler.
func (s *HealthService) HandleRequest(req *domain.Request, conn *httpserver.Conn) error {
	now := s.now()
	body, err := json.Marshal(HealthStatus{
		Status:    "ok",
		Timestamp: now.UnixMilli(),
		Uptime:    now.Sub(s.started).Truncate(time.Second).String(),
		RequestID: req.ID,
		Build:     buildinfo.Get(),
	})
	if err != nil {
		return err
	}

	w := httpserver.NewResponseWriter(req, conn)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Request-ID", req.ID)
	w.Write(body)
	return w.Send()
}
