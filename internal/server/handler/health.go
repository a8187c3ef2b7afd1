package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// FeedProbe reports whether the market feed is live.
type FeedProbe interface {
	Healthy() bool
}

// Check is a dependency probe such as a database ping.
type Check func(ctx context.Context) error

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	feed    FeedProbe
	checks  map[string]Check
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewHealthHandler creates a HealthHandler. feed may be nil in modes that do
// not run the market feed.
func NewHealthHandler(feed FeedProbe, checks map[string]Check, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		feed:    feed,
		checks:  checks,
		timeout: 2 * time.Second,
		logger:  logger.With(slog.String("handler", "health")),
		now:     time.Now,
	}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Feed      string            `json:"feed,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// HealthCheck answers 200 when the feed is receiving and every check passes,
// 503 otherwise.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Timestamp: h.now().UTC().Format(time.RFC3339)}
	status := http.StatusOK

	if h.feed != nil {
		resp.Feed = "receiving"
		if !h.feed.Healthy() {
			resp.Feed = "down"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		names := make([]string, 0, len(h.checks))
		for name := range h.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Checks = make(map[string]string, len(names))
		for _, name := range names {
			if err := h.checks[name](ctx); err != nil {
				h.logger.WarnContext(ctx, "health check failed",
					slog.String("check", name),
					slog.String("error", err.Error()),
				)
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, status, resp)
}
