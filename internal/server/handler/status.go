package handler

import (
	"net/http"

	"github.com/alanyoungcy/polyquoter/internal/feed"
)

// StatusSource yields a copy of the feed status.
type StatusSource interface {
	Snapshot() feed.Status
}

// StatusHandler serves GET /api/status.
type StatusHandler struct {
	mode   string
	source StatusSource
}

// NewStatusHandler creates a StatusHandler. source may be nil in archive mode.
func NewStatusHandler(mode string, source StatusSource) *StatusHandler {
	return &StatusHandler{mode: mode, source: source}
}

type statusResponse struct {
	Mode string       `json:"mode"`
	Feed *feed.Status `json:"feed,omitempty"`
}

// GetStatus responds with the run mode and the feed status.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Mode: h.mode}
	if h.source != nil {
		s := h.source.Snapshot()
		resp.Feed = &s
	}
	writeJSON(w, http.StatusOK, resp)
}
