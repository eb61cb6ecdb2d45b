package api

import (
	"log/slog"
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Queue     string `json:"queue,omitempty"`
}

// health reports ok when the queue store answers a ping, and 503 with
// status "degraded" otherwise.
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	status := http.StatusOK

	if err := a.eng.Dispatcher().Store().Ping(r.Context()); err != nil {
		a.logger.WarnContext(r.Context(), "health: queue ping failed", slog.String("error", err.Error()))
		resp.Status = "degraded"
		resp.Queue = "unavailable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
