package api

import (
	"fmt"
	"net/http"
	"time"
)

type purgeResponse struct {
	Purged int64 `json:"purged"`
}

func (a *API) listDead(w http.ResponseWriter, r *http.Request) {
	opts, err := listOpts(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	jobs, err := a.eng.DLQService().List(r.Context(), opts)
	if err != nil {
		a.writeError(w, r, fmt.Errorf("list dead jobs: %w", err))
		return
	}
	writeData(w, http.StatusOK, viewsOf(jobs))
}

func (a *API) getDead(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	j, err := a.eng.DLQService().Get(r.Context(), jobID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, viewOf(j))
}

// replayDead enqueues a fresh copy of a dead job and returns it.
func (a *API) replayDead(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	j, err := a.eng.DLQService().Replay(r.Context(), jobID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, viewOf(j))
}

// purgeDead deletes dead jobs. ?before= takes an RFC 3339 timestamp or an
// age such as 720h; without it every dead job is purged.
func (a *API) purgeDead(w http.ResponseWriter, r *http.Request) {
	before, err := parseBefore(r.URL.Query().Get("before"), time.Now().UTC())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	n, err := a.eng.DLQService().Purge(r.Context(), before)
	if err != nil {
		a.writeError(w, r, fmt.Errorf("purge dead jobs: %w", err))
		return
	}
	writeData(w, http.StatusOK, purgeResponse{Purged: n})
}

func parseBefore(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, NewAppError(http.StatusBadRequest, "before must be an RFC 3339 timestamp or a duration")
}
