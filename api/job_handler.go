package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/intake/id"
	"github.com/xraph/intake/job"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// jobView is the JSON shape of a job. The payload is inlined as JSON
// rather than base64.
type jobView struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	State          job.State       `json:"state"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"maxAttempts"`
	AvailableAt    time.Time       `json:"availableAt"`
	Seq            int64           `json:"seq"`
	WorkerID       string          `json:"workerId,omitempty"`
	LeaseExpiresAt *time.Time      `json:"leaseExpiresAt,omitempty"`
	LastError      string          `json:"lastError,omitempty"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	FailedAt       *time.Time      `json:"failedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func viewOf(j *job.Job) jobView {
	v := jobView{
		ID:             j.ID.String(),
		Kind:           j.Kind,
		Payload:        json.RawMessage(j.Payload),
		State:          j.State,
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		AvailableAt:    j.AvailableAt,
		Seq:            j.Seq,
		LeaseExpiresAt: j.LeaseExpiresAt,
		LastError:      j.LastError,
		StartedAt:      j.StartedAt,
		FailedAt:       j.FailedAt,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
	if !json.Valid(j.Payload) {
		v.Payload = nil
	}
	if !j.WorkerID.IsNil() {
		v.WorkerID = j.WorkerID.String()
	}
	return v
}

func viewsOf(jobs []*job.Job) []jobView {
	out := make([]jobView, len(jobs))
	for i, j := range jobs {
		out[i] = viewOf(j)
	}
	return out
}

// listOpts reads limit and offset from the query string.
func listOpts(r *http.Request) (job.ListOpts, error) {
	opts := job.ListOpts{Limit: defaultListLimit}
	q := r.URL.Query()
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return opts, NewAppError(http.StatusBadRequest, "limit must be a positive integer")
		}
		opts.Limit = min(n, maxListLimit)
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return opts, NewAppError(http.StatusBadRequest, "offset must be a non-negative integer")
		}
		opts.Offset = n
	}
	return opts, nil
}

func parseJobID(r *http.Request) (id.JobID, error) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobId"))
	if err != nil {
		return id.Nil, NewAppError(http.StatusBadRequest, fmt.Sprintf("invalid job ID: %v", err))
	}
	return jobID, nil
}

// listJobs lists jobs in ?state= (default waiting).
func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	state := job.StateWaiting
	if s := r.URL.Query().Get("state"); s != "" {
		parsed, err := job.ParseState(s)
		if err != nil {
			a.writeError(w, r, NewAppError(http.StatusBadRequest, fmt.Sprintf("unknown state %q", s)))
			return
		}
		state = parsed
	}
	opts, err := listOpts(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	jobs, err := a.eng.JobStore().ListJobsByState(r.Context(), state, opts)
	if err != nil {
		a.writeError(w, r, fmt.Errorf("list jobs: %w", err))
		return
	}
	writeData(w, http.StatusOK, viewsOf(jobs))
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	j, err := a.eng.JobStore().GetJob(r.Context(), jobID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, viewOf(j))
}

// jobCounts returns the number of jobs per state plus a total.
func (a *API) jobCounts(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int64, len(job.States)+1)
	var total int64
	for _, state := range job.States {
		n, err := a.eng.JobStore().CountJobs(r.Context(), job.CountOpts{State: state})
		if err != nil {
			a.writeError(w, r, fmt.Errorf("count jobs (%s): %w", state, err))
			return
		}
		counts[string(state)] = n
		total += n
	}
	counts["total"] = total
	writeData(w, http.StatusOK, counts)
}
