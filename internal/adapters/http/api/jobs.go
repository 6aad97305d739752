package api

import (
	"net/http"

	"github.com/okian/strata/internal/adapters/mq/queue"
	service "github.com/okian/strata/internal/app"
)

type jobRequest struct {
	Kind        queue.Kind `json:"kind"`
	ReferenceID string     `json:"reference_id,omitempty"`
	TargetID    string     `json:"target_id,omitempty"`
	SectionID   string     `json:"section_id,omitempty"`
	Proxy       string     `json:"proxy,omitempty"`
	Lead        string     `json:"lead,omitempty"`
	Lag         string     `json:"lag,omitempty"`
	MaxLag      float64    `json:"max_lag,omitempty"`
	LagStep     float64    `json:"lag_step,omitempty"`
}

// JobsHandler serves asynchronous correlation and suggestion jobs.
type JobsHandler struct {
	deps Dependencies
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps Dependencies) *JobsHandler {
	return &JobsHandler{deps: deps}
}

// HandleSubmit handles POST /jobs. The job runs detached from the request.
func (h *JobsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.deps.Submit(r.Context(), service.CorrelationRequest{
		Kind:        req.Kind,
		ReferenceID: req.ReferenceID,
		TargetID:    req.TargetID,
		SectionID:   req.SectionID,
		ProxyKey:    req.Proxy,
		LeadKey:     req.Lead,
		LagKey:      req.Lag,
		MaxLag:      req.MaxLag,
		LagStep:     req.LagStep,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/jobs/"+snap.ID)
	writeJSON(w, http.StatusAccepted, toJob(snap))
}

// HandleGet handles GET /jobs/{id}.
func (h *JobsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Job(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJob(snap))
}

// HandleCancel handles DELETE /jobs/{id}.
func (h *JobsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.CancelJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJob(snap))
}
