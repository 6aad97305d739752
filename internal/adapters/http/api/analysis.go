package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/strata/internal/domain/splice"
	"github.com/okian/strata/internal/domain/suggest"
)

type intervalDTO struct {
	SectionID string   `json:"section_id"`
	StartAge  *float64 `json:"start_age"`
	EndAge    *float64 `json:"end_age"`
}

type spliceRequest struct {
	Intervals []intervalDTO `json:"intervals"`
}

type correlateRequest struct {
	ReferenceID string  `json:"reference_id"`
	TargetID    string  `json:"target_id"`
	Proxy       string  `json:"proxy"`
	MaxLag      float64 `json:"max_lag"`
	LagStep     float64 `json:"lag_step"`
}

type leadLagRequest struct {
	SectionID string  `json:"section_id"`
	Lead      string  `json:"lead"`
	Lag       string  `json:"lag"`
	MaxLag    float64 `json:"max_lag"`
	LagStep   float64 `json:"lag_step"`
}

type suggestRequest struct {
	ReferenceID string `json:"reference_id"`
	TargetID    string `json:"target_id"`
	Proxy       string `json:"proxy"`
}

type acceptRequest struct {
	ReferenceID     string  `json:"reference_id"`
	TargetID        string  `json:"target_id"`
	RefPosition     float64 `json:"ref_position"`
	TargetPosition  float64 `json:"target_position"`
	ExpectedVersion *uint64 `json:"expected_version,omitempty"`
}

// AnalysisHandler serves splicing, correlation and tie-point suggestion.
type AnalysisHandler struct {
	deps Dependencies
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(deps Dependencies) *AnalysisHandler {
	return &AnalysisHandler{deps: deps}
}

// HandleSplice handles POST /splice.
func (h *AnalysisHandler) HandleSplice(w http.ResponseWriter, r *http.Request) {
	var req spliceRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	intervals := make(map[string]splice.Interval, len(req.Intervals))
	for _, iv := range req.Intervals {
		if strings.TrimSpace(iv.SectionID) == "" {
			writeError(w, fmt.Errorf("%w: interval without section_id", ErrBadRequest))
			return
		}
		if _, dup := intervals[iv.SectionID]; dup {
			writeError(w, fmt.Errorf("%w: section %s listed twice", ErrBadRequest, iv.SectionID))
			return
		}
		intervals[iv.SectionID] = splice.Interval{SectionID: iv.SectionID, StartAge: iv.StartAge, EndAge: iv.EndAge}
	}
	out, err := h.deps.Splice(r.Context(), intervals)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeries(out))
}

// HandleCorrelate handles POST /correlate.
func (h *AnalysisHandler) HandleCorrelate(w http.ResponseWriter, r *http.Request) {
	var req correlateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.Correlate(r.Context(), req.ReferenceID, req.TargetID, req.Proxy, req.MaxLag, req.LagStep)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCorrelation(res))
}

// HandleLeadLag handles POST /lead-lag.
func (h *AnalysisHandler) HandleLeadLag(w http.ResponseWriter, r *http.Request) {
	var req leadLagRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.LeadLag(r.Context(), req.SectionID, req.Lead, req.Lag, req.MaxLag, req.LagStep)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCorrelation(res))
}

// HandleSuggest handles POST /suggest.
func (h *AnalysisHandler) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	out, err := h.deps.Suggest(r.Context(), req.ReferenceID, req.TargetID, req.Proxy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSuggestions(out))
}

// HandleAccept handles POST /accept.
func (h *AnalysisHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	sg := suggest.Suggestion{RefPosition: req.RefPosition, TargetPosition: req.TargetPosition}
	m, err := h.deps.Accept(r.Context(), req.ReferenceID, req.TargetID, sg, req.ExpectedVersion)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgeModel(m))
}
