package api

import (
	"fmt"
	"net/http"
	"strconv"
)

type createSectionRequest struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Samples []sampleDTO `json:"samples"`
}

type addTiePointRequest struct {
	Depth           *float64 `json:"depth"`
	Age             *float64 `json:"age"`
	ExpectedVersion *uint64  `json:"expected_version,omitempty"`
}

// SectionsHandler serves sections, their tie points and calibration.
type SectionsHandler struct {
	deps Dependencies
}

// NewSectionsHandler creates a new sections handler.
func NewSectionsHandler(deps Dependencies) *SectionsHandler {
	return &SectionsHandler{deps: deps}
}

// HandleCreate handles POST /sections.
func (h *SectionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSectionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	sec, err := h.deps.CreateSection(r.Context(), req.ID, req.Name, fromSamples(req.Samples))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSection(sec))
}

// HandleList handles GET /sections.
func (h *SectionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sections, err := h.deps.Sections(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]sectionSummaryDTO, 0, len(sections))
	for _, s := range sections {
		out = append(out, toSummary(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /sections/{id}.
func (h *SectionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sec, err := h.deps.Section(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSection(sec))
}

// HandleDelete handles DELETE /sections/{id}.
func (h *SectionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteSection(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddTiePoint handles POST /sections/{id}/tie-points.
func (h *SectionsHandler) HandleAddTiePoint(w http.ResponseWriter, r *http.Request) {
	var req addTiePointRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Depth == nil || req.Age == nil {
		writeError(w, fmt.Errorf("%w: depth and age are required", ErrBadRequest))
		return
	}
	m, err := h.deps.AddTiePoint(r.Context(), r.PathValue("id"), *req.Depth, *req.Age, req.ExpectedVersion)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgeModel(m))
}

// HandleRemoveTiePoint handles DELETE /sections/{id}/tie-points/{tp}.
// An optional expected_version query parameter enables the version check.
func (h *SectionsHandler) HandleRemoveTiePoint(w http.ResponseWriter, r *http.Request) {
	expected, err := expectedVersion(r)
	if err != nil {
		writeError(w, err)
		return
	}
	m, err := h.deps.RemoveTiePoint(r.Context(), r.PathValue("id"), r.PathValue("tp"), expected)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgeModel(m))
}

// HandleCalibrate handles GET /sections/{id}/calibrated.
func (h *SectionsHandler) HandleCalibrate(w http.ResponseWriter, r *http.Request) {
	out, err := h.deps.Calibrate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeries(out))
}

func expectedVersion(r *http.Request) (*uint64, error) {
	raw := r.URL.Query().Get("expected_version")
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: expected_version: %w", ErrBadRequest, err)
	}
	return &v, nil
}
