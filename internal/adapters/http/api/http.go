// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/strata/internal/adapters/mq/queue"
	service "github.com/okian/strata/internal/app"
	"github.com/okian/strata/internal/domain/agemodel"
	"github.com/okian/strata/internal/domain/model"
	"github.com/okian/strata/internal/domain/proxy"
	"github.com/okian/strata/internal/domain/splice"
	"github.com/okian/strata/internal/domain/suggest"
)

// maxBodyBytes bounds request bodies; sections can carry many samples.
const maxBodyBytes = 32 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CreateSection(ctx context.Context, id, name string, samples []proxy.Sample) (model.Section, error)
	Section(ctx context.Context, id string) (model.Section, error)
	Sections(ctx context.Context) ([]model.Section, error)
	DeleteSection(ctx context.Context, id string) error

	AddTiePoint(ctx context.Context, sectionID string, depth, age float64, expectedVersion *uint64) (agemodel.Model, error)
	RemoveTiePoint(ctx context.Context, sectionID, tiePointID string, expectedVersion *uint64) (agemodel.Model, error)

	Calibrate(ctx context.Context, sectionID string) (proxy.Series, error)
	Splice(ctx context.Context, intervals map[string]splice.Interval) (proxy.Series, error)

	Correlate(ctx context.Context, referenceID, targetID, proxyKey string, maxLag, lagStep float64) (service.CorrelationResult, error)
	LeadLag(ctx context.Context, sectionID, leadKey, lagKey string, maxLag, lagStep float64) (service.CorrelationResult, error)

	Submit(ctx context.Context, req service.CorrelationRequest) (queue.Snapshot, error)
	Job(ctx context.Context, id string) (queue.Snapshot, error)
	CancelJob(ctx context.Context, id string) (queue.Snapshot, error)

	Suggest(ctx context.Context, referenceID, targetID, proxyKey string) ([]suggest.Suggestion, error)
	Accept(ctx context.Context, referenceID, targetID string, sg suggest.Suggestion, expectedVersion *uint64) (agemodel.Model, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sectionsHandler *SectionsHandler
	analysisHandler *AnalysisHandler
	jobsHandler     *JobsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		sectionsHandler: NewSectionsHandler(deps),
		analysisHandler: NewAnalysisHandler(deps),
		jobsHandler:     NewJobsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /sections", MetricsMiddleware(s.sectionsHandler.HandleCreate, "sections"))
	mux.HandleFunc("GET /sections", MetricsMiddleware(s.sectionsHandler.HandleList, "sections"))
	mux.HandleFunc("GET /sections/{id}", MetricsMiddleware(s.sectionsHandler.HandleGet, "section"))
	mux.HandleFunc("DELETE /sections/{id}", MetricsMiddleware(s.sectionsHandler.HandleDelete, "section"))
	mux.HandleFunc("POST /sections/{id}/tie-points", MetricsMiddleware(s.sectionsHandler.HandleAddTiePoint, "tie_points"))
	mux.HandleFunc("DELETE /sections/{id}/tie-points/{tp}", MetricsMiddleware(s.sectionsHandler.HandleRemoveTiePoint, "tie_points"))
	mux.HandleFunc("GET /sections/{id}/calibrated", MetricsMiddleware(s.sectionsHandler.HandleCalibrate, "calibrate"))

	mux.HandleFunc("POST /splice", MetricsMiddleware(s.analysisHandler.HandleSplice, "splice"))
	mux.HandleFunc("POST /correlate", MetricsMiddleware(s.analysisHandler.HandleCorrelate, "correlate"))
	mux.HandleFunc("POST /lead-lag", MetricsMiddleware(s.analysisHandler.HandleLeadLag, "lead_lag"))
	mux.HandleFunc("POST /suggest", MetricsMiddleware(s.analysisHandler.HandleSuggest, "suggest"))
	mux.HandleFunc("POST /accept", MetricsMiddleware(s.analysisHandler.HandleAccept, "accept"))

	mux.HandleFunc("POST /jobs", MetricsMiddleware(s.jobsHandler.HandleSubmit, "jobs"))
	mux.HandleFunc("GET /jobs/{id}", MetricsMiddleware(s.jobsHandler.HandleGet, "job"))
	mux.HandleFunc("DELETE /jobs/{id}", MetricsMiddleware(s.jobsHandler.HandleCancel, "job"))
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
