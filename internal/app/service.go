// Package service provides the core splicing service that implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/strata/internal/adapters/mq/queue"
	"github.com/okian/strata/internal/adapters/mq/worker"
	"github.com/okian/strata/internal/adapters/repository"
	"github.com/okian/strata/internal/domain/agemodel"
	"github.com/okian/strata/internal/domain/correlation"
	"github.com/okian/strata/internal/domain/model"
	"github.com/okian/strata/internal/domain/proxy"
	"github.com/okian/strata/internal/domain/splice"
	"github.com/okian/strata/internal/domain/suggest"
	"github.com/okian/strata/pkg/logger"
	"github.com/okian/strata/pkg/metrics"
)

// calibrated is a cached age series and the model version it came from.
type calibrated struct {
	version uint64
	series  proxy.Series
}

// Service implements the API dependencies for the splicing system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	engine    *correlation.Engine
	suggester suggest.Suggester
	queue     *queue.InMemoryQueue
	jobs      *queue.Registry
	pool      *worker.Pool

	// Configuration
	workerCount  int
	queueSize    int
	jobTimeout   time.Duration
	jobRetention int

	cacheMu sync.Mutex
	cache   map[string]calibrated

	started bool
	logger  logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU(),
		queueSize:    1024,
		jobTimeout:   2 * time.Minute,
		jobRetention: 1000,
		cache:        make(map[string]calibrated),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	// Fill in default components
	if s.store == nil {
		s.store = repository.NewMemStore()
	}
	if s.engine == nil {
		s.engine = correlation.NewEngine()
	}
	if s.suggester == nil {
		s.suggester = suggest.NewCorrelationSuggester(suggest.WithEngine(s.engine))
	}
	return s
}

// Start starts the job queue and worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	// Create the job queue and the worker pool that drains it
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.jobs = queue.NewRegistry(s.jobRetention)
	s.pool = worker.NewPool(s.queue,
		worker.WithWorkers(s.workerCount),
		worker.WithJobTimeout(s.jobTimeout),
		worker.WithLogger(s.logger.Named("jobs")),
	)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "splice service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("sections", s.store.Count(ctx)),
	)
	return nil
}

// Stop cancels outstanding jobs, drains the pool and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	ctx := context.Background()

	// Cancel tracked jobs, then stop the workers
	s.jobs.CancelAll()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}

	// Close the store last
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store", logger.Error(err))
	}
	s.started = false
	s.logger.Info(ctx, "splice service stopped")
}

// Sections

// CreateSection validates and stores a new depth series. An empty id gets
// a generated one.
func (s *Service) CreateSection(ctx context.Context, id, name string, samples []proxy.Sample) (model.Section, error) {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	series, err := proxy.New(proxy.AxisDepth, samples)
	if err != nil {
		return model.Section{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	sec, err := model.NewSection(id, name, series)
	if err != nil {
		return model.Section{}, err
	}
	if err := s.store.CreateSection(ctx, sec); err != nil {
		return model.Section{}, err
	}
	s.dropCache(id)
	return sec, nil
}

// Section returns one section.
func (s *Service) Section(ctx context.Context, id string) (model.Section, error) {
	return s.store.Section(ctx, id)
}

// Sections returns all sections ordered by ID.
func (s *Service) Sections(ctx context.Context) ([]model.Section, error) {
	return s.store.Sections(ctx)
}

// DeleteSection removes a section and its cached calibration.
func (s *Service) DeleteSection(ctx context.Context, id string) error {
	if err := s.store.DeleteSection(ctx, id); err != nil {
		return err
	}
	s.dropCache(id)
	return nil
}

// Tie points

// AddTiePoint anchors depth of a section to age and returns the new snapshot.
func (s *Service) AddTiePoint(ctx context.Context, sectionID string, depth, age float64, expectedVersion *uint64) (agemodel.Model, error) {
	m, err := s.store.AddTiePoint(ctx, agemodel.NewTiePoint(sectionID, depth, age), expectedVersion)
	s.recordEdit(ctx, "add", sectionID, err)
	return m, err
}

// RemoveTiePoint deletes a tie point and returns the new snapshot.
func (s *Service) RemoveTiePoint(ctx context.Context, sectionID, tiePointID string, expectedVersion *uint64) (agemodel.Model, error) {
	m, err := s.store.RemoveTiePoint(ctx, sectionID, tiePointID, expectedVersion)
	s.recordEdit(ctx, "remove", sectionID, err)
	return m, err
}

func (s *Service) recordEdit(ctx context.Context, op, sectionID string, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, repository.ErrStaleVersion):
		outcome = "stale"
	case err != nil:
		outcome = "error"
	}
	metrics.RecordTiePointEdit(op, outcome)
	if err != nil {
		s.log().Debug(ctx, "tie point edit rejected",
			logger.String("op", op), logger.String("section", sectionID), logger.Error(err))
	}
}

// Calibration and splicing

// Calibrate returns the section's series on the age axis. Results are
// cached per age model version; any tie-point edit bumps the version and
// forces a full recompute.
func (s *Service) Calibrate(ctx context.Context, sectionID string) (proxy.Series, error) {
	sec, err := s.store.Section(ctx, sectionID)
	if err != nil {
		return proxy.Series{}, err
	}
	return s.calibrate(sec)
}

func (s *Service) calibrate(sec model.Section) (proxy.Series, error) {
	version := sec.AgeModel.Version()
	s.cacheMu.Lock()
	c, ok := s.cache[sec.ID]
	s.cacheMu.Unlock()
	if ok && c.version == version {
		metrics.RecordCalibrationCache(true)
		return c.series, nil
	}
	metrics.RecordCalibrationCache(false)

	out, err := sec.Calibrated()
	if err != nil {
		metrics.RecordCalibrationError(errorKind(err))
		return proxy.Series{}, err
	}
	metrics.RecordCalibration(out.HasWarning(proxy.WarnReversal))

	s.cacheMu.Lock()
	if cur, ok := s.cache[sec.ID]; !ok || cur.version <= version {
		s.cache[sec.ID] = calibrated{version: version, series: out}
	}
	s.cacheMu.Unlock()
	return out, nil
}

func (s *Service) dropCache(id string) {
	s.cacheMu.Lock()
	delete(s.cache, id)
	s.cacheMu.Unlock()
}

// Splice assembles a composite age record from every stored section that
// has a non-null interval.
func (s *Service) Splice(ctx context.Context, intervals map[string]splice.Interval) (proxy.Series, error) {
	sections, err := s.store.Sections(ctx)
	if err != nil {
		return proxy.Series{}, err
	}
	out, err := splice.Splice(sections, intervals)
	if err != nil {
		var ce *splice.CalibrationError
		if errors.As(err, &ce) {
			metrics.RecordCalibrationError(errorKind(ce.Err))
		}
		return proxy.Series{}, err
	}
	overlaps := 0
	for _, w := range out.Warnings() {
		if w.Kind == proxy.WarnOverlap {
			overlaps++
		}
	}
	metrics.RecordSplice(out.Len(), overlaps)
	return out, nil
}

// Correlation

// CorrelationRequest describes one lag sweep. Cross-section sweeps use
// ReferenceID, TargetID and ProxyKey; lead/lag sweeps use SectionID,
// LeadKey and LagKey; suggest jobs use ReferenceID, TargetID and ProxyKey.
type CorrelationRequest struct {
	Kind        queue.Kind
	ReferenceID string
	TargetID    string
	SectionID   string
	ProxyKey    string
	LeadKey     string
	LagKey      string
	MaxLag      float64
	LagStep     float64
}

// CorrelationResult is a correlation curve with its ranked peaks.
type CorrelationResult struct {
	Curve []correlation.Point
	Peaks []correlation.Peak
	Best  correlation.Point
}

func newResult(curve []correlation.Point) CorrelationResult {
	best, _ := correlation.Best(curve)
	return CorrelationResult{Curve: curve, Peaks: correlation.Peaks(curve), Best: best}
}

// Correlate sweeps target against reference over [-maxLag, +maxLag].
func (s *Service) Correlate(ctx context.Context, referenceID, targetID, proxyKey string, maxLag, lagStep float64) (CorrelationResult, error) {
	return s.run(ctx, CorrelationRequest{
		Kind: queue.KindCrossSection, ReferenceID: referenceID, TargetID: targetID,
		ProxyKey: proxyKey, MaxLag: maxLag, LagStep: lagStep,
	})
}

// LeadLag sweeps two proxies of one section against each other.
func (s *Service) LeadLag(ctx context.Context, sectionID, leadKey, lagKey string, maxLag, lagStep float64) (CorrelationResult, error) {
	return s.run(ctx, CorrelationRequest{
		Kind: queue.KindLeadLag, SectionID: sectionID, LeadKey: leadKey, LagKey: lagKey,
		MaxLag: maxLag, LagStep: lagStep,
	})
}

func (s *Service) run(ctx context.Context, req CorrelationRequest) (CorrelationResult, error) {
	start := time.Now()
	var (
		curve []correlation.Point
		err   error
	)
	switch req.Kind {
	case queue.KindCrossSection:
		var ref, tgt model.Section
		if ref, tgt, err = s.pair(ctx, req.ReferenceID, req.TargetID); err != nil {
			return CorrelationResult{}, err
		}
		curve, err = s.engine.Correlate(ctx, ref.Series, tgt.Series, req.ProxyKey, req.MaxLag, req.LagStep)
	case queue.KindLeadLag:
		var sec model.Section
		if sec, err = s.store.Section(ctx, req.SectionID); err != nil {
			return CorrelationResult{}, err
		}
		curve, err = s.engine.CorrelateProxies(ctx, sec.Series, req.LeadKey, req.LagKey, req.MaxLag, req.LagStep)
	default:
		return CorrelationResult{}, fmt.Errorf("%w: unknown correlation kind %q", ErrInvalidRequest, req.Kind)
	}
	if err != nil {
		metrics.RecordErrorByComponent("correlation", errorKind(err))
		return CorrelationResult{}, err
	}
	metrics.RecordCorrelation(string(req.Kind), float64(time.Since(start).Milliseconds()), len(curve))
	return newResult(curve), nil
}

func (s *Service) pair(ctx context.Context, referenceID, targetID string) (model.Section, model.Section, error) {
	ref, err := s.store.Section(ctx, referenceID)
	if err != nil {
		return model.Section{}, model.Section{}, err
	}
	tgt, err := s.store.Section(ctx, targetID)
	if err != nil {
		return model.Section{}, model.Section{}, err
	}
	return ref, tgt, nil
}

// Asynchronous jobs

// Submit queues a correlation or suggestion job and returns its initial
// snapshot. The job runs under its own context, detached from ctx.
func (s *Service) Submit(ctx context.Context, req CorrelationRequest) (queue.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return queue.Snapshot{}, ErrNotStarted
	}

	// Bind the request to a task for its kind
	var task queue.Task
	switch req.Kind {
	case queue.KindCrossSection, queue.KindLeadLag:
		task = func(jctx context.Context) (any, error) { return s.run(jctx, req) }
	case queue.KindSuggest:
		task = func(jctx context.Context) (any, error) {
			return s.Suggest(jctx, req.ReferenceID, req.TargetID, req.ProxyKey)
		}
	default:
		return queue.Snapshot{}, fmt.Errorf("%w: unknown job kind %q", ErrInvalidRequest, req.Kind)
	}

	// Queue first, track only accepted jobs
	j := queue.NewJob(req.Kind, task)
	if err := s.queue.Enqueue(ctx, j); err != nil {
		return queue.Snapshot{}, err
	}
	s.jobs.Add(j)
	s.log().Debug(ctx, "job queued", logger.String("job", j.ID), logger.String("kind", string(req.Kind)))
	return j.Snapshot(), nil
}

// Job returns the current state of a job.
func (s *Service) Job(_ context.Context, id string) (queue.Snapshot, error) {
	j, err := s.job(id)
	if err != nil {
		return queue.Snapshot{}, err
	}
	return j.Snapshot(), nil
}

// CancelJob cancels a pending or running job and returns its state.
func (s *Service) CancelJob(_ context.Context, id string) (queue.Snapshot, error) {
	j, err := s.job(id)
	if err != nil {
		return queue.Snapshot{}, err
	}
	j.Cancel()
	return j.Snapshot(), nil
}

func (s *Service) job(id string) (*queue.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	j, ok := s.jobs.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j, nil
}

// Suggestions

// Suggest proposes tie-point pairs between two sections.
func (s *Service) Suggest(ctx context.Context, referenceID, targetID, proxyKey string) ([]suggest.Suggestion, error) {
	ref, tgt, err := s.pair(ctx, referenceID, targetID)
	if err != nil {
		return nil, err
	}
	out, err := s.suggester.Suggest(ctx, ref, tgt, proxyKey)
	if err != nil {
		metrics.RecordErrorByComponent("suggest", errorKind(err))
		return nil, err
	}
	counts := map[string]int{}
	for _, sg := range out {
		counts[sg.Source]++
	}
	for src, n := range counts {
		if src != suggest.SourceRemote {
			metrics.RecordSuggestions(src, n)
		}
	}
	return out, nil
}

// Accept turns a suggestion into a tie point on whichever section lacks an
// age at its end of the pair, and returns that section's new snapshot.
func (s *Service) Accept(ctx context.Context, referenceID, targetID string, sg suggest.Suggestion, expectedVersion *uint64) (agemodel.Model, error) {
	ref, tgt, err := s.pair(ctx, referenceID, targetID)
	if err != nil {
		return agemodel.Model{}, err
	}
	tp, err := suggest.Accept(sg, ref, tgt)
	if err != nil {
		return agemodel.Model{}, err
	}
	m, err := s.store.AddTiePoint(ctx, tp, expectedVersion)
	s.recordEdit(ctx, "accept", tp.SectionID, err)
	return m, err
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"sections":    s.store.Count(ctx),
	}
	if s.started {
		stats["queueLength"] = s.queue.Len()
		stats["jobs"] = s.jobs.Len()
		metrics.UpdateQueueSize(s.queue.Len())
	}
	s.cacheMu.Lock()
	stats["cachedCalibrations"] = len(s.cache)
	s.cacheMu.Unlock()
	metrics.UpdateSystemStats()
	return stats
}

func (s *Service) log() logger.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logger.Get().Named("service")
}

// errorKind maps an error to a short metric label.
func errorKind(err error) string {
	switch {
	case errors.Is(err, agemodel.ErrInsufficientTiePoints):
		return "insufficient_tie_points"
	case errors.Is(err, agemodel.ErrNonMonotonicTiePoints):
		return "non_monotonic"
	case errors.Is(err, correlation.ErrInsufficientOverlap):
		return "insufficient_overlap"
	case errors.Is(err, correlation.ErrInvalidLagRange):
		return "invalid_lag_range"
	case errors.Is(err, proxy.ErrAxisMismatch):
		return "axis_mismatch"
	case errors.Is(err, proxy.ErrDuplicatePosition):
		return "duplicate_position"
	case errors.Is(err, proxy.ErrEmptySeries):
		return "empty_series"
	case errors.Is(err, suggest.ErrSuggestionUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}
