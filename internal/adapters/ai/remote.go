// Package ai talks to the external tie-point suggestion service.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/okian/strata/internal/domain/model"
	"github.com/okian/strata/internal/domain/suggest"
	"github.com/okian/strata/pkg/logger"
	"github.com/okian/strata/pkg/metrics"
)

// Default client configuration constants.
const (
	defaultTimeout  = 5 * time.Second
	defaultRetries  = 2
	defaultBackoff  = 200 * time.Millisecond
	maxErrorBodyLen = 200
)

// Option applies a configuration option to the RemoteSuggester.
type Option func(*RemoteSuggester)

// WithHTTPClient replaces the HTTP client. Its own Timeout still applies.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *RemoteSuggester) {
		if hc != nil {
			r.hc = hc
		}
	}
}

// WithTimeout bounds one attempt.
func WithTimeout(d time.Duration) Option {
	return func(r *RemoteSuggester) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRetries sets how many extra attempts follow a retryable failure.
func WithRetries(n int) Option {
	return func(r *RemoteSuggester) {
		if n >= 0 {
			r.retries = n
		}
	}
}

// WithBackoff sets the first retry delay. It doubles on each retry.
func WithBackoff(d time.Duration) Option {
	return func(r *RemoteSuggester) {
		if d >= 0 {
			r.backoff = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *RemoteSuggester) {
		if l != nil {
			r.log = l
		}
	}
}

// RemoteSuggester asks an HTTP JSON service for tie-point candidates.
// Every failure, including an empty answer, is reported as
// suggest.ErrSuggestionUnavailable so callers can fall back.
type RemoteSuggester struct {
	endpoint string
	hc       *http.Client
	timeout  time.Duration
	retries  int
	backoff  time.Duration
	log      logger.Logger
}

// NewRemoteSuggester creates a client for endpoint. An empty endpoint
// yields a suggester that is always unavailable.
func NewRemoteSuggester(endpoint string, opts ...Option) *RemoteSuggester {
	r := &RemoteSuggester{
		endpoint: strings.TrimSpace(endpoint),
		hc:       http.DefaultClient,
		timeout:  defaultTimeout,
		retries:  defaultRetries,
		backoff:  defaultBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type seriesPayload struct {
	ID        string    `json:"id"`
	Positions []float64 `json:"positions"`
	Values    []float64 `json:"values"`
}

type request struct {
	Proxy     string        `json:"proxy"`
	Reference seriesPayload `json:"reference"`
	Target    seriesPayload `json:"target"`
}

type response struct {
	Suggestions []struct {
		RefPosition    float64 `json:"ref_position"`
		TargetPosition float64 `json:"target_position"`
		Confidence     float64 `json:"confidence"`
	} `json:"suggestions"`
}

// upstreamError carries a non-2xx answer.
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string { return fmt.Sprintf("ai upstream %d: %s", e.status, e.msg) }

func (e upstreamError) retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status == http.StatusRequestTimeout || e.status/100 == 5
}

func payload(s model.Section, key string) seriesPayload {
	pos, val := s.Series.Column(key)
	return seriesPayload{ID: s.ID, Positions: pos, Values: val}
}

// Suggest implements suggest.Suggester.
func (r *RemoteSuggester) Suggest(ctx context.Context, reference, target model.Section, proxyKey string) ([]suggest.Suggestion, error) {
	if r.endpoint == "" {
		return nil, fmt.Errorf("%w: no endpoint configured", suggest.ErrSuggestionUnavailable)
	}
	body, err := json.Marshal(request{
		Proxy:     proxyKey,
		Reference: payload(reference, proxyKey),
		Target:    payload(target, proxyKey),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", suggest.ErrSuggestionUnavailable, err)
	}

	var lastErr error
	delay := r.backoff
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			if err := sleepWithCtx(ctx, delay); err != nil {
				lastErr = err
				break
			}
			delay *= 2
		}
		out, err := r.invoke(ctx, body)
		if err == nil {
			if len(out) == 0 {
				lastErr = errors.New("empty answer")
				break
			}
			metrics.RecordSuggestions(suggest.SourceRemote, len(out))
			return out, nil
		}
		lastErr = err
		r.warn(ctx, "ai suggestion attempt failed", logger.Int("attempt", attempt+1), logger.Error(err))
		if !shouldRetry(ctx, err) {
			break
		}
	}
	metrics.RecordSuggestionUnavailable()
	return nil, fmt.Errorf("%w: %w", suggest.ErrSuggestionUnavailable, lastErr)
}

func (r *RemoteSuggester) invoke(ctx context.Context, body []byte) ([]suggest.Suggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return nil, upstreamError{status: resp.StatusCode, msg: strings.TrimSpace(string(msg))}
	}
	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}

	out := make([]suggest.Suggestion, 0, len(decoded.Suggestions))
	for _, s := range decoded.Suggestions {
		if !finite(s.RefPosition) || !finite(s.TargetPosition) || !finite(s.Confidence) {
			continue
		}
		out = append(out, suggest.Suggestion{
			RefPosition:    s.RefPosition,
			TargetPosition: s.TargetPosition,
			Confidence:     math.Max(0, math.Min(1, s.Confidence)),
			Source:         suggest.SourceRemote,
		})
	}
	return out, nil
}

func (r *RemoteSuggester) warn(ctx context.Context, msg string, fields ...logger.Field) {
	if r.log != nil {
		r.log.Warn(ctx, msg, fields...)
	}
}

// shouldRetry retries transport failures and throttling or 5xx answers,
// never a caller cancellation or a malformed answer.
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var ue upstreamError
	if errors.As(err, &ue) {
		return ue.retryable()
	}
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return !errors.As(err, &syntax) && !errors.As(err, &typeErr)
}

func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
