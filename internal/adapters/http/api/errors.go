package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/strata/internal/adapters/mq/queue"
	"github.com/okian/strata/internal/adapters/repository"
	service "github.com/okian/strata/internal/app"
	"github.com/okian/strata/internal/domain/agemodel"
	"github.com/okian/strata/internal/domain/correlation"
	"github.com/okian/strata/internal/domain/model"
	"github.com/okian/strata/internal/domain/proxy"
	"github.com/okian/strata/internal/domain/splice"
	"github.com/okian/strata/internal/domain/suggest"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps an error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	// Position errors arrive wrapped in ErrInvalidRequest; match them first.
	case errors.Is(err, proxy.ErrDuplicatePosition),
		errors.Is(err, proxy.ErrUnorderedPositions),
		errors.Is(err, proxy.ErrInvalidPosition):
		return http.StatusUnprocessableEntity, "invalid_positions"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, model.ErrInvalidSection),
		errors.Is(err, agemodel.ErrInvalidTiePoint),
		errors.Is(err, agemodel.ErrForeignTiePoint),
		errors.Is(err, proxy.ErrInvalidAxis),
		errors.Is(err, suggest.ErrInvalidSuggestion),
		errors.Is(err, splice.ErrInvalidInterval):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, agemodel.ErrTiePointNotFound),
		errors.Is(err, splice.ErrUnknownSection):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrStaleVersion):
		return http.StatusConflict, "stale_version"
	case errors.Is(err, repository.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, agemodel.ErrInsufficientTiePoints):
		return http.StatusUnprocessableEntity, "insufficient_tie_points"
	case errors.Is(err, agemodel.ErrNonMonotonicTiePoints):
		return http.StatusUnprocessableEntity, "non_monotonic_tie_points"
	case errors.Is(err, correlation.ErrInsufficientOverlap):
		return http.StatusUnprocessableEntity, "insufficient_overlap"
	case errors.Is(err, correlation.ErrInvalidLagRange):
		return http.StatusUnprocessableEntity, "invalid_lag_range"
	case errors.Is(err, suggest.ErrUnanchored):
		return http.StatusUnprocessableEntity, "unanchored"
	case errors.Is(err, proxy.ErrEmptySeries),
		errors.Is(err, proxy.ErrAxisMismatch),
		errors.Is(err, splice.ErrDuplicateSection):
		return http.StatusUnprocessableEntity, "unprocessable"
	case errors.Is(err, queue.ErrQueueFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, suggest.ErrSuggestionUnavailable):
		return http.StatusServiceUnavailable, "suggestion_unavailable"
	case errors.Is(err, queue.ErrQueueClosed), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
