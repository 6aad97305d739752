// Package suggest proposes tie-point pairs between two sections.
//
// Correlation only establishes relative depth correspondence. A suggestion
// never carries an age; Accept binds one from an approved age model.
package suggest

import (
	"context"
	"errors"

	"github.com/okian/strata/internal/domain/model"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrSuggestionUnavailable = errors.New("suggestion unavailable")
	ErrUnanchored            = errors.New("no approved age on either side")
	ErrInvalidSuggestion     = errors.New("invalid suggestion")
)

// Source values reported on suggestions.
const (
	SourceCorrelation = "correlation"
	SourceRemote      = "remote"
)

// Suggestion is a candidate depth correspondence between two sections.
type Suggestion struct {
	RefPosition    float64
	TargetPosition float64
	Confidence     float64 // [0, 1]

	// Lag and Coefficient describe the correlation peak behind the
	// suggestion; remote suggestions leave them zero.
	Lag         float64
	Coefficient float64
	Source      string
}

// Suggester produces tie-point candidates for a pair of sections.
type Suggester interface {
	Suggest(ctx context.Context, reference, target model.Section, proxyKey string) ([]Suggestion, error)
}

// SuggesterFunc adapts a function to Suggester.
type SuggesterFunc func(ctx context.Context, reference, target model.Section, proxyKey string) ([]Suggestion, error)

// Suggest calls f.
func (f SuggesterFunc) Suggest(ctx context.Context, reference, target model.Section, proxyKey string) ([]Suggestion, error) {
	return f(ctx, reference, target, proxyKey)
}

// Fallback asks Primary first and falls back to Secondary only when
// Primary reports ErrSuggestionUnavailable. Other errors pass through.
type Fallback struct {
	Primary   Suggester
	Secondary Suggester
}

// Suggest implements Suggester.
func (f Fallback) Suggest(ctx context.Context, reference, target model.Section, proxyKey string) ([]Suggestion, error) {
	if f.Primary == nil {
		if f.Secondary == nil {
			return nil, ErrSuggestionUnavailable
		}
		return f.Secondary.Suggest(ctx, reference, target, proxyKey)
	}
	out, err := f.Primary.Suggest(ctx, reference, target, proxyKey)
	if err == nil || !errors.Is(err, ErrSuggestionUnavailable) || f.Secondary == nil {
		return out, err
	}
	if ctx.Err() != nil {
		return nil, err
	}
	return f.Secondary.Suggest(ctx, reference, target, proxyKey)
}
