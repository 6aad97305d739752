package suggest

import (
	"fmt"
	"math"

	"github.com/okian/strata/internal/domain/agemodel"
	"github.com/okian/strata/internal/domain/model"
)

// Accept converts a suggestion into a tie point for the side that lacks
// an age. The age comes from the other side's age model, evaluated inside
// its approved tie-point range; extrapolated ages do not count. The
// reference side is tried first.
func Accept(s Suggestion, reference, target model.Section) (agemodel.TiePoint, error) {
	for _, v := range []float64{s.RefPosition, s.TargetPosition} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return agemodel.TiePoint{}, fmt.Errorf("%w: non-finite position", ErrInvalidSuggestion)
		}
	}
	if age, ok := anchoredAge(reference.AgeModel, s.RefPosition); ok {
		return agemodel.NewTiePoint(target.ID, s.TargetPosition, age), nil
	}
	if age, ok := anchoredAge(target.AgeModel, s.TargetPosition); ok {
		return agemodel.NewTiePoint(reference.ID, s.RefPosition, age), nil
	}
	return agemodel.TiePoint{}, fmt.Errorf("%w: %s at %g, %s at %g",
		ErrUnanchored, reference.ID, s.RefPosition, target.ID, s.TargetPosition)
}

func anchoredAge(m agemodel.Model, depth float64) (float64, bool) {
	age, extrapolated, err := m.AgeAt(depth)
	if err != nil || extrapolated {
		return 0, false
	}
	return age, true
}
