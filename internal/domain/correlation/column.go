package correlation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"

	"github.com/okian/strata/internal/domain/proxy"
)

// relTolerance absorbs float drift when grid points land on a series edge.
const relTolerance = 1e-9

// column is one proxy of one series prepared for linear resampling.
type column struct {
	pos []float64
	val []float64
	// broken[i] is set when samples lacking the proxy sit between pos[i]
	// and pos[i+1]; grid points inside that segment are not valid.
	broken []bool
	tol    float64
	fit    interp.PiecewiseLinear
}

func newColumn(s proxy.Series, key string) (*column, error) {
	c := &column{}
	missingSinceLast := false
	for i := 0; i < s.Len(); i++ {
		smp := s.At(i)
		v, ok := smp.Value(key)
		if !ok {
			missingSinceLast = true
			continue
		}
		if len(c.pos) > 0 {
			c.broken = append(c.broken, missingSinceLast)
		}
		c.pos = append(c.pos, smp.Position)
		c.val = append(c.val, v)
		missingSinceLast = false
	}
	if len(c.pos) == 0 {
		return nil, fmt.Errorf("%w: no values for proxy %q", proxy.ErrEmptySeries, key)
	}
	if len(c.pos) < 2 {
		return nil, fmt.Errorf("%w: proxy %q has a single value", ErrInsufficientOverlap, key)
	}
	if err := c.fit.Fit(c.pos, c.val); err != nil {
		return nil, fmt.Errorf("%w: proxy %q: %v", proxy.ErrUnorderedPositions, key, err)
	}
	lo, hi := c.span()
	c.tol = relTolerance * math.Max(1, math.Max(math.Abs(lo), math.Abs(hi)))
	return c, nil
}

func (c *column) span() (lo, hi float64) { return c.pos[0], c.pos[len(c.pos)-1] }

// spacing returns the smallest distance between consecutive valid samples.
func (c *column) spacing() float64 {
	return minStep(c.pos)
}

// minStep returns the smallest gap between consecutive positions. It needs
// at least two positions.
func minStep(pos []float64) float64 {
	d := make([]float64, len(pos)-1)
	floats.SubTo(d, pos[1:], pos[:len(pos)-1])
	return floats.Min(d)
}

// at returns the interpolated value at x and whether x is covered by data.
func (c *column) at(x float64) (float64, bool) {
	lo, hi := c.span()
	switch {
	case x < lo-c.tol || x > hi+c.tol:
		return 0, false
	case x <= lo:
		return c.val[0], true
	case x >= hi:
		return c.val[len(c.val)-1], true
	}
	i := sort.SearchFloat64s(c.pos, x)
	if c.pos[i] == x {
		return c.val[i], true
	}
	if c.broken[i-1] {
		return 0, false
	}
	return c.fit.Predict(x), true
}
