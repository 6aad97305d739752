package correlation

import (
	"math"
	"sort"
)

// Peak is a local maximum of |coefficient| on a correlation curve.
type Peak struct {
	Lag         float64
	Coefficient float64
	Magnitude   float64
	// InPhase is true for positive coefficients; anti-phase peaks are
	// reported with InPhase false.
	InPhase bool
	// Curvature is |d²|r|/dlag²| at the peak. Broad, flat peaks have low
	// curvature. It is zero for peaks on the curve edges.
	Curvature float64
	// Edge marks peaks at the first or last evaluated lag; the true
	// optimum may lie outside the swept range.
	Edge bool
}

// Peaks returns the local maxima of |coefficient| ranked by magnitude,
// strongest first. Ties keep ascending lag order.
func Peaks(curve []Point) []Peak {
	n := len(curve)
	if n == 0 {
		return nil
	}
	mag := make([]float64, n)
	for i, p := range curve {
		mag[i] = math.Abs(p.Coefficient)
	}

	var peaks []Peak
	for i := 0; i < n; i++ {
		if i > 0 && mag[i] <= mag[i-1] {
			continue
		}
		if i < n-1 && mag[i] < mag[i+1] {
			continue
		}
		pk := Peak{
			Lag:         curve[i].Lag,
			Coefficient: curve[i].Coefficient,
			Magnitude:   mag[i],
			InPhase:     curve[i].Coefficient >= 0,
			Edge:        i == 0 || i == n-1,
		}
		if !pk.Edge {
			pk.Curvature = curvature(curve[i-1].Lag, curve[i].Lag, curve[i+1].Lag, mag[i-1], mag[i], mag[i+1])
		}
		peaks = append(peaks, pk)
	}

	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].Magnitude > peaks[j].Magnitude })
	return peaks
}

// curvature is the three-point second derivative on a possibly uneven lag grid.
func curvature(l0, l1, l2, a0, a1, a2 float64) float64 {
	if l2 <= l0 || l1 <= l0 || l2 <= l1 {
		return 0
	}
	d := 2 * ((a2-a1)/(l2-l1) - (a1-a0)/(l1-l0)) / (l2 - l0)
	return math.Abs(d)
}

// Best returns the curve point with the largest |coefficient|.
func Best(curve []Point) (Point, bool) {
	if len(curve) == 0 {
		return Point{}, false
	}
	best := curve[0]
	for _, p := range curve[1:] {
		if math.Abs(p.Coefficient) > math.Abs(best.Coefficient) {
			best = p
		}
	}
	return best, true
}
