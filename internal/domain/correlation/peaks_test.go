package correlation_test

import (
	"testing"

	"github.com/okian/strata/internal/domain/correlation"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPeaks(t *testing.T) {
	Convey("Given a curve with an in-phase and an anti-phase maximum", t, func() {
		curve := []correlation.Point{
			{Lag: -2, Coefficient: 0.1},
			{Lag: -1, Coefficient: 0.5},
			{Lag: 0, Coefficient: 0.2},
			{Lag: 1, Coefficient: -0.9},
			{Lag: 2, Coefficient: 0.3},
		}

		Convey("When extracting peaks", func() {
			peaks := correlation.Peaks(curve)

			Convey("Then they are ranked by magnitude with sign kept", func() {
				So(peaks, ShouldHaveLength, 2)
				So(peaks[0].Lag, ShouldEqual, 1)
				So(peaks[0].Magnitude, ShouldAlmostEqual, 0.9, 1e-12)
				So(peaks[0].InPhase, ShouldBeFalse)
				So(peaks[1].Lag, ShouldEqual, -1)
				So(peaks[1].InPhase, ShouldBeTrue)
			})

			Convey("Then curvature measures how sharp each peak is", func() {
				So(peaks[0].Curvature, ShouldAlmostEqual, 1.3, 1e-9)
				So(peaks[0].Edge, ShouldBeFalse)
			})
		})
	})

	Convey("Given a monotonic curve", t, func() {
		curve := []correlation.Point{{Lag: 0, Coefficient: 0.1}, {Lag: 1, Coefficient: 0.4}, {Lag: 2, Coefficient: 0.8}}

		Convey("Then the only peak sits on the edge with no curvature", func() {
			peaks := correlation.Peaks(curve)
			So(peaks, ShouldHaveLength, 1)
			So(peaks[0].Lag, ShouldEqual, 2)
			So(peaks[0].Edge, ShouldBeTrue)
			So(peaks[0].Curvature, ShouldEqual, 0)
		})
	})

	Convey("Given a flat plateau", t, func() {
		curve := []correlation.Point{{Lag: 0, Coefficient: 0.5}, {Lag: 1, Coefficient: 0.5}, {Lag: 2, Coefficient: 0.5}}

		Convey("Then it yields a single peak", func() {
			So(correlation.Peaks(curve), ShouldHaveLength, 1)
		})
	})

	Convey("Given an empty curve", t, func() {
		Convey("Then there are no peaks and no best point", func() {
			So(correlation.Peaks(nil), ShouldBeEmpty)
			_, ok := correlation.Best(nil)
			So(ok, ShouldBeFalse)
		})
	})
}
