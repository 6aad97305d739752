package model_test

import (
	"errors"
	"testing"

	"github.com/okian/strata/internal/domain/agemodel"
	"github.com/okian/strata/internal/domain/model"
	"github.com/okian/strata/internal/domain/proxy"
	. "github.com/smartystreets/goconvey/convey"
)

func depthSeries(depths ...float64) proxy.Series {
	samples := make([]proxy.Sample, len(depths))
	for i, d := range depths {
		samples[i] = proxy.Sample{Position: d, Values: map[string]float64{"tc": d}}
	}
	s, err := proxy.New(proxy.AxisDepth, samples)
	if err != nil {
		panic(err)
	}
	return s
}

func TestSection(t *testing.T) {
	Convey("Given a depth series", t, func() {
		series := depthSeries(1, 2, 3)

		Convey("A section starts with an empty version-0 age model", func() {
			sec, err := model.NewSection("s1", "Site 1", series)
			So(err, ShouldBeNil)
			So(sec.AgeModel.SectionID(), ShouldEqual, "s1")
			So(sec.AgeModel.Version(), ShouldEqual, 0)
			So(sec.AgeModel.Len(), ShouldEqual, 0)
		})

		Convey("A blank ID is rejected", func() {
			_, err := model.NewSection("  ", "x", series)
			So(errors.Is(err, model.ErrInvalidSection), ShouldBeTrue)
		})

		Convey("An age-axis series is rejected", func() {
			aged := proxy.Assemble(proxy.AxisAge, series.Samples())
			_, err := model.NewSection("s1", "x", aged)
			So(errors.Is(err, model.ErrInvalidSection), ShouldBeTrue)
		})

		Convey("Calibrated uses the attached age model", func() {
			sec, err := model.NewSection("s1", "Site 1", series)
			So(err, ShouldBeNil)
			m, err := agemodel.New("s1", agemodel.NewTiePoint("s1", 0, 100), agemodel.NewTiePoint("s1", 4, 140))
			So(err, ShouldBeNil)

			out, err := sec.WithAgeModel(m).Calibrated()
			So(err, ShouldBeNil)
			So(out.Positions(), ShouldResemble, []float64{110, 120, 130})

			_, err = sec.Calibrated()
			So(errors.Is(err, agemodel.ErrInsufficientTiePoints), ShouldBeTrue)
		})
	})
}
