package agemodel_test

import (
	"errors"
	"testing"

	"github.com/okian/strata/internal/domain/agemodel"
	. "github.com/smartystreets/goconvey/convey"
)

func TestModelSnapshots(t *testing.T) {
	Convey("Given an empty model", t, func() {
		m0, err := agemodel.New("core-a")
		So(err, ShouldBeNil)
		So(m0.Version(), ShouldEqual, 0)
		So(m0.Len(), ShouldEqual, 0)

		Convey("When tie points are added out of depth order", func() {
			deep := agemodel.NewTiePoint("core-a", 20, 9)
			shallow := agemodel.NewTiePoint("core-a", 2, 1)
			m1, err := m0.With(deep)
			So(err, ShouldBeNil)
			m2, err := m1.With(shallow)
			So(err, ShouldBeNil)

			Convey("Then each edit is a new snapshot with a higher version", func() {
				So(m0.Len(), ShouldEqual, 0)
				So(m1.Len(), ShouldEqual, 1)
				So(m1.Version(), ShouldEqual, 1)
				So(m2.Version(), ShouldEqual, 2)
			})

			Convey("Then tie points are ordered by depth", func() {
				tps := m2.TiePoints()
				So(tps[0].ID, ShouldEqual, shallow.ID)
				So(tps[1].ID, ShouldEqual, deep.ID)
				lo, hi, ok := m2.DepthRange()
				So(ok, ShouldBeTrue)
				So(lo, ShouldEqual, 2)
				So(hi, ShouldEqual, 20)
			})

			Convey("Then re-adding an ID replaces the earlier point", func() {
				moved := deep
				moved.Age = 12
				m3, err := m2.With(moved)
				So(err, ShouldBeNil)
				So(m3.Len(), ShouldEqual, 2)
				So(m3.TiePoints()[1].Age, ShouldEqual, 12)
				So(m2.TiePoints()[1].Age, ShouldEqual, 9)
			})

			Convey("Then removal produces a new snapshot", func() {
				m3, err := m2.Without(shallow.ID)
				So(err, ShouldBeNil)
				So(m3.Len(), ShouldEqual, 1)
				So(m3.Version(), ShouldEqual, 3)
				So(m2.Len(), ShouldEqual, 2)
			})

			Convey("Then removing an unknown ID fails", func() {
				_, err := m2.Without("nope")
				So(errors.Is(err, agemodel.ErrTiePointNotFound), ShouldBeTrue)
			})

			Convey("Then AgeAt interpolates between them", func() {
				age, extrapolated, err := m2.AgeAt(11)
				So(err, ShouldBeNil)
				So(extrapolated, ShouldBeFalse)
				So(age, ShouldAlmostEqual, 5, 1e-12)
			})
		})

		Convey("When a tie point of another section is added", func() {
			_, err := m0.With(agemodel.NewTiePoint("core-b", 1, 1))

			Convey("Then it is refused", func() {
				So(errors.Is(err, agemodel.ErrForeignTiePoint), ShouldBeTrue)
			})
		})

		Convey("When a tie point has no ID", func() {
			_, err := m0.With(agemodel.TiePoint{Depth: 1, Age: 1})

			Convey("Then it is invalid", func() {
				So(errors.Is(err, agemodel.ErrInvalidTiePoint), ShouldBeTrue)
			})
		})
	})

	Convey("Given a stored model", t, func() {
		m, err := agemodel.Restore("core-a", 7, []agemodel.TiePoint{
			{ID: "t2", Depth: 5, Age: 4},
			{ID: "t1", Depth: 1, Age: 2},
		})

		Convey("Then the version is kept and section IDs are filled in", func() {
			So(err, ShouldBeNil)
			So(m.Version(), ShouldEqual, 7)
			So(m.TiePoints()[0].ID, ShouldEqual, "t1")
			So(m.TiePoints()[0].SectionID, ShouldEqual, "core-a")
			So(m.Validate(), ShouldBeNil)
		})
	})
}
