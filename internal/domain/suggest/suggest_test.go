package suggest_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/okian/strata/internal/domain/agemodel"
	"github.com/okian/strata/internal/domain/correlation"
	"github.com/okian/strata/internal/domain/model"
	"github.com/okian/strata/internal/domain/proxy"
	"github.com/okian/strata/internal/domain/suggest"
	. "github.com/smartystreets/goconvey/convey"
)

func noise(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

func section(id string, start float64, values []float64) model.Section {
	samples := make([]proxy.Sample, len(values))
	for i, v := range values {
		samples[i] = proxy.Sample{Position: start + float64(i), Values: map[string]float64{"ca": v}}
	}
	series, err := proxy.New(proxy.AxisDepth, samples)
	if err != nil {
		panic(err)
	}
	s, err := model.NewSection(id, id, series)
	if err != nil {
		panic(err)
	}
	return s
}

func TestCorrelationSuggester(t *testing.T) {
	Convey("Given a target section that repeats the reference 7 units deeper", t, func() {
		sig := noise(21, 100)
		ref := section("ref", 0, sig)
		tgt := section("tgt", 7, sig)
		s := suggest.NewCorrelationSuggester(
			suggest.WithMaxLag(15),
			suggest.WithLagStep(1),
			suggest.WithTopK(3),
			suggest.WithAnchors(5),
		)

		Convey("When suggesting tie points", func() {
			out, err := s.Suggest(context.Background(), ref, tgt, "ca")

			Convey("Then the strongest suggestions come from the +7 peak", func() {
				So(err, ShouldBeNil)
				So(len(out), ShouldBeGreaterThanOrEqualTo, 5)
				for _, sg := range out[:5] {
					So(sg.Lag, ShouldEqual, 7)
					So(sg.TargetPosition-sg.RefPosition, ShouldAlmostEqual, 7, 1e-9)
					So(sg.Source, ShouldEqual, suggest.SourceCorrelation)
					So(sg.Confidence, ShouldBeGreaterThan, 0.9)
					So(sg.Confidence, ShouldBeLessThanOrEqualTo, 1)
				}
			})

			Convey("Then weaker peaks score lower", func() {
				for _, sg := range out[5:] {
					So(sg.Lag, ShouldNotEqual, 7)
					So(sg.Confidence, ShouldBeLessThan, out[0].Confidence)
				}
			})

			Convey("Then anchors are reference extrema inside both sections", func() {
				for _, sg := range out {
					So(sg.RefPosition, ShouldBeBetweenOrEqual, 0, 99)
					So(sg.TargetPosition, ShouldBeBetweenOrEqual, 7, 106)
				}
			})

			Convey("Then suggestions carry no age", func() {
				So(ref.AgeModel.Len(), ShouldEqual, 0)
				So(tgt.AgeModel.Len(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a reference with a single sample", t, func() {
		ref := section("ref", 0, []float64{1})
		tgt := section("tgt", 0, noise(1, 20))

		Convey("Then suggesting fails with an overlap error", func() {
			_, err := suggest.NewCorrelationSuggester().Suggest(context.Background(), ref, tgt, "ca")
			So(errors.Is(err, correlation.ErrInsufficientOverlap), ShouldBeTrue)
		})
	})
}

func TestCorrelationSuggesterLagCap(t *testing.T) {
	Convey("Given an engine that allows only a few lags per side", t, func() {
		sig := noise(8, 100)
		ref := section("ref", 0, sig)
		tgt := section("tgt", 0, sig)
		engine := correlation.NewEngine(correlation.WithMaxLags(10))

		Convey("When the lag step is derived from the data", func() {
			s := suggest.NewCorrelationSuggester(suggest.WithEngine(engine))
			out, err := s.Suggest(context.Background(), ref, tgt, "ca")

			Convey("Then the step is widened to fit and the aligned peak is found", func() {
				So(err, ShouldBeNil)
				So(out, ShouldNotBeEmpty)
				So(out[0].Lag, ShouldEqual, 0)
			})
		})

		Convey("When a fine lag step is configured explicitly", func() {
			s := suggest.NewCorrelationSuggester(suggest.WithEngine(engine), suggest.WithLagStep(0.5))
			_, err := s.Suggest(context.Background(), ref, tgt, "ca")

			Convey("Then the engine rejects the sweep", func() {
				So(errors.Is(err, correlation.ErrInvalidLagRange), ShouldBeTrue)
			})
		})
	})
}

func TestFallback(t *testing.T) {
	Convey("Given a fallback chain", t, func() {
		ctx := context.Background()
		ref := section("ref", 0, noise(2, 10))
		tgt := section("tgt", 0, noise(3, 10))
		deterministic := suggest.SuggesterFunc(func(context.Context, model.Section, model.Section, string) ([]suggest.Suggestion, error) {
			return []suggest.Suggestion{{RefPosition: 1, TargetPosition: 2, Confidence: 0.5, Source: suggest.SourceCorrelation}}, nil
		})

		Convey("When the remote side is unavailable", func() {
			f := suggest.Fallback{
				Primary: suggest.SuggesterFunc(func(context.Context, model.Section, model.Section, string) ([]suggest.Suggestion, error) {
					return nil, suggest.ErrSuggestionUnavailable
				}),
				Secondary: deterministic,
			}
			out, err := f.Suggest(ctx, ref, tgt, "ca")

			Convey("Then the deterministic suggester answers", func() {
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 1)
				So(out[0].Source, ShouldEqual, suggest.SourceCorrelation)
			})
		})

		Convey("When the primary fails for another reason", func() {
			boom := errors.New("boom")
			f := suggest.Fallback{
				Primary: suggest.SuggesterFunc(func(context.Context, model.Section, model.Section, string) ([]suggest.Suggestion, error) {
					return nil, boom
				}),
				Secondary: deterministic,
			}
			_, err := f.Suggest(ctx, ref, tgt, "ca")

			Convey("Then the error is not masked", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
			})
		})

		Convey("When nothing is configured", func() {
			_, err := suggest.Fallback{}.Suggest(ctx, ref, tgt, "ca")
			So(errors.Is(err, suggest.ErrSuggestionUnavailable), ShouldBeTrue)
		})
	})
}

func TestAccept(t *testing.T) {
	Convey("Given a reference dated by tie points (0,0) and (100,50)", t, func() {
		ref := section("ref", 0, noise(4, 101))
		m, err := agemodel.New("ref", agemodel.NewTiePoint("ref", 0, 0), agemodel.NewTiePoint("ref", 100, 50))
		So(err, ShouldBeNil)
		ref = ref.WithAgeModel(m)
		tgt := section("tgt", 0, noise(5, 101))

		Convey("When accepting a suggestion inside the dated range", func() {
			tp, err := suggest.Accept(suggest.Suggestion{RefPosition: 40, TargetPosition: 47}, ref, tgt)

			Convey("Then the target gains a tie point with the reference age", func() {
				So(err, ShouldBeNil)
				So(tp.SectionID, ShouldEqual, "tgt")
				So(tp.Depth, ShouldEqual, 47)
				So(tp.Age, ShouldAlmostEqual, 20, 1e-12)
				So(tp.ID, ShouldNotBeEmpty)
			})
		})

		Convey("When only the target is dated", func() {
			tp, err := suggest.Accept(suggest.Suggestion{RefPosition: 12, TargetPosition: 30}, tgt, ref)

			Convey("Then the undated reference side gets the tie point", func() {
				So(err, ShouldBeNil)
				So(tp.SectionID, ShouldEqual, "tgt")
				So(tp.Depth, ShouldEqual, 12)
				So(tp.Age, ShouldAlmostEqual, 15, 1e-12)
			})
		})

		Convey("When the dated position would need extrapolation", func() {
			_, err := suggest.Accept(suggest.Suggestion{RefPosition: 150, TargetPosition: 3}, ref, tgt)

			Convey("Then no age is invented", func() {
				So(errors.Is(err, suggest.ErrUnanchored), ShouldBeTrue)
			})
		})
	})
}
