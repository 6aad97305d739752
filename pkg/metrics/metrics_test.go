package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

// value reads the current value of a single-series collector.
func value(c prometheus.Collector) float64 {
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var pb dto.Metric
	if err := (<-ch).Write(&pb); err != nil {
		panic(err)
	}
	switch {
	case pb.Counter != nil:
		return pb.GetCounter().GetValue()
	case pb.Gauge != nil:
		return pb.GetGauge().GetValue()
	}
	return 0
}

func TestManager(t *testing.T) {
	Convey("Given a manager on its own registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(
			WithPrometheusRegistry(registry),
			WithNamespace("test"),
			WithSubsystem("core"),
			WithConstLabels(map[string]string{"env": "test"}),
		)

		Convey("When recording calibrations", func() {
			m.RecordCalibration(false)
			m.RecordCalibration(true)
			m.RecordCalibrationError("non_monotonic")

			Convey("Then counters reflect each call", func() {
				So(value(m.calibrations), ShouldEqual, 2)
				So(value(m.reversalWarnings), ShouldEqual, 1)
				So(value(m.calibrationErrors.WithLabelValues("non_monotonic")), ShouldEqual, 1)
			})
		})

		Convey("When recording jobs and suggestions", func() {
			m.RecordJob("cross_section", "done")
			m.RecordJob("cross_section", "done")
			m.RecordJob("lead_lag", "cancelled")
			m.RecordSuggestions("correlation", 5)

			Convey("Then labelled series are kept apart", func() {
				So(value(m.jobs.WithLabelValues("cross_section", "done")), ShouldEqual, 2)
				So(value(m.jobs.WithLabelValues("lead_lag", "cancelled")), ShouldEqual, 1)
				So(value(m.suggestions.WithLabelValues("correlation")), ShouldEqual, 5)
			})
		})

		Convey("When gathering", func() {
			m.UpdateQueueCapacity(64)
			m.UpdateSystemStats()
			families, err := registry.Gather()

			Convey("Then names carry the namespace and subsystem", func() {
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				for _, f := range families {
					So(strings.HasPrefix(f.GetName(), "test_core_"), ShouldBeTrue)
				}
				So(value(m.queueCapacity), ShouldEqual, 64)
				So(value(m.goroutines), ShouldBeGreaterThan, 0)
			})
		})
	})
}

// histogram reads the buckets of a single-series histogram.
func histogram(c prometheus.Collector) *dto.Histogram {
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var pb dto.Metric
	if err := (<-ch).Write(&pb); err != nil {
		panic(err)
	}
	return pb.GetHistogram()
}

func TestHistogramBuckets(t *testing.T) {
	Convey("Given a manager with custom request buckets", t, func() {
		m := NewManager(
			WithPrometheusRegistry(prometheus.NewRegistry()),
			WithHistogramBuckets([]float64{1, 5}),
		)

		Convey("When a request is timed", func() {
			m.RecordHTTPRequest("/sections", "GET", "200", 3)

			Convey("Then it lands in the configured buckets", func() {
				h := histogram(m.httpRequestDuration.WithLabelValues("/sections", "GET", "200").(prometheus.Histogram))
				So(h.GetSampleCount(), ShouldEqual, 1)
				So(len(h.GetBucket()), ShouldEqual, 2)
				So(h.GetBucket()[0].GetUpperBound(), ShouldEqual, 1)
				So(h.GetBucket()[0].GetCumulativeCount(), ShouldEqual, 0)
				So(h.GetBucket()[1].GetUpperBound(), ShouldEqual, 5)
				So(h.GetBucket()[1].GetCumulativeCount(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given empty buckets", t, func() {
		Convey("Then the defaults are kept", func() {
			So(NewManager(WithPrometheusRegistry(prometheus.NewRegistry()), WithHistogramBuckets(nil)).histogramBuckets, ShouldResemble, defaultLatencyBuckets)
			So(NewManager(WithPrometheusRegistry(prometheus.NewRegistry()), WithHistogramBuckets([]float64{})).histogramBuckets, ShouldResemble, defaultLatencyBuckets)
		})
	})
}

func TestGlobalShortcuts(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Then every shortcut records without panicking", func() {
			So(func() {
				RecordCalibration(true)
				RecordCalibrationError("insufficient_tie_points")
				RecordCalibrationCache(true)
				RecordCalibrationCache(false)
				RecordCorrelation("cross_section", 12.5, 41)
				RecordSuggestions("remote", 2)
				RecordSuggestionUnavailable()
				RecordTiePointEdit("add", "ok")
				RecordSplice(120, 1)
				UpdateSectionCount(3)
				UpdateQueueSize(1)
				UpdateQueueCapacity(8)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordJob("suggest", "failed")
				UpdateWorkerCount(2)
				AddWorkerActive(1)
				AddWorkerActive(-1)
				RecordWorkerProcessingLatency(3)
				RecordHTTPRequest("/sections", "GET", "200", 0.4)
				RecordErrorByComponent("api", "not_found")
				UpdateSystemStats()
			}, ShouldNotPanic)
		})

		Convey("Then the custom registry exposes them", func() {
			RecordCalibration(false)
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			var found bool
			for _, f := range families {
				if f.GetName() == "strata_splice_calibrations_total" {
					found = true
				}
			}
			So(found, ShouldBeTrue)
		})
	})
}
