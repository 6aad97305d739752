package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/strata/internal/adapters/http/api"
	service "github.com/okian/strata/internal/app"
	"github.com/okian/strata/internal/domain/model"
	"github.com/okian/strata/internal/domain/suggest"
	"github.com/okian/strata/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

type sample struct {
	Position float64            `json:"position"`
	Values   map[string]float64 `json:"values"`
}

func samples(start float64, values []float64) []sample {
	out := make([]sample, len(values))
	for i, v := range values {
		out[i] = sample{Position: start + float64(i), Values: map[string]float64{"ca": v}}
	}
	return out
}

func noise(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

type client struct {
	base string
}

func (c client) do(method, path string, body any, out any) int {
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				panic(err)
			}
			rd = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		panic(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func newServer(svc *service.Service) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(mux)
	return httptest.NewServer(mux)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ageModel struct {
	SectionID string `json:"section_id"`
	Version   uint64 `json:"version"`
	TiePoints []struct {
		ID    string  `json:"id"`
		Depth float64 `json:"depth"`
		Age   float64 `json:"age"`
	} `json:"tie_points"`
}

type series struct {
	Axis    string `json:"axis"`
	Samples []struct {
		Position     float64 `json:"position"`
		Extrapolated bool    `json:"extrapolated"`
		Source       string  `json:"source"`
	} `json:"samples"`
	Warnings []struct {
		Kind string `json:"kind"`
	} `json:"warnings"`
}

type correlationBody struct {
	Curve []struct {
		Lag float64 `json:"lag"`
	} `json:"curve"`
	Best *struct {
		Lag         float64 `json:"lag"`
		Coefficient float64 `json:"coefficient"`
	} `json:"best"`
}

type jobBody struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Result correlationBody `json:"result"`
	Error  string          `json:"error"`
}

func TestAPI(t *testing.T) {
	Convey("Given an API over a started service with two related sections", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(2))
		So(svc.Start(ctx), ShouldBeNil)
		srv := newServer(svc)
		Reset(func() {
			srv.Close()
			svc.Stop()
		})
		c := client{base: srv.URL}

		sig := noise(21, 100)
		So(c.do("POST", "/sections", map[string]any{"id": "ref", "name": "Reference", "samples": samples(0, sig)}, nil), ShouldEqual, http.StatusCreated)
		So(c.do("POST", "/sections", map[string]any{"id": "tgt", "name": "Target", "samples": samples(7, sig)}, nil), ShouldEqual, http.StatusCreated)

		Convey("Sections are listed in ID order", func() {
			var out []struct {
				ID      string `json:"id"`
				Samples int    `json:"samples"`
			}
			So(c.do("GET", "/sections", nil, &out), ShouldEqual, http.StatusOK)
			So(len(out), ShouldEqual, 2)
			So(out[0].ID, ShouldEqual, "ref")
			So(out[0].Samples, ShouldEqual, 100)
		})

		Convey("A duplicate section is a conflict", func() {
			var e errorBody
			So(c.do("POST", "/sections", map[string]any{"id": "ref", "samples": samples(0, sig[:5])}, &e), ShouldEqual, http.StatusConflict)
			So(e.Code, ShouldEqual, "already_exists")
		})

		Convey("Malformed JSON is a bad request", func() {
			var e errorBody
			So(c.do("POST", "/sections", "{not json", &e), ShouldEqual, http.StatusBadRequest)
			So(e.Code, ShouldEqual, "bad_request")
		})

		Convey("A repeated depth is unprocessable", func() {
			var e errorBody
			body := samples(0, sig[:4])
			body[2].Position = body[1].Position
			So(c.do("POST", "/sections", map[string]any{"id": "dup", "samples": body}, &e), ShouldEqual, http.StatusUnprocessableEntity)
			So(e.Code, ShouldEqual, "invalid_positions")
		})

		Convey("Depths out of order are unprocessable", func() {
			var e errorBody
			body := samples(0, sig[:4])
			body[1], body[2] = body[2], body[1]
			So(c.do("POST", "/sections", map[string]any{"id": "unordered", "samples": body}, &e), ShouldEqual, http.StatusUnprocessableEntity)
			So(e.Code, ShouldEqual, "invalid_positions")
		})

		Convey("An unknown section is not found", func() {
			var e errorBody
			So(c.do("GET", "/sections/nope", nil, &e), ShouldEqual, http.StatusNotFound)
			So(e.Code, ShouldEqual, "not_found")
		})

		Convey("A tie point needs both depth and age", func() {
			So(c.do("POST", "/sections/ref/tie-points", map[string]any{"depth": 1}, nil), ShouldEqual, http.StatusBadRequest)
		})

		Convey("Calibration without tie points is unprocessable", func() {
			var e errorBody
			So(c.do("GET", "/sections/ref/calibrated", nil, &e), ShouldEqual, http.StatusUnprocessableEntity)
			So(e.Code, ShouldEqual, "insufficient_tie_points")
		})

		Convey("After dating the reference", func() {
			var m ageModel
			So(c.do("POST", "/sections/ref/tie-points", map[string]any{"depth": 0, "age": 0, "expected_version": 0}, &m), ShouldEqual, http.StatusCreated)
			So(c.do("POST", "/sections/ref/tie-points", map[string]any{"depth": 99, "age": 990, "expected_version": 1}, &m), ShouldEqual, http.StatusCreated)
			So(m.Version, ShouldEqual, 2)
			So(len(m.TiePoints), ShouldEqual, 2)

			Convey("A stale edit is a conflict", func() {
				var e errorBody
				So(c.do("POST", "/sections/ref/tie-points", map[string]any{"depth": 50, "age": 400, "expected_version": 1}, &e), ShouldEqual, http.StatusConflict)
				So(e.Code, ShouldEqual, "stale_version")
			})

			Convey("The calibrated series is on the age axis", func() {
				var s series
				So(c.do("GET", "/sections/ref/calibrated", nil, &s), ShouldEqual, http.StatusOK)
				So(s.Axis, ShouldEqual, "age")
				So(len(s.Samples), ShouldEqual, 100)
				So(s.Samples[10].Position, ShouldAlmostEqual, 100, 1e-9)
			})

			Convey("Removing a tie point returns the next snapshot", func() {
				var next ageModel
				So(c.do("DELETE", "/sections/ref/tie-points/"+m.TiePoints[0].ID+"?expected_version=2", nil, &next), ShouldEqual, http.StatusOK)
				So(next.Version, ShouldEqual, 3)
				So(len(next.TiePoints), ShouldEqual, 1)
			})

			Convey("A bad expected_version is a bad request", func() {
				So(c.do("DELETE", "/sections/ref/tie-points/"+m.TiePoints[0].ID+"?expected_version=x", nil, nil), ShouldEqual, http.StatusBadRequest)
			})

			Convey("Splicing selects the reference window", func() {
				var s series
				body := map[string]any{"intervals": []map[string]any{
					{"section_id": "ref", "start_age": 0, "end_age": 50},
					{"section_id": "tgt", "start_age": nil, "end_age": nil},
				}}
				So(c.do("POST", "/splice", body, &s), ShouldEqual, http.StatusOK)
				So(len(s.Samples), ShouldEqual, 6)
				So(s.Samples[5].Position, ShouldAlmostEqual, 50, 1e-9)
				So(s.Samples[0].Source, ShouldEqual, "ref")
			})

			Convey("Accepting a correspondence dates the target", func() {
				var out ageModel
				body := map[string]any{"reference_id": "ref", "target_id": "tgt", "ref_position": 10, "target_position": 17, "expected_version": 0}
				So(c.do("POST", "/accept", body, &out), ShouldEqual, http.StatusCreated)
				So(out.SectionID, ShouldEqual, "tgt")
				So(out.Version, ShouldEqual, 1)
				So(out.TiePoints[0].Age, ShouldAlmostEqual, 100, 1e-9)
			})
		})

		Convey("A synchronous correlation peaks at +7", func() {
			var out correlationBody
			body := map[string]any{"reference_id": "ref", "target_id": "tgt", "proxy": "ca", "max_lag": 15, "lag_step": 1}
			So(c.do("POST", "/correlate", body, &out), ShouldEqual, http.StatusOK)
			So(out.Best, ShouldNotBeNil)
			So(out.Best.Lag, ShouldAlmostEqual, 7, 1e-9)
		})

		Convey("An invalid lag range is unprocessable", func() {
			body := map[string]any{"reference_id": "ref", "target_id": "tgt", "proxy": "ca", "max_lag": -1, "lag_step": 1}
			So(c.do("POST", "/correlate", body, nil), ShouldEqual, http.StatusUnprocessableEntity)
		})

		Convey("A proxy swept against itself peaks at zero", func() {
			var out correlationBody
			body := map[string]any{"section_id": "ref", "lead": "ca", "lag": "ca", "max_lag": 3, "lag_step": 1}
			So(c.do("POST", "/lead-lag", body, &out), ShouldEqual, http.StatusOK)
			So(out.Best.Lag, ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("Suggestions come back ranked", func() {
			var out []struct {
				Confidence float64 `json:"confidence"`
				Source     string  `json:"source"`
			}
			body := map[string]any{"reference_id": "ref", "target_id": "tgt", "proxy": "ca"}
			So(c.do("POST", "/suggest", body, &out), ShouldEqual, http.StatusOK)
			So(out, ShouldNotBeEmpty)
			So(out[0].Source, ShouldEqual, "correlation")
		})

		Convey("An asynchronous job can be polled to completion", func() {
			var job jobBody
			body := map[string]any{"kind": "cross_section", "reference_id": "ref", "target_id": "tgt", "proxy": "ca", "max_lag": 15, "lag_step": 1}
			So(c.do("POST", "/jobs", body, &job), ShouldEqual, http.StatusAccepted)
			So(job.ID, ShouldNotBeEmpty)
			id := job.ID

			deadline := time.Now().Add(5 * time.Second)
			for job.Status != "done" && job.Status != "failed" && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
				job = jobBody{}
				So(c.do("GET", "/jobs/"+id, nil, &job), ShouldEqual, http.StatusOK)
			}
			So(job.Status, ShouldEqual, "done")
			So(job.Result.Best.Lag, ShouldAlmostEqual, 7, 1e-9)
		})

		Convey("An unknown job is not found", func() {
			So(c.do("GET", "/jobs/nope", nil, nil), ShouldEqual, http.StatusNotFound)
			So(c.do("DELETE", "/jobs/nope", nil, nil), ShouldEqual, http.StatusNotFound)
		})

		Convey("An unknown job kind is a bad request", func() {
			So(c.do("POST", "/jobs", map[string]any{"kind": "bogus"}, nil), ShouldEqual, http.StatusBadRequest)
		})

		Convey("Deleting a section makes it unknown", func() {
			So(c.do("DELETE", "/sections/tgt", nil, nil), ShouldEqual, http.StatusNoContent)
			So(c.do("GET", "/sections/tgt", nil, nil), ShouldEqual, http.StatusNotFound)
		})

		Convey("Stats report the section count", func() {
			var out map[string]any
			So(c.do("GET", "/stats", nil, &out), ShouldEqual, http.StatusOK)
			So(out["sections"], ShouldEqual, float64(2))
		})

		Convey("The health endpoint serves the metrics registry", func() {
			resp, err := http.Get(srv.URL + "/healthz")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			raw, _ := io.ReadAll(resp.Body)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(string(raw), ShouldContainSubstring, "strata_splice_")
		})
	})
}

func TestSuggestUnavailable(t *testing.T) {
	Convey("Given a service whose suggester is unavailable", t, func() {
		down := suggest.SuggesterFunc(func(context.Context, model.Section, model.Section, string) ([]suggest.Suggestion, error) {
			return nil, suggest.ErrSuggestionUnavailable
		})
		svc := service.New(service.WithSuggester(down))
		srv := newServer(svc)
		Reset(srv.Close)
		c := client{base: srv.URL}

		So(c.do("POST", "/sections", map[string]any{"id": "a", "samples": samples(0, noise(1, 10))}, nil), ShouldEqual, http.StatusCreated)
		So(c.do("POST", "/sections", map[string]any{"id": "b", "samples": samples(0, noise(2, 10))}, nil), ShouldEqual, http.StatusCreated)

		Convey("Suggest answers 503", func() {
			var e errorBody
			So(c.do("POST", "/suggest", map[string]any{"reference_id": "a", "target_id": "b", "proxy": "ca"}, &e), ShouldEqual, http.StatusServiceUnavailable)
			So(e.Code, ShouldEqual, "suggestion_unavailable")
		})

		Convey("Jobs answer 503 before the service starts", func() {
			So(c.do("POST", "/jobs", map[string]any{"kind": "suggest", "reference_id": "a", "target_id": "b"}, nil), ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
