package api

import (
	"math"
	"time"

	"github.com/okian/strata/internal/adapters/mq/queue"
	service "github.com/okian/strata/internal/app"
	"github.com/okian/strata/internal/domain/agemodel"
	"github.com/okian/strata/internal/domain/correlation"
	"github.com/okian/strata/internal/domain/model"
	"github.com/okian/strata/internal/domain/proxy"
	"github.com/okian/strata/internal/domain/suggest"
)

type sampleDTO struct {
	Position     float64            `json:"position"`
	Values       map[string]float64 `json:"values,omitempty"`
	Extrapolated bool               `json:"extrapolated,omitempty"`
	Source       string             `json:"source,omitempty"`
}

type warningDTO struct {
	Kind    proxy.WarningKind `json:"kind"`
	Index   int               `json:"index"`
	Message string            `json:"message"`
}

type seriesDTO struct {
	Axis     proxy.Axis   `json:"axis"`
	Samples  []sampleDTO  `json:"samples"`
	Warnings []warningDTO `json:"warnings,omitempty"`
}

type tiePointDTO struct {
	ID    string  `json:"id"`
	Depth float64 `json:"depth"`
	Age   float64 `json:"age"`
}

type ageModelDTO struct {
	SectionID string        `json:"section_id"`
	Version   uint64        `json:"version"`
	TiePoints []tiePointDTO `json:"tie_points"`
}

type sectionDTO struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Series   seriesDTO   `json:"series"`
	AgeModel ageModelDTO `json:"age_model"`
}

type sectionSummaryDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Samples   int    `json:"samples"`
	Version   uint64 `json:"version"`
	TiePoints int    `json:"tie_points"`
}

type pointDTO struct {
	Lag         float64 `json:"lag"`
	Coefficient float64 `json:"coefficient"`
	Overlap     int     `json:"overlap"`
}

type peakDTO struct {
	Lag         float64 `json:"lag"`
	Coefficient float64 `json:"coefficient"`
	InPhase     bool    `json:"in_phase"`
	Curvature   float64 `json:"curvature"`
	Edge        bool    `json:"edge"`
}

type correlationDTO struct {
	Curve []pointDTO `json:"curve"`
	Peaks []peakDTO  `json:"peaks"`
	Best  *pointDTO  `json:"best,omitempty"`
}

type suggestionDTO struct {
	RefPosition    float64 `json:"ref_position"`
	TargetPosition float64 `json:"target_position"`
	Confidence     float64 `json:"confidence"`
	Lag            float64 `json:"lag,omitempty"`
	Coefficient    float64 `json:"coefficient,omitempty"`
	Source         string  `json:"source"`
}

type jobDTO struct {
	ID       string       `json:"id"`
	Kind     queue.Kind   `json:"kind"`
	Status   queue.Status `json:"status"`
	Result   any          `json:"result,omitempty"`
	Error    string       `json:"error,omitempty"`
	Created  time.Time    `json:"created"`
	Started  *time.Time   `json:"started,omitempty"`
	Finished *time.Time   `json:"finished,omitempty"`
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func toSeries(s proxy.Series) seriesDTO {
	out := seriesDTO{Axis: s.Axis(), Samples: make([]sampleDTO, 0, s.Len())}
	for _, smp := range s.Samples() {
		d := sampleDTO{Position: smp.Position, Extrapolated: smp.Extrapolated, Source: smp.Source}
		for k, v := range smp.Values {
			if !finite(v) {
				continue
			}
			if d.Values == nil {
				d.Values = make(map[string]float64, len(smp.Values))
			}
			d.Values[k] = v
		}
		out.Samples = append(out.Samples, d)
	}
	for _, w := range s.Warnings() {
		out.Warnings = append(out.Warnings, warningDTO{Kind: w.Kind, Index: w.Index, Message: w.Message})
	}
	return out
}

func fromSamples(in []sampleDTO) []proxy.Sample {
	out := make([]proxy.Sample, len(in))
	for i, d := range in {
		out[i] = proxy.Sample{Position: d.Position, Values: d.Values}
	}
	return out
}

func toAgeModel(m agemodel.Model) ageModelDTO {
	out := ageModelDTO{SectionID: m.SectionID(), Version: m.Version(), TiePoints: []tiePointDTO{}}
	for _, tp := range m.TiePoints() {
		out.TiePoints = append(out.TiePoints, tiePointDTO{ID: tp.ID, Depth: tp.Depth, Age: tp.Age})
	}
	return out
}

func toSection(s model.Section) sectionDTO {
	return sectionDTO{ID: s.ID, Name: s.Name, Series: toSeries(s.Series), AgeModel: toAgeModel(s.AgeModel)}
}

func toSummary(s model.Section) sectionSummaryDTO {
	return sectionSummaryDTO{
		ID: s.ID, Name: s.Name, Samples: s.Series.Len(),
		Version: s.AgeModel.Version(), TiePoints: s.AgeModel.Len(),
	}
}

func toPoint(p correlation.Point) pointDTO {
	return pointDTO{Lag: p.Lag, Coefficient: p.Coefficient, Overlap: p.Overlap}
}

func toCorrelation(res service.CorrelationResult) correlationDTO {
	out := correlationDTO{Curve: make([]pointDTO, 0, len(res.Curve)), Peaks: make([]peakDTO, 0, len(res.Peaks))}
	for _, p := range res.Curve {
		out.Curve = append(out.Curve, toPoint(p))
	}
	for _, pk := range res.Peaks {
		out.Peaks = append(out.Peaks, peakDTO{
			Lag: pk.Lag, Coefficient: pk.Coefficient, InPhase: pk.InPhase,
			Curvature: pk.Curvature, Edge: pk.Edge,
		})
	}
	if len(res.Curve) > 0 {
		best := toPoint(res.Best)
		out.Best = &best
	}
	return out
}

func toSuggestions(in []suggest.Suggestion) []suggestionDTO {
	out := make([]suggestionDTO, 0, len(in))
	for _, s := range in {
		out = append(out, suggestionDTO{
			RefPosition: s.RefPosition, TargetPosition: s.TargetPosition, Confidence: s.Confidence,
			Lag: s.Lag, Coefficient: s.Coefficient, Source: s.Source,
		})
	}
	return out
}

func toJob(s queue.Snapshot) jobDTO {
	out := jobDTO{ID: s.ID, Kind: s.Kind, Status: s.Status, Created: s.Created}
	if !s.Started.IsZero() {
		t := s.Started
		out.Started = &t
	}
	if !s.Finished.IsZero() {
		t := s.Finished
		out.Finished = &t
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	switch r := s.Result.(type) {
	case service.CorrelationResult:
		out.Result = toCorrelation(r)
	case []suggest.Suggestion:
		out.Result = toSuggestions(r)
	}
	return out
}
