// Package report aggregates batch outcomes into summary statistics for
// operators: score distribution, rejection and review breakdowns, and
// per-subject means.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"omr-engine/internal/engine"
	"omr-engine/internal/score"
)

// HistogramBin is one score-distribution bucket.
type HistogramBin struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// BatchSummary is the operator-facing rollup of a batch run.
type BatchSummary struct {
	Sheets      int `json:"sheets"`
	Scored      int `json:"scored"`
	Rejected    int `json:"rejected"`
	NeedsReview int `json:"needs_review"`

	MeanScore   float64 `json:"mean_score"`
	MinScore    float64 `json:"min_score"`
	MaxScore    float64 `json:"max_score"`
	StdDevScore float64 `json:"stddev_score"`

	// PassRate is the fraction of scored sheets at or above the pass mark.
	PassMark int     `json:"pass_mark"`
	PassRate float64 `json:"pass_rate"`

	Histogram []HistogramBin `json:"histogram"`

	// SubjectMeans is keyed by subject name; values are mean correct counts
	// over scored sheets.
	SubjectMeans map[string]float64 `json:"subject_means,omitempty"`

	RejectReasons map[string]int `json:"reject_reasons,omitempty"`
	ReviewReasons map[string]int `json:"review_reasons,omitempty"`
}

// Summarize rolls a batch's outcomes into a summary. Rejected sheets count
// toward totals but never contribute to score statistics.
func Summarize(outcomes []*engine.SheetOutcome, passMark int) *BatchSummary {
	s := &BatchSummary{
		Sheets:        len(outcomes),
		PassMark:      passMark,
		RejectReasons: make(map[string]int),
		ReviewReasons: make(map[string]int),
		SubjectMeans:  make(map[string]float64),
	}

	var totals []float64
	subjectSums := make(map[string]float64)
	passed := 0

	for _, o := range outcomes {
		if o.Rejected() {
			s.Rejected++
			s.RejectReasons[o.Reason]++
			continue
		}
		s.Scored++
		res := o.Score
		totals = append(totals, float64(res.Total))
		if res.Total >= passMark {
			passed++
		}
		if res.Quality == score.QualityNeedsReview {
			s.NeedsReview++
			for _, f := range res.ReviewFlags {
				s.ReviewReasons[f.Reason]++
			}
		}
		for _, sub := range res.Subjects {
			subjectSums[sub.Name] += float64(sub.Correct)
		}
	}

	if s.Scored > 0 {
		s.MeanScore = stat.Mean(totals, nil)
		s.MinScore = floats.Min(totals)
		s.MaxScore = floats.Max(totals)
		s.PassRate = float64(passed) / float64(s.Scored)
		for name, sum := range subjectSums {
			s.SubjectMeans[name] = sum / float64(s.Scored)
		}
	}
	if s.Scored > 1 {
		s.StdDevScore = stat.StdDev(totals, nil)
	}
	s.Histogram = buildHistogram(totals)

	return s
}

// buildHistogram buckets totals into ten-point bins over 0-100. The top bin
// is closed so a perfect score lands in 90-100 rather than falling off.
func buildHistogram(totals []float64) []HistogramBin {
	const bins = 10
	dividers := make([]float64, bins+1)
	floats.Span(dividers, 0, 100)
	// stat.Histogram treats the last divider as exclusive; nudge it so 100
	// counts.
	dividers[bins] = 100 + 1e-9

	counts := make([]float64, bins)
	if len(totals) > 0 {
		sorted := append([]float64(nil), totals...)
		sort.Float64s(sorted)
		stat.Histogram(counts, dividers, sorted, nil)
	}

	out := make([]HistogramBin, bins)
	for i := range out {
		out[i] = HistogramBin{
			Low:   float64(i * 10),
			High:  float64((i + 1) * 10),
			Count: int(counts[i]),
		}
	}
	return out
}

// RenderTable writes the summary as a terminal table.
func (s *BatchSummary) RenderTable(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Sheets", s.Sheets},
		{"Scored", s.Scored},
		{"Rejected", s.Rejected},
		{"Needs review", s.NeedsReview},
	})
	if s.Scored > 0 {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Mean score", fmt.Sprintf("%.1f / 100", s.MeanScore)},
			{"Min score", fmt.Sprintf("%.0f", s.MinScore)},
			{"Max score", fmt.Sprintf("%.0f", s.MaxScore)},
			{"Std dev", fmt.Sprintf("%.2f", s.StdDevScore)},
			{"Pass rate", fmt.Sprintf("%.1f%% (mark %d)", s.PassRate*100, s.PassMark)},
		})
	}
	t.Render()

	if len(s.SubjectMeans) > 0 {
		st := table.NewWriter()
		st.SetOutputMirror(w)
		st.SetStyle(table.StyleLight)
		st.AppendHeader(table.Row{"Subject", "Mean correct"})
		for _, name := range sortedKeys(s.SubjectMeans) {
			st.AppendRow(table.Row{name, fmt.Sprintf("%.1f", s.SubjectMeans[name])})
		}
		st.Render()
	}

	if len(s.RejectReasons) > 0 {
		rt := table.NewWriter()
		rt.SetOutputMirror(w)
		rt.SetStyle(table.StyleLight)
		rt.AppendHeader(table.Row{"Reject reason", "Sheets"})
		for _, reason := range sortedIntKeys(s.RejectReasons) {
			rt.AppendRow(table.Row{reason, s.RejectReasons[reason]})
		}
		rt.Render()
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedIntKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
