package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omr-engine/internal/layout"
	"omr-engine/internal/locate"
)

func testLayout(t *testing.T) *layout.BubbleLayout {
	t.Helper()
	l := &layout.BubbleLayout{
		Version:            "A",
		TotalQuestions:     4,
		OptionsPerQuestion: 4,
		Subjects: []layout.Subject{
			{Name: "Mathematics", Questions: 2},
			{Name: "Physics", Questions: 2},
		},
		FrameWidth:  300,
		FrameHeight: 300,
		Grid: layout.GridGeometry{
			Columns:       1,
			RowsPerColumn: 4,
			OriginX:       40,
			OriginY:       40,
			ColumnPitch:   200,
			RowPitch:      40,
			OptionPitch:   36,
			BubbleRadius:  12,
		},
	}
	require.NoError(t, l.Validate())
	return l
}

// makeGrid builds a located grid whose per-option statistics are consistent
// with the given fill signals: darker mean intensity and denser edges as the
// signal rises.
func makeGrid(t *testing.T, l *layout.BubbleLayout, signals [][]float64) *locate.Grid {
	t.Helper()
	require.Len(t, signals, l.TotalQuestions)

	grid := &locate.Grid{
		Layout:   l,
		Regions:  make(map[locate.Key]*locate.BubbleRegion),
		Coverage: 1.0,
	}
	for q := 1; q <= l.TotalQuestions; q++ {
		require.Len(t, signals[q-1], l.OptionsPerQuestion)
		for opt := 0; opt < l.OptionsPerQuestion; opt++ {
			s := signals[q-1][opt]
			grid.Regions[locate.Key{Question: q, Option: opt}] = &locate.BubbleRegion{
				Key:     locate.Key{Question: q, Option: opt},
				Center:  l.Position(q, opt),
				Radius:  l.Grid.BubbleRadius,
				Located: true,
				Stats: locate.RegionStats{
					DarkRatio:     s,
					MeanIntensity: 230 - 180*s,
					EdgeDensity:   0.08 + 0.15*s,
				},
			}
		}
	}
	return grid
}

func TestClassifyVerdicts(t *testing.T) {
	l := testLayout(t)
	th := layout.DefaultThresholds()

	tests := []struct {
		name    string
		signals []float64
		verdict Verdict
		option  int
		minConf float64
		maxConf float64
	}{
		{
			name:    "clear single mark",
			signals: []float64{0.92, 0.05, 0.04, 0.06},
			verdict: VerdictFilled,
			option:  0,
			minConf: 0.5,
			maxConf: 1,
		},
		{
			name:    "clear mark on last option",
			signals: []float64{0.03, 0.05, 0.04, 0.88},
			verdict: VerdictFilled,
			option:  3,
			minConf: 0.5,
			maxConf: 1,
		},
		{
			name:    "blank question",
			signals: []float64{0.05, 0.08, 0.02, 0.04},
			verdict: VerdictEmpty,
			option:  -1,
			minConf: 0.9,
			maxConf: 1,
		},
		{
			name:    "double mark near tie",
			signals: []float64{0.90, 0.84, 0.05, 0.04},
			verdict: VerdictAmbiguous,
			option:  -1,
			minConf: 0,
			maxConf: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := [][]float64{
				tt.signals,
				{0.9, 0.05, 0.05, 0.05},
				{0.05, 0.9, 0.05, 0.05},
				{0.05, 0.05, 0.9, 0.05},
			}
			grid := makeGrid(t, l, signals)

			det := New(DefaultCalibration(), nil).Classify(grid, th)
			res := det.Result(1)

			assert.Equal(t, tt.verdict, res.Verdict)
			assert.Equal(t, tt.option, res.Option)
			assert.GreaterOrEqual(t, res.Confidence, tt.minConf)
			assert.LessOrEqual(t, res.Confidence, tt.maxConf)
			assert.Equal(t, tt.signals, res.Signals)
		})
	}
}

func TestClassifyCompleteness(t *testing.T) {
	l := testLayout(t)
	th := layout.DefaultThresholds()
	grid := makeGrid(t, l, [][]float64{
		{0.9, 0.05, 0.05, 0.05},
		{0.05, 0.05, 0.05, 0.05},
		{0.7, 0.68, 0.05, 0.05},
		{0.62, 0.05, 0.05, 0.05},
	})

	det := New(DefaultCalibration(), nil).Classify(grid, th)
	require.Len(t, det.Questions, l.TotalQuestions)

	for q := 1; q <= l.TotalQuestions; q++ {
		res := det.Result(q)
		assert.Equal(t, q, res.Question)
		assert.Contains(t, []Verdict{VerdictFilled, VerdictEmpty, VerdictAmbiguous}, res.Verdict)
		if res.Verdict == VerdictFilled {
			assert.GreaterOrEqual(t, res.Option, 0)
		} else {
			assert.Equal(t, -1, res.Option)
		}
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
	}
}

func TestClassifyDeterminism(t *testing.T) {
	l := testLayout(t)
	th := layout.DefaultThresholds()
	signals := [][]float64{
		{0.9, 0.05, 0.05, 0.05},
		{0.62, 0.58, 0.05, 0.05},
		{0.05, 0.05, 0.05, 0.05},
		{0.7, 0.3, 0.66, 0.05},
	}

	c := New(DefaultCalibration(), nil)
	first := c.Classify(makeGrid(t, l, signals), th)
	second := c.Classify(makeGrid(t, l, signals), th)

	require.Equal(t, first, second)
}

// Raising the fill threshold must never turn a non-filled verdict into a
// filled one for the same raw signals.
func TestThresholdMonotonicity(t *testing.T) {
	l := testLayout(t)

	patterns := [][]float64{
		{0.92, 0.05, 0.04, 0.06},
		{0.90, 0.84, 0.05, 0.04},
		{0.99, 0.60, 0.05, 0.05},
		{0.75, 0.70, 0.05, 0.05},
		{0.65, 0.05, 0.05, 0.05},
		{0.62, 0.58, 0.55, 0.05},
		{0.05, 0.08, 0.02, 0.04},
		{0.90, 0.40, 0.05, 0.05},
	}

	c := New(DefaultCalibration(), nil)
	for pi, pattern := range patterns {
		signals := [][]float64{pattern, pattern, pattern, pattern}
		grid := makeGrid(t, l, signals)

		filledSeen := true
		for fill := 0.30; fill <= 0.95; fill += 0.05 {
			th := layout.DefaultThresholds()
			th.FillThreshold = fill

			res := c.Classify(grid, th).Result(1)
			if res.Verdict == VerdictFilled {
				assert.True(t, filledSeen,
					"pattern %d: verdict returned to filled at threshold %.2f", pi, fill)
			} else {
				filledSeen = false
			}
		}
	}
}

func TestUnlocatedBubbleDiscountsConfidence(t *testing.T) {
	l := testLayout(t)
	th := layout.DefaultThresholds()
	signals := [][]float64{
		{0.92, 0.05, 0.04, 0.06},
		{0.92, 0.05, 0.04, 0.06},
		{0.05, 0.05, 0.05, 0.05},
		{0.05, 0.05, 0.05, 0.05},
	}
	grid := makeGrid(t, l, signals)
	grid.Regions[locate.Key{Question: 2, Option: 3}].Located = false

	det := New(DefaultCalibration(), nil).Classify(grid, th)

	full := det.Result(1)
	discounted := det.Result(2)
	assert.Equal(t, VerdictFilled, discounted.Verdict)
	assert.InDelta(t, full.Confidence/2, discounted.Confidence, 1e-9)
}

func TestFitCalibration(t *testing.T) {
	samples := []CalibrationSample{
		{Signal: 0.9, MeanIntensity: 70, EdgeDensity: 0.20, Filled: true},
		{Signal: 0.8, MeanIntensity: 90, EdgeDensity: 0.24, Filled: true},
		{Signal: 0.1, MeanIntensity: 210, EdgeDensity: 0.08, Filled: false},
		{Signal: 0.06, MeanIntensity: 230, EdgeDensity: 0.12, Filled: false},
	}

	cal := FitCalibration(samples)

	assert.InDelta(t, 0.85, cal.Filled.SignalMean, 1e-9)
	assert.InDelta(t, 80, cal.Filled.IntensityMean, 1e-9)
	assert.InDelta(t, 0.08, cal.Empty.SignalMean, 1e-9)
	assert.InDelta(t, 220, cal.Empty.IntensityMean, 1e-9)
}

func TestFitCalibrationKeepsDefaultsWithoutSamples(t *testing.T) {
	cal := FitCalibration([]CalibrationSample{
		{Signal: 0.9, MeanIntensity: 70, EdgeDensity: 0.2, Filled: true},
		{Signal: 0.8, MeanIntensity: 90, EdgeDensity: 0.24, Filled: true},
	})
	assert.Equal(t, DefaultCalibration().Empty, cal.Empty)
	assert.NotEqual(t, DefaultCalibration().Filled, cal.Filled)
}
