package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"omr-engine/internal/layout"
)

// FeatureStats holds per-feature mean and standard deviation for one class
// of bubble (filled or empty).
type FeatureStats struct {
	SignalMean    float64 `json:"signal_mean"`
	SignalStd     float64 `json:"signal_std"`
	IntensityMean float64 `json:"intensity_mean"` // 0-255
	IntensityStd  float64 `json:"intensity_std"`
	EdgeMean      float64 `json:"edge_mean"`
	EdgeStd       float64 `json:"edge_std"`
}

// Calibration holds the learned filled/empty feature distributions the
// statistical scorer measures candidates against.
type Calibration struct {
	Filled FeatureStats `json:"filled"`
	Empty  FeatureStats `json:"empty"`
}

// DefaultCalibration returns distributions measured on cleanly marked
// reference sheets. A deployment-specific calibration fitted from labeled
// samples replaces these when available.
func DefaultCalibration() Calibration {
	return Calibration{
		Filled: FeatureStats{
			SignalMean: 0.85, SignalStd: 0.12,
			IntensityMean: 80, IntensityStd: 40,
			EdgeMean: 0.22, EdgeStd: 0.14,
		},
		Empty: FeatureStats{
			SignalMean: 0.08, SignalStd: 0.08,
			IntensityMean: 220, IntensityStd: 28,
			EdgeMean: 0.10, EdgeStd: 0.08,
		},
	}
}

// CalibrationSample is one labeled bubble used to fit a calibration.
type CalibrationSample struct {
	Signal        float64 `json:"signal"`
	MeanIntensity float64 `json:"mean_intensity"`
	EdgeDensity   float64 `json:"edge_density"`
	Filled        bool    `json:"filled"`
}

// FitCalibration computes feature statistics from labeled samples. Either
// class without samples keeps the default distribution.
func FitCalibration(samples []CalibrationSample) Calibration {
	cal := DefaultCalibration()

	var filled, empty []CalibrationSample
	for _, s := range samples {
		if s.Filled {
			filled = append(filled, s)
		} else {
			empty = append(empty, s)
		}
	}
	if len(filled) > 1 {
		cal.Filled = fitStats(filled)
	}
	if len(empty) > 1 {
		cal.Empty = fitStats(empty)
	}
	return cal
}

func fitStats(samples []CalibrationSample) FeatureStats {
	n := float64(len(samples))
	var st FeatureStats
	for _, s := range samples {
		st.SignalMean += s.Signal
		st.IntensityMean += s.MeanIntensity
		st.EdgeMean += s.EdgeDensity
	}
	st.SignalMean /= n
	st.IntensityMean /= n
	st.EdgeMean /= n

	for _, s := range samples {
		st.SignalStd += (s.Signal - st.SignalMean) * (s.Signal - st.SignalMean)
		st.IntensityStd += (s.MeanIntensity - st.IntensityMean) * (s.MeanIntensity - st.IntensityMean)
		st.EdgeStd += (s.EdgeDensity - st.EdgeMean) * (s.EdgeDensity - st.EdgeMean)
	}
	st.SignalStd = math.Sqrt(st.SignalStd / n)
	st.IntensityStd = math.Sqrt(st.IntensityStd / n)
	st.EdgeStd = math.Sqrt(st.EdgeStd / n)
	return st
}

// LoadCalibration reads a fitted calibration from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Calibration{}, err
	}
	var cal Calibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return Calibration{}, fmt.Errorf("unmarshal calibration: %w", err)
	}
	return cal, nil
}

// Save writes the calibration to a JSON file.
func (c Calibration) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal calibration: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// calibratedScorer is the secondary strategy for marginal cases: it scores
// each option's features against the filled and empty distributions and
// decides in probability space, where smudges and partial erasures separate
// better than on the raw fill signal alone.
type calibratedScorer struct {
	cal Calibration
}

func (calibratedScorer) Name() string { return "calibrated" }

// probMargin is the required fill-probability separation between the best
// and second-best option before a single winner is declared.
const probMargin = 0.2

// Score resolves a question from calibrated fill probabilities. Only options
// whose raw signal clears the fill threshold are fill candidates, so raising
// the threshold can only shrink the candidate set; a near-tie can collapse
// to empty but never sharpen into a confident filled verdict.
func (s calibratedScorer) Score(question int, feats []optionFeatures, th layout.Thresholds) QuestionResult {
	res := QuestionResult{
		Question: question,
		Option:   -1,
		Signals:  rawSignals(feats),
		Scorer:   "calibrated",
	}

	probs := make([]float64, len(feats))
	for i, f := range feats {
		probs[i] = s.fillProbability(f)
	}

	best := -1
	for i, f := range feats {
		if f.Signal <= th.FillThreshold {
			continue
		}
		if best < 0 || probs[i] > probs[best] {
			best = i
		}
	}

	if best < 0 {
		maxP := 0.0
		for _, p := range probs {
			maxP = math.Max(maxP, p)
		}
		res.Verdict = VerdictEmpty
		res.Confidence = discountUnlocated(1-maxP, feats)
		return res
	}

	// Second-best probability over all options, candidates or not: a shadow
	// mark just below the threshold still blocks a confident verdict.
	second := 0.0
	for i, p := range probs {
		if i != best && p > second {
			second = p
		}
	}

	switch {
	case probs[best] >= 0.5 && probs[best]-second >= probMargin:
		res.Verdict = VerdictFilled
		res.Option = best
		res.Confidence = probs[best]

	case probs[best] < 0.5:
		res.Verdict = VerdictEmpty
		res.Confidence = 1 - probs[best]

	default:
		res.Verdict = VerdictAmbiguous
		res.Confidence = clamp(probs[best]-second, 0, 0.5)
	}

	res.Confidence = discountUnlocated(res.Confidence, feats)
	return res
}

// fillProbability converts one bubble's features into a fill probability by
// inverse-distance weighting of the normalized distances to the filled and
// empty distributions.
func (s calibratedScorer) fillProbability(f optionFeatures) float64 {
	dFilled := featureDistance(f, s.cal.Filled)
	dEmpty := featureDistance(f, s.cal.Empty)

	wFilled := 1.0 / (dFilled + 1e-3)
	wEmpty := 1.0 / (dEmpty + 1e-3)
	return wFilled / (wFilled + wEmpty)
}

// featureDistance is the RMS of per-feature z-scores against a class
// distribution.
func featureDistance(f optionFeatures, st FeatureStats) float64 {
	z := func(v, mean, std float64) float64 {
		if std < 1e-6 {
			std = 1e-6
		}
		return (v - mean) / std
	}
	zs := z(f.Signal, st.SignalMean, st.SignalStd)
	zi := z(f.MeanIntensity, st.IntensityMean, st.IntensityStd)
	ze := z(f.EdgeDensity, st.EdgeMean, st.EdgeStd)
	return math.Sqrt((zs*zs + zi*zi + ze*ze) / 3)
}
