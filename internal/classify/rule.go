package classify

import (
	"omr-engine/internal/layout"
)

// ruleScorer is the primary strategy: pure threshold-and-margin rules over
// the per-option fill signals.
type ruleScorer struct{}

func (ruleScorer) Name() string { return "rule" }

// Score applies the decision policy:
//
//  1. the strongest signal is above the fill threshold and separated from
//     every other signal by at least the margin → filled, margin-normalized
//     confidence (a clearly weaker second mark reads as an erasure or
//     smudge, not a second answer);
//  2. no option above the threshold → empty, confidence 1 − max(signal);
//  3. the strongest signal is above the threshold but near-tied with
//     another → ambiguous, confidence shrinking as the signals converge.
//
// The separation test compares signals to each other, never to the
// threshold, so for fixed signals the verdict depends on the threshold only
// through "is the top signal above it". Raising the threshold can therefore
// only move a verdict toward empty, never toward filled.
func (ruleScorer) Score(question int, feats []optionFeatures, th layout.Thresholds) QuestionResult {
	signals := rawSignals(feats)
	res := QuestionResult{
		Question: question,
		Option:   -1,
		Signals:  signals,
		Scorer:   "rule",
	}

	best, second := topTwo(signals)
	separation := signals[best] - second

	switch {
	case signals[best] <= th.FillThreshold:
		res.Verdict = VerdictEmpty
		res.Confidence = 1 - signals[best]

	case separation >= th.SeparationMargin:
		res.Verdict = VerdictFilled
		res.Option = best
		res.Confidence = clamp(separation/(2*th.SeparationMargin), 0.5, 1)

	default:
		// Near-tie above the threshold. Converging signals mean less
		// certainty that either mark is the intended answer.
		res.Verdict = VerdictAmbiguous
		res.Confidence = clamp(separation/(2*th.SeparationMargin), 0, 0.5)
	}

	res.Confidence = discountUnlocated(res.Confidence, feats)
	return res
}

// rawSignals extracts the per-option fill signal vector.
func rawSignals(feats []optionFeatures) []float64 {
	signals := make([]float64, len(feats))
	for i, f := range feats {
		signals[i] = f.Signal
	}
	return signals
}

// topTwo returns the index of the strongest signal and the value of the
// second strongest. Index ties resolve to the lower option, keeping verdicts
// deterministic.
func topTwo(signals []float64) (bestIdx int, secondVal float64) {
	for i, s := range signals {
		if s > signals[bestIdx] {
			bestIdx = i
		}
	}
	for i, s := range signals {
		if i != bestIdx && s > secondVal {
			secondVal = s
		}
	}
	return bestIdx, secondVal
}

// discountUnlocated halves confidence when any of the question's bubbles fell
// back to its layout prior instead of being detected.
func discountUnlocated(conf float64, feats []optionFeatures) float64 {
	for _, f := range feats {
		if !f.Located {
			return conf * 0.5
		}
	}
	return conf
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
