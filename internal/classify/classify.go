package classify

import (
	"log/slog"
	"math"

	"omr-engine/internal/layout"
	"omr-engine/internal/locate"
)

// scorer is the common contract both classification strategies implement.
// The router picks a strategy per question from the signal margins, never
// from runtime type inspection.
type scorer interface {
	Name() string
	Score(question int, feats []optionFeatures, th layout.Thresholds) QuestionResult
}

// Classifier resolves a located grid into a DetectionResult. The rule-based
// strategy handles clear-cut questions; marginal signals route to the
// calibrated statistical strategy, which may override the rule verdict but
// always emits its own confidence.
type Classifier struct {
	rule       scorer
	calibrated scorer
	log        *slog.Logger
}

// New builds a classifier with the given calibration.
func New(cal Calibration, log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{
		rule:       ruleScorer{},
		calibrated: calibratedScorer{cal: cal},
		log:        log,
	}
}

// Classify produces a verdict for every question on the sheet. It never
// fails: questions with no signal at all are confident empty verdicts.
func (c *Classifier) Classify(grid *locate.Grid, th layout.Thresholds) *DetectionResult {
	l := grid.Layout
	out := &DetectionResult{
		Version:   l.Version,
		Questions: make([]QuestionResult, l.TotalQuestions),
	}

	routed := 0
	for q := 1; q <= l.TotalQuestions; q++ {
		feats := questionFeatures(grid, q)

		res := c.rule.Score(q, feats, th)
		if res.Verdict == VerdictAmbiguous || topInMarginBand(res.Signals, th) {
			res = c.calibrated.Score(q, feats, th)
			routed++
		}
		out.Questions[q-1] = res
	}

	c.log.Debug("sheet classified",
		"version", l.Version, "questions", l.TotalQuestions,
		"routed_to_calibrated", routed)
	return out
}

// questionFeatures gathers the per-option features for one question.
func questionFeatures(grid *locate.Grid, question int) []optionFeatures {
	k := grid.Layout.OptionsPerQuestion
	feats := make([]optionFeatures, k)
	for opt := 0; opt < k; opt++ {
		r := grid.Region(question, opt)
		feats[opt] = optionFeatures{
			Signal:        r.Stats.DarkRatio,
			MeanIntensity: r.Stats.MeanIntensity,
			EdgeDensity:   r.Stats.EdgeDensity,
			Located:       r.Located,
		}
	}
	return feats
}

// topInMarginBand reports whether the strongest signal sits inside the
// uncertainty band around the fill threshold, where the rule-based decision
// boundary is least trustworthy. Only the top signal matters: the rule
// verdict is a function of the top signal's position relative to the
// threshold, so weaker signals near the threshold cannot flip it.
func topInMarginBand(signals []float64, th layout.Thresholds) bool {
	top := 0.0
	for _, s := range signals {
		if s > top {
			top = s
		}
	}
	return math.Abs(top-th.FillThreshold) <= th.SeparationMargin
}
