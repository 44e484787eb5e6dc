package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omr-engine/internal/classify"
	"omr-engine/internal/layout"
)

// filledDetection builds a detection where every question is confidently
// filled with the given option.
func filledDetection(l *layout.BubbleLayout, option int, confidence float64) *classify.DetectionResult {
	det := &classify.DetectionResult{
		Version:   l.Version,
		Questions: make([]classify.QuestionResult, l.TotalQuestions),
	}
	for q := 1; q <= l.TotalQuestions; q++ {
		det.Questions[q-1] = classify.QuestionResult{
			Question:   q,
			Verdict:    classify.VerdictFilled,
			Option:     option,
			Confidence: confidence,
		}
	}
	return det
}

func uniformKey(l *layout.BubbleLayout, option int) layout.AnswerKey {
	key := make(layout.AnswerKey, l.TotalQuestions)
	for q := 1; q <= l.TotalQuestions; q++ {
		key[q] = option
	}
	return key
}

// A sheet with every bubble clearly filled and matching the key scores 100
// with no review flags.
func TestScorePerfectSheet(t *testing.T) {
	l := layout.StandardLayout("A")
	require.NoError(t, l.Validate())
	key := uniformKey(l, 1)
	det := filledDetection(l, 1, 0.95)

	res := Score(det, key, l, layout.DefaultThresholds(), Upstream{GridCoverage: 1})

	assert.Equal(t, 100, res.Total)
	assert.Equal(t, QualityOK, res.Quality)
	assert.Empty(t, res.ReviewFlags)
	assert.Empty(t, res.Wrong)
	assert.Empty(t, res.Unanswered)
	assert.Empty(t, res.Ambiguous)
	require.Len(t, res.Subjects, 5)
	for _, s := range res.Subjects {
		assert.Equal(t, 20, s.Correct)
		assert.Equal(t, 20, s.Total)
	}
}

func TestScoreTotalEqualsSubjectSum(t *testing.T) {
	l := layout.StandardLayout("B")
	key := uniformKey(l, 0)

	det := filledDetection(l, 0, 0.9)
	// Mix in wrong answers, blanks, and ambiguous questions across subjects.
	for q := 3; q <= 100; q += 7 {
		det.Questions[q-1].Option = 2
	}
	for q := 5; q <= 100; q += 11 {
		det.Questions[q-1] = classify.QuestionResult{
			Question: q, Verdict: classify.VerdictEmpty, Option: -1, Confidence: 0.9,
		}
	}
	for q := 8; q <= 100; q += 13 {
		det.Questions[q-1] = classify.QuestionResult{
			Question: q, Verdict: classify.VerdictAmbiguous, Option: -1, Confidence: 0.3,
		}
	}

	res := Score(det, key, l, layout.DefaultThresholds(), Upstream{GridCoverage: 1})

	sum := 0
	for _, s := range res.Subjects {
		assert.GreaterOrEqual(t, s.Correct, 0)
		assert.LessOrEqual(t, s.Correct, 20)
		sum += s.Correct
	}
	assert.Equal(t, sum, res.Total)
	assert.Equal(t, 100, res.MaxTotal)
}

// Ambiguous and empty questions earn no credit but are recorded apart from
// wrong answers.
func TestScoreSeparatesZeroCreditReasons(t *testing.T) {
	l := layout.StandardLayout("A")
	key := uniformKey(l, 0)

	det := filledDetection(l, 0, 0.9)
	det.Questions[4] = classify.QuestionResult{
		Question: 5, Verdict: classify.VerdictAmbiguous, Option: -1, Confidence: 0.2,
	}
	det.Questions[9] = classify.QuestionResult{
		Question: 10, Verdict: classify.VerdictEmpty, Option: -1, Confidence: 0.95,
	}
	det.Questions[14].Option = 3

	res := Score(det, key, l, layout.DefaultThresholds(), Upstream{GridCoverage: 1})

	assert.Equal(t, 97, res.Total)
	assert.Equal(t, []int{15}, res.Wrong)
	assert.Equal(t, []int{10}, res.Unanswered)
	assert.Equal(t, []int{5}, res.Ambiguous)
}

// More low-confidence questions than the review ratio allows must flag the
// sheet, never leave it ok.
func TestQualityEscalationOnLowConfidence(t *testing.T) {
	l := layout.StandardLayout("A")
	key := uniformKey(l, 0)
	th := layout.DefaultThresholds()

	det := filledDetection(l, 0, 0.9)
	// 11 of 100 questions below the audit confidence exceeds the 0.1 ratio.
	for q := 1; q <= 11; q++ {
		det.Questions[q-1].Confidence = 0.5
	}

	res := Score(det, key, l, th, Upstream{GridCoverage: 1})

	assert.Equal(t, QualityNeedsReview, res.Quality)
	require.NotEmpty(t, res.ReviewFlags)
	assert.Equal(t, ReasonLowConfidence, res.ReviewFlags[0].Reason)
	assert.Len(t, res.ReviewFlags[0].Questions, 11)

	// At exactly the ratio the sheet stays ok.
	det2 := filledDetection(l, 0, 0.9)
	for q := 1; q <= 10; q++ {
		det2.Questions[q-1].Confidence = 0.5
	}
	res2 := Score(det2, key, l, th, Upstream{GridCoverage: 1})
	assert.Equal(t, QualityOK, res2.Quality)
}

func TestPartialGridNeedsReview(t *testing.T) {
	l := layout.StandardLayout("A")
	key := uniformKey(l, 0)
	det := filledDetection(l, 0, 0.9)

	res := Score(det, key, l, layout.DefaultThresholds(), Upstream{
		PartialGrid:  true,
		GridCoverage: 0.97,
	})

	assert.Equal(t, QualityNeedsReview, res.Quality)
	require.NotEmpty(t, res.ReviewFlags)
	found := false
	for _, f := range res.ReviewFlags {
		if f.Reason == ReasonPartialGrid {
			found = true
		}
	}
	assert.True(t, found)
}

// A sheet tipped into review by the grid alone still flags its ambiguous
// questions for the reviewer.
func TestPartialGridCarriesAmbiguousFlag(t *testing.T) {
	l := layout.StandardLayout("A")
	key := uniformKey(l, 0)
	det := filledDetection(l, 0, 0.9)
	det.Questions[4] = classify.QuestionResult{
		Question:   5,
		Verdict:    classify.VerdictAmbiguous,
		Option:     -1,
		Confidence: 0.9,
	}

	res := Score(det, key, l, layout.DefaultThresholds(), Upstream{
		PartialGrid:  true,
		GridCoverage: 0.97,
	})

	require.Equal(t, QualityNeedsReview, res.Quality)
	var ambiguous *ReviewFlag
	for i, f := range res.ReviewFlags {
		if f.Reason == ReasonAmbiguousMark {
			ambiguous = &res.ReviewFlags[i]
		}
	}
	require.NotNil(t, ambiguous)
	assert.Equal(t, []int{5}, ambiguous.Questions)
}

func TestRejectedShell(t *testing.T) {
	res := Rejected("C", "alignment_failure")

	assert.Equal(t, QualityRejected, res.Quality)
	assert.Equal(t, "alignment_failure", res.RejectReason)
	assert.Empty(t, res.Subjects)
	assert.Zero(t, res.Total)
}
