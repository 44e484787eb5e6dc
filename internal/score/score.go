// Package score resolves classified answers against an answer key into
// per-subject and total scores with a quality verdict. It is pure
// aggregation over already-computed inputs: no retries, no image access.
package score

import (
	"omr-engine/internal/classify"
	"omr-engine/internal/layout"
)

// Quality is the overall confidence verdict for a scored sheet.
type Quality string

const (
	// QualityOK means the sheet scored cleanly.
	QualityOK Quality = "ok"
	// QualityNeedsReview means the score stands but a human should verify
	// the flagged questions before finalizing.
	QualityNeedsReview Quality = "needs_review"
	// QualityRejected means an upstream stage hard-failed and no score could
	// be computed.
	QualityRejected Quality = "rejected"
)

// Review reason codes.
const (
	ReasonLowConfidence = "low_confidence"
	ReasonAmbiguousMark = "ambiguous_mark"
	ReasonPartialGrid   = "partial_grid"
)

// ReviewFlag marks questions needing human verification, with a stable
// reason code.
type ReviewFlag struct {
	Reason    string `json:"reason"`
	Questions []int  `json:"questions,omitempty"`
}

// SubjectScore is the raw correct count for one subject block.
type SubjectScore struct {
	Name    string `json:"name"`
	Correct int    `json:"correct"`
	Total   int    `json:"total"`
}

// ScoreResult is the final output for one sheet.
type ScoreResult struct {
	Version  layout.Version `json:"version"`
	Subjects []SubjectScore `json:"subjects"`

	// Total is always the sum of subject correct counts, never computed
	// independently.
	Total    int `json:"total"`
	MaxTotal int `json:"max_total"`

	// Wrong, Unanswered and Ambiguous are recorded separately: all score
	// zero, but they mean different things to analytics.
	Wrong      []int `json:"wrong,omitempty"`
	Unanswered []int `json:"unanswered,omitempty"`
	Ambiguous  []int `json:"ambiguous,omitempty"`

	Quality      Quality      `json:"quality"`
	ReviewFlags  []ReviewFlag `json:"review_flags,omitempty"`
	RejectReason string       `json:"reject_reason,omitempty"`
}

// Upstream carries the downgraded (non-fatal) conditions earlier stages
// reported, which feed the quality decision.
type Upstream struct {
	// PartialGrid is true when the locator fell back to layout priors for
	// some bubbles instead of detecting them.
	PartialGrid bool
	// GridCoverage is the fraction of bubbles actually detected.
	GridCoverage float64
}

// Score compares the detection result against the answer key and aggregates
// subject and total scores with the quality decision.
func Score(det *classify.DetectionResult, key layout.AnswerKey, l *layout.BubbleLayout, th layout.Thresholds, up Upstream) *ScoreResult {
	res := &ScoreResult{
		Version:  l.Version,
		Subjects: make([]SubjectScore, len(l.Subjects)),
		MaxTotal: l.TotalQuestions,
		Quality:  QualityOK,
	}
	for i, s := range l.Subjects {
		res.Subjects[i] = SubjectScore{Name: s.Name, Total: s.Questions}
	}

	var lowConfidence []int
	for q := 1; q <= l.TotalQuestions; q++ {
		qr := det.Result(q)
		subjectIdx, _ := l.SubjectOf(q)

		switch qr.Verdict {
		case classify.VerdictFilled:
			if qr.Option == key[q] {
				res.Subjects[subjectIdx].Correct++
			} else {
				res.Wrong = append(res.Wrong, q)
			}
		case classify.VerdictEmpty:
			res.Unanswered = append(res.Unanswered, q)
		case classify.VerdictAmbiguous:
			res.Ambiguous = append(res.Ambiguous, q)
		}

		if qr.Confidence < th.AuditConfidence {
			lowConfidence = append(lowConfidence, q)
		}
	}

	for _, s := range res.Subjects {
		res.Total += s.Correct
	}

	// Quality decision: too many shaky questions, or upstream conditions
	// that were downgraded rather than hard-failed, demand a human look.
	reviewRatio := float64(len(lowConfidence)) / float64(l.TotalQuestions)
	if reviewRatio > th.ReviewRatio {
		res.Quality = QualityNeedsReview
		res.ReviewFlags = append(res.ReviewFlags, ReviewFlag{
			Reason:    ReasonLowConfidence,
			Questions: lowConfidence,
		})
	}
	if up.PartialGrid {
		res.Quality = QualityNeedsReview
		res.ReviewFlags = append(res.ReviewFlags, ReviewFlag{
			Reason: ReasonPartialGrid,
		})
	}
	// Whatever tipped the sheet into review, the ambiguous questions are the
	// ones a human checks first.
	if len(res.Ambiguous) > 0 && res.Quality == QualityNeedsReview {
		res.ReviewFlags = append(res.ReviewFlags, ReviewFlag{
			Reason:    ReasonAmbiguousMark,
			Questions: res.Ambiguous,
		})
	}

	return res
}

// Rejected builds the result shell for a sheet whose upstream stages
// hard-failed: no subject scores, quality rejected, reason recorded.
func Rejected(version layout.Version, reason string) *ScoreResult {
	return &ScoreResult{
		Version:      version,
		Quality:      QualityRejected,
		RejectReason: reason,
	}
}
