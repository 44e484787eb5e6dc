// Package classify resolves located bubble regions into per-question answer
// verdicts with confidences. Classification never hard-fails: a blank sheet
// is a fully-confident set of empty verdicts, not an error.
package classify

import (
	"omr-engine/internal/layout"
)

// Verdict is the classification outcome for one question.
type Verdict int

const (
	// VerdictEmpty means no option signal cleared the fill threshold.
	VerdictEmpty Verdict = iota
	// VerdictFilled means exactly one option was confidently marked.
	VerdictFilled
	// VerdictAmbiguous means multiple marks or a near-tie; scored as
	// incorrect but recorded separately for analytics and review.
	VerdictAmbiguous
)

func (v Verdict) String() string {
	switch v {
	case VerdictEmpty:
		return "empty"
	case VerdictFilled:
		return "filled"
	case VerdictAmbiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// QuestionResult is the verdict for one question: the selected option (when
// filled), a confidence in [0,1], and the raw per-option signal vector kept
// for audit and threshold re-evaluation without re-running image geometry.
type QuestionResult struct {
	Question   int       `json:"question"`
	Verdict    Verdict   `json:"verdict"`
	Option     int       `json:"option"` // -1 unless Verdict == VerdictFilled
	Confidence float64   `json:"confidence"`
	Signals    []float64 `json:"signals"`
	Scorer     string    `json:"scorer"` // which strategy produced the verdict
}

// DetectionResult is the complete classification for one sheet.
type DetectionResult struct {
	Version   layout.Version   `json:"version"`
	Questions []QuestionResult `json:"questions"` // indexed by question-1
}

// Result returns the verdict for a question (1-based).
func (d *DetectionResult) Result(question int) QuestionResult {
	return d.Questions[question-1]
}

// optionFeatures are the per-bubble statistics the calibrated scorer
// consumes. Signal is the normalized dark-pixel ratio; the remaining fields
// come straight from the located region.
type optionFeatures struct {
	Signal        float64
	MeanIntensity float64
	EdgeDensity   float64
	Located       bool
}
