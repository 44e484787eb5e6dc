// Package layout holds the versioned sheet configuration: bubble-grid
// geometry, subject structure, answer keys, and processing thresholds.
// Everything here is loaded and validated once per batch and shared read-only
// across workers; a malformed entry fails at load time, never per sheet.
package layout

import (
	"fmt"

	"omr-engine/pkg/geometry"
)

// Version tags a sheet layout/answer-key variant, e.g. "A".."D".
type Version string

// Subject is a named contiguous block of questions on the sheet.
type Subject struct {
	Name      string `json:"name"`
	Questions int    `json:"questions"`
}

// GridGeometry describes the bubble grid in canonical-frame pixels.
// Questions run top-to-bottom within a column, columns left-to-right;
// option bubbles run left-to-right within a question row.
type GridGeometry struct {
	Columns       int     `json:"columns"`
	RowsPerColumn int     `json:"rows_per_column"`
	OriginX       float64 `json:"origin_x"` // center of question 1, option A
	OriginY       float64 `json:"origin_y"`
	ColumnPitch   float64 `json:"column_pitch"`
	RowPitch      float64 `json:"row_pitch"`
	OptionPitch   float64 `json:"option_pitch"`
	BubbleRadius  float64 `json:"bubble_radius"`
}

// BubbleLayout is the geometric template for one sheet version.
type BubbleLayout struct {
	Version            Version      `json:"version"`
	TotalQuestions     int          `json:"total_questions"`
	OptionsPerQuestion int          `json:"options_per_question"`
	Subjects           []Subject    `json:"subjects"`
	FrameWidth         int          `json:"frame_width"`
	FrameHeight        int          `json:"frame_height"`
	Grid               GridGeometry `json:"grid"`
}

// Position returns the expected bubble center for a question (1-based) and
// option index (0-based) in canonical-frame coordinates.
func (l *BubbleLayout) Position(question, option int) geometry.Point2D {
	col := (question - 1) / l.Grid.RowsPerColumn
	row := (question - 1) % l.Grid.RowsPerColumn
	return geometry.Point2D{
		X: l.Grid.OriginX + float64(col)*l.Grid.ColumnPitch + float64(option)*l.Grid.OptionPitch,
		Y: l.Grid.OriginY + float64(row)*l.Grid.RowPitch,
	}
}

// SubjectOf returns the index and name of the subject owning a question
// (1-based). Each question maps to exactly one subject; Validate enforces
// that the blocks tile the question range.
func (l *BubbleLayout) SubjectOf(question int) (int, string) {
	q := question
	for i, s := range l.Subjects {
		if q <= s.Questions {
			return i, s.Name
		}
		q -= s.Questions
	}
	return -1, ""
}

// OptionLetter renders a 0-based option index as its printed letter.
func OptionLetter(option int) string {
	if option < 0 || option > 25 {
		return "?"
	}
	return string(rune('A' + option))
}

// ParseOption converts a printed option letter to its 0-based index.
func ParseOption(letter string, options int) (int, error) {
	if len(letter) != 1 {
		return 0, fmt.Errorf("invalid option %q", letter)
	}
	idx := int(letter[0] - 'A')
	if idx < 0 || idx >= options {
		return 0, fmt.Errorf("option %q out of range (A-%s)", letter, OptionLetter(options-1))
	}
	return idx, nil
}

// Validate checks the layout invariants.
func (l *BubbleLayout) Validate() error {
	if l.Version == "" {
		return fmt.Errorf("layout version is empty")
	}
	if l.TotalQuestions <= 0 {
		return fmt.Errorf("layout %s: total_questions must be positive", l.Version)
	}
	if l.OptionsPerQuestion < 2 {
		return fmt.Errorf("layout %s: options_per_question must be at least 2", l.Version)
	}
	if len(l.Subjects) == 0 {
		return fmt.Errorf("layout %s: no subjects defined", l.Version)
	}
	sum := 0
	for _, s := range l.Subjects {
		if s.Name == "" {
			return fmt.Errorf("layout %s: subject with empty name", l.Version)
		}
		if s.Questions <= 0 {
			return fmt.Errorf("layout %s: subject %s has no questions", l.Version, s.Name)
		}
		sum += s.Questions
	}
	if sum != l.TotalQuestions {
		return fmt.Errorf("layout %s: subject question counts sum to %d, want %d",
			l.Version, sum, l.TotalQuestions)
	}
	if l.FrameWidth <= 0 || l.FrameHeight <= 0 {
		return fmt.Errorf("layout %s: invalid canonical frame %dx%d",
			l.Version, l.FrameWidth, l.FrameHeight)
	}

	g := l.Grid
	if g.Columns <= 0 || g.RowsPerColumn <= 0 {
		return fmt.Errorf("layout %s: grid is %dx%d", l.Version, g.Columns, g.RowsPerColumn)
	}
	if g.Columns*g.RowsPerColumn < l.TotalQuestions {
		return fmt.Errorf("layout %s: grid holds %d questions, need %d",
			l.Version, g.Columns*g.RowsPerColumn, l.TotalQuestions)
	}
	if g.BubbleRadius <= 0 {
		return fmt.Errorf("layout %s: bubble_radius must be positive", l.Version)
	}
	if g.RowPitch < 2*g.BubbleRadius || g.OptionPitch < 2*g.BubbleRadius {
		return fmt.Errorf("layout %s: bubble pitch smaller than bubble diameter", l.Version)
	}

	// Every bubble must land inside the canonical frame.
	for _, q := range []int{1, l.TotalQuestions} {
		for _, opt := range []int{0, l.OptionsPerQuestion - 1} {
			p := l.Position(q, opt)
			if p.X-g.BubbleRadius < 0 || p.Y-g.BubbleRadius < 0 ||
				p.X+g.BubbleRadius > float64(l.FrameWidth) ||
				p.Y+g.BubbleRadius > float64(l.FrameHeight) {
				return fmt.Errorf("layout %s: bubble q%d opt %s at (%.0f,%.0f) outside %dx%d frame",
					l.Version, q, OptionLetter(opt), p.X, p.Y, l.FrameWidth, l.FrameHeight)
			}
		}
	}
	return nil
}
