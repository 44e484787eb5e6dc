package layout

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardLayoutValid(t *testing.T) {
	for _, v := range []Version{"A", "B", "C", "D"} {
		l := StandardLayout(v)
		require.NoError(t, l.Validate(), "version %s", v)
		assert.Equal(t, 100, l.TotalQuestions)
		assert.Equal(t, 4, l.OptionsPerQuestion)
		assert.Len(t, l.Subjects, 5)
	}
}

func TestPositionColumnMajor(t *testing.T) {
	l := StandardLayout("A")

	q1 := l.Position(1, 0)
	assert.Equal(t, l.Grid.OriginX, q1.X)
	assert.Equal(t, l.Grid.OriginY, q1.Y)

	// Question 2 sits one row below question 1 in the same column.
	q2 := l.Position(2, 0)
	assert.Equal(t, q1.X, q2.X)
	assert.Equal(t, q1.Y+l.Grid.RowPitch, q2.Y)

	// Question 26 starts the second column at the top row.
	q26 := l.Position(26, 0)
	assert.Equal(t, q1.X+l.Grid.ColumnPitch, q26.X)
	assert.Equal(t, q1.Y, q26.Y)

	// Options advance horizontally.
	q1d := l.Position(1, 3)
	assert.Equal(t, q1.X+3*l.Grid.OptionPitch, q1d.X)
	assert.Equal(t, q1.Y, q1d.Y)
}

func TestSubjectOf(t *testing.T) {
	l := StandardLayout("A")

	tests := []struct {
		question int
		index    int
		name     string
	}{
		{1, 0, "Mathematics"},
		{20, 0, "Mathematics"},
		{21, 1, "Physics"},
		{40, 1, "Physics"},
		{41, 2, "Chemistry"},
		{80, 3, "Biology"},
		{81, 4, "English"},
		{100, 4, "English"},
	}
	for _, tt := range tests {
		idx, name := l.SubjectOf(tt.question)
		assert.Equal(t, tt.index, idx, "question %d", tt.question)
		assert.Equal(t, tt.name, name, "question %d", tt.question)
	}
}

func TestOptionLetters(t *testing.T) {
	assert.Equal(t, "A", OptionLetter(0))
	assert.Equal(t, "D", OptionLetter(3))
	assert.Equal(t, "?", OptionLetter(-1))

	idx, err := ParseOption("C", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	_, err = ParseOption("E", 4)
	assert.Error(t, err)
	_, err = ParseOption("", 4)
	assert.Error(t, err)
}

func TestValidateRejectsBrokenLayouts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BubbleLayout)
	}{
		{"subject sum mismatch", func(l *BubbleLayout) { l.Subjects[0].Questions = 19 }},
		{"grid too small", func(l *BubbleLayout) { l.Grid.RowsPerColumn = 10 }},
		{"pitch below diameter", func(l *BubbleLayout) { l.Grid.BubbleRadius = 30 }},
		{"bubble outside frame", func(l *BubbleLayout) { l.Grid.OriginX = 1200 }},
		{"no version", func(l *BubbleLayout) { l.Version = "" }},
		{"single option", func(l *BubbleLayout) { l.OptionsPerQuestion = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := StandardLayout("A")
			tt.mutate(l)
			assert.Error(t, l.Validate())
		})
	}
}

func TestParseAnswerKey(t *testing.T) {
	l := StandardLayout("A")

	full := make(keyFileEntry, l.TotalQuestions)
	for q := 1; q <= l.TotalQuestions; q++ {
		full[strconv.Itoa(q)] = "B"
	}

	key, err := parseAnswerKey("A", full, l)
	require.NoError(t, err)
	assert.Len(t, key, 100)
	assert.Equal(t, 1, key[37])

	t.Run("missing question", func(t *testing.T) {
		partial := make(keyFileEntry, len(full))
		for k, v := range full {
			partial[k] = v
		}
		delete(partial, "42")
		_, err := parseAnswerKey("A", partial, l)
		assert.ErrorContains(t, err, "missing")
	})

	t.Run("letter out of range", func(t *testing.T) {
		bad := make(keyFileEntry, len(full))
		for k, v := range full {
			bad[k] = v
		}
		bad["7"] = "E"
		_, err := parseAnswerKey("A", bad, l)
		assert.Error(t, err)
	})

	t.Run("question out of range", func(t *testing.T) {
		bad := make(keyFileEntry, len(full))
		for k, v := range full {
			bad[k] = v
		}
		bad["101"] = "A"
		_, err := parseAnswerKey("A", bad, l)
		assert.Error(t, err)
	})

	t.Run("question number with trailing garbage", func(t *testing.T) {
		bad := make(keyFileEntry, len(full))
		for k, v := range full {
			bad[k] = v
		}
		delete(bad, "7")
		bad["7abc"] = "B"
		_, err := parseAnswerKey("A", bad, l)
		assert.ErrorContains(t, err, "invalid question number")
	})
}

func TestDistributionWarnings(t *testing.T) {
	// 25/25/25/25 raises nothing.
	balanced := make(AnswerKey, 100)
	for q := 1; q <= 100; q++ {
		balanced[q] = (q - 1) % 4
	}
	assert.Empty(t, balanced.DistributionWarnings(4))

	// One runaway option warns high, starving the others warns low.
	skewed := make(AnswerKey, 100)
	for q := 1; q <= 100; q++ {
		skewed[q] = 0
	}
	warnings := skewed.DistributionWarnings(4)
	require.Len(t, warnings, 4)
	assert.Contains(t, warnings[0], "unusually high")
	assert.Contains(t, warnings[1], "unusually low")
}
