package layout

import (
	"fmt"
	"sort"
	"strconv"
)

// AnswerKey maps question number (1-based) to the correct option index.
type AnswerKey map[int]int

// keyFileEntry is the on-disk shape: question number strings to option
// letters, e.g. {"1": "A", "2": "C"}.
type keyFileEntry map[string]string

// parseAnswerKey converts the JSON shape to the validated internal form.
func parseAnswerKey(version Version, raw keyFileEntry, l *BubbleLayout) (AnswerKey, error) {
	key := make(AnswerKey, len(raw))
	for qs, letter := range raw {
		q, err := strconv.Atoi(qs)
		if err != nil {
			return nil, fmt.Errorf("key %s: invalid question number %q", version, qs)
		}
		if q < 1 || q > l.TotalQuestions {
			return nil, fmt.Errorf("key %s: question %d out of range 1-%d", version, q, l.TotalQuestions)
		}
		opt, err := ParseOption(letter, l.OptionsPerQuestion)
		if err != nil {
			return nil, fmt.Errorf("key %s question %d: %w", version, q, err)
		}
		if _, dup := key[q]; dup {
			return nil, fmt.Errorf("key %s: duplicate entry for question %d", version, q)
		}
		key[q] = opt
	}

	// Every layout question needs exactly one entry.
	if len(key) != l.TotalQuestions {
		missing := make([]int, 0)
		for q := 1; q <= l.TotalQuestions; q++ {
			if _, ok := key[q]; !ok {
				missing = append(missing, q)
			}
		}
		return nil, fmt.Errorf("key %s: %d of %d questions answered, missing %v",
			version, len(key), l.TotalQuestions, missing)
	}
	return key, nil
}

// DistributionWarnings reports unusually skewed answer distributions. These
// are advisory (a typoed key often shows up as one runaway option) and never
// block a batch.
func (k AnswerKey) DistributionWarnings(options int) []string {
	if len(k) == 0 {
		return nil
	}
	counts := make([]int, options)
	for _, opt := range k {
		if opt >= 0 && opt < options {
			counts[opt]++
		}
	}

	var warnings []string
	for opt, n := range counts {
		pct := float64(n) / float64(len(k)) * 100
		switch {
		case pct > 40:
			warnings = append(warnings, fmt.Sprintf(
				"option %s appears %.1f%% of the time (unusually high)", OptionLetter(opt), pct))
		case pct < 15:
			warnings = append(warnings, fmt.Sprintf(
				"option %s appears %.1f%% of the time (unusually low)", OptionLetter(opt), pct))
		}
	}
	sort.Strings(warnings)
	return warnings
}
