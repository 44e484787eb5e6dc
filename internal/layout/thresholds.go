package layout

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"omr-engine/internal/sheet"
)

//go:embed sample_thresholds.toml
var sampleThresholds string

// Thresholds are the tunable processing parameters shared by all pipeline
// stages. Loaded once per batch; workers treat them as read-only.
type Thresholds struct {
	// FillThreshold is the normalized dark-pixel ratio above which a bubble
	// signal counts as marked.
	FillThreshold float64 `toml:"fill_threshold"`

	// SeparationMargin is how far apart two option signals must be before a
	// single winner is declared rather than an ambiguous multi-mark.
	SeparationMargin float64 `toml:"separation_margin"`

	// MinRadius/MaxRadius bound detectable bubble radii in canonical pixels.
	MinRadius int `toml:"min_radius"`
	MaxRadius int `toml:"max_radius"`

	// AuditConfidence is the per-question confidence below which a question
	// counts toward the review ratio.
	AuditConfidence float64 `toml:"audit_confidence"`

	// ReviewRatio is the fraction of low-confidence questions above which a
	// sheet is flagged needs_review.
	ReviewRatio float64 `toml:"review_ratio"`

	// MinCoverage is the fraction of expected bubbles the locator must find;
	// below it the sheet fails with a grid mismatch.
	MinCoverage float64 `toml:"min_coverage"`

	// AspectTolerance is the allowed relative deviation of the detected sheet
	// quad's aspect ratio from the expected aspect.
	AspectTolerance float64 `toml:"aspect_tolerance"`

	// SheetTimeoutSeconds is the per-sheet compute budget. Zero disables it.
	SheetTimeoutSeconds int `toml:"sheet_timeout_seconds"`
}

// DefaultThresholds returns the tuned defaults for mobile-captured sheets.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FillThreshold:       0.6,
		SeparationMargin:    0.15,
		MinRadius:           8,
		MaxRadius:           25,
		AuditConfidence:     0.7,
		ReviewRatio:         0.1,
		MinCoverage:         0.95,
		AspectTolerance:     0.1,
		SheetTimeoutSeconds: 30,
	}
}

// NominalRadius is the midpoint of the detectable radius range, used as the
// tie-break target when several candidate centers compete for one bubble.
func (t Thresholds) NominalRadius() float64 {
	return (float64(t.MinRadius) + float64(t.MaxRadius)) / 2
}

// Validate ensures the thresholds are usable.
func (t Thresholds) Validate() error {
	if t.FillThreshold <= 0 || t.FillThreshold >= 1 {
		return fmt.Errorf("fill_threshold %.2f outside (0,1)", t.FillThreshold)
	}
	if t.SeparationMargin < 0 || t.SeparationMargin >= 1 {
		return fmt.Errorf("separation_margin %.2f outside [0,1)", t.SeparationMargin)
	}
	if t.MinRadius <= 0 || t.MaxRadius <= t.MinRadius {
		return fmt.Errorf("radius range [%d,%d] is invalid", t.MinRadius, t.MaxRadius)
	}
	if t.AuditConfidence <= 0 || t.AuditConfidence > 1 {
		return fmt.Errorf("audit_confidence %.2f outside (0,1]", t.AuditConfidence)
	}
	if t.ReviewRatio < 0 || t.ReviewRatio > 1 {
		return fmt.Errorf("review_ratio %.2f outside [0,1]", t.ReviewRatio)
	}
	if t.MinCoverage <= 0 || t.MinCoverage > 1 {
		return fmt.Errorf("min_coverage %.2f outside (0,1]", t.MinCoverage)
	}
	if t.AspectTolerance <= 0 || t.AspectTolerance >= 1 {
		return fmt.Errorf("aspect_tolerance %.2f outside (0,1)", t.AspectTolerance)
	}
	if t.SheetTimeoutSeconds < 0 {
		return fmt.Errorf("sheet_timeout_seconds must not be negative")
	}
	return nil
}

// LoadThresholds reads thresholds from a TOML file, starting from defaults so
// a partial file only overrides what it names.
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()
	data, err := os.ReadFile(path)
	if err != nil {
		return t, sheet.Wrap(sheet.ErrConfiguration, "thresholds", path, err)
	}
	if err := toml.Unmarshal(data, &t); err != nil {
		return t, sheet.Wrap(sheet.ErrConfiguration, "thresholds", "parse "+path, err)
	}
	if err := t.Validate(); err != nil {
		return t, sheet.Wrap(sheet.ErrConfiguration, "thresholds", "validate", err)
	}
	return t, nil
}

// WriteSampleThresholds writes the annotated sample thresholds file.
func WriteSampleThresholds(path string) error {
	return os.WriteFile(path, []byte(sampleThresholds), 0o644)
}
