// Package locate finds the bubble-grid coordinate system on a normalized
// sheet. Layout priors give each bubble's expected canonical position; dark
// blob candidates detected on the image refine them. Location is purely
// geometric; fill state is decided downstream by the classifier.
package locate

import (
	"omr-engine/internal/layout"
	"omr-engine/pkg/geometry"
)

// Key addresses one bubble: question number (1-based) and option index
// (0-based).
type Key struct {
	Question int
	Option   int
}

// RegionStats are the pixel-fill statistics for a bubble region, computed
// once at location time so thresholds can be re-evaluated without re-running
// image geometry.
type RegionStats struct {
	// MeanIntensity is the average grayscale value inside the bubble (0-255).
	MeanIntensity float64 `json:"mean_intensity"`

	// DarkRatio is the fraction of bubble pixels below the batch dark
	// threshold. This is the primary fill signal.
	DarkRatio float64 `json:"dark_ratio"`

	// EdgeDensity is the fraction of strong edge pixels in the region;
	// separates deliberate marks from smudges and print artifacts.
	EdgeDensity float64 `json:"edge_density"`
}

// BubbleRegion is one located bubble with its pixel statistics.
type BubbleRegion struct {
	Key    Key
	Center geometry.Point2D
	Radius float64
	Bounds geometry.RectInt

	// Located is false when no candidate was found and the region fell back
	// to the layout prior. Such cells classify at reduced confidence.
	Located bool

	Stats RegionStats
}

// Grid is the complete bubble-region map for one sheet. Every layout cell is
// present even when low-confidence; coverage reflects how many were actually
// detected rather than assumed.
type Grid struct {
	Layout   *layout.BubbleLayout
	Regions  map[Key]*BubbleRegion
	Coverage float64
}

// Region returns the region for a question/option pair.
func (g *Grid) Region(question, option int) *BubbleRegion {
	return g.Regions[Key{Question: question, Option: option}]
}
