package locate

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"

	"github.com/anthonynsimon/bild/effect"

	"omr-engine/internal/layout"
	"omr-engine/internal/sheet"
	"omr-engine/pkg/geometry"
)

// Locate builds the bubble-region map for a normalized sheet. Layout priors
// anchor a search window per bubble; detected candidates inside the window
// refine the prior. Fails with GridMismatch when fewer than the configured
// fraction of expected bubbles are locatable, which indicates a layout or
// version mismatch rather than per-bubble ambiguity.
func Locate(norm *sheet.NormalizedImage, l *layout.BubbleLayout, th layout.Thresholds, log *slog.Logger) (*Grid, error) {
	if log == nil {
		log = slog.Default()
	}

	candidates, darkThreshold := detectCandidates(norm, th.MinRadius, th.MaxRadius)

	// Search window: inside half the tightest pitch so neighboring bubbles
	// never compete for the same candidate.
	searchRadius := math.Min(l.Grid.RowPitch, l.Grid.OptionPitch) * 0.4
	nominal := th.NominalRadius()

	grid := &Grid{
		Layout:  l,
		Regions: make(map[Key]*BubbleRegion, l.TotalQuestions*l.OptionsPerQuestion),
	}

	located := 0
	total := l.TotalQuestions * l.OptionsPerQuestion

	for q := 1; q <= l.TotalQuestions; q++ {
		for opt := 0; opt < l.OptionsPerQuestion; opt++ {
			key := Key{Question: q, Option: opt}
			prior := l.Position(q, opt)

			region := &BubbleRegion{
				Key:    key,
				Center: prior,
				Radius: nominal,
			}
			if best := pickCandidate(candidates, prior, searchRadius, nominal); best != nil {
				region.Center = best.Center
				region.Radius = best.Radius
				region.Located = true
				located++
			}
			region.Bounds = regionBounds(region, norm.Width, norm.Height)
			region.Stats = computeStats(norm, region, darkThreshold)
			grid.Regions[key] = region
		}
	}

	grid.Coverage = float64(located) / float64(total)
	log.Debug("bubble grid located",
		"version", l.Version, "located", located, "total", total,
		"coverage", grid.Coverage, "dark_threshold", darkThreshold)

	if grid.Coverage < th.MinCoverage {
		return nil, sheet.Wrap(sheet.ErrGridMismatch, "locate",
			fmt.Sprintf("located %d of %d bubbles (%.1f%%, need %.1f%%)",
				located, total, grid.Coverage*100, th.MinCoverage*100), nil)
	}
	return grid, nil
}

// pickCandidate selects the candidate for one expected bubble. The tie-break
// is deterministic so reruns on the same pixels reproduce results exactly:
//
//  1. smallest distance of estimated radius from the nominal radius
//     (midpoint of the configured [min_radius, max_radius] range),
//  2. then lowest mean intensity (ink raises contrast, so the darkest
//     candidate is the most likely actual bubble),
//  3. then lowest (Y, X) center coordinates.
//
// Returns nil when no candidate falls inside the search window.
func pickCandidate(candidates []candidate, prior geometry.Point2D, searchRadius, nominal float64) *candidate {
	var inWindow []candidate
	for _, c := range candidates {
		if c.Center.Distance(prior) <= searchRadius {
			inWindow = append(inWindow, c)
		}
	}
	if len(inWindow) == 0 {
		return nil
	}

	sort.Slice(inWindow, func(i, j int) bool {
		di := math.Abs(inWindow[i].Radius - nominal)
		dj := math.Abs(inWindow[j].Radius - nominal)
		if di != dj {
			return di < dj
		}
		if inWindow[i].MeanIntensity != inWindow[j].MeanIntensity {
			return inWindow[i].MeanIntensity < inWindow[j].MeanIntensity
		}
		if inWindow[i].Center.Y != inWindow[j].Center.Y {
			return inWindow[i].Center.Y < inWindow[j].Center.Y
		}
		return inWindow[i].Center.X < inWindow[j].Center.X
	})
	return &inWindow[0]
}

// regionBounds returns the clamped bounding box of a bubble region.
func regionBounds(r *BubbleRegion, imgW, imgH int) geometry.RectInt {
	rad := int(r.Radius + 0.5)
	return geometry.RectInt{
		X:      int(r.Center.X) - rad,
		Y:      int(r.Center.Y) - rad,
		Width:  rad*2 + 1,
		Height: rad*2 + 1,
	}.Clamp(imgW, imgH)
}

// computeStats computes the region's fill statistics once: mean intensity and
// dark-pixel ratio inside the bubble circle, edge density over its bounding
// box.
func computeStats(norm *sheet.NormalizedImage, r *BubbleRegion, darkThreshold float64) RegionStats {
	rad := int(r.Radius + 0.5)
	r2 := r.Radius * r.Radius
	cx := int(r.Center.X)
	cy := int(r.Center.Y)

	var sum, dark, count float64
	for dy := -rad; dy <= rad; dy++ {
		for dx := -rad; dx <= rad; dx++ {
			if float64(dx*dx+dy*dy) > r2 {
				continue
			}
			v := float64(norm.At(cx+dx, cy+dy))
			sum += v
			if v < darkThreshold {
				dark++
			}
			count++
		}
	}

	stats := RegionStats{MeanIntensity: 255}
	if count > 0 {
		stats.MeanIntensity = sum / count
		stats.DarkRatio = dark / count
	}
	stats.EdgeDensity = edgeDensity(norm, r.Bounds)
	return stats
}

// edgeDensity runs edge detection over the region's bounding box and returns
// the fraction of strong edge pixels.
func edgeDensity(norm *sheet.NormalizedImage, bounds geometry.RectInt) float64 {
	if bounds.Empty() {
		return 0
	}
	sub := norm.Gray.SubImage(image.Rect(bounds.X, bounds.Y, bounds.X+bounds.Width, bounds.Y+bounds.Height))
	edges := effect.EdgeDetection(sub, 1.0)

	b := edges.Bounds()
	var strong, count float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := edges.At(x, y).RGBA()
			// Luminance from the 16-bit channels.
			lum := (299*float64(r>>8) + 587*float64(g>>8) + 114*float64(bl>>8)) / 1000
			if lum > 96 {
				strong++
			}
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return strong / count
}
