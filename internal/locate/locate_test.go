package locate

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omr-engine/internal/layout"
	"omr-engine/internal/sheet"
	"omr-engine/pkg/geometry"
)

func TestPickCandidateTieBreak(t *testing.T) {
	prior := geometry.Point2D{X: 100, Y: 100}
	const searchRadius = 20.0
	const nominal = 16.5

	t.Run("radius closest to nominal wins", func(t *testing.T) {
		got := pickCandidate([]candidate{
			{Center: geometry.Point2D{X: 98, Y: 100}, Radius: 9, MeanIntensity: 50},
			{Center: geometry.Point2D{X: 102, Y: 100}, Radius: 16, MeanIntensity: 200},
		}, prior, searchRadius, nominal)
		require.NotNil(t, got)
		assert.Equal(t, 16.0, got.Radius)
	})

	t.Run("darker candidate wins at equal radius", func(t *testing.T) {
		got := pickCandidate([]candidate{
			{Center: geometry.Point2D{X: 98, Y: 100}, Radius: 15, MeanIntensity: 180},
			{Center: geometry.Point2D{X: 102, Y: 100}, Radius: 15, MeanIntensity: 60},
		}, prior, searchRadius, nominal)
		require.NotNil(t, got)
		assert.Equal(t, 60.0, got.MeanIntensity)
	})

	t.Run("lowest Y then X breaks remaining ties", func(t *testing.T) {
		got := pickCandidate([]candidate{
			{Center: geometry.Point2D{X: 104, Y: 102}, Radius: 15, MeanIntensity: 90},
			{Center: geometry.Point2D{X: 96, Y: 98}, Radius: 15, MeanIntensity: 90},
			{Center: geometry.Point2D{X: 92, Y: 98}, Radius: 15, MeanIntensity: 90},
		}, prior, searchRadius, nominal)
		require.NotNil(t, got)
		assert.Equal(t, geometry.Point2D{X: 92, Y: 98}, got.Center)
	})

	t.Run("nothing inside the window", func(t *testing.T) {
		got := pickCandidate([]candidate{
			{Center: geometry.Point2D{X: 150, Y: 100}, Radius: 16, MeanIntensity: 60},
		}, prior, searchRadius, nominal)
		assert.Nil(t, got)
	})
}

// The same candidate set in any order yields the same pick.
func TestPickCandidateDeterminism(t *testing.T) {
	prior := geometry.Point2D{X: 100, Y: 100}
	cands := []candidate{
		{Center: geometry.Point2D{X: 104, Y: 102}, Radius: 15, MeanIntensity: 90},
		{Center: geometry.Point2D{X: 96, Y: 98}, Radius: 15, MeanIntensity: 90},
		{Center: geometry.Point2D{X: 98, Y: 101}, Radius: 14, MeanIntensity: 90},
		{Center: geometry.Point2D{X: 101, Y: 99}, Radius: 15, MeanIntensity: 40},
	}

	orders := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{2, 0, 3, 1},
	}
	var first *candidate
	for _, order := range orders {
		shuffled := make([]candidate, len(cands))
		for i, idx := range order {
			shuffled[i] = cands[idx]
		}
		got := pickCandidate(shuffled, prior, 20, 16.5)
		require.NotNil(t, got)
		if first == nil {
			first = got
		} else {
			assert.Equal(t, *first, *got)
		}
	}
}

func TestRegionBounds(t *testing.T) {
	r := &BubbleRegion{Center: geometry.Point2D{X: 50, Y: 60}, Radius: 10}
	b := regionBounds(r, 200, 200)
	assert.Equal(t, geometry.RectInt{X: 40, Y: 50, Width: 21, Height: 21}, b)

	// A bubble at the frame edge clamps instead of sampling out of range.
	edge := &BubbleRegion{Center: geometry.Point2D{X: 3, Y: 3}, Radius: 10}
	be := regionBounds(edge, 200, 200)
	assert.Equal(t, 0, be.X)
	assert.Equal(t, 0, be.Y)
	assert.False(t, be.Empty())
}

// whiteSheet builds a canonical frame with optional filled circles.
func whiteSheet(w, h int, marks []geometry.PointInt, radius int) *sheet.NormalizedImage {
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for i := range gray.Pix {
		gray.Pix[i] = 245
	}
	for _, m := range marks {
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				if dx*dx+dy*dy <= radius*radius {
					gray.SetGray(m.X+dx, m.Y+dy, color.Gray{Y: 30})
				}
			}
		}
	}
	return &sheet.NormalizedImage{Gray: gray, Width: w, Height: h}
}

// A sheet where almost no expected bubbles are locatable is a version or
// layout mismatch, not a sheet to score.
func TestLocateRejectsSparseGrid(t *testing.T) {
	l := layout.StandardLayout("A")
	require.NoError(t, l.Validate())
	th := layout.DefaultThresholds()

	// Only question 1's bubbles are printed; the other 99 rows are blank
	// paper, so coverage lands far below the floor.
	var marks []geometry.PointInt
	for opt := 0; opt < l.OptionsPerQuestion; opt++ {
		p := l.Position(1, opt)
		marks = append(marks, geometry.PointInt{X: int(p.X), Y: int(p.Y)})
	}
	norm := whiteSheet(l.FrameWidth, l.FrameHeight, marks, 14)

	grid, err := Locate(norm, l, th, nil)
	require.Error(t, err)
	assert.Nil(t, grid)
	assert.ErrorIs(t, err, sheet.ErrGridMismatch)
	assert.Equal(t, "grid_mismatch", sheet.RejectReason(err))
}

func TestComputeStats(t *testing.T) {
	norm := whiteSheet(120, 120, []geometry.PointInt{{X: 40, Y: 40}}, 12)

	filled := &BubbleRegion{Center: geometry.Point2D{X: 40, Y: 40}, Radius: 12}
	filled.Bounds = regionBounds(filled, norm.Width, norm.Height)
	fs := computeStats(norm, filled, 128)
	assert.Greater(t, fs.DarkRatio, 0.9)
	assert.Less(t, fs.MeanIntensity, 60.0)

	empty := &BubbleRegion{Center: geometry.Point2D{X: 90, Y: 90}, Radius: 12}
	empty.Bounds = regionBounds(empty, norm.Width, norm.Height)
	es := computeStats(norm, empty, 128)
	assert.Zero(t, es.DarkRatio)
	assert.Greater(t, es.MeanIntensity, 200.0)

	// The mark boundary carries edges; flat paper does not.
	assert.Greater(t, fs.EdgeDensity, es.EdgeDensity)
}
