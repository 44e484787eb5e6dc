// Package normalize rectifies a raw photographed or scanned answer sheet into
// the canonical top-down frame: corner detection, perspective correction,
// illumination equalization, and edge-preserving denoising. All downstream
// geometry is resolution- and skew-invariant because it runs in this frame.
package normalize

import (
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"omr-engine/internal/sheet"
)

// Options configures sheet normalization.
type Options struct {
	FrameWidth      int     // canonical output width in pixels
	FrameHeight     int     // canonical output height in pixels
	ExpectedAspect  float64 // expected sheet width/height
	AspectTolerance float64 // allowed relative aspect deviation
	MinRadius       int     // smallest bubble radius denoising must preserve
	CLAHEClipLimit  float64
	GainTileSize    int
}

// DefaultOptions returns normalization defaults for an A4 portrait sheet at
// 150 DPI.
func DefaultOptions() Options {
	return Options{
		FrameWidth:      1240,
		FrameHeight:     1754,
		ExpectedAspect:  1240.0 / 1754.0,
		AspectTolerance: 0.1,
		MinRadius:       8,
		CLAHEClipLimit:  2.0,
		GainTileSize:    64,
	}
}

// Normalize decodes a raw sheet and rectifies it onto the canonical frame.
// Fails with InvalidImageFormat on undecodable input and AlignmentFailure
// when the sheet outline cannot be found or its aspect ratio deviates beyond
// tolerance. The returned image carries the transform used, for audit overlay
// generation by the caller.
func Normalize(raw *sheet.RawSheetImage, opts Options, log *slog.Logger) (*sheet.NormalizedImage, error) {
	if log == nil {
		log = slog.Default()
	}
	decoded, err := sheet.Decode(raw)
	if err != nil {
		return nil, err
	}

	gray := sheet.ToGray(decoded)
	src := grayToMat(gray)
	defer src.Close()

	// Locate the sheet outline.
	det := detectSheetQuad(src)
	if det == nil {
		return nil, sheet.Wrap(sheet.ErrAlignmentFailure, "normalize",
			"sheet corners not found", nil)
	}

	if dev := aspectDeviation(det.Quad, opts.ExpectedAspect); dev > opts.AspectTolerance {
		return nil, sheet.Wrap(sheet.ErrAlignmentFailure, "normalize",
			fmt.Sprintf("aspect ratio %.3f deviates %.0f%% from expected %.3f (tolerance %.0f%%)",
				det.Quad.AspectRatio(), dev*100, opts.ExpectedAspect, opts.AspectTolerance*100), nil)
	}

	skew := det.Quad.SkewAngle()
	log.Debug("sheet outline located",
		"confidence", det.Confidence, "skew_deg", skew)

	// Perspective-correct onto the canonical frame. The homography subsumes
	// the skew rotation; the angle is recorded separately for audit.
	hom, err := solveHomography(det.Quad, frameQuad(opts.FrameWidth, opts.FrameHeight))
	if err != nil {
		return nil, sheet.Wrap(sheet.ErrAlignmentFailure, "normalize", "homography", err)
	}

	warped := warpPerspective(src, hom, opts.FrameWidth, opts.FrameHeight)
	defer warped.Close()

	// Equalize uneven lighting from mobile captures.
	equalized := gocv.NewMat()
	defer equalized.Close()
	clahe := gocv.NewCLAHEWithParams(opts.CLAHEClipLimit, image.Point{X: 8, Y: 8})
	defer clahe.Close()
	clahe.Apply(warped, &equalized)

	// Denoise with a kernel small enough to preserve the smallest bubble edge.
	denoised := gocv.NewMat()
	defer denoised.Close()
	gocv.MedianBlur(equalized, &denoised, denoiseKernel(opts.MinRadius))

	out := matToGray(denoised)

	norm := &sheet.NormalizedImage{
		Gray:   out,
		Width:  opts.FrameWidth,
		Height: opts.FrameHeight,
		Transform: sheet.Transform{
			RotationDeg:  skew,
			Homography:   hom,
			GainTileSize: opts.GainTileSize,
			GainMap:      computeGainMap(out, opts.GainTileSize),
		},
	}
	return norm, nil
}

// warpPerspective applies a homography to a single-channel Mat.
func warpPerspective(src gocv.Mat, hom [3][3]float64, width, height int) gocv.Mat {
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer m.Close()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, hom[r][c])
		}
	}

	dst := gocv.NewMat()
	gocv.WarpPerspective(src, &dst, m, image.Point{X: width, Y: height})
	return dst
}

// denoiseKernel picks the largest odd median kernel that stays well below the
// minimum detectable bubble radius, so denoising never erodes bubble edges.
func denoiseKernel(minRadius int) int {
	k := minRadius/2 - 1
	if k < 3 {
		return 3
	}
	if k%2 == 0 {
		k--
	}
	if k > 5 {
		return 5
	}
	return k
}

// computeGainMap estimates per-tile illumination gain relative to the global
// mean. Recorded on the transform so audit tooling can visualize residual
// lighting gradients after equalization.
func computeGainMap(img *image.Gray, tile int) [][]float64 {
	if tile <= 0 {
		return nil
	}
	w := img.Rect.Dx()
	h := img.Rect.Dy()

	var globalSum float64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for _, v := range row {
			globalSum += float64(v)
		}
	}
	globalMean := globalSum / float64(w*h)
	if globalMean == 0 {
		return nil
	}

	rows := (h + tile - 1) / tile
	cols := (w + tile - 1) / tile
	gains := make([][]float64, rows)
	for ty := 0; ty < rows; ty++ {
		gains[ty] = make([]float64, cols)
		for tx := 0; tx < cols; tx++ {
			var sum float64
			var count int
			for y := ty * tile; y < (ty+1)*tile && y < h; y++ {
				for x := tx * tile; x < (tx+1)*tile && x < w; x++ {
					sum += float64(img.Pix[y*img.Stride+x])
					count++
				}
			}
			gains[ty][tx] = (sum / float64(count)) / globalMean
		}
	}
	return gains
}
