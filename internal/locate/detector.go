package locate

import (
	"image"

	"gocv.io/x/gocv"

	"omr-engine/internal/sheet"
	"omr-engine/pkg/geometry"
)

// candidate is a detected bubble-sized dark blob.
type candidate struct {
	Center        geometry.Point2D
	Radius        float64
	MeanIntensity float64
}

// detectCandidates finds bubble-sized blobs on the normalized sheet in one
// pass: inverted Otsu threshold, small morphological open, external contours,
// minimum enclosing circles filtered to the configured radius range.
//
// Both empty bubbles (printed outlines) and filled bubbles (solid marks)
// produce contours whose enclosing circle matches the bubble, so candidates
// carry no fill decision. Returns the candidates and the Otsu dark threshold,
// which downstream statistics reuse so the fill signal is consistent with
// detection.
func detectCandidates(norm *sheet.NormalizedImage, minRadius, maxRadius int) ([]candidate, float64) {
	mat := grayMat(norm)
	defer mat.Close()

	bin := gocv.NewMat()
	defer bin.Close()
	darkThreshold := gocv.Threshold(mat, &bin, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)

	// Open with a small kernel to drop specks without eroding bubble outlines.
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 3, Y: 3})
	defer kernel.Close()
	gocv.MorphologyEx(bin, &bin, gocv.MorphOpen, kernel)

	contours := gocv.FindContours(bin, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	minR := float64(minRadius)
	maxR := float64(maxRadius)

	var out []candidate
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		cx, cy, r := gocv.MinEnclosingCircle(contour)
		radius := float64(r)

		// Allow slight bleed past the configured range; the tie-break prefers
		// nominal-sized candidates anyway.
		if radius < minR*0.75 || radius > maxR*1.25 {
			continue
		}

		center := geometry.Point2D{X: float64(cx), Y: float64(cy)}
		out = append(out, candidate{
			Center:        center,
			Radius:        radius,
			MeanIntensity: meanIntensity(norm, center, radius),
		})
	}
	return out, float64(darkThreshold)
}

// grayMat converts the normalized grayscale image to a single-channel Mat.
func grayMat(norm *sheet.NormalizedImage) gocv.Mat {
	mat := gocv.NewMatWithSize(norm.Height, norm.Width, gocv.MatTypeCV8UC1)
	for y := 0; y < norm.Height; y++ {
		rowOffset := y * norm.Gray.Stride
		for x := 0; x < norm.Width; x++ {
			mat.SetUCharAt(y, x, norm.Gray.Pix[rowOffset+x])
		}
	}
	return mat
}

// meanIntensity averages the grayscale values inside a circle.
func meanIntensity(norm *sheet.NormalizedImage, center geometry.Point2D, radius float64) float64 {
	r := int(radius + 0.5)
	r2 := radius * radius
	var sum, count float64
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if float64(dx*dx+dy*dy) > r2 {
				continue
			}
			sum += float64(norm.At(int(center.X)+dx, int(center.Y)+dy))
			count++
		}
	}
	if count == 0 {
		return 255
	}
	return sum / count
}
