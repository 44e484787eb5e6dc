package normalize

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"omr-engine/pkg/geometry"
)

// quadDetection holds the detected sheet outline.
type quadDetection struct {
	Quad       geometry.Quad
	Confidence float64 // contour area relative to the image
}

// detectSheetQuad finds the four corners of the answer sheet in a grayscale
// capture. Uses Canny edge detection and contour analysis: the sheet is the
// largest roughly-quadrilateral contour against the capture background.
// Returns nil when no usable quad is present.
func detectSheetQuad(gray gocv.Mat) *quadDetection {
	// Blur to reduce noise
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: 5, Y: 5}, 0, 0, gocv.BorderDefault)

	// Canny edge detection
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, 50, 150)

	// Dilate to connect edge segments broken by bubbles and print
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()
	gocv.Dilate(edges, &edges, kernel)

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return nil
	}

	imgArea := float64(gray.Cols() * gray.Rows())
	var bestCorners []geometry.Point2D
	var bestArea float64

	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)

		// The sheet should dominate the frame but not be the frame itself.
		if area < imgArea*0.2 || area > imgArea*0.98 {
			continue
		}

		epsilon := 0.02 * gocv.ArcLength(contour, true)
		approx := gocv.ApproxPolyDP(contour, epsilon, true)

		// Allow a couple of extra vertices from dog-eared corners.
		if approx.Size() >= 4 && approx.Size() <= 6 && area > bestArea {
			bestArea = area
			bestCorners = extremeCorners(approx)
		}
		approx.Close()
	}

	if len(bestCorners) != 4 {
		return nil
	}

	quad, ok := geometry.OrderQuad(bestCorners)
	if !ok || !quad.IsConvex() {
		return nil
	}

	return &quadDetection{
		Quad:       quad,
		Confidence: bestArea / imgArea,
	}
}

// extremeCorners picks the four extreme points of a polygon: TL minimizes
// x+y, BR maximizes x+y, TR maximizes x-y, BL minimizes x-y.
func extremeCorners(poly gocv.PointVector) []geometry.Point2D {
	n := poly.Size()
	if n < 4 {
		return nil
	}

	points := make([]geometry.Point2D, n)
	for i := 0; i < n; i++ {
		pt := poly.At(i)
		points[i] = geometry.Point2D{X: float64(pt.X), Y: float64(pt.Y)}
	}

	tl, br, tr, bl := points[0], points[0], points[0], points[0]
	minSum, maxSum := tl.X+tl.Y, tl.X+tl.Y
	minDiff, maxDiff := tl.X-tl.Y, tl.X-tl.Y

	for _, p := range points[1:] {
		sum := p.X + p.Y
		diff := p.X - p.Y
		if sum < minSum {
			minSum = sum
			tl = p
		}
		if sum > maxSum {
			maxSum = sum
			br = p
		}
		if diff > maxDiff {
			maxDiff = diff
			tr = p
		}
		if diff < minDiff {
			minDiff = diff
			bl = p
		}
	}

	// Degenerate contours collapse extremes onto the same point.
	corners := []geometry.Point2D{tl, tr, br, bl}
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if corners[i].Distance(corners[j]) < 1 {
				return nil
			}
		}
	}
	return corners
}

// aspectDeviation returns the relative deviation of the detected quad's
// aspect ratio from the expected value.
func aspectDeviation(quad geometry.Quad, expectedAspect float64) float64 {
	if expectedAspect <= 0 {
		return 0
	}
	return math.Abs(quad.AspectRatio()-expectedAspect) / expectedAspect
}
