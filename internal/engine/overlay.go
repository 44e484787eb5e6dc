package engine

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"

	"omr-engine/internal/classify"
	"omr-engine/internal/layout"
	"omr-engine/internal/locate"
	"omr-engine/internal/sheet"
)

// renderOverlay draws the located grid and classification verdicts onto the
// normalized sheet and writes a PNG for manual review. Circle color encodes
// confidence on a red-to-green ramp; filled picks get a solid ring, empty
// bubbles a thin one, ambiguous questions a marker cross.
func renderOverlay(dir, correlationID string, norm *sheet.NormalizedImage, grid *locate.Grid, det *classify.DetectionResult) (string, error) {
	grayMat, err := gocv.ImageGrayToMatGray(norm.Gray)
	if err != nil {
		return "", fmt.Errorf("failed to convert sheet for overlay: %w", err)
	}
	defer grayMat.Close()

	canvas := gocv.NewMat()
	defer canvas.Close()
	gocv.CvtColor(grayMat, &canvas, gocv.ColorGrayToBGR)

	l := grid.Layout
	for q := 1; q <= l.TotalQuestions; q++ {
		qr := det.Result(q)
		tint := confidenceColor(qr.Confidence)

		for opt := 0; opt < l.OptionsPerQuestion; opt++ {
			r := grid.Region(q, opt)
			if r == nil {
				continue
			}
			center := image.Pt(int(r.Center.X), int(r.Center.Y))
			radius := int(r.Radius)

			switch {
			case qr.Verdict == classify.VerdictFilled && opt == qr.Option:
				gocv.Circle(&canvas, center, radius, tint, 3)
			case qr.Verdict == classify.VerdictAmbiguous:
				gocv.Circle(&canvas, center, radius, tint, 1)
				drawCross(&canvas, center, radius/2, tint)
			default:
				gocv.Circle(&canvas, center, radius, tint, 1)
			}
		}

		// Label the chosen letter next to the row so a reviewer can scan
		// answers without counting bubbles.
		if qr.Verdict == classify.VerdictFilled {
			first := grid.Region(q, 0)
			if first != nil {
				at := image.Pt(int(first.Center.X)-int(l.Grid.OptionPitch), int(first.Center.Y)+5)
				gocv.PutText(&canvas, layout.OptionLetter(qr.Option), at,
					gocv.FontHersheySimplex, 0.5, tint, 1)
			}
		}
	}

	path := filepath.Join(dir, correlationID+"_overlay.png")
	if ok := gocv.IMWrite(path, canvas); !ok {
		return "", fmt.Errorf("failed to write overlay %s", path)
	}
	return path, nil
}

// confidenceColor maps [0,1] confidence onto a red-to-green ramp, blended in
// a perceptually even space so mid-range values read as distinct ambers.
func confidenceColor(confidence float64) color.RGBA {
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	low := colorful.Color{R: 0.85, G: 0.10, B: 0.10}
	high := colorful.Color{R: 0.05, G: 0.65, B: 0.15}
	c := low.BlendLuv(high, confidence).Clamped()
	r, g, b := c.RGB255()
	// gocv draws in BGR order.
	return color.RGBA{R: b, G: g, B: r, A: 255}
}

func drawCross(canvas *gocv.Mat, center image.Point, arm int, tint color.RGBA) {
	if arm < 2 {
		arm = 2
	}
	gocv.Line(canvas, image.Pt(center.X-arm, center.Y-arm), image.Pt(center.X+arm, center.Y+arm), tint, 1)
	gocv.Line(canvas, image.Pt(center.X-arm, center.Y+arm), image.Pt(center.X+arm, center.Y-arm), tint, 1)
}
