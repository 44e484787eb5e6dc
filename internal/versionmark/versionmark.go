// Package versionmark reads the printed sheet-version letter from the
// version box of a normalized sheet. It is only consulted when the intake
// metadata did not already carry a version.
package versionmark

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"omr-engine/internal/layout"
	"omr-engine/internal/sheet"
	"omr-engine/pkg/geometry"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"
)

// VersionChars is the whitelist for version-box OCR. Sheets print a single
// uppercase letter.
const VersionChars = "ABCD"

// Options controls where the version box sits in the canonical frame.
type Options struct {
	// Bounds is the version-box region in canonical-frame pixels.
	Bounds geometry.RectInt
}

// DefaultOptions places the box where the standard sheet prints it, in the
// top-right corner above the grid.
func DefaultOptions() Options {
	return Options{
		Bounds: geometry.RectInt{X: 940, Y: 80, Width: 220, Height: 100},
	}
}

// ocrClient is the stateful recognition surface of gosseract.Client.
type ocrClient interface {
	SetPageSegMode(gosseract.PageSegMode) error
	SetWhitelist(string) error
	SetImageFromBytes([]byte) error
	Text() (string, error)
	Close() error
}

// Reader recognizes version letters with Tesseract. Safe for concurrent use:
// the underlying client holds the image and recognition settings as mutable
// state, so recognitions are serialized.
type Reader struct {
	mu     sync.Mutex
	client ocrClient
	opts   Options
}

// NewReader creates a version-box reader.
func NewReader(opts Options) (*Reader, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	// Version letters are not words; keep the language model out of the way.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	return &Reader{client: client, opts: opts}, nil
}

// Close releases OCR resources.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Detect reads the version letter from the normalized sheet. It returns
// ErrGridMismatch when the box is unreadable or holds no known version, so
// the caller can reject the sheet with a precise reason.
func (r *Reader) Detect(norm *sheet.NormalizedImage) (layout.Version, error) {
	b := r.opts.Bounds.Clamp(norm.Width, norm.Height)
	if b.Empty() {
		return "", sheet.Wrap(sheet.ErrConfiguration, "versionmark",
			"version box outside canonical frame", nil)
	}

	// Copy into a tightly-packed buffer; SubImage shares the parent's
	// stride, which Mat conversion cannot consume directly.
	region := image.NewGray(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			region.SetGray(x, y, norm.Gray.GrayAt(b.X+x, b.Y+y))
		}
	}
	mat, err := gocv.ImageGrayToMatGray(region)
	if err != nil {
		return "", sheet.Wrap(sheet.ErrAlignmentFailure, "versionmark",
			"failed to convert version box", err)
	}
	defer mat.Close()

	processed := preprocessVersionBox(mat)
	defer processed.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, processed)
	if err != nil {
		return "", sheet.Wrap(sheet.ErrAlignmentFailure, "versionmark",
			"failed to encode version box", err)
	}
	defer buf.Close()

	text, err := r.readLetter(buf.GetBytes())
	if err != nil {
		return "", err
	}

	v, ok := parseVersion(text)
	if !ok {
		return "", sheet.Wrap(sheet.ErrGridMismatch, "versionmark",
			fmt.Sprintf("version box read %q, expected one of %s", text, VersionChars), nil)
	}
	return v, nil
}

// readLetter runs one recognition on the shared client. The mode, whitelist
// and image are client state, so the full sequence holds the lock; an
// interleaved recognition would read another sheet's image.
func (r *Reader) readLetter(png []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetPageSegMode(gosseract.PSM_SINGLE_WORD); err != nil {
		return "", sheet.Wrap(sheet.ErrConfiguration, "versionmark",
			"failed to set page segmentation mode", err)
	}
	if err := r.client.SetWhitelist(VersionChars); err != nil {
		return "", sheet.Wrap(sheet.ErrConfiguration, "versionmark",
			"failed to set character whitelist", err)
	}
	if err := r.client.SetImageFromBytes(png); err != nil {
		return "", sheet.Wrap(sheet.ErrAlignmentFailure, "versionmark",
			"failed to set OCR image", err)
	}
	text, err := r.client.Text()
	if err != nil {
		return "", sheet.Wrap(sheet.ErrGridMismatch, "versionmark",
			"version box OCR failed", err)
	}
	return text, nil
}

// parseVersion extracts the first whitelisted letter from the OCR output.
func parseVersion(text string) (layout.Version, bool) {
	text = strings.ToUpper(strings.TrimSpace(text))
	for _, c := range text {
		if strings.ContainsRune(VersionChars, c) {
			return layout.Version(c), true
		}
	}
	return "", false
}

// preprocessVersionBox upscales and binarizes the box for OCR. Tesseract
// wants dark text on a light background at a readable size.
func preprocessVersionBox(region gocv.Mat) gocv.Mat {
	h, w := region.Rows(), region.Cols()

	var scaled gocv.Mat
	if minInt(h, w) < 150 {
		scale := 150.0 / float64(minInt(h, w))
		scaled = gocv.NewMat()
		gocv.Resize(region, &scaled, image.Point{}, scale, scale, gocv.InterpolationCubic)
	} else {
		scaled = region.Clone()
	}

	binary := gocv.NewMat()
	gocv.Threshold(scaled, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	scaled.Close()

	// Invert light-on-dark boxes; the printed box may be a filled square
	// with a knocked-out letter.
	whiteCount := gocv.CountNonZero(binary)
	if float64(whiteCount) < 0.5*float64(binary.Rows()*binary.Cols()) {
		gocv.BitwiseNot(binary, &binary)
	}

	result := gocv.NewMat()
	gocv.CvtColor(binary, &result, gocv.ColorGrayToBGR)
	binary.Close()
	return result
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
