// Package sheet defines the data types that cross the OMR pipeline boundary:
// raw input images, normalized canonical-frame images, and the transforms
// recorded for audit overlay generation.
package sheet

import (
	"image"

	"omr-engine/pkg/geometry"
)

// Format identifies the declared encoding of a raw sheet image.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
	FormatPDF  Format = "pdf" // single-page rasterized PDF
)

// RawSheetImage is the immutable per-sheet input. The pipeline only reads it;
// ownership stays with the caller.
type RawSheetImage struct {
	Data          []byte
	Format        Format
	CorrelationID string // caller-assigned; identifies the sheet in all outputs
	StudentID     string
	Version       string // declared sheet version; empty means "detect or reject"
	Source        string // capture source, e.g. "scanner", "mobile"
}

// Transform records how a raw image was mapped onto the canonical frame.
// It is carried on the NormalizedImage so the caller can generate audit
// overlays or project canonical coordinates back into the original capture.
type Transform struct {
	// RotationDeg is the dominant skew angle detected before rectification,
	// in degrees clockwise.
	RotationDeg float64 `json:"rotation_deg"`

	// Homography maps raw-image points to canonical-frame points.
	Homography geometry.Homography `json:"homography"`

	// GainMap is a coarse per-tile illumination gain estimate (row-major),
	// recorded after contrast equalization. Values near 1.0 mean even lighting.
	GainMap      [][]float64 `json:"gain_map,omitempty"`
	GainTileSize int         `json:"gain_tile_size,omitempty"`
}

// NormalizedImage is the rectified, illumination-normalized sheet in the
// canonical frame. Gray is the working grayscale buffer all downstream
// geometry operates on.
type NormalizedImage struct {
	Gray      *image.Gray
	Width     int
	Height    int
	Transform Transform
}

// At returns the grayscale intensity at (x, y), or 255 (paper white) outside
// the frame. Downstream sampling never has to bounds-check.
func (n *NormalizedImage) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= n.Width || y >= n.Height {
		return 255
	}
	return n.Gray.GrayAt(x, y).Y
}
