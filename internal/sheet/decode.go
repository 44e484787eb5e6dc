package sheet

import (
	"bytes"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/tiff" // register TIFF decoder
)

// Decode decodes the raw sheet bytes into an image. JPEG, PNG, TIFF and BMP
// are decoded directly; a single-page rasterized PDF has its embedded scan
// image extracted first. EXIF orientation from mobile captures is applied so
// downstream geometry sees the pixels upright.
//
// Undecodable or corrupt input fails with ErrInvalidImageFormat.
func Decode(raw *RawSheetImage) (image.Image, error) {
	if len(raw.Data) == 0 {
		return nil, Wrap(ErrInvalidImageFormat, "decode", "empty input", nil)
	}

	data := raw.Data
	if raw.Format == FormatPDF || bytes.HasPrefix(data, []byte("%PDF")) {
		extracted, err := extractPDFImage(data)
		if err != nil {
			return nil, Wrap(ErrInvalidImageFormat, "decode", "pdf image extraction", err)
		}
		data = extracted
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, Wrap(ErrInvalidImageFormat, "decode", "image decode", err)
	}
	return img, nil
}

// ToGray converts an image to 8-bit grayscale using the luminance weights
// the rest of the pipeline assumes.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x-bounds.Min.X, y-bounds.Min.Y, img.At(x, y))
		}
	}
	return gray
}
