package sheet

import (
	"bytes"
	"fmt"
)

// extractPDFImage pulls the embedded scan image out of a single-page
// rasterized PDF. Scanner output wraps the page as one DCTDecode (JPEG)
// image XObject; the JPEG bytes between the stream markers decode as-is.
//
// This is deliberately not a PDF renderer: multi-object documents with vector
// content are rejected so they surface as InvalidImageFormat rather than
// being scored from the wrong raster.
func extractPDFImage(data []byte) ([]byte, error) {
	off := 0
	for {
		idx := bytes.Index(data[off:], []byte("/Subtype"))
		if idx < 0 {
			return nil, fmt.Errorf("no embedded image object found")
		}
		objStart := off + idx
		off = objStart + len("/Subtype")

		// Only image XObjects carry the page raster.
		head := data[objStart:clampIndex(objStart+256, len(data))]
		if !bytes.Contains(head, []byte("/Image")) {
			continue
		}

		// Locate the stream body for this object.
		dictEnd := bytes.Index(data[objStart:], []byte("stream"))
		if dictEnd < 0 {
			continue
		}
		dict := data[objStart : objStart+dictEnd]
		if !bytes.Contains(dict, []byte("DCTDecode")) {
			return nil, fmt.Errorf("embedded image uses an unsupported filter")
		}

		body := data[objStart+dictEnd+len("stream"):]
		// Stream data begins after the EOL following the keyword.
		body = bytes.TrimLeft(body, "\r\n")
		end := bytes.Index(body, []byte("endstream"))
		if end < 0 {
			return nil, fmt.Errorf("unterminated image stream")
		}
		jpeg := bytes.TrimRight(body[:end], "\r\n")
		if len(jpeg) < 4 || jpeg[0] != 0xFF || jpeg[1] != 0xD8 {
			return nil, fmt.Errorf("image stream is not JPEG data")
		}
		return jpeg, nil
	}
}

func clampIndex(i, n int) int {
	if i > n {
		return n
	}
	return i
}
