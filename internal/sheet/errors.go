package sheet

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds for the pipeline. Every per-sheet failure wraps exactly
// one of these so callers can classify outcomes with errors.Is without parsing
// messages.
var (
	// ErrInvalidImageFormat marks undecodable or corrupt input. Fatal for the
	// sheet; a re-upload is required.
	ErrInvalidImageFormat = errors.New("invalid image format")

	// ErrAlignmentFailure marks a sheet whose corners could not be found or
	// whose detected quad deviates from the expected aspect ratio. The sheet
	// is rejected and routed to manual review.
	ErrAlignmentFailure = errors.New("alignment failure")

	// ErrGridMismatch marks a sheet where too few expected bubbles were
	// locatable, indicating a layout/version mismatch or severe distortion.
	ErrGridMismatch = errors.New("grid mismatch")

	// ErrProcessingTimeout marks a sheet that exceeded its compute budget.
	// Isolated to the sheet; the batch continues.
	ErrProcessingTimeout = errors.New("processing timeout")

	// ErrConfiguration marks missing or contradictory answer-key/layout
	// entries. Raised at batch start, before any sheet is processed.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message with stage context while tagging it with the
// given sentinel marker for later classification.
func Wrap(marker error, stage, message string, err error) error {
	detail := buildDetail(stage, message)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, message string) string {
	parts := make([]string, 0, 2)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}

// RejectReason maps a per-sheet error to a stable reason code for the caller.
// Unknown errors map to "internal".
func RejectReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrInvalidImageFormat):
		return "invalid_image_format"
	case errors.Is(err, ErrAlignmentFailure):
		return "alignment_failure"
	case errors.Is(err, ErrGridMismatch):
		return "grid_mismatch"
	case errors.Is(err, ErrProcessingTimeout):
		return "processing_timeout"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	default:
		return "internal"
	}
}
