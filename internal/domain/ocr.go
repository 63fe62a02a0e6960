package domain

import (
	"context"
)

// TextExtractor is the OCR collaborator contract: given an image, return
// best-effort natural-language text. Implementations degrade errors to an
// empty string rather than propagating them, and must not block past the
// context deadline.
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// OCRConfig holds configuration for the OCR engine.
type OCRConfig struct {
	// Engine is the extractor type: "stub", "command" or "http"
	Engine string

	// Command engine: path to the tesseract binary and language code.
	TesseractPath string
	Language      string

	// HTTP engine: sidecar endpoint accepting raw image bytes.
	Endpoint string

	// TimeoutSecs bounds a single extraction call.
	TimeoutSecs int
}
