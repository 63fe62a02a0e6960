// Package ocr provides text extraction engines for uploaded document
// images. Engines degrade failures to an empty string: downstream scoring
// treats missing text as a high-risk document rather than a fault.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New creates a text extractor based on configuration.
func New(cfg domain.OCRConfig, logger *slog.Logger) (domain.TextExtractor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	switch cfg.Engine {
	case "stub", "":
		return &StubExtractor{}, nil

	case "echo":
		return &EchoExtractor{}, nil

	case "command":
		path := cfg.TesseractPath
		if path == "" {
			path = "tesseract"
		}
		lang := cfg.Language
		if lang == "" {
			lang = "eng"
		}
		return &CommandExtractor{
			path:    path,
			lang:    lang,
			timeout: timeout,
			logger:  logger,
		}, nil

	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("http OCR engine requires an endpoint")
		}
		return &HTTPExtractor{
			endpoint: cfg.Endpoint,
			client:   &http.Client{Timeout: timeout},
			logger:   logger,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported OCR engine: %s", cfg.Engine)
	}
}

// StubExtractor returns no text for every image. Used in the Community
// default config where no OCR binary is installed; every upload then scores
// as an unreadable document.
type StubExtractor struct{}

func (s *StubExtractor) ExtractText(ctx context.Context, image []byte) (string, error) {
	return "", nil
}

// EchoExtractor treats the uploaded bytes as already-extracted text.
// Used for pipeline testing and benchmarks where inputs are text files
// rather than images.
type EchoExtractor struct{}

func (e *EchoExtractor) ExtractText(ctx context.Context, image []byte) (string, error) {
	return string(image), nil
}

// CommandExtractor shells out to a tesseract binary, feeding the image on
// stdin and reading recognized text from stdout.
type CommandExtractor struct {
	path    string
	lang    string
	timeout time.Duration
	logger  *slog.Logger
}

func (c *CommandExtractor) ExtractText(ctx context.Context, image []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// "stdin stdout" makes tesseract read the image from stdin and write
	// recognized text to stdout.
	cmd := exec.CommandContext(ctx, c.path, "stdin", "stdout", "-l", c.lang)
	cmd.Stdin = bytes.NewReader(image)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		c.logger.Warn("tesseract invocation failed", "path", c.path, "err", err)
		return "", nil
	}
	return out.String(), nil
}

// HTTPExtractor posts the raw image bytes to an OCR sidecar and reads the
// plain-text response body.
type HTTPExtractor struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func (h *HTTPExtractor) ExtractText(ctx context.Context, image []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(image))
	if err != nil {
		h.logger.Warn("OCR request build failed", "err", err)
		return "", nil
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("OCR sidecar unreachable", "endpoint", h.endpoint, "err", err)
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.logger.Warn("OCR sidecar returned non-200", "endpoint", h.endpoint, "status", resp.StatusCode)
		return "", nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.logger.Warn("OCR response read failed", "err", err)
		return "", nil
	}
	return string(body), nil
}
