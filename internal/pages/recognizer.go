package pages

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/docsegment-worker/internal/clients"
	"github.com/adverant/nexus/docsegment-worker/internal/config"
)

// Recognizer turns one page image into text
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
	Name() string
}

// TesseractRecognizer runs local OCR with Tesseract
type TesseractRecognizer struct {
	Languages []string
}

// NewTesseractRecognizer creates a recognizer for the given Tesseract language codes
func NewTesseractRecognizer(languages []string) *TesseractRecognizer {
	if len(languages) == 0 {
		languages = []string{"tha", "eng"}
	}
	return &TesseractRecognizer{Languages: languages}
}

func (t *TesseractRecognizer) Name() string {
	return "tesseract(" + strings.Join(t.Languages, "+") + ")"
}

// Recognize performs OCR using Tesseract. A gosseract client is not safe for
// concurrent use, so each call creates its own.
func (t *TesseractRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.Languages...); err != nil {
		return "", fmt.Errorf("failed to set languages: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}
	return text, nil
}

// ServiceRecognizer delegates OCR to the remote OCR service
type ServiceRecognizer struct {
	client *clients.OCRClient
}

// NewServiceRecognizer wraps an OCR service client
func NewServiceRecognizer(client *clients.OCRClient) *ServiceRecognizer {
	return &ServiceRecognizer{client: client}
}

func (s *ServiceRecognizer) Name() string {
	return "service"
}

func (s *ServiceRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	resp, err := s.client.ExtractText(ctx, image)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// RecognizerFromConfig builds the recognizer selected by OCR_ENGINE
func RecognizerFromConfig(cfg *config.Config) (Recognizer, error) {
	switch cfg.OCREngine {
	case config.OCREngineTesseract:
		return NewTesseractRecognizer(cfg.TesseractLanguages), nil
	case config.OCREngineService:
		if cfg.OCRServiceURL == "" {
			return nil, fmt.Errorf("OCR service URL is required")
		}
		return NewServiceRecognizer(clients.NewOCRClient(cfg.OCRServiceURL, cfg.OCRAPIKeys)), nil
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", cfg.OCREngine)
	}
}
