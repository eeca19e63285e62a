package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestProcessingErrorWrapping(t *testing.T) {
	cause := context.DeadlineExceeded
	err := NewProcessingTimeoutError("job-1", 5*time.Second, cause)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("timeout error should unwrap to its cause")
	}

	wrapped := fmt.Errorf("processing timeout: %w", err)
	if !HasCode(wrapped, ErrorProcessingTimeout) {
		t.Fatal("HasCode should see through fmt.Errorf wrapping")
	}
	if HasCode(wrapped, ErrorStorageFailed) {
		t.Fatal("HasCode matched the wrong code")
	}
	if HasCode(cause, ErrorProcessingTimeout) {
		t.Fatal("plain errors carry no code")
	}
}

func TestProcessingErrorMessage(t *testing.T) {
	err := NewInvalidPagesError("job-2", 0)
	if got := err.Error(); got != "INVALID_PAGES: Page numbers must be positive, got 0" {
		t.Errorf("Error() = %q", got)
	}

	withCause := NewCatalogLoadError("/tmp/templates.json", errors.New("no such file"))
	want := "CATALOG_LOAD_FAILED: Failed to load template catalog from /tmp/templates.json (caused by: no such file)"
	if got := withCause.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestToMap(t *testing.T) {
	err := NewOCRFailedError("job-3", "tesseract", errors.New("bad image"))
	m := err.ToMap()

	if m["error_code"] != "OCR_FAILED" {
		t.Errorf("error_code = %v", m["error_code"])
	}
	if m["ocr_engine"] != "tesseract" {
		t.Errorf("ocr_engine = %v", m["ocr_engine"])
	}
	if m["cause"] != "bad image" {
		t.Errorf("cause = %v", m["cause"])
	}
	if _, ok := m["timestamp"]; !ok {
		t.Error("timestamp missing")
	}
}
