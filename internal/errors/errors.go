package errors

import (
	"errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the document segmentation worker
 *
 * Design Pattern: Factory Pattern for error creation
 * Segmentation outcomes (unmatched pages, incomplete documents) are results,
 * not errors; these types cover configuration and collaborator failures.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Configuration errors
	ErrorTemplateInvalid   ErrorCode = "TEMPLATE_INVALID"
	ErrorCatalogLoadFailed ErrorCode = "CATALOG_LOAD_FAILED"
	ErrorInvalidPages      ErrorCode = "INVALID_PAGES"

	// Processing errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorPageSourceFailed  ErrorCode = "PAGE_SOURCE_FAILED"
	ErrorOCRFailed         ErrorCode = "OCR_FAILED"

	// Storage errors
	ErrorStorageFailed        ErrorCode = "STORAGE_FAILED"
	ErrorArtifactUploadFailed ErrorCode = "ARTIFACT_UPLOAD_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// HasCode reports whether err (or anything it wraps) is a ProcessingError with code
func HasCode(err error, code ErrorCode) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// Factory functions for common errors

func NewTemplateInvalidError(templateIndex int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorTemplateInvalid,
		Message:   fmt.Sprintf("Template #%d is malformed", templateIndex),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"template_index": templateIndex,
		},
		Cause: cause,
	}
}

func NewCatalogLoadError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorCatalogLoadFailed,
		Message:   fmt.Sprintf("Failed to load template catalog from %s", path),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path": path,
		},
		Cause: cause,
	}
}

func NewInvalidPagesError(jobID string, pageNumber int) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidPages,
		Message:   fmt.Sprintf("Page numbers must be positive, got %d", pageNumber),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"page_number": pageNumber,
		},
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewPageSourceError(jobID string, source string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorPageSourceFailed,
		Message:   fmt.Sprintf("Failed to load page texts from %s", source),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"page_source": source,
		},
		Cause: cause,
	}
}

func NewOCRFailedError(jobID string, engine string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed with engine: %s", engine),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"ocr_engine": engine,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store segmentation results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewArtifactUploadError(jobID string, filename string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorArtifactUploadFailed,
		Message:   fmt.Sprintf("Failed to upload artifact %s", filename),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"filename": filename,
		},
		Cause: cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
