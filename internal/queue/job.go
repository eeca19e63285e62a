package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/adverant/nexus/docsegment-worker/internal/errors"
	"github.com/adverant/nexus/docsegment-worker/internal/logging"
	"github.com/adverant/nexus/docsegment-worker/internal/processor"
	"github.com/adverant/nexus/docsegment-worker/internal/segmenter"
)

// TaskTypeSegmentDocument is the job type for both queue backends
const TaskTypeSegmentDocument = "segment-document"

// defaultProcessingTimeout applies when no timeout is configured
const defaultProcessingTimeout = 300000 * time.Millisecond

// Job statuses
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// JobPayload contains the segmentation job data. Pages may arrive either as
// an object keyed by page number or as a list of {pageNumber, text}.
type JobPayload struct {
	JobID     string                 `json:"jobId"`
	FolderID  string                 `json:"folderId,omitempty"`
	Pages     map[int]string         `json:"-"`
	PagesDir  string                 `json:"pagesDir,omitempty"`
	ImagesDir string                 `json:"imagesDir,omitempty"`
	PDFPath   string                 `json:"pdfPath,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts both page encodings
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		Pages json.RawMessage `json:"pages,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	raw := bytes.TrimSpace(aux.Pages)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case '{':
		pages := make(map[int]string)
		if err := json.Unmarshal(raw, &pages); err != nil {
			return fmt.Errorf("pages object must map page numbers to text: %w", err)
		}
		p.Pages = pages

	case '[':
		var list []segmenter.Page
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("pages list must hold {pageNumber, text} entries: %w", err)
		}
		pages, err := segmenter.Collect(list)
		if err != nil {
			return err
		}
		p.Pages = pages

	default:
		return fmt.Errorf("pages must be an object or an array, got %s", raw[:1])
	}

	return nil
}

// MarshalJSON writes pages in object form
func (p JobPayload) MarshalJSON() ([]byte, error) {
	type Alias JobPayload
	return json.Marshal(&struct {
		Pages map[int]string `json:"pages,omitempty"`
		*Alias
	}{
		Pages: p.Pages,
		Alias: (*Alias)(&p),
	})
}

// ToRequest converts the payload to processor format
func (p *JobPayload) ToRequest() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:     p.JobID,
		FolderID:  p.FolderID,
		Pages:     p.Pages,
		PagesDir:  p.PagesDir,
		ImagesDir: p.ImagesDir,
		PDFPath:   p.PDFPath,
		Metadata:  p.Metadata,
	}
}

func timeoutFromMillis(ms int64) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultProcessingTimeout
}

// runJob processes one payload under a timeout and records the outcome.
// The returned error is a ProcessingError for timeouts.
func runJob(ctx context.Context, proc processor.DocumentProcessorInterface, payload *JobPayload, timeout time.Duration, logger *logging.Logger) (*processor.ProcessResult, error) {
	startTime := time.Now()
	log := logger.With("jobId", payload.JobID)

	if err := proc.UpdateJobStatus(ctx, payload.JobID, StatusProcessing, 0, map[string]interface{}{
		"folderId": payload.FolderID,
	}); err != nil {
		log.Warn("Failed to update status to processing", "error", err)
	}

	log.Debug("Processing timeout set", "timeout", timeout.String())

	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := proc.ProcessDocument(processCtx, payload.ToRequest())

	duration := time.Since(startTime)

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			log.Error("Processing timed out", "duration", duration.String(), "timeout", timeout.String())

			timeoutErr := apperrors.NewProcessingTimeoutError(payload.JobID, timeout, err)
			if updateErr := proc.UpdateJobStatus(ctx, payload.JobID, StatusFailed, 100, timeoutErr.ToMap()); updateErr != nil {
				log.Warn("Failed to update status to failed", "error", updateErr)
			}
			return nil, timeoutErr
		}

		log.Error("Processing failed", "duration", duration.String(), "error", err)

		metadata := map[string]interface{}{
			"error":          err.Error(),
			"processingTime": duration.Milliseconds(),
		}
		var pe *apperrors.ProcessingError
		if errors.As(err, &pe) {
			metadata = pe.ToMap()
			metadata["processingTime"] = duration.Milliseconds()
		}
		if updateErr := proc.UpdateJobStatus(ctx, payload.JobID, StatusFailed, 100, metadata); updateErr != nil {
			log.Warn("Failed to update status to failed", "error", updateErr)
		}
		return nil, fmt.Errorf("segmentation failed: %w", err)
	}

	log.Info("Processing completed",
		"duration", duration.String(),
		"documents", result.Documents,
		"unmatched", len(result.UnmatchedPages),
		"matchPercentage", result.MatchPercentage)

	if err := proc.UpdateJobStatus(ctx, payload.JobID, StatusCompleted, 100, processor.CompletionMetadata(result)); err != nil {
		log.Warn("Failed to update status to completed", "error", err)
	}

	return result, nil
}
