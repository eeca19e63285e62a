/**
 * Segmentation Processor for the Document Segmentation Worker
 *
 * Runs one job through the pipeline:
 * 1. Resolve page texts (inline pages, OCR text folder, page images, PDF)
 * 2. Clean OCR text and validate page numbers
 * 3. Segment pages against the template catalog
 * 4. Build the batch report (config.json, summary.md, summary.html)
 * 5. Persist document groups and upload report artifacts
 *
 * Unmatched pages and incomplete documents are results, not errors. Only
 * a page source that cannot be read, invalid page numbers or a storage
 * failure fail the job.
 */

package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/adverant/nexus/docsegment-worker/internal/catalog"
	"github.com/adverant/nexus/docsegment-worker/internal/clients"
	apperrors "github.com/adverant/nexus/docsegment-worker/internal/errors"
	"github.com/adverant/nexus/docsegment-worker/internal/logging"
	"github.com/adverant/nexus/docsegment-worker/internal/pages"
	"github.com/adverant/nexus/docsegment-worker/internal/report"
	"github.com/adverant/nexus/docsegment-worker/internal/segmenter"
	"github.com/adverant/nexus/docsegment-worker/internal/storage"
	"github.com/adverant/nexus/docsegment-worker/internal/textclean"
)

// DocumentProcessorInterface defines the interface for segmentation jobs
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error
}

// SegmentationStore persists job status and segmentation results
type SegmentationStore interface {
	StoreSegmentation(ctx context.Context, jobID string, result *segmenter.Result) (*storage.SegmentationOutput, error)
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// ArtifactUploader stores report files permanently
type ArtifactUploader interface {
	UploadArtifact(ctx context.Context, req *clients.ArtifactUploadRequest) (*clients.ArtifactUploadResponse, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Catalog        *catalog.Catalog
	Recognizer     pages.Recognizer // required only for image jobs
	OCRConcurrency int
	CleanText      bool
	OutputDir      string            // reports go to OutputDir/<folderId>; empty disables writing
	Store          SegmentationStore // optional
	Artifacts      ArtifactUploader  // optional
	Logger         *logging.Logger
}

// ProcessRequest represents one segmentation job. Exactly one page source
// is used, in order: Pages, PagesDir, ImagesDir, PDFPath.
type ProcessRequest struct {
	JobID     string
	FolderID  string
	Pages     map[int]string
	PagesDir  string
	ImagesDir string
	PDFPath   string
	Metadata  map[string]interface{}
}

// ProcessResult represents the processing result
type ProcessResult struct {
	JobID               string   `json:"jobId"`
	FolderID            string   `json:"folderId"`
	Source              string   `json:"source"`
	OCREngine           string   `json:"ocrEngine,omitempty"`
	TotalPages          int      `json:"totalPages"`
	MatchedPages        int      `json:"matchedPages"`
	UnmatchedPages      []int    `json:"unmatchedPages"`
	Documents           int      `json:"documents"`
	IncompleteDocuments int      `json:"incompleteDocuments"`
	MatchPercentage     float64  `json:"matchPercentage"`
	Status              string   `json:"status"`
	ReportDir           string   `json:"reportDir,omitempty"`
	ArtifactIDs         []string `json:"artifactIds,omitempty"`
	ProcessingTimeMs    int64    `json:"processingTimeMs"`

	Segmentation *segmenter.Result `json:"-"`
	Report       *report.Bundle    `json:"-"`
}

// DocumentProcessor handles segmentation jobs
type DocumentProcessor struct {
	config *ProcessorConfig
	logger *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Catalog == nil {
		return nil, fmt.Errorf("template catalog is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("DocumentProcessor")
	}

	if cfg.Recognizer == nil {
		logger.Warn("No OCR recognizer configured, image jobs will fail")
	}
	if cfg.Store == nil {
		logger.Warn("Storage not configured, segmentation results will not be persisted")
	}
	if cfg.Artifacts == nil {
		logger.Warn("Artifact storage not configured, reports will not be uploaded")
	}

	return &DocumentProcessor{
		config: cfg,
		logger: logger,
	}, nil
}

// ProcessDocument runs a segmentation job through the complete pipeline
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	start := time.Now()
	folderID := req.FolderID
	if folderID == "" {
		folderID = req.JobID
	}
	log := p.logger.With("jobId", req.JobID, "folderId", folderID)

	// Step 1: Resolve page texts
	source, engine, err := p.selectSource(req, folderID)
	if err != nil {
		return nil, err
	}
	log.Info("Loading page texts", "source", source.Describe())

	texts, err := source.Load(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("page loading interrupted: %w", ctxErr)
		}
		if _, isImages := source.(*pages.ImageDirSource); isImages {
			return nil, apperrors.NewOCRFailedError(req.JobID, engine, err)
		}
		return nil, apperrors.NewPageSourceError(req.JobID, source.Describe(), err)
	}
	log.Info("Page texts loaded", "pages", len(texts))

	// Step 2: Clean and validate
	if p.config.CleanText {
		textclean.CleanAll(texts)
	}
	if err := segmenter.ValidatePages(texts); err != nil {
		var pe *apperrors.ProcessingError
		if errors.As(err, &pe) {
			pe.JobID = req.JobID
		}
		return nil, err
	}

	// Step 3: Segment
	seg := segmenter.New(p.config.Catalog, segmenter.WithObserver(segmenter.NewLogObserver(log)))
	result := seg.Segment(texts)
	log.Info("Segmentation complete",
		"documents", len(result.Documents),
		"incomplete", len(result.Incomplete),
		"unmatched", len(result.Unmatched))

	// Step 4: Report
	summary := report.BuildSummary(folderID, result, time.Now(), engine)
	bundle, err := report.Render(summary, result, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}

	var reportDir string
	if p.config.OutputDir != "" {
		dir := filepath.Join(p.config.OutputDir, folderID)
		if err := report.WriteFolder(dir, bundle); err != nil {
			log.Warn("Failed to write report folder", "dir", dir, "error", err)
		} else {
			reportDir = dir
		}
	}

	// Step 5: Persist
	if p.config.Store != nil {
		stored, err := p.config.Store.StoreSegmentation(ctx, req.JobID, result)
		if err != nil {
			return nil, apperrors.NewStorageFailedError(req.JobID, err)
		}
		log.Info("Segmentation stored", "groups", len(stored.Groups))
	}

	artifactIDs := p.uploadReport(ctx, req, bundle, log)

	processed := &ProcessResult{
		JobID:               req.JobID,
		FolderID:            folderID,
		Source:              source.Describe(),
		OCREngine:           engine,
		TotalPages:          summary.TotalPages,
		MatchedPages:        summary.MatchedPages,
		UnmatchedPages:      append([]int{}, result.Unmatched...),
		Documents:           summary.Documents,
		IncompleteDocuments: summary.IncompleteDocuments,
		MatchPercentage:     summary.MatchPercentage,
		Status:              summary.Status,
		ReportDir:           reportDir,
		ArtifactIDs:         artifactIDs,
		ProcessingTimeMs:    time.Since(start).Milliseconds(),
		Segmentation:        result,
		Report:              bundle,
	}

	log.Info("Processing pipeline complete",
		"matchPercentage", processed.MatchPercentage,
		"status", processed.Status,
		"durationMs", processed.ProcessingTimeMs)

	return processed, nil
}

// selectSource picks the page source for a request and names the OCR engine
// behind it, if any.
func (p *DocumentProcessor) selectSource(req *ProcessRequest, folderID string) (pages.Source, string, error) {
	switch {
	case req.Pages != nil:
		return &pages.InlineSource{Pages: req.Pages}, "", nil
	case req.PagesDir != "":
		return &pages.TextDirSource{Dir: req.PagesDir}, "", nil
	case req.ImagesDir != "":
		src := &pages.ImageDirSource{
			Dir:         req.ImagesDir,
			Recognizer:  p.config.Recognizer,
			Concurrency: p.config.OCRConcurrency,
			Logger:      p.logger,
		}
		if p.config.OutputDir != "" {
			src.CacheDir = filepath.Join(p.config.OutputDir, folderID, "ocrs")
		}
		engine := ""
		if p.config.Recognizer != nil {
			engine = p.config.Recognizer.Name()
		}
		return src, engine, nil
	case req.PDFPath != "":
		return &pages.PDFSource{Path: req.PDFPath}, "pdf-text", nil
	}
	return nil, "", apperrors.NewPageSourceError(req.JobID, "none",
		fmt.Errorf("no page source provided (pages, pagesDir, imagesDir or pdfPath)"))
}

// uploadReport stores every report file as an artifact. Failures are logged
// and skipped.
func (p *DocumentProcessor) uploadReport(ctx context.Context, req *ProcessRequest, bundle *report.Bundle, log *logging.Logger) []string {
	if p.config.Artifacts == nil {
		return nil
	}

	var ids []string
	for _, f := range bundle.Files {
		resp, err := p.config.Artifacts.UploadArtifact(ctx, &clients.ArtifactUploadRequest{
			FileBuffer: f.Data,
			Filename:   f.Name,
			MimeType:   f.MimeType,
			SourceID:   req.JobID,
			Metadata: map[string]interface{}{
				"folderId": bundle.Summary.FolderID,
				"status":   bundle.Summary.Status,
			},
		})
		if err != nil {
			log.Warn("Artifact upload failed", "error", apperrors.NewArtifactUploadError(req.JobID, f.Name, err))
			continue
		}
		if resp != nil && resp.Success {
			ids = append(ids, resp.Artifact.ID)
		}
	}
	return ids
}

// UpdateJobStatus updates job status in the database
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error {
	if p.config.Store == nil {
		return nil
	}

	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	// Extract specific fields from metadata if present
	if metadata != nil {
		if v, ok := metadata["folderId"].(string); ok {
			update.FolderID = v
		}
		if v, ok := metadata["totalPages"].(int); ok {
			update.TotalPages = v
		}
		if v, ok := metadata["matchedPages"].(int); ok {
			update.MatchedPages = v
		}
		if v, ok := metadata["documents"].(int); ok {
			update.Documents = v
		}
		if v, ok := metadata["matchPercentage"].(float64); ok {
			update.MatchPercentage = v
		}
		if v, ok := metadata["processingTime"].(int64); ok {
			update.ProcessingTimeMs = v
		}
		if v, ok := metadata["unmatchedPages"].([]int); ok {
			update.UnmatchedPages = v
		}
		if v, ok := metadata["ocrEngine"].(string); ok {
			update.OCREngine = v
		}
		if v, ok := metadata["error_code"].(string); ok {
			update.ErrorCode = v
		}
		if v, ok := metadata["message"].(string); ok && update.ErrorCode != "" {
			update.ErrorMessage = v
		}
		if v, ok := metadata["error"].(string); ok {
			if update.ErrorCode == "" {
				update.ErrorCode = "PROCESSING_ERROR"
			}
			update.ErrorMessage = v
		}
	}

	return p.config.Store.UpdateJobStatus(ctx, update)
}

// CompletionMetadata is the job-status metadata recorded for a finished job
func CompletionMetadata(r *ProcessResult) map[string]interface{} {
	return map[string]interface{}{
		"folderId":        r.FolderID,
		"totalPages":      r.TotalPages,
		"matchedPages":    r.MatchedPages,
		"documents":       r.Documents,
		"matchPercentage": r.MatchPercentage,
		"processingTime":  r.ProcessingTimeMs,
		"unmatchedPages":  r.UnmatchedPages,
		"ocrEngine":       r.OCREngine,
		"batchStatus":     r.Status,
	}
}
