package processor

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/adverant/nexus/docsegment-worker/internal/catalog"
	"github.com/adverant/nexus/docsegment-worker/internal/clients"
	apperrors "github.com/adverant/nexus/docsegment-worker/internal/errors"
	"github.com/adverant/nexus/docsegment-worker/internal/logging"
	"github.com/adverant/nexus/docsegment-worker/internal/pattern"
	"github.com/adverant/nexus/docsegment-worker/internal/segmenter"
	"github.com/adverant/nexus/docsegment-worker/internal/storage"
)

func TestMain(m *testing.M) {
	logging.SetOutput(io.Discard)
	os.Exit(m.Run())
}

const (
	charterStart = "FOUNDATION CHARTER"
	charterEnd   = "SIGNED AND SEALED"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]*catalog.Template{{
		Name:          "charter.pdf",
		Category:      "charter",
		StartPatterns: pattern.Patterns{pattern.Literal(charterStart)},
		EndPatterns:   pattern.Patterns{pattern.Literal(charterEnd)},
	}})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return c
}

type fakeStore struct {
	mu      sync.Mutex
	stored  map[string]*segmenter.Result
	updates []*storage.JobUpdate
	err     error
}

func (f *fakeStore) StoreSegmentation(ctx context.Context, jobID string, result *segmenter.Result) (*storage.SegmentationOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.stored == nil {
		f.stored = make(map[string]*segmenter.Result)
	}
	f.stored[jobID] = result
	return &storage.SegmentationOutput{JobID: jobID}, nil
}

func (f *fakeStore) UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
	return nil
}

type fakeUploader struct {
	names []string
	fail  bool
}

func (f *fakeUploader) UploadArtifact(ctx context.Context, req *clients.ArtifactUploadRequest) (*clients.ArtifactUploadResponse, error) {
	if f.fail {
		return nil, errors.New("artifact service unavailable")
	}
	f.names = append(f.names, req.Filename)
	resp := &clients.ArtifactUploadResponse{Success: true}
	resp.Artifact.ID = "art-" + req.Filename
	return resp, nil
}

func newProcessor(t *testing.T, cfg ProcessorConfig) *DocumentProcessor {
	t.Helper()
	cfg.Catalog = testCatalog(t)
	p, err := NewDocumentProcessor(&cfg)
	if err != nil {
		t.Fatalf("NewDocumentProcessor: %v", err)
	}
	return p
}

func TestNewDocumentProcessorRequiresCatalog(t *testing.T) {
	if _, err := NewDocumentProcessor(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewDocumentProcessor(&ProcessorConfig{}); err == nil {
		t.Error("expected error without catalog")
	}
}

func TestProcessDocumentInlinePages(t *testing.T) {
	store := &fakeStore{}
	uploader := &fakeUploader{}
	out := t.TempDir()
	p := newProcessor(t, ProcessorConfig{Store: store, Artifacts: uploader, OutputDir: out})

	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID:    "job-1",
		FolderID: "123",
		Pages: map[int]string{
			1: charterStart + " article one",
			2: "minutes continue",
			3: "board approval " + charterEnd,
			4: "stray notes",
		},
	})
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	if res.Documents != 1 || res.TotalPages != 4 || res.MatchedPages != 3 {
		t.Errorf("result = %+v", res)
	}
	if !reflect.DeepEqual(res.UnmatchedPages, []int{4}) {
		t.Errorf("UnmatchedPages = %v", res.UnmatchedPages)
	}
	if res.MatchPercentage != 75 || res.Status != "has_unmatched" {
		t.Errorf("percentage = %v, status = %s", res.MatchPercentage, res.Status)
	}
	if !strings.HasPrefix(res.Source, "inline") {
		t.Errorf("Source = %s", res.Source)
	}

	if store.stored["job-1"] != res.Segmentation {
		t.Error("segmentation not stored under the job id")
	}

	wantIDs := []string{"art-config.json", "art-summary.md", "art-summary.html"}
	if !reflect.DeepEqual(res.ArtifactIDs, wantIDs) {
		t.Errorf("ArtifactIDs = %v", res.ArtifactIDs)
	}

	if res.ReportDir != filepath.Join(out, "123") {
		t.Errorf("ReportDir = %s", res.ReportDir)
	}
	md, err := os.ReadFile(filepath.Join(out, "123", "summary.md"))
	if err != nil {
		t.Fatalf("summary.md: %v", err)
	}
	if !strings.Contains(string(md), "| 4 | stray notes... |") {
		t.Errorf("summary.md missing unmatched page:\n%s", md)
	}
}

func TestProcessDocumentCleansText(t *testing.T) {
	p := newProcessor(t, ProcessorConfig{CleanText: true})

	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID: "job-2",
		Pages: map[int]string{
			1: `{"natural_text": "# loose page"}`,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.FolderID != "job-2" {
		t.Errorf("FolderID should default to the job id, got %s", res.FolderID)
	}
	if !strings.Contains(res.Report.Markdown, "| 1 |  loose page... |") {
		t.Errorf("markdown:\n%s", res.Report.Markdown)
	}
}

func TestProcessDocumentSourcePrecedence(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "1.txt"), []byte(charterStart+" "+charterEnd), 0o644); err != nil {
		t.Fatal(err)
	}
	p := newProcessor(t, ProcessorConfig{})

	fromDir, err := p.ProcessDocument(context.Background(), &ProcessRequest{JobID: "j", PagesDir: dir, PDFPath: "/nonexistent.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if fromDir.Documents != 1 || !strings.HasPrefix(fromDir.Source, "text:") {
		t.Errorf("text dir result = %+v", fromDir)
	}

	inline, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID:    "j",
		Pages:    map[int]string{1: "nothing here"},
		PagesDir: dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	if inline.Documents != 0 || inline.TotalPages != 1 {
		t.Errorf("inline pages should win over pagesDir, got %+v", inline)
	}
}

func TestProcessDocumentErrors(t *testing.T) {
	storeErr := errors.New("connection refused")

	tests := []struct {
		name string
		cfg  ProcessorConfig
		req  *ProcessRequest
		code apperrors.ErrorCode
	}{
		{
			name: "no source",
			req:  &ProcessRequest{JobID: "j"},
			code: apperrors.ErrorPageSourceFailed,
		},
		{
			name: "missing text dir",
			req:  &ProcessRequest{JobID: "j", PagesDir: "/does/not/exist"},
			code: apperrors.ErrorPageSourceFailed,
		},
		{
			name: "images without recognizer",
			req:  &ProcessRequest{JobID: "j", ImagesDir: "/does/not/exist"},
			code: apperrors.ErrorOCRFailed,
		},
		{
			name: "non-positive page",
			req:  &ProcessRequest{JobID: "j", Pages: map[int]string{0: "cover", 1: "body"}},
			code: apperrors.ErrorInvalidPages,
		},
		{
			name: "storage failure",
			cfg:  ProcessorConfig{Store: &fakeStore{err: storeErr}},
			req:  &ProcessRequest{JobID: "j", Pages: map[int]string{1: "body"}},
			code: apperrors.ErrorStorageFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProcessor(t, tt.cfg)
			_, err := p.ProcessDocument(context.Background(), tt.req)
			if !apperrors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			var pe *apperrors.ProcessingError
			if errors.As(err, &pe) && pe.JobID != "j" {
				t.Errorf("JobID = %q, want j", pe.JobID)
			}
		})
	}

	p := newProcessor(t, ProcessorConfig{Store: &fakeStore{err: storeErr}})
	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{JobID: "j", Pages: map[int]string{1: "body"}})
	if !errors.Is(err, storeErr) {
		t.Errorf("storage error should wrap the cause, got %v", err)
	}
}

func TestProcessDocumentUploadFailureIsNotFatal(t *testing.T) {
	p := newProcessor(t, ProcessorConfig{Artifacts: &fakeUploader{fail: true}})

	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID: "j",
		Pages: map[int]string{1: charterStart + " " + charterEnd},
	})
	if err != nil {
		t.Fatalf("upload failure must not fail the job: %v", err)
	}
	if len(res.ArtifactIDs) != 0 || res.Documents != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestProcessDocumentCancelled(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "1.jpg"), []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := newProcessor(t, ProcessorConfig{Recognizer: blockingRecognizer{}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ProcessDocument(ctx, &ProcessRequest{JobID: "j", ImagesDir: dir})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type blockingRecognizer struct{}

func (blockingRecognizer) Name() string { return "blocking" }

func (blockingRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestUpdateJobStatus(t *testing.T) {
	store := &fakeStore{}
	p := newProcessor(t, ProcessorConfig{Store: store})
	ctx := context.Background()

	done := &ProcessResult{
		FolderID:         "123",
		TotalPages:       4,
		MatchedPages:     3,
		Documents:        1,
		MatchPercentage:  75,
		ProcessingTimeMs: 42,
		UnmatchedPages:   []int{4},
		OCREngine:        "tesseract(tha+eng)",
	}
	if err := p.UpdateJobStatus(ctx, "job-1", "completed", 100, CompletionMetadata(done)); err != nil {
		t.Fatal(err)
	}
	timeout := apperrors.NewProcessingTimeoutError("job-1", 0, errors.New("deadline"))
	if err := p.UpdateJobStatus(ctx, "job-1", "failed", 100, timeout.ToMap()); err != nil {
		t.Fatal(err)
	}
	if err := p.UpdateJobStatus(ctx, "job-1", "failed", 0, map[string]interface{}{"error": "boom"}); err != nil {
		t.Fatal(err)
	}

	if len(store.updates) != 3 {
		t.Fatalf("got %d updates", len(store.updates))
	}
	c := store.updates[0]
	if c.FolderID != "123" || c.TotalPages != 4 || c.MatchedPages != 3 || c.Documents != 1 ||
		c.MatchPercentage != 75 || c.ProcessingTimeMs != 42 || c.OCREngine != "tesseract(tha+eng)" ||
		!reflect.DeepEqual(c.UnmatchedPages, []int{4}) {
		t.Errorf("completed update = %+v", c)
	}
	if f := store.updates[1]; f.ErrorCode != string(apperrors.ErrorProcessingTimeout) || f.ErrorMessage == "" {
		t.Errorf("timeout update = %+v", f)
	}
	if f := store.updates[2]; f.ErrorCode != "PROCESSING_ERROR" || f.ErrorMessage != "boom" {
		t.Errorf("generic failure update = %+v", f)
	}

	noStore := newProcessor(t, ProcessorConfig{})
	if err := noStore.UpdateJobStatus(ctx, "job-1", "processing", 0, nil); err != nil {
		t.Errorf("without storage UpdateJobStatus should be a no-op, got %v", err)
	}
}
