package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/adverant/nexus/docsegment-worker/internal/errors"
	"github.com/adverant/nexus/docsegment-worker/internal/logging"
	"github.com/adverant/nexus/docsegment-worker/internal/processor"
)

func TestMain(m *testing.M) {
	logging.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestJobPayloadPages(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    map[int]string
		wantErr bool
		code    apperrors.ErrorCode
	}{
		{
			name: "object",
			body: `{"jobId":"j","pages":{"1":"first","3":"third"}}`,
			want: map[int]string{1: "first", 3: "third"},
		},
		{
			name: "array",
			body: `{"jobId":"j","pages":[{"pageNumber":2,"text":"b"},{"pageNumber":1,"text":"a"}]}`,
			want: map[int]string{1: "a", 2: "b"},
		},
		{
			name: "absent",
			body: `{"jobId":"j","pagesDir":"/data/ocrs"}`,
		},
		{
			name: "null",
			body: `{"jobId":"j","pages":null}`,
		},
		{
			name:    "duplicate page in array",
			body:    `{"jobId":"j","pages":[{"pageNumber":1,"text":"a"},{"pageNumber":1,"text":"b"}]}`,
			wantErr: true,
			code:    apperrors.ErrorInvalidPages,
		},
		{
			name:    "non-positive page in array",
			body:    `{"jobId":"j","pages":[{"pageNumber":0,"text":"a"}]}`,
			wantErr: true,
			code:    apperrors.ErrorInvalidPages,
		},
		{
			name:    "non-numeric key",
			body:    `{"jobId":"j","pages":{"cover":"a"}}`,
			wantErr: true,
		},
		{
			name:    "wrong type",
			body:    `{"jobId":"j","pages":"all of it"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p JobPayload
			err := json.Unmarshal([]byte(tt.body), &p)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.code != "" && !apperrors.HasCode(err, tt.code) {
					t.Errorf("expected %s, got %v", tt.code, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.JobID != "j" {
				t.Errorf("JobID = %q", p.JobID)
			}
			if !reflect.DeepEqual(p.Pages, tt.want) {
				t.Errorf("Pages = %v, want %v", p.Pages, tt.want)
			}
		})
	}
}

func TestRequeuedJobKeepsPages(t *testing.T) {
	body := `{"id":"q-1","type":"segment-document","attempts":0,"maxRetries":3,
		"payload":{"jobId":"j","folderId":"123","pages":[{"pageNumber":1,"text":"a"}],"metadata":{"k":"v"}}}`

	var job RedisJobData
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		t.Fatal(err)
	}
	job.Attempts++

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"pages":{"1":"a"}`) {
		t.Errorf("re-queued body = %s", data)
	}

	var again RedisJobData
	if err := json.Unmarshal(data, &again); err != nil {
		t.Fatal(err)
	}
	if again.Attempts != 1 || again.Payload.FolderID != "123" || again.Payload.Pages[1] != "a" {
		t.Errorf("re-queued job = %+v", again)
	}
}

func TestToRequest(t *testing.T) {
	p := &JobPayload{JobID: "j", FolderID: "f", ImagesDir: "/img", PDFPath: "/x.pdf"}
	req := p.ToRequest()
	if req.JobID != "j" || req.FolderID != "f" || req.ImagesDir != "/img" || req.PDFPath != "/x.pdf" || req.Pages != nil {
		t.Errorf("request = %+v", req)
	}
}

func TestShouldRetry(t *testing.T) {
	transient := errors.New("redis timeout")
	invalid := apperrors.NewInvalidPagesError("j", 0)

	tests := []struct {
		name     string
		attempts int
		err      error
		want     bool
	}{
		{"first failure", 1, transient, true},
		{"retries exhausted", 3, transient, false},
		{"invalid input", 1, invalid, false},
		{"wrapped invalid input", 1, errors.Join(transient, invalid), false},
		{"missing source", 1, apperrors.NewPageSourceError("j", "none", transient), false},
	}
	for _, tt := range tests {
		job := &RedisJobData{Attempts: tt.attempts, MaxRetries: 3}
		if got := job.shouldRetry(tt.err); got != tt.want {
			t.Errorf("%s: shouldRetry = %v, want %v", tt.name, got, tt.want)
		}
	}
}

type statusUpdate struct {
	status   string
	metadata map[string]interface{}
}

type fakeProcessor struct {
	mu      sync.Mutex
	process func(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error)
	updates []statusUpdate
}

func (f *fakeProcessor) ProcessDocument(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	return f.process(ctx, req)
}

func (f *fakeProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, statusUpdate{status: status, metadata: metadata})
	return nil
}

func (f *fakeProcessor) statuses() []string {
	var out []string
	for _, u := range f.updates {
		out = append(out, u.status)
	}
	return out
}

func TestRunJobCompleted(t *testing.T) {
	proc := &fakeProcessor{process: func(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
		if req.FolderID != "123" {
			t.Errorf("FolderID = %s", req.FolderID)
		}
		return &processor.ProcessResult{JobID: req.JobID, Documents: 2, TotalPages: 5, UnmatchedPages: []int{}}, nil
	}}

	res, err := runJob(context.Background(), proc, &JobPayload{JobID: "j", FolderID: "123"}, time.Second, logging.NewLogger("test"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Documents != 2 {
		t.Errorf("result = %+v", res)
	}
	if got := proc.statuses(); !reflect.DeepEqual(got, []string{StatusProcessing, StatusCompleted}) {
		t.Errorf("statuses = %v", got)
	}
	if proc.updates[1].metadata["totalPages"] != 5 {
		t.Errorf("completion metadata = %v", proc.updates[1].metadata)
	}
}

func TestRunJobFailed(t *testing.T) {
	cause := apperrors.NewInvalidPagesError("j", -1)
	proc := &fakeProcessor{process: func(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
		return nil, cause
	}}

	_, err := runJob(context.Background(), proc, &JobPayload{JobID: "j"}, time.Second, logging.NewLogger("test"))
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	last := proc.updates[len(proc.updates)-1]
	if last.status != StatusFailed || last.metadata["error_code"] != string(apperrors.ErrorInvalidPages) {
		t.Errorf("failed update = %+v", last)
	}
	if _, ok := last.metadata["processingTime"]; !ok {
		t.Error("failed update should carry processingTime")
	}
}

func TestRunJobTimeout(t *testing.T) {
	proc := &fakeProcessor{process: func(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	_, err := runJob(context.Background(), proc, &JobPayload{JobID: "j"}, 10*time.Millisecond, logging.NewLogger("test"))
	if !apperrors.HasCode(err, apperrors.ErrorProcessingTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("timeout error should wrap context.DeadlineExceeded")
	}
	last := proc.updates[len(proc.updates)-1]
	if last.status != StatusFailed || last.metadata["error_code"] != string(apperrors.ErrorProcessingTimeout) {
		t.Errorf("timeout update = %+v", last)
	}
}

func TestTimeoutFromMillis(t *testing.T) {
	if got := timeoutFromMillis(0); got != 5*time.Minute {
		t.Errorf("default timeout = %v", got)
	}
	if got := timeoutFromMillis(1500); got != 1500*time.Millisecond {
		t.Errorf("timeout = %v", got)
	}
}

func TestNewSegmentTask(t *testing.T) {
	task, err := NewSegmentTask(&JobPayload{JobID: "j", Pages: map[int]string{1: "a"}})
	if err != nil {
		t.Fatal(err)
	}
	if task.Type() != TaskTypeSegmentDocument {
		t.Errorf("Type = %s", task.Type())
	}
	var decoded JobPayload
	if err := json.Unmarshal(task.Payload(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.JobID != "j" || decoded.Pages[1] != "a" {
		t.Errorf("decoded = %+v", decoded)
	}

	if _, err := NewSegmentTask(&JobPayload{}); err == nil {
		t.Error("expected error without job id")
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{5, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.n, nil, nil); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestJobEvent(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := jobEvent("j", StatusCompleted, at)
	if ev["event"] != "job:completed" || ev["jobId"] != "j" || ev["timestamp"] != "2026-01-02T03:04:05Z" {
		t.Errorf("event = %v", ev)
	}
}

func TestConsumerConfigValidation(t *testing.T) {
	proc := &fakeProcessor{}

	if _, err := NewRedisConsumer(&RedisConsumerConfig{Processor: proc}); err == nil {
		t.Error("redis consumer: expected error without RedisURL")
	}
	if _, err := NewRedisConsumer(&RedisConsumerConfig{RedisURL: "redis://localhost:6379"}); err == nil {
		t.Error("redis consumer: expected error without processor")
	}
	if _, err := NewConsumer(&ConsumerConfig{RedisURL: "redis://localhost:6379", Processor: proc}); err == nil {
		t.Error("asynq consumer: expected error without queue name")
	}
	if _, err := NewConsumer(&ConsumerConfig{QueueName: "q", Processor: proc}); err == nil {
		t.Error("asynq consumer: expected error without RedisURL")
	}
}
