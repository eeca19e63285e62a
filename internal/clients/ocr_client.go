/**
 * OCR Service Client
 *
 * Sends page images to the remote OCR service and returns recognized text.
 * API keys are handed out round-robin so concurrent pages spread their
 * load across every configured key.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/adverant/nexus/docsegment-worker/internal/logging"
)

// Defaults sent with every OCR request
const (
	DefaultTaskType       = "v1.5"
	DefaultFigureLanguage = "Thai"
)

// OCRClient handles communication with the OCR service
type OCRClient struct {
	baseURL    string
	apiKeys    []string
	next       uint64
	httpClient *http.Client
	logger     *logging.Logger
}

// OCRRequest is the body of POST /ocr
type OCRRequest struct {
	ImageBase64    string `json:"image_base64"`
	APIKey         string `json:"api_key"`
	TaskType       string `json:"task_type"`
	FigureLanguage string `json:"figure_language"`
}

// OCRResponse is the body returned by POST /ocr
type OCRResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
}

// NewOCRClient creates a new OCR service client
func NewOCRClient(baseURL string, apiKeys []string) *OCRClient {
	keys := make([]string, len(apiKeys))
	copy(keys, apiKeys)
	return &OCRClient{
		baseURL: baseURL,
		apiKeys: keys,
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // ensemble OCR is slow on dense pages
		},
		logger: logging.NewLogger("OCRClient"),
	}
}

// nextKey returns the next API key in round-robin order ("" when none are configured)
func (c *OCRClient) nextKey() string {
	if len(c.apiKeys) == 0 {
		return ""
	}
	i := atomic.AddUint64(&c.next, 1) - 1
	return c.apiKeys[i%uint64(len(c.apiKeys))]
}

// ExtractText recognizes the text of one page image
func (c *OCRClient) ExtractText(ctx context.Context, imageData []byte) (*OCRResponse, error) {
	req := &OCRRequest{
		ImageBase64:    base64.StdEncoding.EncodeToString(imageData),
		APIKey:         c.nextKey(),
		TaskType:       DefaultTaskType,
		FigureLanguage: DefaultFigureLanguage,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/ocr", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "docsegment-worker")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to OCR service failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OCR service returned error status %d: %s", resp.StatusCode, string(body))
	}

	var ocrResp OCRResponse
	if err := json.Unmarshal(body, &ocrResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !ocrResp.Success {
		return nil, fmt.Errorf("OCR service operation failed: %s", ocrResp.Error)
	}

	c.logger.Debug("Text extraction complete",
		"textLength", len(ocrResp.Text),
		"confidence", ocrResp.Confidence,
		"duration", time.Since(start).String())

	return &ocrResp, nil
}

// HealthCheck verifies the OCR service is reachable
func (c *OCRClient) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
