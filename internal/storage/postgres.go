/**
 * PostgreSQL Client for the Document Segmentation Worker
 *
 * Handles job persistence in the docsegment schema.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	FolderID         string
	Status           string
	TotalPages       int
	MatchedPages     int
	Documents        int
	MatchPercentage  float64
	ProcessingTimeMs int64
	UnmatchedPages   []int
	ErrorCode        string
	ErrorMessage     string
	OCREngine        string
	Metadata         map[string]interface{}
}

// sanitizePercentage clamps a match percentage to [0, 100] with one decimal,
// which is what the NUMERIC(4,1) column accepts.
func sanitizePercentage(p float64) float64 {
	if p < 0 || math.IsNaN(p) {
		return 0
	}
	if p > 100 {
		return 100
	}
	return math.Round(p*10) / 10
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// UpdateJobStatus upserts the job row. The first update creates it, so the
// worker does not depend on the producer having inserted the job.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metadataJSON = sanitizeJSONForPostgres(metadataJSON)

	var unmatched interface{}
	if update.UnmatchedPages != nil {
		unmatched = pq.Array(toInt64s(update.UnmatchedPages))
	}

	percentage := sanitizePercentage(update.MatchPercentage)

	query := `
		INSERT INTO docsegment.segmentation_jobs (
			id, folder_id, status, total_pages, matched_pages, documents,
			match_percentage, processing_time_ms, unmatched_pages,
			error_code, error_message, ocr_engine, metadata,
			created_at, updated_at
		) VALUES (
			$1::uuid, NULLIF($2, ''), $3, NULLIF($4, 0), NULLIF($5, 0), NULLIF($6, 0),
			$7::NUMERIC(4,1), NULLIF($8, 0), $9,
			NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''),
			COALESCE($13::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			folder_id = COALESCE(EXCLUDED.folder_id, docsegment.segmentation_jobs.folder_id),
			total_pages = COALESCE(EXCLUDED.total_pages, docsegment.segmentation_jobs.total_pages),
			matched_pages = COALESCE(EXCLUDED.matched_pages, docsegment.segmentation_jobs.matched_pages),
			documents = COALESCE(EXCLUDED.documents, docsegment.segmentation_jobs.documents),
			match_percentage = CASE
				WHEN EXCLUDED.total_pages IS NOT NULL THEN EXCLUDED.match_percentage
				ELSE docsegment.segmentation_jobs.match_percentage
			END,
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, docsegment.segmentation_jobs.processing_time_ms),
			unmatched_pages = COALESCE(EXCLUDED.unmatched_pages, docsegment.segmentation_jobs.unmatched_pages),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			ocr_engine = COALESCE(EXCLUDED.ocr_engine, docsegment.segmentation_jobs.ocr_engine),
			metadata = COALESCE(EXCLUDED.metadata, docsegment.segmentation_jobs.metadata),
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1
		update.FolderID,         // $2
		update.Status,           // $3
		update.TotalPages,       // $4
		update.MatchedPages,     // $5
		update.Documents,        // $6
		percentage,              // $7
		update.ProcessingTimeMs, // $8
		unmatched,               // $9
		update.ErrorCode,        // $10
		update.ErrorMessage,     // $11
		update.OCREngine,        // $12
		metadataJSON,            // $13
	).Scan(&returnedID)

	if err == sql.ErrNoRows {
		return fmt.Errorf("job not found: %s", update.JobID)
	}

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id,
			folder_id,
			status,
			total_pages,
			matched_pages,
			documents,
			match_percentage,
			processing_time_ms,
			unmatched_pages,
			error_code,
			error_message,
			ocr_engine,
			metadata,
			created_at,
			updated_at
		FROM docsegment.segmentation_jobs
		WHERE id = $1::uuid
	`

	var (
		id                                 string
		folderID, status                   sql.NullString
		totalPages, matchedPages, docs     sql.NullInt64
		matchPercentage                    sql.NullFloat64
		processingTimeMs                   sql.NullInt64
		unmatched                          pq.Int64Array
		errorCode, errorMessage, ocrEngine sql.NullString
		metadataJSON                       []byte
		createdAt, updatedAt               time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &folderID, &status, &totalPages, &matchedPages, &docs,
		&matchPercentage, &processingTimeMs, &unmatched,
		&errorCode, &errorMessage, &ocrEngine,
		&metadataJSON, &createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var metadata map[string]interface{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	result := map[string]interface{}{
		"id":             id,
		"status":         status.String,
		"unmatchedPages": fromInt64s(unmatched),
		"createdAt":      createdAt,
		"updatedAt":      updatedAt,
		"metadata":       metadata,
	}

	if folderID.Valid {
		result["folderId"] = folderID.String
	}
	if totalPages.Valid {
		result["totalPages"] = int(totalPages.Int64)
	}
	if matchedPages.Valid {
		result["matchedPages"] = int(matchedPages.Int64)
	}
	if docs.Valid {
		result["documents"] = int(docs.Int64)
	}
	if matchPercentage.Valid {
		result["matchPercentage"] = matchPercentage.Float64
	}
	if processingTimeMs.Valid {
		result["processingTimeMs"] = processingTimeMs.Int64
	}
	if errorCode.Valid {
		result["errorCode"] = errorCode.String
	}
	if errorMessage.Valid {
		result["errorMessage"] = errorMessage.String
	}
	if ocrEngine.Valid {
		result["ocrEngine"] = ocrEngine.String
	}

	return result, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}

func toInt64s(pages []int) []int64 {
	out := make([]int64, len(pages))
	for i, p := range pages {
		out[i] = int64(p)
	}
	return out
}

func fromInt64s(values []int64) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}
