/**
 * Storage Manager for the Document Segmentation Worker
 *
 * Persists segmentation results: one row per document group in
 * docsegment.document_groups plus the unmatched page list on the job row.
 * A job's groups are replaced atomically so a retried job never leaves
 * rows from an earlier attempt behind.
 */

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/adverant/nexus/docsegment-worker/internal/segmenter"
)

// Group kinds stored in document_groups.kind
const (
	KindComplete    = "complete"
	KindIncomplete  = "incomplete"
	KindPlaceholder = "placeholder"
)

// StorageManager coordinates segmentation persistence
type StorageManager struct {
	postgres *PostgresClient
}

// GroupRecord is one stored document group
type GroupRecord struct {
	ID                   string
	JobID                string
	TemplateName         string
	Category             string
	Kind                 string
	StartPage            int
	EndPage              int
	Pages                []int
	StartMatchInfo       string
	EndMatchInfo         string
	EndNegativeMatchInfo string
	CreatedAt            time.Time
}

// SegmentationOutput is the stored form of one job's result
type SegmentationOutput struct {
	JobID          string
	Groups         []GroupRecord
	UnmatchedPages []int
}

// NewStorageManager creates a new storage manager
func NewStorageManager(postgresURL string) (*StorageManager, error) {
	postgres, err := NewPostgresClient(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}

	return &StorageManager{postgres: postgres}, nil
}

// groupRecords flattens a result into rows, documents first, then incomplete
// groups, then placeholders. Ids are generated here.
func groupRecords(jobID string, result *segmenter.Result) []GroupRecord {
	var records []GroupRecord
	add := func(kind string, groups []*segmenter.DocumentGroup) {
		for _, g := range groups {
			records = append(records, GroupRecord{
				ID:                   uuid.New().String(),
				JobID:                jobID,
				TemplateName:         g.Template.Name,
				Category:             g.Template.Category,
				Kind:                 kind,
				StartPage:            g.StartPage,
				EndPage:              g.EndPage,
				Pages:                append([]int(nil), g.Pages...),
				StartMatchInfo:       g.StartMatchInfo,
				EndMatchInfo:         g.EndMatchInfo,
				EndNegativeMatchInfo: g.EndNegativeMatchInfo,
			})
		}
	}
	add(KindComplete, result.Documents)
	add(KindIncomplete, result.Incomplete)
	add(KindPlaceholder, result.Placeholders)
	return records
}

// StoreSegmentation replaces the stored groups of a job with result
func (sm *StorageManager) StoreSegmentation(ctx context.Context, jobID string, result *segmenter.Result) (*SegmentationOutput, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}
	if result == nil {
		return nil, fmt.Errorf("result is required")
	}

	records := groupRecords(jobID, result)

	tx, err := sm.postgres.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM docsegment.document_groups WHERE job_id = $1::uuid`, jobID); err != nil {
		return nil, fmt.Errorf("failed to clear previous groups: %w", err)
	}

	insert := `
		INSERT INTO docsegment.document_groups (
			id, job_id, template_name, category, kind,
			start_page, end_page, pages,
			start_match_info, end_match_info, end_negative_match_info,
			created_at
		) VALUES ($1::uuid, $2::uuid, $3, NULLIF($4, ''), $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NOW())
		RETURNING created_at
	`
	for i := range records {
		r := &records[i]
		err := tx.QueryRowContext(ctx, insert,
			r.ID, r.JobID, r.TemplateName, r.Category, r.Kind,
			r.StartPage, r.EndPage, pq.Array(toInt64s(r.Pages)),
			r.StartMatchInfo, r.EndMatchInfo, r.EndNegativeMatchInfo,
		).Scan(&r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to store group %s (pages %d-%d): %w",
				r.TemplateName, r.StartPage, r.EndPage, err)
		}
	}

	unmatched := append([]int{}, result.Unmatched...)
	if _, err := tx.ExecContext(ctx, `
		UPDATE docsegment.segmentation_jobs
		SET unmatched_pages = $2, updated_at = NOW()
		WHERE id = $1::uuid
	`, jobID, pq.Array(toInt64s(unmatched))); err != nil {
		return nil, fmt.Errorf("failed to record unmatched pages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit segmentation: %w", err)
	}

	return &SegmentationOutput{
		JobID:          jobID,
		Groups:         records,
		UnmatchedPages: unmatched,
	}, nil
}

// GetSegmentation reads back the stored groups of a job ordered by start page
func (sm *StorageManager) GetSegmentation(ctx context.Context, jobID string) (*SegmentationOutput, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	var unmatched pq.Int64Array
	err := sm.postgres.db.QueryRowContext(ctx,
		`SELECT unmatched_pages FROM docsegment.segmentation_jobs WHERE id = $1::uuid`, jobID,
	).Scan(&unmatched)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	rows, err := sm.postgres.db.QueryContext(ctx, `
		SELECT
			id, template_name, category, kind,
			start_page, end_page, pages,
			start_match_info, end_match_info, end_negative_match_info,
			created_at
		FROM docsegment.document_groups
		WHERE job_id = $1::uuid
		ORDER BY start_page, kind
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	out := &SegmentationOutput{JobID: jobID, UnmatchedPages: fromInt64s(unmatched)}
	for rows.Next() {
		var (
			r                           GroupRecord
			category                    sql.NullString
			startInfo, endInfo, negInfo sql.NullString
			pages                       pq.Int64Array
		)
		if err := rows.Scan(
			&r.ID, &r.TemplateName, &category, &r.Kind,
			&r.StartPage, &r.EndPage, &pages,
			&startInfo, &endInfo, &negInfo,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		r.JobID = jobID
		r.Category = category.String
		r.Pages = fromInt64s(pages)
		r.StartMatchInfo = startInfo.String
		r.EndMatchInfo = endInfo.String
		r.EndNegativeMatchInfo = negInfo.String
		out.Groups = append(out.Groups, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read groups: %w", err)
	}

	return out, nil
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// GetJobByID retrieves job by ID
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	return sm.postgres.GetJobByID(ctx, jobID)
}

// Ping checks database connectivity
func (sm *StorageManager) Ping(ctx context.Context) error {
	return sm.postgres.Ping(ctx)
}

// GetStats returns connection pool statistics
func (sm *StorageManager) GetStats() map[string]interface{} {
	pgStats := sm.postgres.GetStats()
	return map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
	}
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	if sm.postgres != nil {
		if err := sm.postgres.Close(); err != nil {
			return fmt.Errorf("failed to close PostgreSQL: %w", err)
		}
	}
	return nil
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres removes escapes JSONB rejects. \u0000 is dropped
// and other control characters become a space. OCR output routinely
// carries both.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}
