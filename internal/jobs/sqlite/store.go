// Package sqlite provides a SQLite-backed job store so job state survives
// service restarts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/avolkov/finpulse/internal/jobs"
)

// Store is a SQLite-backed implementation of JobStore.
type Store struct {
	db *sql.DB
}

// Open opens or creates the job database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating job db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening job db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the job database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.IngestStatementJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO ingest_jobs
		(job_id, user_id, upload_id, gcs_uri, status, created_at, started_at, completed_at, error, retry_count, max_retries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.JobID, job.UserID, job.UploadID, job.GCSURI, string(job.Status),
		formatTime(job.CreatedAt), formatTimePtr(job.StartedAt), formatTimePtr(job.CompletedAt),
		job.Error, job.RetryCount, job.MaxRetries)
	if err != nil {
		return fmt.Errorf("SaveJob: %w", err)
	}

	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.IngestStatementJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		job_id, user_id, upload_id, gcs_uri, status, created_at, started_at, completed_at, error, retry_count, max_retries
		FROM ingest_jobs WHERE job_id = ?`, jobID)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetJob: %w", err)
	}

	return job, nil
}

// ListJobs implements the JobStore interface.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.IngestStatementJob, error) {
	query := `SELECT
		job_id, user_id, upload_id, gcs_uri, status, created_at, started_at, completed_at, error, retry_count, max_retries
		FROM ingest_jobs WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.UploadID != "" {
		query += " AND upload_id = ?"
		args = append(args, filter.UploadID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListJobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*jobs.IngestStatementJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("ListJobs: scanning row: %w", err)
		}
		result = append(result, job)
	}

	return result, rows.Err()
}

// UpdateJobStatus implements the JobStore interface.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_jobs SET status = ?, error = CASE WHEN ? != '' THEN ? ELSE error END WHERE job_id = ?`,
		string(status), errorMsg, errorMsg, jobID)
	if err != nil {
		return fmt.Errorf("UpdateJobStatus: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateJobStatus: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job not found: %s", jobID)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*jobs.IngestStatementJob, error) {
	var job jobs.IngestStatementJob
	var status, createdAt string
	var startedAt, completedAt sql.NullString

	err := row.Scan(&job.JobID, &job.UserID, &job.UploadID, &job.GCSURI, &status,
		&createdAt, &startedAt, &completedAt, &job.Error, &job.RetryCount, &job.MaxRetries)
	if err != nil {
		return nil, err
	}

	job.Status = jobs.JobStatus(status)
	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	job.StartedAt = parseTimePtr(startedAt)
	job.CompletedAt = parseTimePtr(completedAt)

	return &job, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
