package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/avolkov/finpulse/internal/jobs"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleJob(id string) *jobs.IngestStatementJob {
	return &jobs.IngestStatementJob{
		JobID:      id,
		UserID:     "u1",
		UploadID:   "up1",
		GCSURI:     "gs://statements/u1/file.csv",
		Status:     jobs.JobStatusPending,
		CreatedAt:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		MaxRetries: 3,
	}
}

func TestSaveAndGetJob(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	job := sampleJob("j1")
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob returned error: %v", err)
	}

	got, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob returned error: %v", err)
	}
	if got.UserID != "u1" || got.UploadID != "up1" || got.Status != jobs.JobStatusPending {
		t.Errorf("GetJob = %+v", got)
	}
	if !got.CreatedAt.Equal(job.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, job.CreatedAt)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Errorf("expected nil timestamps, got started=%v completed=%v", got.StartedAt, got.CompletedAt)
	}
}

func TestSaveJobReplacesExisting(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	job := sampleJob("j1")
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob returned error: %v", err)
	}

	started := time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC)
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &started
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob (update) returned error: %v", err)
	}

	got, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob returned error: %v", err)
	}
	if got.Status != jobs.JobStatusRunning {
		t.Errorf("Status = %s, want running", got.Status)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
}

func TestSaveJobRequiresID(t *testing.T) {
	store := openTestStore(t)

	job := sampleJob("")
	if err := store.SaveJob(context.Background(), job); err == nil {
		t.Fatal("expected error for empty job ID")
	}
}

func TestGetJobNotFound(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.GetJob(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing job")
	}
}

func TestListJobsFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	j1 := sampleJob("j1")
	j2 := sampleJob("j2")
	j2.UserID = "u2"
	j2.Status = jobs.JobStatusCompleted
	j3 := sampleJob("j3")
	j3.UploadID = "up2"

	for _, j := range []*jobs.IngestStatementJob{j1, j2, j3} {
		if err := store.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob(%s) returned error: %v", j.JobID, err)
		}
	}

	byUser, err := store.ListJobs(ctx, jobs.JobFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("ListJobs returned error: %v", err)
	}
	if len(byUser) != 2 {
		t.Errorf("ListJobs(UserID=u1) = %d jobs, want 2", len(byUser))
	}

	byUpload, err := store.ListJobs(ctx, jobs.JobFilter{UploadID: "up2"})
	if err != nil {
		t.Fatalf("ListJobs returned error: %v", err)
	}
	if len(byUpload) != 1 || byUpload[0].JobID != "j3" {
		t.Errorf("ListJobs(UploadID=up2) = %+v", byUpload)
	}

	byStatus, err := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusCompleted})
	if err != nil {
		t.Fatalf("ListJobs returned error: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].JobID != "j2" {
		t.Errorf("ListJobs(Status=completed) = %+v", byStatus)
	}

	limited, err := store.ListJobs(ctx, jobs.JobFilter{Limit: 1})
	if err != nil {
		t.Fatalf("ListJobs returned error: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("ListJobs(Limit=1) = %d jobs, want 1", len(limited))
	}
}

func TestUpdateJobStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveJob(ctx, sampleJob("j1")); err != nil {
		t.Fatalf("SaveJob returned error: %v", err)
	}

	if err := store.UpdateJobStatus(ctx, "j1", jobs.JobStatusFailed, "fetch failed"); err != nil {
		t.Fatalf("UpdateJobStatus returned error: %v", err)
	}

	got, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob returned error: %v", err)
	}
	if got.Status != jobs.JobStatusFailed || got.Error != "fetch failed" {
		t.Errorf("job after update = %+v", got)
	}

	if err := store.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, ""); err == nil {
		t.Fatal("expected error for missing job")
	}
}

func TestJobStateSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := store.SaveJob(ctx, sampleJob("j1")); err != nil {
		t.Fatalf("SaveJob returned error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopening store returned error: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob after reopen returned error: %v", err)
	}
	if got.UploadID != "up1" {
		t.Errorf("UploadID = %s, want up1", got.UploadID)
	}
}
