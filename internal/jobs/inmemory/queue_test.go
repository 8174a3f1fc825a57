package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avolkov/finpulse/internal/jobs"
)

func TestPublishAndProcess(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	var processed atomic.Int32
	done := make(chan struct{})

	err := q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error {
		if processed.Add(1) == 1 {
			close(done)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	job := &jobs.IngestStatementJob{UserID: "u1", UploadID: "up1", GCSURI: "gs://b/o.csv"}
	if err := q.PublishIngestStatement(context.Background(), job); err != nil {
		t.Fatalf("PublishIngestStatement returned error: %v", err)
	}
	if job.JobID == "" {
		t.Error("expected job ID to be generated")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.GetJob(context.Background(), job.JobID)
		if err == nil && got.Status == jobs.JobStatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached completed status")
}

func TestFailedJobIsRetried(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	var calls atomic.Int32
	done := make(chan struct{})

	err := q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error {
		if calls.Add(1) == 1 {
			return errors.New("transient failure")
		}
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	job := &jobs.IngestStatementJob{UserID: "u1", UploadID: "up1", GCSURI: "gs://b/o.csv", MaxRetries: 2}
	if err := q.PublishIngestStatement(context.Background(), job); err != nil {
		t.Fatalf("PublishIngestStatement returned error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not retried")
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("handler calls = %d, want 2", got)
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	q := NewQueue(1, 1, nil)
	if err := q.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	job := &jobs.IngestStatementJob{UserID: "u1"}
	if err := q.PublishIngestStatement(context.Background(), job); err == nil {
		t.Fatal("expected error publishing to closed queue")
	}
}

func TestStopWaitsForWorkers(t *testing.T) {
	q := NewQueue(1, 1, nil)

	started := make(chan struct{})
	err := q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	job := &jobs.IngestStatementJob{UserID: "u1", UploadID: "up1"}
	if err := q.PublishIngestStatement(context.Background(), job); err != nil {
		t.Fatalf("PublishIngestStatement returned error: %v", err)
	}

	<-started
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
}
