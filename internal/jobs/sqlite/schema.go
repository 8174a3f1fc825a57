package sqlite

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ingest_jobs (
    job_id        TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    upload_id     TEXT NOT NULL,
    gcs_uri       TEXT NOT NULL,
    status        TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    started_at    TEXT,
    completed_at  TEXT,
    error         TEXT,
    retry_count   INTEGER NOT NULL DEFAULT 0,
    max_retries   INTEGER NOT NULL DEFAULT 3
);

CREATE INDEX IF NOT EXISTS idx_ingest_jobs_user_id ON ingest_jobs(user_id);
CREATE INDEX IF NOT EXISTS idx_ingest_jobs_upload_id ON ingest_jobs(upload_id);
CREATE INDEX IF NOT EXISTS idx_ingest_jobs_status ON ingest_jobs(status);
`
