package pipeline

const (
	// StatusPending marks an upload that has not been processed yet.
	StatusPending = "PENDING"
	// StatusSuccess marks an upload whose rows were parsed and stored.
	StatusSuccess = "SUCCESS"
	// StatusFailed marks an upload that could not be processed.
	StatusFailed = "FAILED"
)
