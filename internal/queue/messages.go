package queue

// RunStageMsg triggers one pipeline stage for a run. SnapshotPrefix is only
// set on prepare messages and points at the run's GraphRAG output files in
// S3.
type RunStageMsg struct {
	Message        string `json:"message"`
	RunID          string `json:"run_id"`
	CorrelationID  string `json:"correlation_id,omitempty"`
	SnapshotPrefix string `json:"snapshot_prefix,omitempty"`
}

// PollBatchMsg asks the worker to check one provider batch job. Attempt
// counts status checks, not failures.
type PollBatchMsg struct {
	Message       string `json:"message"`
	RunID         string `json:"run_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	BatchID       string `json:"batch_id"`
	Kind          string `json:"kind"`
	Attempt       int    `json:"attempt"`
}

// RunEventMsg is published on the pubsub exchange whenever a run changes
// state, for external consumers watching run progress.
type RunEventMsg struct {
	RunID  string `json:"run_id"`
	Stage  string `json:"stage"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}
