// Package batch defines the provider-independent contract for asynchronous
// LLM batch processing: request/response shapes, the JSONL wire format, the
// custom_id metadata codec and the client interface implemented per provider.
package batch

import (
	"context"
	"encoding/json"
	"io"
)

// ChatEndpoint is the batch endpoint used for all pipeline requests.
const ChatEndpoint = "/v1/chat/completions"

// CompletionWindow is the processing window requested for every batch job.
const CompletionWindow = "24h"

// Job status values as reported by the provider.
const (
	StatusValidating = "validating"
	StatusInProgress = "in_progress"
	StatusFinalizing = "finalizing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusExpired    = "expired"
	StatusCancelling = "cancelling"
	StatusCancelled  = "cancelled"

	// StatusAPIError is a local sentinel for a failed status lookup.
	StatusAPIError = "API_ERROR"
)

// IsTerminal reports whether a job status can no longer change.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Message is a single chat message within a batch request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RequestConfig carries per-request model parameters. Nil pointers are
// omitted from the wire body so provider defaults apply.
type RequestConfig struct {
	Model          string
	Temperature    *float64
	MaxTokens      *int
	ResponseFormat any
}

// Request is one provider-independent LLM request destined for a batch file.
// Metadata travels through the provider inside the line's custom_id and comes
// back attached to the matching Response.
type Request struct {
	Metadata Metadata
	Messages []Message
	Config   RequestConfig
}

// Response is one parsed line of a batch output file. Exactly one of Content
// and ErrMessage is meaningful; Raw preserves the full provider line for
// archival.
type Response struct {
	Metadata   Metadata
	Content    string
	ErrMessage string
	Raw        json.RawMessage
}

// Failed reports whether the provider returned an error for this request.
func (r Response) Failed() bool {
	return r.ErrMessage != ""
}

// JobStatus is the result of polling a batch job.
type JobStatus struct {
	Status       string
	OutputFileID string
	ErrorFileID  string
}

// Client is the provider-side surface the pipeline depends on. Implementations
// live in subpackages (one per provider).
type Client interface {
	// UploadBatchFile uploads a JSONL request file and returns its file id.
	UploadBatchFile(ctx context.Context, content io.Reader) (string, error)
	// CreateBatchJob starts a batch over a previously uploaded file and
	// returns the job id.
	CreateBatchJob(ctx context.Context, inputFileID, endpoint string, metadata map[string]string) (string, error)
	// GetBatchStatus polls a job. Output and error file ids are empty until
	// the provider produces them.
	GetBatchStatus(ctx context.Context, batchID string) (JobStatus, error)
	// ReadFile downloads the raw content of a provider-side file.
	ReadFile(ctx context.Context, fileID string) ([]byte, error)
}
