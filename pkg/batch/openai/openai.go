// Package openai implements the batch.Client contract against the OpenAI
// Batch API.
package openai

import (
	"context"
	"fmt"
	"io"

	"bloomgraph/pkg/batch"
	"bloomgraph/pkg/logger"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// BatchClient talks to the OpenAI Files and Batches endpoints.
//
// A BatchClient should be created using NewBatchClient.
type BatchClient struct {
	client *openai.Client
}

// NewBatchClientParams configures a BatchClient. BaseURL may be left empty to
// use the default OpenAI endpoint.
type NewBatchClientParams struct {
	BaseURL string
	APIKey  string
}

// NewBatchClient creates a BatchClient for the given endpoint. It returns an
// error when no API key is configured, since every batch operation needs one.
func NewBatchClient(params NewBatchClientParams) (*BatchClient, error) {
	if params.APIKey == "" {
		return nil, fmt.Errorf("openai batch client requires an API key")
	}

	options := []option.RequestOption{
		option.WithAPIKey(params.APIKey),
	}
	if params.BaseURL != "" {
		options = append(options, option.WithBaseURL(params.BaseURL))
	}

	client := openai.NewClient(options...)
	return &BatchClient{client: &client}, nil
}

// UploadBatchFile uploads a JSONL request file with the batch purpose and
// returns the provider file id.
func (c *BatchClient) UploadBatchFile(ctx context.Context, content io.Reader) (string, error) {
	file, err := c.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(content, "batch_input.jsonl", "application/jsonl"),
		Purpose: openai.FilePurposeBatch,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload batch file: %w", err)
	}

	logger.Debug("Uploaded batch input file", "file_id", file.ID)
	return file.ID, nil
}

// CreateBatchJob starts a batch job over a previously uploaded file with a
// 24h completion window and returns the job id.
func (c *BatchClient) CreateBatchJob(ctx context.Context, inputFileID, endpoint string, metadata map[string]string) (string, error) {
	params := openai.BatchNewParams{
		InputFileID:      inputFileID,
		Endpoint:         openai.BatchNewParamsEndpoint(endpoint),
		CompletionWindow: openai.BatchNewParamsCompletionWindow24h,
	}
	if len(metadata) > 0 {
		params.Metadata = shared.Metadata(metadata)
	}

	job, err := c.client.Batches.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create batch job for file %s: %w", inputFileID, err)
	}

	logger.Debug("Created batch job", "batch_id", job.ID, "input_file_id", inputFileID)
	return job.ID, nil
}

// GetBatchStatus polls a batch job and maps it into the provider-independent
// status shape.
func (c *BatchClient) GetBatchStatus(ctx context.Context, batchID string) (batch.JobStatus, error) {
	job, err := c.client.Batches.Get(ctx, batchID)
	if err != nil {
		return batch.JobStatus{Status: batch.StatusAPIError},
			fmt.Errorf("failed to get status of batch %s: %w", batchID, err)
	}

	return batch.JobStatus{
		Status:       string(job.Status),
		OutputFileID: job.OutputFileID,
		ErrorFileID:  job.ErrorFileID,
	}, nil
}

// ReadFile downloads the raw content of a provider-side file, typically a
// batch output or error file.
func (c *BatchClient) ReadFile(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.client.Files.Content(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read content of file %s: %w", fileID, err)
	}
	return data, nil
}
