package storage

import (
	"bytes"
	"context"
	"fmt"

	"bloomgraph/pkg/batch"
	"bloomgraph/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
)

func runArtifactsPrefix(runID string) string {
	return fmt.Sprintf("runs/%s/batch_files", runID)
}

func batchFileKey(runID, batchID, name string) string {
	return fmt.Sprintf("%s/%s/%s", runArtifactsPrefix(runID), batchID, name)
}

// ListRunArtifacts returns the keys of every batch file archived for a run.
func ListRunArtifacts(ctx context.Context, client *s3.Client, runID string) ([]string, error) {
	return ListFilesWithPrefix(ctx, client, runArtifactsPrefix(runID)+"/")
}

// DeleteRunArtifacts removes a run's archived batch files from S3. The
// relational data of the run is untouched.
func DeleteRunArtifacts(ctx context.Context, client *s3.Client, runID string) error {
	return DeleteFolder(ctx, client, runArtifactsPrefix(runID)+"/")
}

// ArchiveBatchFiles copies a finished batch job's provider files (input,
// output and error file when present) into the run's archive prefix. Files
// that cannot be read are skipped with a warning; only upload failures abort.
func ArchiveBatchFiles(
	ctx context.Context,
	client *s3.Client,
	llm batch.Client,
	runID, batchID, inputFileID string,
	status batch.JobStatus,
) error {
	files := map[string]string{
		"input.jsonl":  inputFileID,
		"output.jsonl": status.OutputFileID,
		"errors.jsonl": status.ErrorFileID,
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, fileID := range files {
		if fileID == "" {
			continue
		}
		g.Go(func() error {
			content, err := llm.ReadFile(gctx, fileID)
			if err != nil {
				logger.Warn(
					"[Storage] Skipping unreadable batch file during archive",
					"batch_id", batchID, "file_id", fileID, "err", err,
				)
				return nil
			}
			key := batchFileKey(runID, batchID, name)
			return PutFile(gctx, client, key, "application/jsonl", bytes.NewReader(content))
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to archive files for batch %s: %w", batchID, err)
	}

	logger.Debug("[Storage] Archived batch files", "run_id", runID, "batch_id", batchID)
	return nil
}
