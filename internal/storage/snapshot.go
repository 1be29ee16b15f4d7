package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"bloomgraph/pkg/pipeline"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
)

// Snapshot file names expected under a run's graph prefix.
const (
	SnapshotEntitiesFile      = "entities.json"
	SnapshotCommunitiesFile   = "communities.json"
	SnapshotReportsFile       = "community_reports.json"
	SnapshotRelationshipsFile = "relationships.json"
)

// LoadGraphSnapshot reads the four GraphRAG output files under prefix from
// S3 in parallel and decodes them into a snapshot. Entities and communities
// are required; reports and relationships may be absent.
func LoadGraphSnapshot(ctx context.Context, client *s3.Client, prefix string) (pipeline.GraphSnapshot, error) {
	var snapshot pipeline.GraphSnapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loadSnapshotFile(gctx, client, prefix, SnapshotEntitiesFile, true, &snapshot.Entities)
	})
	g.Go(func() error {
		return loadSnapshotFile(gctx, client, prefix, SnapshotCommunitiesFile, true, &snapshot.Communities)
	})
	g.Go(func() error {
		return loadSnapshotFile(gctx, client, prefix, SnapshotReportsFile, false, &snapshot.Reports)
	})
	g.Go(func() error {
		return loadSnapshotFile(gctx, client, prefix, SnapshotRelationshipsFile, false, &snapshot.Relationships)
	})
	if err := g.Wait(); err != nil {
		return pipeline.GraphSnapshot{}, err
	}

	return snapshot, nil
}

func loadSnapshotFile[T any](
	ctx context.Context,
	client *s3.Client,
	prefix, name string,
	required bool,
	target *[]T,
) error {
	key := fmt.Sprintf("%s/%s", prefix, name)
	content, err := GetFile(ctx, client, key)
	if err != nil {
		if required {
			return err
		}
		return nil
	}
	if err := json.Unmarshal(content, target); err != nil {
		return fmt.Errorf("failed to decode snapshot file %s: %w", key, err)
	}
	return nil
}
