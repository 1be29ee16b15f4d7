// Package pgx implements the store.PipelineStorage interface on PostgreSQL.
package pgx

import (
	"context"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// PipelineDBStorage implements store.PipelineStorage using PostgreSQL. Bulk
// writes run chunked inside transactions so a failed stage never leaves a
// half-written run behind.
type PipelineDBStorage struct {
	conn pgxIConn
}

// NewPipelineDBStorageWithConnection creates a PipelineDBStorage using an
// existing database connection or pool.
func NewPipelineDBStorageWithConnection(conn pgxIConn) *PipelineDBStorage {
	return &PipelineDBStorage{conn: conn}
}

const bulkChunkSize = 1000
