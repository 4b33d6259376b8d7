// Package blobwriter writes a tabular
// result or a chunk stream to object storage or the local filesystem, in
// parquet, csv, or json format, sequentially or with a parallel worker pool.
package blobwriter

import (
	"context"

	"github.com/camdencbrown/relay/internal/relay/connectors"
)

// WriteResult is returned by every write mode.
type WriteResult struct {
	TotalRows    int      `json:"total_rows"`
	TotalChunks  int      `json:"total_chunks"`
	FilesWritten []string `json:"files_written"`
	PrimaryFile  string   `json:"primary_file"`
	WorkersUsed  int      `json:"workers_used,omitempty"`
}

// Options controls format, compression, and parallelism for a write.
type Options struct {
	Format        string // parquet | csv | json
	Compression   string // gzip | snappy | none
	CombineChunks bool
	Parallel      bool
}

// Backend persists a single encoded blob under bucket/key and returns its
// URI ("object://bucket/key" or an absolute local path).
type Backend interface {
	Put(ctx context.Context, bucket, key string, content []byte) (string, error)
}

// Chunk pairs a table with its sequence index, used to keep file naming
// deterministic under parallel writes.
type Chunk struct {
	Index int
	Table connectors.Table
}
