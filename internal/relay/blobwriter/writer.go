package blobwriter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/camdencbrown/relay/internal/relay/connectors"
)

// Writer renders a fetched Table (or a stream
// of Table chunks) into the configured format/compression and persists the
// result through a Backend, either as one whole object or as numbered
// chunk files with optional parallelism.
type Writer struct {
	backend Backend
}

// NewWriter wraps a storage backend (object store or local filesystem).
func NewWriter(backend Backend) *Writer {
	return &Writer{backend: backend}
}

func timestampKey() string {
	return time.Now().UTC().Format("20060102T150405.000000000Z")
}

// WriteWhole writes a single fetched table as one file named by an
// ISO-timestamp, with an extension appropriate to format/compression.
func (w *Writer) WriteWhole(ctx context.Context, bucket string, table connectors.Table, opts Options) (WriteResult, error) {
	content, ext, err := encode(table, opts.Format, opts.Compression)
	if err != nil {
		return WriteResult{}, err
	}
	key := fmt.Sprintf("%s.%s", timestampKey(), ext)
	uri, err := w.backend.Put(ctx, bucket, key, content)
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{
		TotalRows:    len(table.Rows),
		TotalChunks:  1,
		FilesWritten: []string{uri},
		PrimaryFile:  uri,
	}, nil
}

// WriteChunked consumes a stream of table chunks. Each chunk becomes its
// own numbered file (TIMESTAMP_chunk_NNNNNN.EXT) unless opts.CombineChunks
// is set, in which case all chunks are concatenated into one table and
// written as a single whole-object file instead. If opts.Parallel is set,
// the stream is drained first and handed to WriteParallel.
func (w *Writer) WriteChunked(ctx context.Context, bucket string, stream func(yield connectors.Yield) error, opts Options) (WriteResult, error) {
	var chunks []connectors.Table
	if err := stream(func(t connectors.Table) error {
		chunks = append(chunks, t)
		return nil
	}); err != nil {
		return WriteResult{}, err
	}

	if opts.Parallel {
		return w.WriteParallel(ctx, bucket, chunks, opts)
	}
	return w.writeChunksSequential(ctx, bucket, chunks, opts)
}

func (w *Writer) writeChunksSequential(ctx context.Context, bucket string, chunks []connectors.Table, opts Options) (WriteResult, error) {
	if opts.CombineChunks {
		return w.writeCombined(ctx, bucket, chunks, opts)
	}

	ts := timestampKey()
	files := make([]string, 0, len(chunks))
	var totalRows int
	for i, t := range chunks {
		content, ext, err := encode(t, opts.Format, opts.Compression)
		if err != nil {
			return WriteResult{}, err
		}
		key := fmt.Sprintf("%s_chunk_%06d.%s", ts, i, ext)
		uri, err := w.backend.Put(ctx, bucket, key, content)
		if err != nil {
			return WriteResult{}, err
		}
		files = append(files, uri)
		totalRows += len(t.Rows)
	}

	result := WriteResult{TotalRows: totalRows, TotalChunks: len(files), FilesWritten: files}
	if len(files) > 0 {
		result.PrimaryFile = files[0]
	}
	return result, nil
}

// workerCount auto-scales the worker pool by chunk count: <=10 chunks use
// 2 workers, <=100 use 5, <=1000 use 10, otherwise 20.
func workerCount(chunks int) int {
	switch {
	case chunks <= 10:
		return 2
	case chunks <= 100:
		return 5
	case chunks <= 1000:
		return 10
	default:
		return 20
	}
}

// WriteParallel writes every chunk concurrently through a bounded worker
// pool. File write order is not guaranteed, but the returned FilesWritten
// list is always ordered by chunk index so it is deterministic per run.
// Any single chunk failure aborts the run.
func (w *Writer) WriteParallel(ctx context.Context, bucket string, chunks []connectors.Table, opts Options) (WriteResult, error) {
	if len(chunks) == 0 {
		return WriteResult{TotalChunks: 0}, nil
	}
	if opts.CombineChunks {
		return w.writeCombined(ctx, bucket, chunks, opts)
	}

	ts := timestampKey()
	workers := workerCount(len(chunks))
	if workers > len(chunks) {
		workers = len(chunks)
	}

	type outcome struct {
		index int
		uri   string
		rows  int
		err   error
	}

	jobs := make(chan connectors.Chunk)
	results := make(chan outcome, len(chunks))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				content, ext, err := encode(job.Table, opts.Format, opts.Compression)
				if err != nil {
					results <- outcome{index: job.Index, err: err}
					continue
				}
				key := fmt.Sprintf("%s_chunk_%06d.%s", ts, job.Index, ext)
				uri, err := w.backend.Put(ctx, bucket, key, content)
				results <- outcome{index: job.Index, uri: uri, rows: len(job.Table.Rows), err: err}
			}
		}()
	}

	go func() {
		for i, t := range chunks {
			jobs <- connectors.Chunk{Index: i, Table: t}
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	files := make([]string, len(chunks))
	var totalRows int
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		files[res.index] = res.uri
		totalRows += res.rows
	}
	if firstErr != nil {
		return WriteResult{}, firstErr
	}

	return WriteResult{
		TotalRows:    totalRows,
		TotalChunks:  len(chunks),
		FilesWritten: files,
		PrimaryFile:  files[0],
		WorkersUsed:  workers,
	}, nil
}

// writeCombined concatenates every chunk's rows (column order taken from
// the first non-empty chunk) and writes the result as one whole-object
// file, per options.combine_chunks.
func (w *Writer) writeCombined(ctx context.Context, bucket string, chunks []connectors.Table, opts Options) (WriteResult, error) {
	var columns []string
	var rows []map[string]interface{}
	for _, t := range chunks {
		if columns == nil && len(t.Columns) > 0 {
			columns = t.Columns
		}
		rows = append(rows, t.Rows...)
	}
	merged := connectors.Table{Columns: columns, Rows: rows}
	result, err := w.WriteWhole(ctx, bucket, merged, opts)
	if err != nil {
		return WriteResult{}, err
	}
	result.TotalChunks = len(chunks)
	return result, nil
}
