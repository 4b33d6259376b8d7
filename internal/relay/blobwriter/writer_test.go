package blobwriter

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/camdencbrown/relay/internal/relay/connectors"
)

func sampleTable(rows int) connectors.Table {
	t := connectors.Table{Columns: []string{"id", "name"}}
	for i := 0; i < rows; i++ {
		t.Rows = append(t.Rows, map[string]interface{}{"id": i, "name": fmt.Sprintf("row-%d", i)})
	}
	return t
}

func TestWriteWholeCSVToLocalBackend(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(NewLocalBackend(dir))

	result, err := w.WriteWhole(context.Background(), "demo", sampleTable(3), Options{Format: "csv"})
	require.NoError(t, err)
	require.Equal(t, 3, result.TotalRows)
	require.Equal(t, 1, result.TotalChunks)
	require.Len(t, result.FilesWritten, 1)
	require.Equal(t, result.FilesWritten[0], result.PrimaryFile)
	require.True(t, strings.HasSuffix(result.PrimaryFile, ".csv"))

	f, err := os.Open(result.PrimaryFile)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4) // header + 3 rows
	require.Equal(t, []string{"id", "name"}, records[0])
}

func TestWriteWholeGzipJSON(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(NewLocalBackend(dir))

	result, err := w.WriteWhole(context.Background(), "demo", sampleTable(2), Options{Format: "json", Compression: "gzip"})
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(result.PrimaryFile, ".json.gz"))

	raw, err := os.ReadFile(result.PrimaryFile)
	require.NoError(t, err)
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	decoded, err := io.ReadAll(gz)
	require.NoError(t, err)
	require.Contains(t, string(decoded), "row-0")
}

func TestWriteWholeParquet(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(NewLocalBackend(dir))

	result, err := w.WriteWhole(context.Background(), "demo", sampleTable(5), Options{Format: "parquet", Compression: "snappy"})
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(result.PrimaryFile, ".parquet"))

	raw, err := os.ReadFile(result.PrimaryFile)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(raw, []byte("PAR1")))
	require.True(t, bytes.HasSuffix(raw, []byte("PAR1")))
}

func TestUnsupportedFormatRejected(t *testing.T) {
	w := NewWriter(NewLocalBackend(t.TempDir()))
	_, err := w.WriteWhole(context.Background(), "demo", sampleTable(1), Options{Format: "xml"})
	require.Error(t, err)
}

func chunkStream(chunks []connectors.Table) func(yield connectors.Yield) error {
	return func(yield connectors.Yield) error {
		for _, c := range chunks {
			if err := yield(c); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestWriteChunkedNumbersFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(NewLocalBackend(dir))

	chunks := []connectors.Table{sampleTable(2), sampleTable(3), sampleTable(1)}
	result, err := w.WriteChunked(context.Background(), "demo", chunkStream(chunks), Options{Format: "csv"})
	require.NoError(t, err)
	require.Equal(t, 6, result.TotalRows)
	require.Equal(t, 3, result.TotalChunks)
	require.Len(t, result.FilesWritten, 3)
	for i, uri := range result.FilesWritten {
		require.Contains(t, uri, fmt.Sprintf("_chunk_%06d.csv", i))
	}
	require.Equal(t, result.FilesWritten[0], result.PrimaryFile)
}

func TestWriteChunkedCombines(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(NewLocalBackend(dir))

	chunks := []connectors.Table{sampleTable(2), sampleTable(3)}
	result, err := w.WriteChunked(context.Background(), "demo", chunkStream(chunks), Options{Format: "csv", CombineChunks: true})
	require.NoError(t, err)
	require.Equal(t, 5, result.TotalRows)
	require.Equal(t, 2, result.TotalChunks)
	require.Len(t, result.FilesWritten, 1)
}

func TestWriteParallelDeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(NewLocalBackend(dir))

	chunks := make([]connectors.Table, 25)
	for i := range chunks {
		chunks[i] = sampleTable(4)
	}
	result, err := w.WriteParallel(context.Background(), "demo", chunks, Options{Format: "csv"})
	require.NoError(t, err)
	require.Equal(t, 100, result.TotalRows)
	require.Equal(t, 25, result.TotalChunks)
	require.Equal(t, 5, result.WorkersUsed)
	for i, uri := range result.FilesWritten {
		require.Contains(t, uri, fmt.Sprintf("_chunk_%06d.csv", i))
	}
	require.Equal(t, result.FilesWritten[0], result.PrimaryFile)
}

// failingBackend fails a specific key to simulate one bad chunk.
type failingBackend struct {
	mu       sync.Mutex
	failures int
	inner    Backend
}

func (b *failingBackend) Put(ctx context.Context, bucket, key string, content []byte) (string, error) {
	b.mu.Lock()
	fail := strings.Contains(key, "_chunk_000003.")
	if fail {
		b.failures++
	}
	b.mu.Unlock()
	if fail {
		return "", errors.New("disk full")
	}
	return b.inner.Put(ctx, bucket, key, content)
}

func TestWriteParallelSingleChunkFailureAborts(t *testing.T) {
	w := NewWriter(&failingBackend{inner: NewLocalBackend(t.TempDir())})

	chunks := make([]connectors.Table, 8)
	for i := range chunks {
		chunks[i] = sampleTable(2)
	}
	_, err := w.WriteParallel(context.Background(), "demo", chunks, Options{Format: "csv"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
}

func TestWorkerCountScaling(t *testing.T) {
	require.Equal(t, 2, workerCount(1))
	require.Equal(t, 2, workerCount(10))
	require.Equal(t, 5, workerCount(11))
	require.Equal(t, 5, workerCount(100))
	require.Equal(t, 10, workerCount(101))
	require.Equal(t, 10, workerCount(1000))
	require.Equal(t, 20, workerCount(1001))
}
