// Package connectors implements Relay's source registry: typed fetch
// handlers (whole-table and streaming) for every supported source kind,
// connection-name resolution, and connection liveness probes.
package connectors

import (
	"context"

	"github.com/camdencbrown/relay/internal/relay/store"
)

// Table is a fetched result: an ordered column list plus row data keyed by
// column name. Column order is preserved for downstream profiling.
type Table struct {
	Columns []string
	Rows    []map[string]interface{}
}

// FetchFunc performs a whole-table fetch for a resolved source config.
type FetchFunc func(ctx context.Context, source store.SourceConfig) (Table, error)

// Yield receives one chunk of up to chunkSize rows during a streaming fetch.
// Returning an error aborts the stream.
type Yield func(Table) error

// StreamFunc performs a chunked fetch, invoking yield once per chunk.
type StreamFunc func(ctx context.Context, source store.SourceConfig, chunkSize int, yield Yield) error

// ConnectionStore is the subset of store.Store the registry needs to resolve
// named connections.
type ConnectionStore interface {
	GetConnectionByName(ctx context.Context, name string) (*store.Connection, error)
}

// CredentialDecrypter decrypts a connection's encrypted credential blob into
// a flat string map, mirroring infrastructure/crypto.Cipher.DecryptDict.
type CredentialDecrypter interface {
	DecryptDict(ciphertext []byte) (map[string]string, error)
}
