package connectors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/infrastructure/resilience"
	"github.com/camdencbrown/relay/internal/relay/store"
)

// Registry maps source_type to fetch/stream handlers, resolving named
// connections before dispatch. Each distinct source gets its own circuit
// breaker so a repeatedly failing upstream is cut off for a cooldown window
// instead of being hammered by every scheduled run.
type Registry struct {
	handlers          map[string]FetchFunc
	streamingHandlers map[string]StreamFunc
	connections       ConnectionStore
	cipher            CredentialDecrypter

	breakerMu sync.Mutex
	breakers  map[string]*resilience.CircuitBreaker
}

// NewRegistry builds a registry pre-populated with every built-in connector.
func NewRegistry(connections ConnectionStore, cipher CredentialDecrypter) *Registry {
	r := &Registry{
		handlers:          make(map[string]FetchFunc),
		streamingHandlers: make(map[string]StreamFunc),
		connections:       connections,
		cipher:            cipher,
		breakers:          make(map[string]*resilience.CircuitBreaker),
	}
	r.registerBuiltins()
	return r
}

// breakerFor returns the circuit breaker guarding one concrete source,
// keyed by type plus URL/table/connection so one flaky upstream never
// blocks fetches from a healthy one of the same type.
func (r *Registry) breakerFor(source store.SourceConfig) *resilience.CircuitBreaker {
	key := fmt.Sprintf("%s|%s|%s|%s", source.Type, source.URL, source.Table, source.Connection)
	r.breakerMu.Lock()
	defer r.breakerMu.Unlock()
	cb, ok := r.breakers[key]
	if !ok {
		cb = resilience.New(resilience.DefaultConfig())
		r.breakers[key] = cb
	}
	return cb
}

func (r *Registry) register(sourceType string, fetch FetchFunc, stream StreamFunc) {
	if fetch != nil {
		r.handlers[sourceType] = fetch
	}
	if stream != nil {
		r.streamingHandlers[sourceType] = stream
	}
}

func (r *Registry) registerBuiltins() {
	r.register("csv_url", fetchCSV, streamCSV)
	r.register("json_url", fetchJSON, nil)
	r.register("rest_api", fetchRESTAPI, nil)
	r.register("mysql", fetchMySQL, streamMySQL)
	r.register("postgres", fetchPostgresSource, streamPostgresSource)
	r.register("salesforce", fetchSalesforce, streamSalesforce)
	r.register("synthetic", fetchSynthetic, streamSynthetic)
}

// SupportedTypes returns every registered source type, sorted.
func (r *Registry) SupportedTypes() []string {
	seen := make(map[string]struct{})
	for t := range r.handlers {
		seen[t] = struct{}{}
	}
	for t := range r.streamingHandlers {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// resolveConnection merges a named connection's decrypted credentials into
// the source, with source fields taking precedence. Mismatched types fail
// with ConnectionTypeMismatch.
func (r *Registry) resolveConnection(ctx context.Context, source store.SourceConfig) (store.SourceConfig, error) {
	if source.Connection == "" {
		return source, nil
	}

	conn, err := r.connections.GetConnectionByName(ctx, source.Connection)
	if err != nil {
		return source, err
	}
	if conn == nil {
		return source, relayerrors.NotFound("connection", source.Connection)
	}
	if conn.Type != source.Type {
		return source, relayerrors.ConnectionTypeMismatch(source.Type, conn.Type)
	}

	creds, err := r.cipher.DecryptDict(conn.CredentialsEncrypted)
	if err != nil {
		return source, relayerrors.EncryptionError(err)
	}

	merged := source
	merged.Connection = ""
	if merged.Credentials == nil {
		merged.Credentials = make(map[string]string, len(creds))
	}
	for key, value := range creds {
		if _, exists := merged.Credentials[key]; !exists {
			merged.Credentials[key] = value
		}
	}
	return merged, nil
}

// FetchSource performs a whole-table fetch for any registered source type.
// The fetch runs inside the source's circuit breaker: after enough
// consecutive failures the breaker opens and fetches fail fast with
// resilience.ErrCircuitOpen until the cooldown elapses.
func (r *Registry) FetchSource(ctx context.Context, source store.SourceConfig) (Table, error) {
	resolved, err := r.resolveConnection(ctx, source)
	if err != nil {
		return Table{}, err
	}
	handler, ok := r.handlers[resolved.Type]
	if !ok {
		return Table{}, relayerrors.Validation("source.type", fmt.Sprintf("unsupported source type: %s", resolved.Type))
	}

	var table Table
	err = r.breakerFor(source).Execute(ctx, func() error {
		var fetchErr error
		table, fetchErr = handler(ctx, resolved)
		return fetchErr
	})
	if err != nil {
		return Table{}, err
	}
	return table, nil
}

// FetchSourceStreaming performs a chunked fetch for any registered source
// type, falling back to a single whole-table chunk when no streaming
// handler is registered for the type. The stream runs inside the source's
// circuit breaker; an abort raised by the consumer's own yield is reported
// back to the caller but not counted as a source failure.
func (r *Registry) FetchSourceStreaming(ctx context.Context, source store.SourceConfig, chunkSize int, yield Yield) error {
	resolved, err := r.resolveConnection(ctx, source)
	if err != nil {
		return err
	}
	handler, ok := r.streamingHandlers[resolved.Type]
	if !ok {
		table, err := r.FetchSource(ctx, source)
		if err != nil {
			return err
		}
		return yield(table)
	}

	var consumerErr error
	wrappedYield := func(t Table) error {
		if err := yield(t); err != nil {
			consumerErr = err
			return err
		}
		return nil
	}

	err = r.breakerFor(source).Execute(ctx, func() error {
		streamErr := handler(ctx, resolved, chunkSize, wrappedYield)
		if streamErr != nil && consumerErr != nil && errors.Is(streamErr, consumerErr) {
			return nil
		}
		return streamErr
	})
	if err != nil {
		return err
	}
	return consumerErr
}
