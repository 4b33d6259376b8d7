// Package service is Relay's composition root: the layer
// that validates typed requests, enforces role gating, dispatches to every
// other component, and emits platform events for every write/run/query.
package service

import (
	"context"
	"time"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/infrastructure/logging"
	"github.com/camdencbrown/relay/internal/relay/blobwriter"
	"github.com/camdencbrown/relay/internal/relay/connectors"
	"github.com/camdencbrown/relay/internal/relay/metadata"
	"github.com/camdencbrown/relay/internal/relay/ontology"
	"github.com/camdencbrown/relay/internal/relay/pipeline"
	"github.com/camdencbrown/relay/internal/relay/query"
	"github.com/camdencbrown/relay/internal/relay/scheduler"
	"github.com/camdencbrown/relay/internal/relay/semantic"
	"github.com/camdencbrown/relay/internal/relay/store"
)

// Cipher is the subset of infrastructure/crypto.Cipher the service needs to
// encrypt connection credentials at rest.
type Cipher interface {
	EncryptDict(creds map[string]string) ([]byte, error)
	DecryptDict(ciphertext []byte) (map[string]string, error)
}

// Service validates requests, enforces roles, and dispatches to every engine.
type Service struct {
	Store       store.Store
	Registry    *connectors.Registry
	Writer      *blobwriter.Writer
	Pipelines   *pipeline.Engine
	MetadataGen *metadata.Generator
	QueryEngine *query.Engine
	Ontology    *ontology.Manager
	Semantic    *semantic.Engine
	Scheduler   *scheduler.Scheduler
	Cipher      Cipher
	Logger      *logging.Logger
	RequireAuth bool
	Version     string
}

// Option configures a Service at construction.
type Option func(*Service)

// New builds a Service from its component dependencies.
func New(st store.Store, registry *connectors.Registry, writer *blobwriter.Writer, pipelines *pipeline.Engine, metadataGen *metadata.Generator, queryEngine *query.Engine, ontologyMgr *ontology.Manager, semanticEngine *semantic.Engine, sched *scheduler.Scheduler, cipher Cipher, logger *logging.Logger, opts ...Option) *Service {
	svc := &Service{
		Store:       st,
		Registry:    registry,
		Writer:      writer,
		Pipelines:   pipelines,
		MetadataGen: metadataGen,
		QueryEngine: queryEngine,
		Ontology:    ontologyMgr,
		Semantic:    semanticEngine,
		Scheduler:   sched,
		Cipher:      cipher,
		Logger:      logger,
		Version:     "1.0.0",
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithRequireAuth toggles whether role gating rejects unauthenticated callers.
func WithRequireAuth(require bool) Option {
	return func(s *Service) { s.RequireAuth = require }
}

// WithVersion overrides the version reported by the capabilities endpoint.
func WithVersion(version string) Option {
	return func(s *Service) {
		if version != "" {
			s.Version = version
		}
	}
}

// RequireRole enforces reader < writer < admin. When auth is not required,
// every caller is treated as admin.
func (s *Service) RequireRole(callerRole store.Role, required store.Role) error {
	if !s.RequireAuth {
		return nil
	}
	if !callerRole.Admits(required) {
		return relayerrors.Forbidden("Insufficient permissions")
	}
	return nil
}

// envelope is the agent-native discoverability contract: every successful
// response carries a status and a next_steps list of suggested follow-ups.
func envelope(data map[string]interface{}, nextSteps ...string) map[string]interface{} {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["status"] = "ok"
	data["next_steps"] = nextSteps
	return data
}

// emitEvent appends a platform event. Failures are logged, never returned,
// since an analytics write should never fail the caller's actual operation.
func (s *Service) emitEvent(ctx context.Context, eventType string, references map[string]string, details map[string]interface{}) {
	_, err := s.Store.SaveEvent(ctx, store.PlatformEvent{
		EventType:  eventType,
		References: references,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil && s.Logger != nil {
		s.Logger.Error(ctx, "service: failed to record platform event", err, map[string]interface{}{"event_type": eventType})
	}
}
