// Package errors provides the stable error taxonomy used across Relay's
// components and the HTTP transport that surfaces them.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of Relay's stable error categories.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindConflict               Kind = "conflict"
	KindValidation             Kind = "validation"
	KindConnectionTypeMismatch Kind = "connection_type_mismatch"
	KindNoData                 Kind = "no_data"
	KindQueryFailed            Kind = "query_failed"
	KindUnknownMetric          Kind = "unknown_metric"
	KindUnknownDimension       Kind = "unknown_dimension"
	KindCircularMetric         Kind = "circular_metric"
	KindDisconnectedOntology   Kind = "disconnected_ontology"
	KindInvalidTransition      Kind = "invalid_transition"
	KindEncryptionError        Kind = "encryption_error"
	KindUnauthorized           Kind = "unauthorized"
	KindForbidden              Kind = "forbidden"
	KindInternal               Kind = "internal"
	KindEmptyQuery             Kind = "empty_query"
	KindNLUnavailable          Kind = "nl_unavailable"
)

// RelayError is a structured error carrying a stable Kind, a human message,
// the HTTP status it maps to, and optional machine-readable details.
type RelayError struct {
	Kind       Kind                   `json:"kind"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value pair to the error and returns it for chaining.
func (e *RelayError) WithDetails(key string, value interface{}) *RelayError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func New(kind Kind, message string, httpStatus int) *RelayError {
	return &RelayError{Kind: kind, Message: message, HTTPStatus: httpStatus}
}

func Wrap(kind Kind, message string, httpStatus int, err error) *RelayError {
	return &RelayError{Kind: kind, Message: message, HTTPStatus: httpStatus, Err: err}
}

// NotFound reports a missing pipeline/run/entity/proposal/connection id.
func NotFound(resource, id string) *RelayError {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

// Conflict reports a duplicate name or a connection still in use.
func Conflict(message string) *RelayError {
	return New(KindConflict, message, http.StatusConflict)
}

// Validation reports a malformed request.
func Validation(field, reason string) *RelayError {
	return New(KindValidation, reason, http.StatusBadRequest).WithDetails("field", field)
}

// ConnectionTypeMismatch reports a source referencing a connection of another type.
func ConnectionTypeMismatch(sourceType, connectionType string) *RelayError {
	return New(KindConnectionTypeMismatch, "connection type does not match source type", http.StatusBadRequest).
		WithDetails("source_type", sourceType).
		WithDetails("connection_type", connectionType)
}

// NoData reports a query over a pipeline with no successful run.
func NoData(pipelineID string) *RelayError {
	return New(KindNoData, "pipeline has no successful run", http.StatusUnprocessableEntity).
		WithDetails("pipeline_id", pipelineID)
}

// QueryFailed wraps a SQL engine refusal.
func QueryFailed(err error) *RelayError {
	return Wrap(KindQueryFailed, "query execution failed", http.StatusUnprocessableEntity, err)
}

// UnknownMetric reports a metric reference not present in the ontology.
func UnknownMetric(name string) *RelayError {
	return New(KindUnknownMetric, "unknown metric", http.StatusUnprocessableEntity).WithDetails("name", name)
}

// UnknownDimension reports a dimension reference not present in the ontology.
func UnknownDimension(name string) *RelayError {
	return New(KindUnknownDimension, "unknown dimension", http.StatusUnprocessableEntity).WithDetails("name", name)
}

// CircularMetric reports a ${...} expansion cycle.
func CircularMetric(cycle []string) *RelayError {
	return New(KindCircularMetric, "circular metric reference", http.StatusUnprocessableEntity).
		WithDetails("cycle", cycle)
}

// DisconnectedOntology reports a semantic query touching an unreachable entity.
func DisconnectedOntology(entity string) *RelayError {
	return New(KindDisconnectedOntology, "entity has no joining path", http.StatusUnprocessableEntity).
		WithDetails("entity", entity)
}

// InvalidTransition reports an illegal proposal or run status transition.
func InvalidTransition(resource, from, to string) *RelayError {
	return New(KindInvalidTransition, fmt.Sprintf("cannot transition %s from %s to %s", resource, from, to), http.StatusConflict).
		WithDetails("resource", resource).
		WithDetails("from", from).
		WithDetails("to", to)
}

// EncryptionError reports a missing/invalid key or corrupted ciphertext.
func EncryptionError(err error) *RelayError {
	return Wrap(KindEncryptionError, "encryption operation failed", http.StatusInternalServerError, err)
}

// Unauthorized reports a missing or invalid auth header.
func Unauthorized(message string) *RelayError {
	return New(KindUnauthorized, message, http.StatusUnauthorized)
}

// Forbidden reports an inactive key or an insufficient role.
func Forbidden(message string) *RelayError {
	return New(KindForbidden, message, http.StatusForbidden)
}

// Internal wraps an unexpected error.
func Internal(message string, err error) *RelayError {
	return Wrap(KindInternal, message, http.StatusInternalServerError, err)
}

// EmptyQuery reports a semantic query with no metrics and no dimensions.
func EmptyQuery() *RelayError {
	return New(KindEmptyQuery, "query must request at least one metric or dimension", http.StatusBadRequest)
}

// NLUnavailable reports a natural-language semantic query with no LLM configured.
func NLUnavailable() *RelayError {
	return New(KindNLUnavailable, "natural language queries require a configured LLM key", http.StatusUnprocessableEntity)
}

// IsRelayError reports whether err (or something it wraps) is a *RelayError.
func IsRelayError(err error) bool {
	var relayErr *RelayError
	return errors.As(err, &relayErr)
}

// GetRelayError extracts a *RelayError from an error chain, if present.
func GetRelayError(err error) *RelayError {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code that should be used for err.
func GetHTTPStatus(err error) int {
	if relayErr := GetRelayError(err); relayErr != nil {
		return relayErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
