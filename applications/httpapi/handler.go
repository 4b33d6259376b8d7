// Package httpapi implements Relay's HTTP transport: resource-oriented REST
// handlers under /api/v1 that decode requests, enforce bearer-token
// authentication, dispatch to the service layer, and translate RelayError
// kinds to HTTP status codes.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/infrastructure/logging"
	"github.com/camdencbrown/relay/internal/relay/service"
	"github.com/camdencbrown/relay/internal/relay/store"
)

// handler holds the service layer and auth configuration shared by every
// route's handler function.
type handler struct {
	svc         *service.Service
	logger      *logging.Logger
	requireAuth bool
}

func newHandler(svc *service.Service, logger *logging.Logger, requireAuth bool) *handler {
	return &handler{svc: svc, logger: logger, requireAuth: requireAuth}
}

// decodeJSON parses a JSON request body, rejecting unknown fields so typos
// in a caller's request surface immediately instead of being silently
// dropped.
func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeJSON writes a JSON-encoded success body with the given status.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError translates err to its HTTP status and writes a uniform
// {"status": "error", "error": "..."} body.
func writeError(w http.ResponseWriter, err error) {
	status := relayerrors.GetHTTPStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "error",
		"error":  err.Error(),
	})
}

// badRequest wraps a JSON-decode failure as a validation error so it maps
// to 400 rather than the 500 a raw decode error would otherwise produce.
func badRequest(err error) error {
	return relayerrors.Validation("body", err.Error())
}

const authHeader = "X-Relay-Api-Key"

// authenticate resolves the caller's role from the request's bearer secret.
// When auth is not required, every request is treated as admin. When it is
// required, a missing header is Unauthorized and an unknown/inactive key or
// malformed comparison is Forbidden.
func (h *handler) authenticate(r *http.Request) (store.Role, error) {
	if !h.requireAuth {
		return store.RoleAdmin, nil
	}
	raw := r.Header.Get(authHeader)
	if raw == "" {
		return "", relayerrors.Unauthorized("missing " + authHeader + " header")
	}
	role, ok, err := h.svc.AuthenticateAPIKey(r.Context(), raw)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", relayerrors.Forbidden("invalid or inactive API key")
	}
	return role, nil
}
