package httpapi

import (
	"net/http"

	"github.com/camdencbrown/relay/internal/relay/service"
)

func (h *handler) createConnection(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.CreateConnectionRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.CreateConnection(r.Context(), role, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listConnections(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.ListConnections(r.Context(), role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getConnection(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.GetConnection(r.Context(), role, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) updateConnection(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.UpdateConnectionRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.UpdateConnection(r.Context(), role, r.PathValue("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) deleteConnection(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.DeleteConnection(r.Context(), role, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) testConnection(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.TestConnectionLiveness(r.Context(), role, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
