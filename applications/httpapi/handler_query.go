package httpapi

import (
	"net/http"

	"github.com/camdencbrown/relay/internal/relay/service"
)

func (h *handler) query(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.QueryRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.Query(r.Context(), role, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) schema(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.SchemaRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.Schema(r.Context(), role, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) export(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.ExportRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	body, contentType, extension, err := h.svc.Export(r.Context(), role, req)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\"export."+extension+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *handler) ontologyQuery(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.OntologyQueryRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.OntologyQuery(r.Context(), role, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
