package httpapi

import (
	"net/http"

	"github.com/camdencbrown/relay/internal/relay/service"
)

func (h *handler) ontologySnapshot(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.OntologySnapshot(r.Context(), role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) propose(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.ProposeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.Propose(r.Context(), role, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listProposals(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.ListProposals(r.Context(), role, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) reviewProposal(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.ReviewProposalRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.ReviewProposal(r.Context(), role, r.PathValue("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) lineage(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.Lineage(r.Context(), role, r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) createEntity(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.CreateEntityRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.CreateEntity(r.Context(), role, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listEntities(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.ListEntities(r.Context(), role, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) deleteEntity(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.DeleteEntity(r.Context(), role, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) createRelationship(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.CreateRelationshipRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.CreateRelationship(r.Context(), role, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listRelationships(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.ListRelationships(r.Context(), role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) deleteRelationship(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.DeleteRelationship(r.Context(), role, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) createMetric(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.CreateMetricRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.CreateMetric(r.Context(), role, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listMetrics(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.ListMetrics(r.Context(), role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) deleteMetric(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.DeleteMetric(r.Context(), role, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) createDimension(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.CreateDimensionRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.CreateDimension(r.Context(), role, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listDimensions(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.ListDimensions(r.Context(), role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) deleteDimension(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.DeleteDimension(r.Context(), role, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
