package httpapi

import (
	"net/http"

	"github.com/camdencbrown/relay/internal/relay/service"
)

func (h *handler) createPipeline(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.CreatePipelineRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.CreatePipeline(r.Context(), role, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) createTransformation(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.CreateTransformationRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.CreateTransformationPipeline(r.Context(), role, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listPipelines(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.ListPipelines(r.Context(), role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getPipeline(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.GetPipeline(r.Context(), role, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) deletePipeline(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.DeletePipeline(r.Context(), role, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) runPipeline(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.RunPipeline(r.Context(), role, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.GetRun(r.Context(), role, r.PathValue("id"), r.PathValue("run_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) testSource(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.TestSourceRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.TestSource(r.Context(), role, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
