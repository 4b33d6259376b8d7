package httpapi

import (
	"net/http"
	"strconv"

	"github.com/camdencbrown/relay/internal/relay/service"
)

func (h *handler) metadata(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.Metadata(r.Context(), role, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) pendingReview(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.PendingReview(r.Context(), role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) approveReview(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.ApproveReviewRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, badRequest(err))
		return
	}
	resp, err := h.svc.ApproveReview(r.Context(), role, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) searchDatasets(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query().Get("q")
	topK := 10
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			topK = n
		}
	}
	resp, err := h.svc.SearchDatasets(r.Context(), role, q, topK)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) joinSuggestions(w http.ResponseWriter, r *http.Request) {
	role, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.JoinSuggestions(r.Context(), role, r.URL.Query().Get("dataset1"), r.URL.Query().Get("dataset2"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
