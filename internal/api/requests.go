package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cascade-labs/cascade/internal/core"
)

// requestSummary is the list-view projection of one request.
type requestSummary struct {
	ID      string      `json:"id"`
	Content string      `json:"content"`
	Status  core.Status `json:"status"`
	Tasks   int         `json:"tasks"`
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.ListRequests(r.Context())
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	summaries := make([]requestSummary, 0, len(ids))
	for _, id := range ids {
		node, err := s.store.Request(r.Context(), id)
		if err != nil {
			respondError(w, s.logger, err)
			return
		}
		if node == nil {
			continue
		}
		summaries = append(summaries, requestSummary{
			ID:      id,
			Content: node.Content,
			Status:  node.Status,
			Tasks:   len(node.Tasks),
		})
	}
	respondJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestID")
	node, err := s.store.Request(r.Context(), id)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	if node == nil {
		respondError(w, s.logger, core.ErrNotFound("request", id))
		return
	}
	respondJSON(w, http.StatusOK, node)
}

func (s *Server) handleListErrors(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.Errors(r.Context())
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	if recs == nil {
		recs = []core.ErrorRecord{}
	}
	respondJSON(w, http.StatusOK, recs)
}
