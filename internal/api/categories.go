package api

import (
	"net/http"

	"github.com/safar/go-stock-ledger/internal/catalog"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	categories, err := s.catalog.List(r.Context(), activeOnly)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, categories)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid category ID")
		return
	}

	category, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, category)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in catalog.CategoryInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	category, err := s.catalog.Create(r.Context(), in, actorFrom(r.Context()))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, category)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid category ID")
		return
	}

	var in catalog.CategoryInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	category, err := s.catalog.Update(r.Context(), id, in, actorFrom(r.Context()))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, category)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid category ID")
		return
	}

	if err := s.catalog.Delete(r.Context(), id, actorFrom(r.Context())); err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
