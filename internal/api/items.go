package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/safar/go-stock-ledger/internal/store"
)

const itemsPageSize = 10

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.StockFilter{
		Search:     q.Get("q"),
		Sort:       q.Get("sort"),
		ActiveOnly: q.Get("active") == "true",
	}
	if raw := q.Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid category ID")
			return
		}
		filter.CategoryID = &id
	}

	page, pageSize := pageParams(r, itemsPageSize, 100)

	result, err := s.ledger.List(r.Context(), filter, page, pageSize)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	fields := models.StockItemFields{IsActive: true}
	if err := decodeJSON(r, &fields); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item, err := s.ledger.Create(r.Context(), fields, actorFrom(r.Context()))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	setETag(w, item.Version)
	respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid item ID")
		return
	}

	item, err := s.ledger.Find(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	setETag(w, item.Version)
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleAdjustItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid item ID")
		return
	}

	expected, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid If-Match header")
		return
	}

	fields := models.StockItemFields{IsActive: true}
	if err := decodeJSON(r, &fields); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item, err := s.ledger.Adjust(r.Context(), id, fields, expected, actorFrom(r.Context()))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	setETag(w, item.Version)
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid item ID")
		return
	}

	if err := s.ledger.Delete(r.Context(), id, actorFrom(r.Context())); err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type buyForm struct {
	Item      *models.StockItem `json:"item"`
	Available int               `json:"available"`
	Quantity  int               `json:"quantity"`
}

func (s *Server) handleBuyForm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid item ID")
		return
	}

	item, err := s.ledger.Find(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if !item.IsActive {
		s.respondDomainError(w, r, database.ErrStockItemNotFound)
		return
	}

	respondJSON(w, http.StatusOK, buyForm{Item: item, Available: item.Quantity, Quantity: 1})
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (req quantityRequest) value() int {
	if req.Quantity == nil {
		return 1
	}
	return *req.Quantity
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid item ID")
		return
	}

	var req quantityRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	receipt, err := s.purchase.BuyOne(r.Context(), id, req.value(), actorFrom(r.Context()))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, receipt)
}

func setETag(w http.ResponseWriter, version int) {
	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(version)))
}

// parseIfMatch accepts `"3"`, `W/"3"` or a bare 3. An empty header means
// the caller did not pin a version.
func parseIfMatch(header string) (*int, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return nil, nil
	}
	header = strings.TrimPrefix(header, "W/")
	header = strings.Trim(header, `"`)

	v, err := strconv.Atoi(header)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
