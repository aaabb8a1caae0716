package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/store"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps ledger, catalog and purchase errors onto HTTP
// statuses. Anything unrecognised is logged and hidden behind a 500.
func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		insufficient *database.InsufficientStockError
		referenced   *database.ReferentialIntegrityError
		invalid      *database.ValidationError
	)

	switch {
	case errors.As(err, &insufficient):
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":     "insufficient stock",
			"item_id":   insufficient.ItemID,
			"requested": insufficient.Requested,
			"available": insufficient.Available,
		})
	case errors.As(err, &referenced):
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":        referenced.Error(),
			"relationship": referenced.Relationship,
		})
	case errors.As(err, &invalid):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": invalid.Error(),
			"field": invalid.Field,
		})
	case errors.Is(err, database.ErrStockItemNotFound),
		errors.Is(err, database.ErrCategoryNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrInvalidQuantity),
		errors.Is(err, database.ErrInvalidInput):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, database.ErrWriteConflict):
		respondError(w, http.StatusConflict, "the item was modified concurrently; reload and retry")
	case errors.Is(err, database.ErrDuplicateCategory):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidCursor):
		respondError(w, http.StatusBadRequest, "Invalid cursor")
	default:
		s.logger.Error("request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
		)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeOptionalJSON treats an empty body as "use the defaults".
func decodeOptionalJSON(r *http.Request, dst interface{}) error {
	if err := decodeJSON(r, dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func pageParams(r *http.Request, def, max int) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return store.NormalizePage(page, pageSize, def, max)
}

func limitParam(r *http.Request, def, max int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 || limit > max {
		return def
	}
	return limit
}
