package api

import (
	"net/http"
	"strings"

	"github.com/safar/go-stock-ledger/internal/cart"
	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/safar/go-stock-ledger/internal/store"
)

const (
	activityPageSize     = 20
	recentActivityLimit  = 10
	userActivityLimit    = 50
	dashboardRecentItems = 5
	dashboardLowStock    = 10
)

// handleActivityPage serves offset pages by default and switches to keyset
// paging when the client passes a cursor parameter (empty for the first
// page).
func (s *Server) handleActivityPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Has("cursor") {
		limit := limitParam(r, activityPageSize, 100)
		result, err := s.activity.After(r.Context(), q.Get("cursor"), limit)
		if err != nil {
			s.respondDomainError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
		return
	}

	page, pageSize := pageParams(r, activityPageSize, 100)
	result, err := s.activity.Page(r.Context(), page, pageSize)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRecentActivity(w http.ResponseWriter, r *http.Request) {
	logs, err := s.activity.Recent(r.Context(), limitParam(r, recentActivityLimit, 100))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, logs)
}

func (s *Server) handleUserActivity(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	logs, err := s.activity.ForUser(r.Context(), userID, limitParam(r, userActivityLimit, 200))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, logs)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	s.activity.RecordLogin(r.Context(), actor)

	respondJSON(w, http.StatusOK, map[string]string{
		"user_id": actor.ID,
		"name":    actor.Name,
		"role":    actor.Role,
	})
}

// handleLogout drops the session's cart and expires the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(ctx)

	if err := s.carts.Save(ctx, sessionFrom(ctx), cart.New()); err != nil {
		s.logger.Warn("clear cart on logout failed", "error", err, "user_id", actor.ID)
	}
	s.setSessionCookie(w, "", -1)
	s.activity.RecordLogout(ctx, actor)

	w.WriteHeader(http.StatusNoContent)
}

type dashboard struct {
	TotalItems        int64                   `json:"total_items"`
	LowStockCount     int64                   `json:"low_stock_count"`
	LowStockThreshold int                     `json:"low_stock_threshold"`
	TotalValue        string                  `json:"total_value"`
	ActiveCategories  int                     `json:"active_categories"`
	Categories        []store.CategorySummary `json:"categories"`
	RecentItems       []models.StockItem      `json:"recent_items"`
	LowStockItems     []models.StockItem      `json:"low_stock_items"`
	RecentActivity    []models.ActivityLog    `json:"recent_activity"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	threshold := s.cfg.LowStockThreshold

	summary, err := s.ledger.Summary(ctx, threshold)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	categories, err := s.catalog.List(ctx, true)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	perCategory, err := s.ledger.CategorySummaries(ctx)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	recent, err := s.ledger.Recent(ctx, dashboardRecentItems)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	low, err := s.ledger.LowStock(ctx, threshold, dashboardLowStock)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	activity, err := s.activity.Recent(ctx, recentActivityLimit)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, dashboard{
		TotalItems:        summary.TotalItems,
		LowStockCount:     summary.LowStockCount,
		LowStockThreshold: threshold,
		TotalValue:        summary.TotalValue.StringFixed(2),
		ActiveCategories:  len(categories),
		Categories:        perCategory,
		RecentItems:       recent,
		LowStockItems:     low,
		RecentActivity:    activity,
	})
}
