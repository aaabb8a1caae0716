// Package api exposes the stock ledger, session cart, catalog and activity
// log over HTTP/JSON. Identity arrives from the upstream gateway as request
// headers; the cart is keyed by a session cookie.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/safar/go-stock-ledger/internal/cart"
	"github.com/safar/go-stock-ledger/internal/catalog"
	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/safar/go-stock-ledger/internal/purchase"
	"github.com/safar/go-stock-ledger/internal/store"
)

type Ledger interface {
	Create(ctx context.Context, fields models.StockItemFields, actor models.Actor) (*models.StockItem, error)
	Adjust(ctx context.Context, id int64, fields models.StockItemFields, expectedVersion *int, actor models.Actor) (*models.StockItem, error)
	Delete(ctx context.Context, id int64, actor models.Actor) error
	Find(ctx context.Context, id int64) (*models.StockItem, error)
	List(ctx context.Context, filter store.StockFilter, page, pageSize int) (*store.OffsetPage, error)
	LowStock(ctx context.Context, threshold, limit int) ([]models.StockItem, error)
	Recent(ctx context.Context, limit int) ([]models.StockItem, error)
	Summary(ctx context.Context, lowStockThreshold int) (*store.StockSummary, error)
	CategorySummaries(ctx context.Context) ([]store.CategorySummary, error)
}

type Purchaser interface {
	BuyOne(ctx context.Context, itemID int64, qty int, actor models.Actor) (*models.Receipt, error)
	Checkout(ctx context.Context, c cart.Cart, actor models.Actor) purchase.CheckoutResult
}

type Catalog interface {
	Create(ctx context.Context, in catalog.CategoryInput, actor models.Actor) (*models.Category, error)
	Update(ctx context.Context, id int64, in catalog.CategoryInput, actor models.Actor) (*models.Category, error)
	Delete(ctx context.Context, id int64, actor models.Actor) error
	Get(ctx context.Context, id int64) (*models.Category, error)
	List(ctx context.Context, activeOnly bool) ([]models.Category, error)
}

type ActivityLog interface {
	Recent(ctx context.Context, limit int) ([]models.ActivityLog, error)
	ForUser(ctx context.Context, userID string, limit int) ([]models.ActivityLog, error)
	Page(ctx context.Context, page, pageSize int) (*store.OffsetPage, error)
	After(ctx context.Context, cursor string, limit int) (*store.CursorPage, error)
	RecordLogin(ctx context.Context, actor models.Actor)
	RecordLogout(ctx context.Context, actor models.Actor)
}

type Config struct {
	LowStockThreshold int
	CookieSecure      bool
}

type Server struct {
	ledger   Ledger
	purchase Purchaser
	catalog  Catalog
	activity ActivityLog
	carts    cart.Store
	cfg      Config
	logger   *slog.Logger
}

func NewServer(ledger Ledger, purchaser Purchaser, cat Catalog, activity ActivityLog, carts cart.Store, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LowStockThreshold <= 0 {
		cfg.LowStockThreshold = 5
	}
	return &Server{
		ledger:   ledger,
		purchase: purchaser,
		catalog:  cat,
		activity: activity,
		carts:    carts,
		cfg:      cfg,
		logger:   logger.With("component", "api"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("POST /login", s.authenticated(s.handleLogin))
	mux.Handle("POST /logout", s.authenticated(s.withSession(s.handleLogout)))

	mux.Handle("GET /items", s.authenticated(s.handleListItems))
	mux.Handle("POST /items", s.requireRole(models.RoleStaff, s.handleCreateItem))
	mux.Handle("GET /items/{id}", s.authenticated(s.handleGetItem))
	mux.Handle("PUT /items/{id}", s.requireRole(models.RoleAdmin, s.handleAdjustItem))
	mux.Handle("DELETE /items/{id}", s.requireRole(models.RoleAdmin, s.handleDeleteItem))
	mux.Handle("GET /items/{id}/buy", s.authenticated(s.handleBuyForm))
	mux.Handle("POST /items/{id}/buy", s.authenticated(s.handleBuy))

	mux.Handle("GET /cart", s.authenticated(s.withSession(s.handleGetCart)))
	mux.Handle("POST /cart/add", s.authenticated(s.withSession(s.handleCartAdd)))
	mux.Handle("POST /cart/remove", s.authenticated(s.withSession(s.handleCartRemove)))
	mux.Handle("POST /cart/clear", s.authenticated(s.withSession(s.handleCartClear)))
	mux.Handle("POST /cart/checkout", s.authenticated(s.withSession(s.handleCheckout)))

	mux.Handle("GET /categories", s.authenticated(s.handleListCategories))
	mux.Handle("GET /categories/{id}", s.authenticated(s.handleGetCategory))
	mux.Handle("POST /categories", s.requireRole(models.RoleAdmin, s.handleCreateCategory))
	mux.Handle("PUT /categories/{id}", s.requireRole(models.RoleAdmin, s.handleUpdateCategory))
	mux.Handle("DELETE /categories/{id}", s.requireRole(models.RoleAdmin, s.handleDeleteCategory))

	mux.Handle("GET /activity", s.requireRole(models.RoleAdmin, s.handleActivityPage))
	mux.Handle("GET /activity/recent", s.requireRole(models.RoleAdmin, s.handleRecentActivity))
	mux.Handle("GET /users/{id}/activity", s.requireRole(models.RoleAdmin, s.handleUserActivity))

	mux.Handle("GET /dashboard", s.requireRole(models.RoleAdmin, s.handleDashboard))

	return s.logRequests(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
