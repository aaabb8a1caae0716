package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/safar/go-stock-ledger/internal/cart"
	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/purchase"
)

type cartView struct {
	Items []cartLineView  `json:"items"`
	Total decimal.Decimal `json:"total"`
}

type cartLineView struct {
	cart.Item
	LineTotal decimal.Decimal `json:"line_total"`
}

func viewCart(c cart.Cart) cartView {
	v := cartView{Items: make([]cartLineView, 0, c.Len()), Total: c.Total()}
	for _, it := range c.Items {
		v.Items = append(v.Items, cartLineView{Item: it, LineTotal: it.Total()})
	}
	return v
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := cart.LoadOrCreate(r.Context(), s.carts, sessionFrom(r.Context()))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, viewCart(c))
}

type cartAddRequest struct {
	ItemID   int64 `json:"item_id"`
	Quantity *int  `json:"quantity"`
}

// handleCartAdd records intent only. The name and price are copied from the
// ledger now; stock is not checked until checkout.
func (s *Server) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req cartAddRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	qty := quantityRequest{Quantity: req.Quantity}.value()
	if qty < 1 || qty > cart.MaxLineQuantity {
		s.respondDomainError(w, r, database.ErrInvalidQuantity)
		return
	}

	item, err := s.ledger.Find(ctx, req.ItemID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	sid := sessionFrom(ctx)
	c, err := cart.LoadOrCreate(ctx, s.carts, sid)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	if line, ok := c.Line(item.ID); ok && line.Quantity > cart.MaxLineQuantity-qty {
		s.respondDomainError(w, r, database.ErrInvalidQuantity)
		return
	}

	c = c.Add(cart.Item{
		ItemID:    item.ID,
		Name:      item.Name,
		Quantity:  qty,
		UnitPrice: item.Price,
	})
	if err := s.carts.Save(ctx, sid, c); err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, viewCart(c))
}

func (s *Server) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		ItemID int64 `json:"item_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sid := sessionFrom(ctx)
	c, err := cart.LoadOrCreate(ctx, s.carts, sid)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	c = c.Remove(req.ItemID)
	if err := s.carts.Save(ctx, sid, c); err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, viewCart(c))
}

func (s *Server) handleCartClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c := cart.New()
	if err := s.carts.Save(ctx, sessionFrom(ctx), c); err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, viewCart(c))
}

type checkoutView struct {
	Lines     []purchase.LineResult `json:"lines"`
	Committed int                   `json:"committed"`
	Cart      cartView              `json:"cart"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := sessionFrom(ctx)

	c, err := cart.LoadOrCreate(ctx, s.carts, sid)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if c.IsEmpty() {
		respondError(w, http.StatusUnprocessableEntity, "cart is empty")
		return
	}

	result := s.purchase.Checkout(ctx, c, actorFrom(ctx))

	// Committed lines are already in the ledger; a failed save only leaves
	// them visible in the cart.
	if err := s.carts.Save(ctx, sid, result.Cart); err != nil {
		s.logger.Error("save cart after checkout failed", "error", err, "session", sid)
	}

	respondJSON(w, http.StatusOK, checkoutView{
		Lines:     result.Lines,
		Committed: result.Committed(),
		Cart:      viewCart(result.Cart),
	})
}
