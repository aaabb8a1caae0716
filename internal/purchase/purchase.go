// Package purchase turns purchase intents into ledger decrements, either one
// item at a time or by checking out a session cart.
package purchase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/safar/go-stock-ledger/internal/cart"
	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
)

// Ledger is the subset of the stock ledger a purchase needs.
type Ledger interface {
	Find(ctx context.Context, id int64) (*models.StockItem, error)
	DecrementForPurchase(ctx context.Context, id int64, amount int, actor models.Actor) (*models.StockItem, error)
}

type LineState string

const reasonInternal = "internal error"

const (
	LineCommitted LineState = "committed"
	LineRejected  LineState = "rejected"
)

type LineResult struct {
	ItemID   int64           `json:"item_id"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	State    LineState       `json:"state"`
	Reason   string          `json:"reason,omitempty"`
	Receipt  *models.Receipt `json:"receipt,omitempty"`
	Err      error           `json:"-"`
}

type CheckoutResult struct {
	Lines []LineResult `json:"lines"`
	// Cart is what remains after committed lines were removed. The caller
	// persists it.
	Cart cart.Cart `json:"cart"`
}

func (r CheckoutResult) Committed() int {
	n := 0
	for _, l := range r.Lines {
		if l.State == LineCommitted {
			n++
		}
	}
	return n
}

type Orchestrator struct {
	ledger Ledger
	logger *slog.Logger
}

func New(ledger Ledger, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{ledger: ledger, logger: logger.With("component", "purchase")}
}

// BuyOne validates the request against the current quantity and then hands
// the decrement to the ledger. The read here only produces a friendly
// early rejection; the ledger's conditional update is what prevents
// overselling.
func (o *Orchestrator) BuyOne(ctx context.Context, itemID int64, qty int, actor models.Actor) (*models.Receipt, error) {
	item, err := o.ledger.Find(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, database.ErrInvalidQuantity
	}
	if qty > item.Quantity {
		return nil, &database.InsufficientStockError{
			ItemID:    itemID,
			Requested: qty,
			Available: item.Quantity,
		}
	}

	updated, err := o.ledger.DecrementForPurchase(ctx, itemID, qty, actor)
	if err != nil {
		return nil, err
	}

	return &models.Receipt{
		ItemID:    updated.ID,
		ItemName:  updated.Name,
		Quantity:  qty,
		Remaining: updated.Quantity,
		UnitPrice: updated.Price,
		LineTotal: updated.Price.Mul(decimal.NewFromInt(int64(qty))),
	}, nil
}

// Checkout buys every cart line independently. A rejected line stays in the
// returned cart and is not retried.
func (o *Orchestrator) Checkout(ctx context.Context, c cart.Cart, actor models.Actor) CheckoutResult {
	result := CheckoutResult{Lines: make([]LineResult, 0, c.Len()), Cart: c}

	for _, line := range c.Items {
		lr := LineResult{ItemID: line.ItemID, Name: line.Name, Quantity: line.Quantity}

		receipt, err := o.BuyOne(ctx, line.ItemID, line.Quantity, actor)
		if err != nil {
			lr.State = LineRejected
			lr.Reason = rejectionReason(err)
			lr.Err = err
			if lr.Reason == reasonInternal {
				o.logger.Error("checkout line failed",
					"error", err,
					"item_id", line.ItemID,
					"quantity", line.Quantity,
					"actor", actor.ID,
				)
			} else {
				o.logger.Info("checkout line rejected",
					"item_id", line.ItemID,
					"quantity", line.Quantity,
					"reason", lr.Reason,
					"actor", actor.ID,
				)
			}
		} else {
			lr.State = LineCommitted
			lr.Receipt = receipt
			result.Cart = result.Cart.Remove(line.ItemID)
		}

		result.Lines = append(result.Lines, lr)
	}

	return result
}

func rejectionReason(err error) string {
	var insufficient *database.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		return insufficient.Error()
	case errors.Is(err, database.ErrStockItemNotFound),
		errors.Is(err, database.ErrInvalidQuantity),
		errors.Is(err, database.ErrWriteConflict):
		return err.Error()
	default:
		return reasonInternal
	}
}
