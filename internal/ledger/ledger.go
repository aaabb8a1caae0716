// Package ledger owns the quantity of record for every stock item. All
// mutations go through here so that each one is attributed, versioned and
// audited exactly once.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/safar/go-stock-ledger/internal/audit"
	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/safar/go-stock-ledger/internal/store"
)

const defaultRetryBackoff = 10 * time.Millisecond

type Ledger struct {
	db         *sql.DB
	audit      audit.Recorder
	logger     *slog.Logger
	maxRetries int
	now        func() time.Time
}

type Option func(*Ledger)

// WithMaxRetries bounds how many times a conflicting write is re-read and
// retried before ErrWriteConflict reaches the caller.
func WithMaxRetries(n int) Option {
	return func(l *Ledger) { l.maxRetries = n }
}

func New(db *sql.DB, recorder audit.Recorder, logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		db:         db,
		audit:      recorder,
		logger:     logger.With("component", "ledger"),
		maxRetries: 3,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) txOptions() database.TxOptions {
	return database.TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     l.maxRetries,
		InitialBackoff: defaultRetryBackoff,
	}
}

func (l *Ledger) Create(ctx context.Context, fields models.StockItemFields, actor models.Actor) (*models.StockItem, error) {
	fields = normalize(fields)
	if fields.PurchaseDate.IsZero() {
		fields.PurchaseDate = l.now().UTC()
	}
	if err := Validate(fields); err != nil {
		return nil, err
	}

	item, err := store.CreateStockItem(ctx, l.db, fields, actor.ID)
	if err != nil {
		return nil, err
	}

	l.logger.Info("stock item created", "item_id", item.ID, "quantity", item.Quantity, "actor", actor.ID)
	l.audit.Record(ctx, audit.Entry{
		Actor:       actor,
		Action:      models.ActionCreate,
		EntityType:  models.EntityStockItem,
		EntityID:    &item.ID,
		Description: fmt.Sprintf("Created stock item: %s", item.Name),
	})

	return item, nil
}

// Adjust overwrites every editable field, quantity included. It is the
// administrative correction path and never counts as a sale. When
// expectedVersion is set the write only succeeds against that version;
// otherwise a concurrent edit is re-read and retried.
func (l *Ledger) Adjust(ctx context.Context, id int64, fields models.StockItemFields, expectedVersion *int, actor models.Actor) (*models.StockItem, error) {
	fields = normalize(fields)
	if err := Validate(fields); err != nil {
		return nil, err
	}

	var before, after *models.StockItem
	attempt := func(tx *sql.Tx) error {
		current, err := store.GetStockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != current.Version {
			return database.ErrWriteConflict
		}
		if fields.PurchaseDate.IsZero() {
			fields.PurchaseDate = current.PurchaseDate
		}

		updated, err := store.UpdateStockItemOptimistic(ctx, tx, id, fields, current.Version, actor.ID)
		if err != nil {
			return err
		}

		before, after = current, updated
		return nil
	}

	var err error
	if expectedVersion != nil {
		err = database.WithTransaction(ctx, l.db, l.txOptions(), attempt)
	} else {
		err = database.WithRetry(ctx, l.db, l.txOptions(), attempt)
	}
	if err != nil {
		if errors.Is(err, database.ErrWriteConflict) {
			l.logger.Warn("stock item adjust conflicted", "item_id", id, "actor", actor.ID)
		}
		return nil, err
	}

	l.logger.Info("stock item adjusted", "item_id", id, "version", after.Version, "actor", actor.ID)
	l.audit.Record(ctx, audit.Entry{
		Actor:       actor,
		Action:      models.ActionUpdate,
		EntityType:  models.EntityStockItem,
		EntityID:    &after.ID,
		Description: describeAdjustment(before, after),
	})

	return after, nil
}

func describeAdjustment(before, after *models.StockItem) string {
	desc := fmt.Sprintf("Updated stock item: %s -> %s", before.Name, after.Name)
	if before.Quantity != after.Quantity {
		desc += fmt.Sprintf("; quantity %d -> %d", before.Quantity, after.Quantity)
	}
	return desc
}

// DecrementForPurchase is the sale path. The check and the decrement are a
// single conditional UPDATE, so concurrent buyers across processes cannot
// drive quantity below zero.
func (l *Ledger) DecrementForPurchase(ctx context.Context, id int64, amount int, actor models.Actor) (*models.StockItem, error) {
	if amount <= 0 {
		return nil, database.ErrInvalidQuantity
	}

	var updated *models.StockItem
	err := database.WithRetry(ctx, l.db, l.txOptions(), func(tx *sql.Tx) error {
		item, err := store.DecrementStock(ctx, tx, id, amount, actor.ID)
		if err == nil {
			updated = item
			return nil
		}
		if !errors.Is(err, database.ErrInsufficientStock) {
			return err
		}

		current, err := store.GetStockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Quantity >= amount {
			// Restocked between the two statements.
			return database.ErrWriteConflict
		}
		return &database.InsufficientStockError{
			ItemID:    id,
			Requested: amount,
			Available: current.Quantity,
		}
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("stock decremented",
		"item_id", id,
		"amount", amount,
		"remaining", updated.Quantity,
		"actor", actor.ID,
	)
	l.audit.Record(ctx, audit.Entry{
		Actor:       actor,
		Action:      models.ActionBuy,
		EntityType:  models.EntityStockItem,
		EntityID:    &updated.ID,
		Description: fmt.Sprintf("Bought %d x %s (remaining %d)", amount, updated.Name, updated.Quantity),
	})

	return updated, nil
}

// Delete hard-deletes the item. The audit row keeps the name because the
// entity id will no longer resolve.
func (l *Ledger) Delete(ctx context.Context, id int64, actor models.Actor) error {
	name, err := store.DeleteStockItem(ctx, l.db, id)
	if err != nil {
		return err
	}

	l.logger.Info("stock item deleted", "item_id", id, "actor", actor.ID)
	l.audit.Record(ctx, audit.Entry{
		Actor:       actor,
		Action:      models.ActionDelete,
		EntityType:  models.EntityStockItem,
		EntityID:    &id,
		Description: fmt.Sprintf("Deleted stock item: %s", name),
	})

	return nil
}

func (l *Ledger) Find(ctx context.Context, id int64) (*models.StockItem, error) {
	return store.GetStockItem(ctx, l.db, id)
}

func (l *Ledger) List(ctx context.Context, filter store.StockFilter, page, pageSize int) (*store.OffsetPage, error) {
	return store.ListStockItems(ctx, l.db, filter, page, pageSize)
}

func (l *Ledger) LowStock(ctx context.Context, threshold, limit int) ([]models.StockItem, error) {
	return store.ListLowStockItems(ctx, l.db, threshold, limit)
}

func (l *Ledger) Recent(ctx context.Context, limit int) ([]models.StockItem, error) {
	return store.ListRecentStockItems(ctx, l.db, limit)
}

func (l *Ledger) Summary(ctx context.Context, lowStockThreshold int) (*store.StockSummary, error) {
	return store.GetStockSummary(ctx, l.db, lowStockThreshold)
}

func (l *Ledger) CategorySummaries(ctx context.Context) ([]store.CategorySummary, error) {
	return store.ListCategorySummaries(ctx, l.db)
}
