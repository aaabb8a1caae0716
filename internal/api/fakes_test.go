package api

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/go-stock-ledger/internal/catalog"
	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/safar/go-stock-ledger/internal/store"
)

type fakeLedger struct {
	mu     sync.Mutex
	items  map[int64]*models.StockItem
	nextID int64
	events []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{items: make(map[int64]*models.StockItem), nextID: 1}
}

func (f *fakeLedger) seed(name string, qty int, price string, active bool) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.items[id] = &models.StockItem{
		ID:         id,
		Name:       name,
		CategoryID: 1,
		Quantity:   qty,
		Price:      decimal.RequireFromString(price),
		Supplier:   "Acme",
		IsActive:   active,
		Version:    1,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	return id
}

func (f *fakeLedger) Create(ctx context.Context, fields models.StockItemFields, actor models.Actor) (*models.StockItem, error) {
	if fields.Name == "" {
		return nil, &database.ValidationError{Field: "name", Message: "is required"}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	item := &models.StockItem{
		ID:         id,
		Name:       fields.Name,
		CategoryID: fields.CategoryID,
		Quantity:   fields.Quantity,
		Price:      fields.Price,
		Supplier:   fields.Supplier,
		IsActive:   fields.IsActive,
		CreatedBy:  actor.ID,
		Version:    1,
	}
	f.items[id] = item
	f.events = append(f.events, "create:"+actor.ID)
	cp := *item
	return &cp, nil
}

func (f *fakeLedger) Adjust(ctx context.Context, id int64, fields models.StockItemFields, expectedVersion *int, actor models.Actor) (*models.StockItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[id]
	if !ok {
		return nil, database.ErrStockItemNotFound
	}
	if expectedVersion != nil && *expectedVersion != item.Version {
		return nil, database.ErrWriteConflict
	}
	item.Name = fields.Name
	item.Quantity = fields.Quantity
	item.Price = fields.Price
	item.IsActive = fields.IsActive
	item.Version++
	f.events = append(f.events, "adjust:"+actor.ID)
	cp := *item
	return &cp, nil
}

func (f *fakeLedger) Delete(ctx context.Context, id int64, actor models.Actor) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.items[id]; !ok {
		return database.ErrStockItemNotFound
	}
	delete(f.items, id)
	f.events = append(f.events, "delete:"+actor.ID)
	return nil
}

func (f *fakeLedger) Find(ctx context.Context, id int64) (*models.StockItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[id]
	if !ok {
		return nil, database.ErrStockItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (f *fakeLedger) DecrementForPurchase(ctx context.Context, id int64, amount int, actor models.Actor) (*models.StockItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[id]
	if !ok {
		return nil, database.ErrStockItemNotFound
	}
	if item.Quantity < amount {
		return nil, &database.InsufficientStockError{ItemID: id, Requested: amount, Available: item.Quantity}
	}
	item.Quantity -= amount
	item.Version++
	f.events = append(f.events, "buy:"+actor.ID)
	cp := *item
	return &cp, nil
}

func (f *fakeLedger) List(ctx context.Context, filter store.StockFilter, page, pageSize int) (*store.OffsetPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := []models.StockItem{}
	for _, item := range f.items {
		if filter.ActiveOnly && !item.IsActive {
			continue
		}
		items = append(items, *item)
	}
	return &store.OffsetPage{Items: items, Total: int64(len(items)), Page: page, PageSize: pageSize, TotalPages: 1}, nil
}

func (f *fakeLedger) LowStock(ctx context.Context, threshold, limit int) ([]models.StockItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	low := []models.StockItem{}
	for _, item := range f.items {
		if item.Quantity < threshold && len(low) < limit {
			low = append(low, *item)
		}
	}
	return low, nil
}

func (f *fakeLedger) Recent(ctx context.Context, limit int) ([]models.StockItem, error) {
	return []models.StockItem{}, nil
}

func (f *fakeLedger) Summary(ctx context.Context, threshold int) (*store.StockSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	summary := &store.StockSummary{TotalValue: decimal.Zero}
	for _, item := range f.items {
		summary.TotalItems++
		if item.Quantity < threshold {
			summary.LowStockCount++
		}
		summary.TotalValue = summary.TotalValue.Add(item.Value())
	}
	return summary, nil
}

func (f *fakeLedger) CategorySummaries(ctx context.Context) ([]store.CategorySummary, error) {
	return []store.CategorySummary{}, nil
}

type fakeCatalog struct {
	mu         sync.Mutex
	categories map[int64]*models.Category
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{categories: map[int64]*models.Category{
		1: {ID: 1, Name: "Furniture", IsActive: true, ItemCount: 2},
		2: {ID: 2, Name: "Goods", IsActive: true},
	}}
}

func (f *fakeCatalog) Create(ctx context.Context, in catalog.CategoryInput, actor models.Actor) (*models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.categories {
		if c.Name == in.Name {
			return nil, database.ErrDuplicateCategory
		}
	}
	c := &models.Category{ID: int64(len(f.categories) + 1), Name: in.Name, Description: in.Description, IsActive: true}
	f.categories[c.ID] = c
	return c, nil
}

func (f *fakeCatalog) Update(ctx context.Context, id int64, in catalog.CategoryInput, actor models.Actor) (*models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.categories[id]
	if !ok {
		return nil, database.ErrCategoryNotFound
	}
	c.Name = in.Name
	return c, nil
}

func (f *fakeCatalog) Delete(ctx context.Context, id int64, actor models.Actor) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.categories[id]
	if !ok {
		return database.ErrCategoryNotFound
	}
	if c.ItemCount > 0 {
		return &database.ReferentialIntegrityError{Entity: "category", EntityID: id, Relationship: "stock_items", Count: c.ItemCount}
	}
	delete(f.categories, id)
	return nil
}

func (f *fakeCatalog) Get(ctx context.Context, id int64) (*models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.categories[id]
	if !ok {
		return nil, database.ErrCategoryNotFound
	}
	return c, nil
}

func (f *fakeCatalog) List(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []models.Category{}
	for _, c := range f.categories {
		if !activeOnly || c.IsActive {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeActivity struct {
	mu      sync.Mutex
	entries []models.ActivityLog
}

func (f *fakeActivity) record(actor models.Actor, action string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, models.ActivityLog{
		ID:         int64(len(f.entries) + 1),
		UserID:     actor.ID,
		Action:     action,
		EntityType: models.EntityUser,
		Timestamp:  time.Now(),
	})
}

func (f *fakeActivity) RecordLogin(ctx context.Context, actor models.Actor) {
	f.record(actor, models.ActionLogin)
}

func (f *fakeActivity) RecordLogout(ctx context.Context, actor models.Actor) {
	f.record(actor, models.ActionLogout)
}

func (f *fakeActivity) Recent(ctx context.Context, limit int) ([]models.ActivityLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]models.ActivityLog{}, f.entries...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeActivity) ForUser(ctx context.Context, userID string, limit int) ([]models.ActivityLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.ActivityLog{}
	for _, e := range f.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeActivity) Page(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	entries, _ := f.Recent(ctx, pageSize)
	return &store.OffsetPage{Items: entries, Total: int64(len(entries)), Page: page, PageSize: pageSize, TotalPages: 1}, nil
}

func (f *fakeActivity) After(ctx context.Context, cursor string, limit int) (*store.CursorPage, error) {
	if _, err := store.DecodeCursor(cursor); err != nil {
		return nil, err
	}
	entries, _ := f.Recent(ctx, limit)
	return &store.CursorPage{Items: entries}, nil
}
