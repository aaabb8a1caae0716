package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	ItemCount   int       `json:"item_count"`
}

type StockItem struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	CategoryID      int64           `json:"category_id"`
	CategoryName    string          `json:"category_name,omitempty"`
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Supplier        string          `json:"supplier"`
	PurchaseDate    time.Time       `json:"purchase_date"`
	Description     string          `json:"description,omitempty"`
	Location        string          `json:"location,omitempty"`
	SKU             *string         `json:"sku,omitempty"`
	MinimumQuantity *int            `json:"minimum_quantity,omitempty"`
	ReorderPoint    *int            `json:"reorder_point,omitempty"`
	IsActive        bool            `json:"is_active"`
	CreatedBy       string          `json:"created_by"`
	UpdatedBy       *string         `json:"updated_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int             `json:"version"`
}

// StockItemFields holds every field an operator may set on create or
// administrative edit. Identity, attribution and timestamps are owned by
// the ledger.
type StockItemFields struct {
	Name            string          `json:"name"`
	CategoryID      int64           `json:"category_id"`
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Supplier        string          `json:"supplier"`
	PurchaseDate    time.Time       `json:"purchase_date"`
	Description     string          `json:"description,omitempty"`
	Location        string          `json:"location,omitempty"`
	SKU             *string         `json:"sku,omitempty"`
	MinimumQuantity *int            `json:"minimum_quantity,omitempty"`
	ReorderPoint    *int            `json:"reorder_point,omitempty"`
	IsActive        bool            `json:"is_active"`
}

// Fields returns the editable part of the item.
func (s StockItem) Fields() StockItemFields {
	return StockItemFields{
		Name:            s.Name,
		CategoryID:      s.CategoryID,
		Quantity:        s.Quantity,
		Price:           s.Price,
		Supplier:        s.Supplier,
		PurchaseDate:    s.PurchaseDate,
		Description:     s.Description,
		Location:        s.Location,
		SKU:             s.SKU,
		MinimumQuantity: s.MinimumQuantity,
		ReorderPoint:    s.ReorderPoint,
		IsActive:        s.IsActive,
	}
}

// Value is price times quantity on hand.
func (s StockItem) Value() decimal.Decimal {
	return s.Price.Mul(decimal.NewFromInt(int64(s.Quantity)))
}

// ActivityLog is an append-only audit row. EntityID is a plain identifier:
// the referenced entity may no longer exist.
type ActivityLog struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name,omitempty"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    *int64    `json:"entity_id,omitempty"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	IPAddress   string    `json:"ip_address,omitempty"`
}

// Actor is the already-authenticated caller as resolved by the identity
// provider.
type Actor struct {
	ID        string
	Name      string
	Role      string
	IPAddress string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsStaff() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}

type Receipt struct {
	ItemID    int64           `json:"item_id"`
	ItemName  string          `json:"item_name"`
	Quantity  int             `json:"quantity"`
	Remaining int             `json:"remaining"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

const (
	ActionCreate = "Create"
	ActionUpdate = "Update"
	ActionDelete = "Delete"
	ActionBuy    = "Buy"
	ActionLogin  = "Login"
	ActionLogout = "Logout"
)

const (
	EntityStockItem = "StockItem"
	EntityCategory  = "Category"
	EntityUser      = "User"
)

const (
	RoleAdmin = "Admin"
	RoleStaff = "Staff"
)
