// Package cart holds a session's pending purchase intents. A Cart is a
// value: every operation returns the new state and leaves the receiver
// untouched, and the caller decides when to persist it. Nothing here looks
// at live stock; staleness is resolved at checkout.
package cart

import (
	"math"

	"github.com/shopspring/decimal"
)

// MaxLineQuantity bounds a single line; stock quantities are INTEGER columns.
const MaxLineQuantity = math.MaxInt32

type Item struct {
	ItemID    int64           `json:"item_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (i Item) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	Items []Item `json:"items"`
}

func New() Cart {
	return Cart{Items: []Item{}}
}

func (c Cart) clone() Cart {
	items := make([]Item, len(c.Items))
	copy(items, c.Items)
	return Cart{Items: items}
}

// Add merges item into the cart: an existing line for the same ItemID has
// its quantity increased up to MaxLineQuantity, otherwise a new line is
// appended.
func (c Cart) Add(item Item) Cart {
	next := c.clone()
	for i := range next.Items {
		if next.Items[i].ItemID == item.ItemID {
			next.Items[i].Quantity = min(next.Items[i].Quantity+min(item.Quantity, MaxLineQuantity), MaxLineQuantity)
			return next
		}
	}
	next.Items = append(next.Items, item)
	return next
}

// Remove drops the line for itemID. Removing an absent item is a no-op.
func (c Cart) Remove(itemID int64) Cart {
	next := Cart{Items: make([]Item, 0, len(c.Items))}
	for _, it := range c.Items {
		if it.ItemID != itemID {
			next.Items = append(next.Items, it)
		}
	}
	return next
}

func (c Cart) Clear() Cart {
	return New()
}

func (c Cart) Line(itemID int64) (Item, bool) {
	for _, it := range c.Items {
		if it.ItemID == itemID {
			return it, true
		}
	}
	return Item{}, false
}

func (c Cart) Len() int {
	return len(c.Items)
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Total is recomputed on every call.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Total())
	}
	return total
}
