// Package cartstore holds the per-visitor shopping cart and its persistence.
package cartstore

import (
	"strings"

	"github.com/aistore/storefront/internal/domain"
)

// Item is a single cart line.
type Item = domain.CartItem

// State is an immutable snapshot of a cart. Transitions never modify a State in place.
type State struct {
	Items  []Item
	IsOpen bool
}

// AddItem increments the quantity of an existing line or appends a new one.
func AddItem(s State, item Item, quantity int) State {
	id := strings.TrimSpace(item.ProductID)
	if id == "" {
		return s
	}
	for i, existing := range s.Items {
		if existing.ProductID != id {
			continue
		}
		items := cloneItems(s.Items)
		items[i].Quantity = existing.Quantity + quantity
		if items[i].Quantity <= 0 {
			return State{Items: without(items, id), IsOpen: s.IsOpen}
		}
		return State{Items: items, IsOpen: s.IsOpen}
	}
	if quantity <= 0 {
		return s
	}
	item.ProductID = id
	item.Quantity = quantity
	items := make([]Item, 0, len(s.Items)+1)
	items = append(items, s.Items...)
	items = append(items, item)
	return State{Items: items, IsOpen: s.IsOpen}
}

// RemoveItem drops the line for productID. Unknown ids leave the state untouched.
func RemoveItem(s State, productID string) State {
	if indexOf(s.Items, productID) < 0 {
		return s
	}
	return State{Items: without(s.Items, productID), IsOpen: s.IsOpen}
}

// UpdateQuantity sets the quantity exactly; zero or negative removes the line.
func UpdateQuantity(s State, productID string, quantity int) State {
	if quantity <= 0 {
		return RemoveItem(s, productID)
	}
	idx := indexOf(s.Items, productID)
	if idx < 0 {
		return s
	}
	items := cloneItems(s.Items)
	items[idx].Quantity = quantity
	return State{Items: items, IsOpen: s.IsOpen}
}

// ClearCart empties the items without touching visibility.
func ClearCart(s State) State {
	return State{Items: []Item{}, IsOpen: s.IsOpen}
}

// ToggleCart flips cart visibility.
func ToggleCart(s State) State {
	return State{Items: s.Items, IsOpen: !s.IsOpen}
}

// OpenCart shows the cart.
func OpenCart(s State) State {
	return State{Items: s.Items, IsOpen: true}
}

// CloseCart hides the cart.
func CloseCart(s State) State {
	return State{Items: s.Items, IsOpen: false}
}

// TotalItems sums the quantities of every line.
func (s State) TotalItems() int {
	total := 0
	for _, item := range s.Items {
		total += item.Quantity
	}
	return total
}

// TotalPrice sums price*quantity across lines in minor units to avoid float drift.
func (s State) TotalPrice() float64 {
	var minor int64
	for _, item := range s.Items {
		minor += domain.ToMinorUnits(item.Price) * int64(item.Quantity)
	}
	return domain.FromMinorUnits(minor)
}

// Item returns the line for productID when present.
func (s State) Item(productID string) (Item, bool) {
	idx := indexOf(s.Items, productID)
	if idx < 0 {
		return Item{}, false
	}
	return s.Items[idx], true
}

func indexOf(items []Item, productID string) int {
	for i, item := range items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func without(items []Item, productID string) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if item.ProductID == productID {
			continue
		}
		out = append(out, item)
	}
	return out
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
