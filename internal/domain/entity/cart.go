package entity

import (
	"errors"
	"fmt"
)

// CartLine is one purchasable unit in a cart. Price is stored in minor
// currency units. The JSON shape matches the persisted guest-cart format.
type CartLine struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Image        string `json:"image"`
	Price        int64  `json:"price"`
	Quantity     int    `json:"quantity"`
	ProductSkuID *int64 `json:"productSkuId,omitempty"`
}

func NewCartLine(id int64, name, image string, price int64, quantity int, skuID *int64) (*CartLine, error) {
	if id <= 0 {
		return nil, errors.New("cart line product ID must be positive")
	}
	if quantity <= 0 {
		return nil, errors.New("cart line quantity must be positive")
	}
	if price < 0 {
		return nil, errors.New("cart line price cannot be negative")
	}
	return &CartLine{
		ID:           id,
		Name:         name,
		Image:        image,
		Price:        price,
		Quantity:     quantity,
		ProductSkuID: skuID,
	}, nil
}

// IdentityKey is the uniqueness key for a line: (product, SKU) when a SKU
// is present, product alone otherwise. Two lines with the same key must
// never coexist in one cart.
func (l CartLine) IdentityKey() string {
	if l.ProductSkuID != nil {
		return fmt.Sprintf("p%d:s%d", l.ID, *l.ProductSkuID)
	}
	return fmt.Sprintf("p%d", l.ID)
}

func (l CartLine) sameIdentity(other CartLine) bool {
	if l.ID != other.ID {
		return false
	}
	if (l.ProductSkuID == nil) != (other.ProductSkuID == nil) {
		return false
	}
	if l.ProductSkuID == nil {
		return true
	}
	return *l.ProductSkuID == *other.ProductSkuID
}

// Cart holds the lines of a single logical cart in insertion order.
type Cart struct {
	Items []CartLine `json:"items"`
}

func NewCart(items []CartLine) *Cart {
	if items == nil {
		items = make([]CartLine, 0)
	}
	return &Cart{Items: items}
}

func (c *Cart) findByID(lineID int64) int {
	for i := range c.Items {
		if c.Items[i].ID == lineID {
			return i
		}
	}
	return -1
}

// AddLine appends the line, or accumulates quantity into the existing line
// with the same identity.
func (c *Cart) AddLine(line CartLine) error {
	if line.Quantity <= 0 {
		return errors.New("quantity to add must be positive")
	}
	for i := range c.Items {
		if c.Items[i].sameIdentity(line) {
			c.Items[i].Quantity += line.Quantity
			return nil
		}
	}
	c.Items = append(c.Items, line)
	return nil
}

// UpdateQuantity sets the quantity of the line with the given ID. A line is
// never kept at quantity zero, so newQuantity must be positive.
func (c *Cart) UpdateQuantity(lineID int64, newQuantity int) error {
	if newQuantity <= 0 {
		return errors.New("cart line quantity must be positive")
	}
	idx := c.findByID(lineID)
	if idx == -1 {
		return errors.New("line not found in cart")
	}
	c.Items[idx].Quantity = newQuantity
	return nil
}

func (c *Cart) RemoveLine(lineID int64) error {
	idx := c.findByID(lineID)
	if idx == -1 {
		return errors.New("line not found in cart to remove")
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return nil
}

func (c *Cart) Clear() {
	c.Items = make([]CartLine, 0)
}

func (c *Cart) Snapshot() CartSnapshot {
	items := make([]CartLine, len(c.Items))
	copy(items, c.Items)
	return CartSnapshot{Items: items}
}

// CartSnapshot is the full cart at a point in time. Total and item count
// are always derived from the current lines, never stored.
type CartSnapshot struct {
	Items []CartLine `json:"items"`
}

func EmptySnapshot() CartSnapshot {
	return CartSnapshot{Items: make([]CartLine, 0)}
}

func (s CartSnapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// Total is the sum of unit price times quantity across lines, in minor
// currency units.
func (s CartSnapshot) Total() int64 {
	var total int64
	for _, item := range s.Items {
		total += item.Price * int64(item.Quantity)
	}
	return total
}

func (s CartSnapshot) ItemCount() int {
	return len(s.Items)
}
