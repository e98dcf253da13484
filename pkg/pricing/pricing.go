// Package pricing holds the stateless arithmetic for cart totals.
// Everything here is a pure function over a cart snapshot: callers own
// the snapshot and inject business values like the delivery fee.
package pricing

// Item is one cart line. Price is the unit price of the product at the
// time the line was created; a zero Price means the product has not
// loaded yet and the line contributes nothing to the subtotal.
type Item struct {
	ProductID uint    `json:"product_id"`
	Name      string  `json:"name,omitempty"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
}

// CartQuantity sums the item quantities. Negative quantities are treated
// as zero so a half-built snapshot can never shrink the count.
func CartQuantity(items []Item) int {
	total := 0
	for _, it := range items {
		if it.Quantity > 0 {
			total += it.Quantity
		}
	}
	return total
}

// SubTotal sums unit price times quantity over the items. Missing prices
// and quantities coerce to zero rather than failing, so partially loaded
// carts still produce a defined number.
func SubTotal(items []Item) float64 {
	var total float64
	for _, it := range items {
		if it.Price <= 0 || it.Quantity <= 0 {
			continue
		}
		total += it.Price * float64(it.Quantity)
	}
	return total
}

// TotalWithDelivery computes subtotal - discount + deliveryFee, clamped
// at zero. A discount larger than the subtotal must never produce a
// negative amount for the customer to pay.
func TotalWithDelivery(subtotal, discount, deliveryFee float64) float64 {
	total := subtotal - discount + deliveryFee
	if total < 0 {
		return 0
	}
	return total
}
