package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCartQuantity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		items []Item
		want  int
	}{
		{name: "empty cart", items: nil, want: 0},
		{name: "single line", items: []Item{{ProductID: 1, Quantity: 3}}, want: 3},
		{
			name: "multiple lines",
			items: []Item{
				{ProductID: 1, Quantity: 2},
				{ProductID: 2, Quantity: 5},
			},
			want: 7,
		},
		{
			name: "negative quantity coerced to zero",
			items: []Item{
				{ProductID: 1, Quantity: -4},
				{ProductID: 2, Quantity: 2},
			},
			want: 2,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CartQuantity(tt.items))
		})
	}
}

func TestSubTotal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		items []Item
		want  float64
	}{
		{name: "empty cart", items: nil, want: 0},
		{
			name:  "single line",
			items: []Item{{ProductID: 1, Price: 50, Quantity: 2}},
			want:  100,
		},
		{
			name: "additivity over lines",
			items: []Item{
				{ProductID: 1, Price: 50, Quantity: 2},
				{ProductID: 2, Price: 30, Quantity: 1},
			},
			want: 130,
		},
		{
			name: "missing price contributes nothing",
			items: []Item{
				{ProductID: 1, Quantity: 3},
				{ProductID: 2, Price: 10, Quantity: 1},
			},
			want: 10,
		},
		{
			name: "missing quantity contributes nothing",
			items: []Item{
				{ProductID: 1, Price: 25},
				{ProductID: 2, Price: 10, Quantity: 2},
			},
			want: 20,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, SubTotal(tt.items), 1e-9)
		})
	}
}

func TestTotalWithDelivery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                            string
		subtotal, discount, deliveryFee float64
		want                            float64
	}{
		{name: "no discount no fee", subtotal: 100, want: 100},
		{name: "discount applied", subtotal: 100, discount: 10, want: 90},
		{name: "fee added", subtotal: 100, discount: 10, deliveryFee: 5, want: 95},
		{name: "discount exceeding subtotal clamps at zero", subtotal: 40, discount: 100, want: 0},
		{name: "clamp holds with fee", subtotal: 10, discount: 50, deliveryFee: 20, want: 0},
		{name: "empty cart with fee", subtotal: 0, deliveryFee: 7, want: 7},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := TotalWithDelivery(tt.subtotal, tt.discount, tt.deliveryFee)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
		})
	}
}
