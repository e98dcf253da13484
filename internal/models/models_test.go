package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProduct_EffectivePrice(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	windowStart := now.Add(-24 * time.Hour)
	windowEnd := now.Add(24 * time.Hour)
	pastEnd := now.Add(-time.Hour)
	futureStart := now.Add(time.Hour)

	tests := []struct {
		name    string
		product Product
		want    float64
	}{
		{
			name:    "no discount fields",
			product: Product{Price: 100},
			want:    100,
		},
		{
			name: "percentage inside window",
			product: Product{
				Price: 100, DiscountPercentage: 25,
				DiscountStart: &windowStart, DiscountEnd: &windowEnd,
				HasActiveDiscount: true,
			},
			want: 75,
		},
		{
			name: "fixed amount inside window",
			product: Product{
				Price: 100, DiscountAmount: 30,
				DiscountStart: &windowStart, DiscountEnd: &windowEnd,
				HasActiveDiscount: true,
			},
			want: 70,
		},
		{
			name: "flag unset ignores stored discount",
			product: Product{
				Price: 100, DiscountPercentage: 25,
				DiscountStart: &windowStart, DiscountEnd: &windowEnd,
				HasActiveDiscount: false,
			},
			want: 100,
		},
		{
			name: "expired window ignores stored discount",
			product: Product{
				Price: 100, DiscountPercentage: 25,
				DiscountStart: &windowStart, DiscountEnd: &pastEnd,
				HasActiveDiscount: true,
			},
			want: 100,
		},
		{
			name: "window not started yet",
			product: Product{
				Price: 100, DiscountAmount: 30,
				DiscountStart: &futureStart, DiscountEnd: &windowEnd,
				HasActiveDiscount: true,
			},
			want: 100,
		},
		{
			name: "missing window dates with flag set",
			product: Product{
				Price: 100, DiscountPercentage: 50,
				HasActiveDiscount: true,
			},
			want: 100,
		},
		{
			name: "oversized fixed discount clamps at zero",
			product: Product{
				Price: 20, DiscountAmount: 50,
				DiscountStart: &windowStart, DiscountEnd: &windowEnd,
				HasActiveDiscount: true,
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, tt.product.EffectivePrice(now), 1e-9)
		})
	}
}
