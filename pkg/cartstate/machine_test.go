package cartstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souqdev/souq/pkg/couponclient"
	"github.com/souqdev/souq/pkg/pricing"
)

// fakeAPI is an in-memory stand-in for the server cart. Every mutation
// returns the full canonical list, like the real backend.
type fakeAPI struct {
	mu    sync.Mutex
	items []pricing.Item
	fail  bool
}

func (f *fakeAPI) canonical() []pricing.Item {
	out := make([]pricing.Item, len(f.items))
	copy(out, f.items)
	return out
}

func (f *fakeAPI) Fetch(ctx context.Context) ([]pricing.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("server unavailable")
	}
	return f.canonical(), nil
}

func (f *fakeAPI) Add(ctx context.Context, item pricing.Item) ([]pricing.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("server unavailable")
	}
	for i := range f.items {
		if f.items[i].ProductID == item.ProductID {
			f.items[i].Quantity += item.Quantity
			return f.canonical(), nil
		}
	}
	f.items = append(f.items, item)
	return f.canonical(), nil
}

func (f *fakeAPI) UpdateQuantity(ctx context.Context, productID uint, quantity int) ([]pricing.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("server unavailable")
	}
	for i := range f.items {
		if f.items[i].ProductID == productID {
			f.items[i].Quantity = quantity
		}
	}
	return f.canonical(), nil
}

func (f *fakeAPI) Remove(ctx context.Context, productID uint) ([]pricing.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("server unavailable")
	}
	kept := f.items[:0]
	for _, it := range f.items {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	f.items = kept
	return f.canonical(), nil
}

func (f *fakeAPI) Clear(ctx context.Context) ([]pricing.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("server unavailable")
	}
	f.items = nil
	return []pricing.Item{}, nil
}

// fakeResolver yields a scripted discount per subtotal and records the
// subtotals it was asked about.
type fakeResolver struct {
	mu        sync.Mutex
	valid     bool
	message   string
	discounts map[float64]float64
	asked     []float64
}

func tenPercentResolver() *fakeResolver {
	return &fakeResolver{valid: true, discounts: nil}
}

func (f *fakeResolver) discountFor(subtotal float64) float64 {
	if f.discounts != nil {
		return f.discounts[subtotal]
	}
	return subtotal / 10
}

func (f *fakeResolver) ComputeDiscount(ctx context.Context, code string, subtotal float64) couponclient.DiscountResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, subtotal)
	if !f.valid {
		return couponclient.DiscountResult{Discount: 0, Err: f.message}
	}
	return couponclient.DiscountResult{Discount: f.discountFor(subtotal)}
}

func (f *fakeResolver) Apply(ctx context.Context, code string, subtotal float64) couponclient.ApplyResult {
	f.mu.Lock()
	valid, message := f.valid, f.message
	f.mu.Unlock()
	if !valid {
		return couponclient.ApplyResult{Valid: false, Message: message}
	}
	res := f.ComputeDiscount(ctx, code, subtotal)
	return couponclient.ApplyResult{Valid: true, Discount: res.Discount}
}

func newGuestMachine(resolver CouponResolver) *Machine {
	return New(&fakeAPI{}, resolver, nil)
}

func TestGuestAddMergesByProductID(t *testing.T) {
	t.Parallel()

	m := newGuestMachine(tenPercentResolver())
	ctx := context.Background()

	require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 1, Price: 50, Quantity: 2}))
	require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 1, Price: 50, Quantity: 1, Size: "M"}))

	snap := m.Snapshot()
	require.Len(t, snap.Items, 1, "same product id must merge into one line")
	assert.Equal(t, 3, snap.Items[0].Quantity)
	assert.Equal(t, 3, pricing.CartQuantity(snap.Items))
}

func TestGuestAddDefaultsQuantityToOne(t *testing.T) {
	t.Parallel()

	m := newGuestMachine(tenPercentResolver())
	require.NoError(t, m.AddItem(context.Background(), pricing.Item{ProductID: 7, Price: 5}))

	snap := m.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 1, snap.Items[0].Quantity)
}

func TestUpdateQuantityFloor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		quantity int
	}{
		{name: "zero removes", quantity: 0},
		{name: "negative removes", quantity: -5},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newGuestMachine(tenPercentResolver())
			ctx := context.Background()
			require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 1, Price: 10, Quantity: 2}))

			require.NoError(t, m.UpdateQuantity(ctx, 1, tt.quantity))
			assert.Empty(t, m.Snapshot().Items)
		})
	}
}

func TestRemoveCouponClearsBothFields(t *testing.T) {
	t.Parallel()

	m := newGuestMachine(tenPercentResolver())
	ctx := context.Background()
	require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 1, Price: 100, Quantity: 1}))
	require.NoError(t, m.ApplyCoupon(ctx, "SAVE10"))

	snap := m.Snapshot()
	require.Equal(t, "SAVE10", snap.AppliedCoupon)
	require.InDelta(t, 10, snap.Discount, 1e-9)

	m.RemoveCoupon()

	snap = m.Snapshot()
	assert.Empty(t, snap.AppliedCoupon)
	assert.Zero(t, snap.Discount)
}

func TestClearCartAtomicity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		login bool
	}{
		{name: "guest"},
		{name: "authenticated", login: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := New(&fakeAPI{}, tenPercentResolver(), nil)
			ctx := context.Background()
			if tt.login {
				require.NoError(t, m.Login(ctx))
			}
			require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 1, Price: 100, Quantity: 1}))
			require.NoError(t, m.ApplyCoupon(ctx, "SAVE10"))

			require.NoError(t, m.ClearCart(ctx))

			snap := m.Snapshot()
			assert.Empty(t, snap.Items)
			assert.Empty(t, snap.AppliedCoupon)
			assert.Zero(t, snap.Discount)
		})
	}
}

func TestDiscountRecomputedWhenSubtotalChanges(t *testing.T) {
	t.Parallel()

	resolver := tenPercentResolver()
	m := newGuestMachine(resolver)
	ctx := context.Background()

	// cart = [{price: 50, qty: 2}] -> subtotal 100
	require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 1, Price: 50, Quantity: 2}))
	subtotal, _, total := m.Totals(0)
	require.InDelta(t, 100, subtotal, 1e-9)
	require.InDelta(t, 100, total, 1e-9)

	// coupon yields 10 for subtotal 100 -> total 90
	require.NoError(t, m.ApplyCoupon(ctx, "SAVE10"))
	_, discount, total := m.Totals(0)
	require.InDelta(t, 10, discount, 1e-9)
	require.InDelta(t, 90, total, 1e-9)

	// add {price: 30, qty: 1} -> subtotal 130, discount must be recomputed
	// against 130, not reused from 100
	require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 2, Price: 30, Quantity: 1}))

	subtotal, discount, total = m.Totals(0)
	assert.InDelta(t, 130, subtotal, 1e-9)
	assert.InDelta(t, 13, discount, 1e-9)
	assert.InDelta(t, 117, total, 1e-9)
	assert.Contains(t, resolver.askedSubtotals(), 130.0)
}

func (f *fakeResolver) askedSubtotals() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.asked))
	copy(out, f.asked)
	return out
}

func TestLoginReplacesGuestCart(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{items: []pricing.Item{{ProductID: 9, Price: 20, Quantity: 1}}}
	m := New(api, tenPercentResolver(), nil)
	ctx := context.Background()

	require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 1, Price: 50, Quantity: 2}))
	require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 2, Price: 30, Quantity: 1}))

	require.NoError(t, m.Login(ctx))

	snap := m.Snapshot()
	require.True(t, snap.Authenticated)
	require.Len(t, snap.Items, 1, "server cart replaces guest cart, no merge")
	assert.Equal(t, uint(9), snap.Items[0].ProductID)
}

func TestLogoutClearsEverything(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{items: []pricing.Item{{ProductID: 9, Price: 100, Quantity: 1}}}
	m := New(api, tenPercentResolver(), nil)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx))
	require.NoError(t, m.ApplyCoupon(ctx, "SAVE10"))

	require.NoError(t, m.Logout())

	snap := m.Snapshot()
	assert.False(t, snap.Authenticated)
	assert.Empty(t, snap.Items)
	assert.Empty(t, snap.AppliedCoupon)
	assert.Zero(t, snap.Discount)
}

func TestFailedCouponLeavesPricingUnchanged(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{valid: false, message: "coupon has expired"}
	m := newGuestMachine(resolver)
	ctx := context.Background()
	require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 1, Price: 50, Quantity: 2}))

	var level, message string
	m.Notify = func(l, msg string) { level, message = l, msg }

	err := m.ApplyCoupon(ctx, "OLD")
	require.Error(t, err)

	snap := m.Snapshot()
	assert.Empty(t, snap.AppliedCoupon)
	assert.Zero(t, snap.Discount)
	assert.Equal(t, NoticeError, level)
	assert.Equal(t, "coupon has expired", message)

	subtotal, discount, total := m.Totals(0)
	assert.InDelta(t, 100, subtotal, 1e-9)
	assert.Zero(t, discount)
	assert.InDelta(t, 100, total, 1e-9)
}

func TestApplyCouponSuccessNotifiesWithAmount(t *testing.T) {
	t.Parallel()

	m := newGuestMachine(tenPercentResolver())
	ctx := context.Background()
	require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 1, Price: 125, Quantity: 1}))

	var level, message string
	m.Notify = func(l, msg string) { level, message = l, msg }

	require.NoError(t, m.ApplyCoupon(ctx, "SAVE10"))
	assert.Equal(t, NoticeSuccess, level)
	assert.Equal(t, "Coupon applied, you saved $12.50", message)
}

func TestAuthenticatedFailureLeavesCartUnchanged(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{items: []pricing.Item{{ProductID: 1, Price: 10, Quantity: 2}}}
	m := New(api, tenPercentResolver(), nil)
	ctx := context.Background()
	require.NoError(t, m.Login(ctx))

	api.mu.Lock()
	api.fail = true
	api.mu.Unlock()

	err := m.AddItem(ctx, pricing.Item{ProductID: 2, Price: 99, Quantity: 1})
	require.Error(t, err)

	snap := m.Snapshot()
	assert.False(t, snap.Loading, "loading clears after a failed round-trip")
	assert.NotEmpty(t, snap.Err)
	require.Len(t, snap.Items, 1, "no optimistic mutation survives a failure")
	assert.Equal(t, uint(1), snap.Items[0].ProductID)
}

// gatedResolver lets the test hold an in-flight discount computation open
// while a later one completes, to exercise the latest-wins rule.
type gatedResolver struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedResolver) ComputeDiscount(ctx context.Context, code string, subtotal float64) couponclient.DiscountResult {
	if subtotal == 100 {
		close(g.started)
		<-g.release
		return couponclient.DiscountResult{Discount: 10}
	}
	return couponclient.DiscountResult{Discount: subtotal / 10}
}

func (g *gatedResolver) Apply(ctx context.Context, code string, subtotal float64) couponclient.ApplyResult {
	res := g.ComputeDiscount(ctx, code, subtotal)
	return couponclient.ApplyResult{Valid: true, Discount: res.Discount}
}

func TestLatestSubtotalWinsOnConcurrentRecompute(t *testing.T) {
	t.Parallel()

	resolver := &gatedResolver{started: make(chan struct{}), release: make(chan struct{})}
	m := New(&fakeAPI{}, resolver, nil)
	ctx := context.Background()

	m.mu.Lock()
	m.items = []pricing.Item{{ProductID: 1, Price: 100, Quantity: 1}}
	m.appliedCoupon = "SAVE10"
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.recomputeDiscount(ctx) // captures subtotal 100, blocks in resolver
	}()
	<-resolver.started

	m.mu.Lock()
	m.items = append(m.items, pricing.Item{ProductID: 2, Price: 30, Quantity: 1})
	m.mu.Unlock()
	m.recomputeDiscount(ctx) // subtotal 130, completes first

	close(resolver.release)
	<-done

	snap := m.Snapshot()
	assert.InDelta(t, 13, snap.Discount, 1e-9,
		"the stale response for subtotal 100 must be discarded")
}

func TestApplyCouponStaleSubtotalDiscarded(t *testing.T) {
	t.Parallel()

	resolver := &gatedResolver{started: make(chan struct{}), release: make(chan struct{})}
	m := New(&fakeAPI{}, resolver, nil)
	ctx := context.Background()

	require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 1, Price: 100, Quantity: 1}))

	done := make(chan error, 1)
	go func() {
		done <- m.ApplyCoupon(ctx, "SAVE10") // captures subtotal 100, blocks in the resolver
	}()
	<-resolver.started

	// the cart grows while the apply flow is in flight, and the
	// recomputation for subtotal 130 settles first
	require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 2, Price: 30, Quantity: 1}))
	require.InDelta(t, 13, m.Snapshot().Discount, 1e-9)

	close(resolver.release)
	require.NoError(t, <-done)

	snap := m.Snapshot()
	assert.Equal(t, "SAVE10", snap.AppliedCoupon)
	assert.InDelta(t, 13, snap.Discount, 1e-9,
		"the apply response for subtotal 100 must be discarded")
}

func TestGuestRemoveItemRecomputesDiscount(t *testing.T) {
	t.Parallel()

	resolver := tenPercentResolver()
	m := newGuestMachine(resolver)
	ctx := context.Background()
	require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 1, Price: 50, Quantity: 2}))
	require.NoError(t, m.AddItem(ctx, pricing.Item{ProductID: 2, Price: 30, Quantity: 1}))
	require.NoError(t, m.ApplyCoupon(ctx, "SAVE10"))

	require.NoError(t, m.RemoveItem(ctx, 2))

	subtotal, discount, _ := m.Totals(0)
	assert.InDelta(t, 100, subtotal, 1e-9)
	assert.InDelta(t, 10, discount, 1e-9)
}

func ExampleMachine_Totals() {
	m := New(&fakeAPI{}, tenPercentResolver(), nil)
	ctx := context.Background()

	_ = m.AddItem(ctx, pricing.Item{ProductID: 1, Price: 50, Quantity: 2})
	_ = m.ApplyCoupon(ctx, "SAVE10")

	subtotal, discount, total := m.Totals(0)
	fmt.Printf("subtotal=%.0f discount=%.0f total=%.0f\n", subtotal, discount, total)
	// Output: subtotal=100 discount=10 total=90
}
