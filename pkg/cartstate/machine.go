// Package cartstate owns the in-session cart and mediates between its two
// sources of truth: local mutations while the session is a guest, and the
// server's canonical cart once it is authenticated. Exactly one source is
// active at a time; transitions between them replace state, never merge it.
package cartstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/souqdev/souq/pkg/couponclient"
	"github.com/souqdev/souq/pkg/pricing"
)

// Notification severities passed to the Notify hook.
const (
	NoticeSuccess = "success"
	NoticeError   = "error"
)

// Machine is the single mutable owner of the cart aggregate. All access
// goes through its operations; Snapshot exposes a read-only copy.
type Machine struct {
	api     CartAPI
	coupons CouponResolver
	store   Store

	// Notify, when set, receives user-facing messages. Level is
	// NoticeSuccess or NoticeError.
	Notify func(level, message string)

	mu            sync.Mutex
	items         []pricing.Item
	appliedCoupon string
	discount      float64
	loading       bool
	lastErr       string
	authed        bool
	seq           uint64
}

// CartAPI is the server half of reconciliation; satisfied by
// cartclient.Client.
type CartAPI interface {
	Fetch(ctx context.Context) ([]pricing.Item, error)
	Add(ctx context.Context, item pricing.Item) ([]pricing.Item, error)
	UpdateQuantity(ctx context.Context, productID uint, quantity int) ([]pricing.Item, error)
	Remove(ctx context.Context, productID uint) ([]pricing.Item, error)
	Clear(ctx context.Context) ([]pricing.Item, error)
}

// CouponResolver validates codes and computes discounts; satisfied by
// couponclient.Client.
type CouponResolver interface {
	ComputeDiscount(ctx context.Context, code string, subtotal float64) couponclient.DiscountResult
	Apply(ctx context.Context, code string, subtotal float64) couponclient.ApplyResult
}

func New(api CartAPI, coupons CouponResolver, store Store) *Machine {
	return &Machine{
		api:     api,
		coupons: coupons,
		store:   store,
		items:   []pricing.Item{},
	}
}

// Snapshot is a read-only view of the cart aggregate.
type Snapshot struct {
	Items         []pricing.Item
	AppliedCoupon string
	Discount      float64
	Loading       bool
	Err           string
	Authenticated bool
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]pricing.Item, len(m.items))
	copy(items, m.items)
	return Snapshot{
		Items:         items,
		AppliedCoupon: m.appliedCoupon,
		Discount:      m.discount,
		Loading:       m.loading,
		Err:           m.lastErr,
		Authenticated: m.authed,
	}
}

// Totals derives the displayed amounts from the current aggregate plus
// the injected delivery fee.
func (m *Machine) Totals(deliveryFee float64) (subtotal, discount, total float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subtotal = pricing.SubTotal(m.items)
	discount = m.discount
	return subtotal, discount, pricing.TotalWithDelivery(subtotal, discount, deliveryFee)
}

// Rehydrate loads the persisted guest cart. It is a no-op for an
// authenticated session, whose cart comes from the server instead.
func (m *Machine) Rehydrate(ctx context.Context) error {
	m.mu.Lock()
	if m.authed || m.store == nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	items, err := m.store.Load()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.items = items
	m.mu.Unlock()

	m.recomputeDiscount(ctx)
	return nil
}

// Login transitions Guest -> Authenticated: the guest cart is discarded
// and the server's cart becomes the session cart. Carts are never merged
// across this transition.
func (m *Machine) Login(ctx context.Context) error {
	m.setLoading(true)
	items, err := m.api.Fetch(ctx)
	if err != nil {
		m.fail(err)
		return err
	}

	m.mu.Lock()
	m.authed = true
	m.items = items
	m.loading = false
	m.lastErr = ""
	m.mu.Unlock()

	m.recomputeDiscount(ctx)
	return nil
}

// Logout transitions Authenticated -> Guest and clears the whole
// aggregate: items, coupon and discount go together, and the guest store
// is emptied so the next guest session starts clean.
func (m *Machine) Logout() error {
	m.mu.Lock()
	m.authed = false
	m.items = []pricing.Item{}
	m.appliedCoupon = ""
	m.discount = 0
	m.lastErr = ""
	m.loading = false
	m.mu.Unlock()

	if m.store != nil {
		return m.store.Clear()
	}
	return nil
}

// AddItem adds a product line. Guest mode merges by product id locally;
// authenticated mode asks the server and replaces the item list with its
// canonical response. The optimistic add is never kept over a server
// failure.
func (m *Machine) AddItem(ctx context.Context, item pricing.Item) error {
	if item.ProductID == 0 {
		return fmt.Errorf("product id required")
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}

	m.mu.Lock()
	authed := m.authed
	m.mu.Unlock()

	if !authed {
		m.mu.Lock()
		merged := false
		for i := range m.items {
			if m.items[i].ProductID == item.ProductID {
				m.items[i].Quantity += item.Quantity
				merged = true
				break
			}
		}
		if !merged {
			m.items = append(m.items, item)
		}
		m.mu.Unlock()

		if err := m.persistGuest(); err != nil {
			return err
		}
		m.recomputeDiscount(ctx)
		return nil
	}

	m.setLoading(true)
	items, err := m.api.Add(ctx, item)
	if err != nil {
		m.fail(err)
		return err
	}

	m.replaceItems(items)
	m.recomputeDiscount(ctx)
	return nil
}

// UpdateQuantity sets an absolute quantity for a product line; zero or
// less removes the line.
func (m *Machine) UpdateQuantity(ctx context.Context, productID uint, quantity int) error {
	if quantity <= 0 {
		return m.RemoveItem(ctx, productID)
	}

	m.mu.Lock()
	authed := m.authed
	m.mu.Unlock()

	if !authed {
		m.mu.Lock()
		for i := range m.items {
			if m.items[i].ProductID == productID {
				m.items[i].Quantity = quantity
				break
			}
		}
		m.mu.Unlock()

		if err := m.persistGuest(); err != nil {
			return err
		}
		m.recomputeDiscount(ctx)
		return nil
	}

	m.setLoading(true)
	items, err := m.api.UpdateQuantity(ctx, productID, quantity)
	if err != nil {
		m.fail(err)
		return err
	}

	m.replaceItems(items)
	m.recomputeDiscount(ctx)
	return nil
}

func (m *Machine) RemoveItem(ctx context.Context, productID uint) error {
	m.mu.Lock()
	authed := m.authed
	m.mu.Unlock()

	if !authed {
		m.mu.Lock()
		kept := m.items[:0]
		for _, it := range m.items {
			if it.ProductID != productID {
				kept = append(kept, it)
			}
		}
		m.items = kept
		m.mu.Unlock()

		if err := m.persistGuest(); err != nil {
			return err
		}
		m.recomputeDiscount(ctx)
		return nil
	}

	m.setLoading(true)
	items, err := m.api.Remove(ctx, productID)
	if err != nil {
		m.fail(err)
		return err
	}

	m.replaceItems(items)
	m.recomputeDiscount(ctx)
	return nil
}

// ClearCart empties items, applied coupon and discount together. The
// three always clear atomically; a coupon must not survive a cart clear.
func (m *Machine) ClearCart(ctx context.Context) error {
	m.mu.Lock()
	authed := m.authed
	m.mu.Unlock()

	if authed {
		m.setLoading(true)
		if _, err := m.api.Clear(ctx); err != nil {
			m.fail(err)
			return err
		}
	}

	m.mu.Lock()
	m.seq++ // outstanding discount recomputations are now obsolete
	m.items = []pricing.Item{}
	m.appliedCoupon = ""
	m.discount = 0
	m.loading = false
	m.lastErr = ""
	m.mu.Unlock()

	if !authed {
		return m.persistGuest()
	}
	return nil
}

// ApplyCoupon sets the code optimistically, then runs the resolver's
// validate-then-compute flow against the current subtotal. The discount
// is provisional until the flow settles. On failure both the code and the
// discount revert together. The flow participates in the same sequence
// discipline as recomputeDiscount: setting the code invalidates any
// recomputation already in flight, and a response that arrives after the
// subtotal moved again is discarded instead of written.
func (m *Machine) ApplyCoupon(ctx context.Context, code string) error {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.appliedCoupon = code
	m.loading = true
	subtotal := pricing.SubTotal(m.items)
	m.mu.Unlock()

	res := m.coupons.Apply(ctx, code, subtotal)

	m.mu.Lock()
	m.loading = false
	stale := seq != m.seq || m.appliedCoupon != code
	if !res.Valid || res.Message != "" {
		if !stale {
			m.appliedCoupon = ""
			m.discount = 0
			m.lastErr = res.Message
		}
		m.mu.Unlock()

		m.notify(NoticeError, res.Message)
		return fmt.Errorf("apply coupon: %s", res.Message)
	}
	if stale {
		// a newer subtotal was resolved while this flow was in flight
		m.mu.Unlock()
		return nil
	}

	m.discount = res.Discount
	m.lastErr = ""
	m.mu.Unlock()

	m.notify(NoticeSuccess, fmt.Sprintf("Coupon applied, you saved %s", formatCurrency(res.Discount)))
	return nil
}

// RemoveCoupon clears the code and the discount together; never one
// without the other.
func (m *Machine) RemoveCoupon() {
	m.mu.Lock()
	m.seq++
	m.appliedCoupon = ""
	m.discount = 0
	m.mu.Unlock()
}

// recomputeDiscount re-resolves the discount whenever the subtotal may
// have changed while a coupon is applied. A sequence counter makes the
// latest recomputation win: a response computed for an older subtotal is
// discarded instead of overwriting a newer one. This is the property the
// whole machine exists to protect; a discount computed against a stale
// subtotal must never be shown as current.
func (m *Machine) recomputeDiscount(ctx context.Context) {
	m.mu.Lock()
	if m.appliedCoupon == "" {
		m.mu.Unlock()
		return
	}
	m.seq++
	seq := m.seq
	code := m.appliedCoupon
	subtotal := pricing.SubTotal(m.items)
	m.mu.Unlock()

	res := m.coupons.ComputeDiscount(ctx, code, subtotal)

	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.seq || m.appliedCoupon != code {
		return // a newer subtotal superseded this computation
	}
	if res.Err != "" {
		m.discount = 0
		m.lastErr = res.Err
		return
	}
	m.discount = res.Discount
	m.lastErr = ""
}

func (m *Machine) persistGuest() error {
	if m.store == nil {
		return nil
	}
	m.mu.Lock()
	items := make([]pricing.Item, len(m.items))
	copy(items, m.items)
	m.mu.Unlock()

	return m.store.Save(items)
}

func (m *Machine) replaceItems(items []pricing.Item) {
	if items == nil {
		items = []pricing.Item{}
	}
	m.mu.Lock()
	m.items = items
	m.loading = false
	m.lastErr = ""
	m.mu.Unlock()
}

func (m *Machine) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

// fail records a server failure: loading clears, the error surfaces, and
// the prior cart state stays untouched.
func (m *Machine) fail(err error) {
	m.mu.Lock()
	m.loading = false
	m.lastErr = err.Error()
	m.mu.Unlock()

	m.notify(NoticeError, err.Error())
}

func (m *Machine) notify(level, message string) {
	if m.Notify != nil {
		m.Notify(level, message)
	}
}

func formatCurrency(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}
