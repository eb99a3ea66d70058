// internal/transaction/transaction.go
package transaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"retailpos/internal/recovery"
	"retailpos/internal/stock"
)

var tracer = otel.Tracer("retailpos/transaction")

// Transaction is one cart and the variant that settles it. A Transaction is
// used by a single cashier session and is not safe for concurrent use.
type Transaction struct {
	id    uuid.UUID
	kind  Kind
	mode  Mode
	phone int64
	deps  Deps

	state  State
	source string
	items  []stock.Item
	lines  []stock.LineItem
	total  float64
	lastID int

	couponApplied bool
	restoring     bool
	finalize      finalizer
}

// NewSale starts a sale with no customer.
func NewSale(deps Deps) *Transaction {
	return newTransaction(deps, Sale, CheckOut, 0)
}

// NewReturn starts a return for the customer with phone.
func NewReturn(deps Deps, phone int64) *Transaction {
	return newTransaction(deps, Return, CheckIn, phone)
}

// NewRentalCheckOut starts a rental the customer takes home.
func NewRentalCheckOut(deps Deps, phone int64) *Transaction {
	return newTransaction(deps, Rental, CheckOut, phone)
}

// NewRentalCheckIn starts the return of rented items, billing late fees.
func NewRentalCheckIn(deps Deps, phone int64) *Transaction {
	return newTransaction(deps, Rental, CheckIn, phone)
}

// New builds a transaction of the given kind. mode only matters for rentals.
func New(deps Deps, kind Kind, mode Mode, phone int64) (*Transaction, error) {
	switch kind {
	case Sale:
		return NewSale(deps), nil
	case Return:
		return NewReturn(deps, phone), nil
	case Rental:
		if mode == CheckIn {
			return NewRentalCheckIn(deps, phone), nil
		}
		return NewRentalCheckOut(deps, phone), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func newTransaction(deps Deps, kind Kind, mode Mode, phone int64) *Transaction {
	t := &Transaction{
		id:    uuid.New(),
		kind:  kind,
		mode:  mode,
		phone: phone,
		deps:  deps.withDefaults(),
		lines: []stock.LineItem{},
	}
	t.finalize = finalizerFor(kind, mode)
	return t
}

func (t *Transaction) ID() uuid.UUID  { return t.id }
func (t *Transaction) Kind() Kind     { return t.kind }
func (t *Transaction) Mode() Mode     { return t.mode }
func (t *Transaction) Phone() int64   { return t.phone }
func (t *Transaction) State() State   { return t.state }
func (t *Transaction) Total() float64 { return t.total }
func (t *Transaction) CartSize() int  { return len(t.lines) }

// Cart returns a copy of the cart lines in insertion order.
func (t *Transaction) Cart() []stock.LineItem {
	out := make([]stock.LineItem, len(t.lines))
	copy(out, t.lines)
	return out
}

// taking reports whether finalizing removes units from stock.
func (t *Transaction) taking() bool {
	return t.kind == Sale || (t.kind == Rental && t.mode == CheckOut)
}

// Start loads the stock snapshot that cart lines are priced from.
func (t *Transaction) Start(ctx context.Context, source string) bool {
	if t.state == Finalized {
		return false
	}
	items, err := t.deps.Stock.Load(ctx, source)
	if err != nil {
		t.deps.Logger.Printf("transaction %s: load stock: %v", t.id, err)
		return false
	}
	t.source = source
	t.items = items
	return true
}

// AddLine adds quantity units of itemID at the snapshot's current price,
// merging into an existing line for the same item. It refuses unknown items,
// quantities <= 0, and, when the transaction removes stock, more units than
// the snapshot holds.
func (t *Transaction) AddLine(ctx context.Context, itemID, quantity int) bool {
	if t.state == Finalized || quantity <= 0 {
		return false
	}
	item, ok := stock.Lookup(t.items, itemID)
	if !ok {
		return false
	}

	idx := t.lineIndex(itemID)
	inCart := 0
	if idx >= 0 {
		inCart = t.lines[idx].Quantity
	}
	if t.taking() && inCart+quantity > item.Stock {
		t.deps.Logger.Printf("transaction %s: item %d has %d in stock, cart wants %d",
			t.id, itemID, item.Stock, inCart+quantity)
		return false
	}

	if idx >= 0 {
		t.lines[idx].Quantity += quantity
	} else {
		t.lines = append(t.lines, item.Snapshot(quantity))
	}
	t.lastID = itemID
	t.state = Building
	t.RecomputeTotal()
	t.mirror(ctx)
	return true
}

// RemoveLine drops the first line for itemID.
func (t *Transaction) RemoveLine(ctx context.Context, itemID int) bool {
	if t.state == Finalized {
		return false
	}
	idx := t.lineIndex(itemID)
	if idx < 0 {
		return false
	}
	t.lines = append(t.lines[:idx], t.lines[idx+1:]...)
	t.state = Building
	t.RecomputeTotal()

	if t.deps.Recovery != nil && !t.restoring {
		if err := t.deps.Recovery.DeleteLine(ctx, itemID); err != nil {
			t.mirror(ctx)
		}
	}
	return true
}

// RecomputeTotal sums the cart before tax, keeping an applied coupon.
func (t *Transaction) RecomputeTotal() float64 {
	var sum float64
	for _, line := range t.lines {
		sum += line.Amount()
	}
	if t.couponApplied {
		sum *= t.deps.CouponDiscount
	}
	t.total = sum
	return t.total
}

// ApplyCoupon discounts the total when code is on the coupon list. Only one
// coupon is accepted per transaction.
func (t *Transaction) ApplyCoupon(ctx context.Context, code string) bool {
	if t.state == Finalized || t.couponApplied {
		return false
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	codes, err := t.deps.Store.Scan(ctx, t.deps.CouponPath)
	if err != nil {
		t.deps.Logger.Printf("transaction %s: read coupons: %v", t.id, err)
		return false
	}
	for _, c := range codes {
		if strings.TrimSpace(c) == code {
			t.couponApplied = true
			t.RecomputeTotal()
			return true
		}
	}
	return false
}

// ValidatePaymentCard reports whether number is exactly 16 decimal digits.
func (t *Transaction) ValidatePaymentCard(number string) bool {
	return ValidatePaymentCard(number)
}

// LastAddedLine returns the line the latest AddLine went into, or the newest
// line once that one has been removed.
func (t *Transaction) LastAddedLine() (stock.LineItem, error) {
	if len(t.lines) == 0 {
		return stock.LineItem{}, ErrEmptyCart
	}
	if idx := t.lineIndex(t.lastID); idx >= 0 {
		return t.lines[idx], nil
	}
	return t.lines[len(t.lines)-1], nil
}

// Cancel abandons the transaction and clears the recovery slot.
func (t *Transaction) Cancel(ctx context.Context) error {
	if t.state == Finalized {
		return ErrFinalized
	}
	t.lines = t.lines[:0]
	t.total = 0
	t.state = Finalized
	return t.clearSlot(ctx)
}

func (t *Transaction) lineIndex(itemID int) int {
	for i := range t.lines {
		if t.lines[i].ItemID == itemID {
			return i
		}
	}
	return -1
}

// mirror rewrites the recovery slot with the current cart. A failed write is
// logged; the in-memory cart stays authoritative.
func (t *Transaction) mirror(ctx context.Context) {
	if t.deps.Recovery == nil || t.restoring {
		return
	}
	lines := make([]recovery.Line, len(t.lines))
	for i, l := range t.lines {
		lines[i] = recovery.Line{ItemID: l.ItemID, Quantity: l.Quantity}
	}
	if err := t.deps.Recovery.Write(ctx, t.kind, t.phone, lines); err != nil {
		t.deps.Logger.Printf("transaction %s: mirror cart: %v", t.id, err)
	}
}

func (t *Transaction) clearSlot(ctx context.Context) error {
	if t.deps.Recovery == nil {
		return nil
	}
	return t.deps.Recovery.Clear(ctx)
}

func (t *Transaction) span(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("transaction.id", t.id.String()),
		attribute.String("transaction.kind", string(t.kind)),
		attribute.String("transaction.mode", t.mode.String()),
		attribute.Int("cart.size", len(t.lines)),
	))
}
