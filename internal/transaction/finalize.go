// internal/transaction/finalize.go
package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"retailpos/internal/invoice"
	"retailpos/internal/rental"
	"retailpos/internal/stock"
)

var ErrNoCustomerLedger = errors.New("no customer rental ledger configured")

// settlement is what a variant charged (or refunded) and the rows to bill.
type settlement struct {
	subtotal float64
	total    float64
	lines    []invoice.Line
}

// finalizer settles a non-empty cart against items, freshly loaded from
// target. It must leave the ledgers as they were when it returns an error.
type finalizer func(ctx context.Context, t *Transaction, items []stock.Item, target string) (settlement, error)

func finalizerFor(kind Kind, mode Mode) finalizer {
	switch {
	case kind == Return:
		return finalizeReturn
	case kind == Rental && mode == CheckIn:
		return finalizeCheckIn
	case kind == Rental:
		return finalizeCheckOut
	default:
		return finalizeSale
	}
}

// Finalize settles the cart against the stock file at target and returns the
// amount charged or refunded. An empty cart settles for 0 without touching
// any ledger. On error the amount is 0 and the cart is left as it was so the
// cashier can retry; a blank target aborts the same way.
func (t *Transaction) Finalize(ctx context.Context, target string) (float64, error) {
	if t.state == Finalized {
		return 0, ErrFinalized
	}
	ctx, span := t.span(ctx, "transaction.finalize")
	defer span.End()

	if strings.TrimSpace(target) == "" {
		return 0, ErrNoTarget
	}
	if len(t.lines) == 0 {
		t.state = Finalized
		if err := t.clearSlot(ctx); err != nil {
			t.deps.Logger.Printf("transaction %s: clear recovery slot: %v", t.id, err)
		}
		return 0, nil
	}

	items, err := t.deps.Stock.Load(ctx, target)
	if err != nil {
		span.RecordError(err)
		t.deps.Logger.Printf("transaction %s: finalize aborted: %v", t.id, err)
		return 0, err
	}

	s, err := t.finalize(ctx, t, items, target)
	if err != nil {
		span.RecordError(err)
		t.deps.Logger.Printf("transaction %s: finalize aborted: %v", t.id, err)
		return 0, err
	}

	if len(s.lines) > 0 {
		t.issueInvoice(ctx, s)
	}
	if err := t.clearSlot(ctx); err != nil {
		t.deps.Logger.Printf("transaction %s: clear recovery slot: %v", t.id, err)
	}
	t.lines = t.lines[:0]
	t.total = 0
	t.state = Finalized

	attrs := metric.WithAttributes(
		attribute.String("transaction.kind", string(t.kind)),
		attribute.String("transaction.mode", t.mode.String()),
	)
	finalizedCounter.Add(ctx, 1, attrs)
	amountCounter.Add(ctx, s.total, attrs)
	span.SetAttributes(attribute.Float64("transaction.amount", s.total))
	return s.total, nil
}

func finalizeSale(ctx context.Context, t *Transaction, items []stock.Item, target string) (settlement, error) {
	if _, err := t.deps.Stock.Reconcile(ctx, target, t.lines, items, true); err != nil {
		return settlement{}, fmt.Errorf("finalize sale: %w", err)
	}
	return t.taxed(), nil
}

// finalizeReturn restocks the cart and refunds it with tax. The customer's
// matching rentals are closed when a rental ledger is available.
func finalizeReturn(ctx context.Context, t *Transaction, items []stock.Item, target string) (settlement, error) {
	if _, err := t.deps.Stock.Reconcile(ctx, target, t.lines, items, false); err != nil {
		return settlement{}, fmt.Errorf("finalize return: %w", err)
	}
	if t.deps.Rentals != nil && t.phone != 0 {
		if err := t.deps.Rentals.MarkReturned(ctx, t.phone, recordsFor(t.lines)); err != nil {
			t.deps.Logger.Printf("transaction %s: mark returned for %d: %v", t.id, t.phone, err)
		}
	}
	return t.taxed(), nil
}

// finalizeCheckOut takes the units out of stock and records them against the
// customer. If the rental cannot be recorded the stock change is undone.
func finalizeCheckOut(ctx context.Context, t *Transaction, items []stock.Item, target string) (settlement, error) {
	if t.deps.Rentals == nil {
		return settlement{}, ErrNoCustomerLedger
	}
	if _, err := t.deps.Stock.Reconcile(ctx, target, t.lines, items, true); err != nil {
		return settlement{}, fmt.Errorf("finalize rental: %w", err)
	}
	if err := t.deps.Rentals.AddRental(ctx, t.phone, t.lines); err != nil {
		t.deps.Logger.Printf("transaction %s: compensating stock for failed rental: %v", t.id, err)
		if _, cerr := t.deps.Stock.Reconcile(ctx, target, t.lines, items, false); cerr != nil {
			t.deps.Logger.Printf("transaction %s: failed to compensate stock: %v", t.id, cerr)
		}
		return settlement{}, fmt.Errorf("finalize rental: %w", err)
	}
	return t.taxed(), nil
}

// finalizeCheckIn bills late fees for the units in the cart that the
// customer has outstanding, restocks those units and closes the rentals.
// Units are matched against rentals oldest first; units beyond what is
// outstanding are neither billed nor restocked.
func finalizeCheckIn(ctx context.Context, t *Transaction, items []stock.Item, target string) (settlement, error) {
	if t.deps.Rentals == nil {
		return settlement{}, ErrNoCustomerLedger
	}
	outstanding := t.deps.Rentals.OutstandingRentals(ctx, t.phone)

	var (
		s        settlement
		matched  []stock.LineItem
		returned []rental.Record
	)
	for _, line := range t.lines {
		billed := matchRentals(outstanding, line.ItemID, line.Quantity)
		if len(billed) == 0 {
			t.deps.Logger.Printf("transaction %s: item %d is not rented by %d", t.id, line.ItemID, t.phone)
			continue
		}
		units := 0
		for _, rec := range billed {
			part := line
			part.Quantity = rec.Quantity
			fee := LateFee(part, rec.DaysOutstanding, t.deps.LateFeeRate)
			s.subtotal += fee
			units += rec.Quantity
			s.lines = append(s.lines, invoice.Line{
				ItemID:      line.ItemID,
				Description: fmt.Sprintf("%s(%d-days-late)", line.Name, rec.DaysOutstanding),
				Quantity:    rec.Quantity,
				UnitPrice:   line.UnitPrice,
				Amount:      fee,
			})
		}
		if units < line.Quantity {
			t.deps.Logger.Printf("transaction %s: %d of %d units of item %d are not rented by %d",
				t.id, line.Quantity-units, line.Quantity, line.ItemID, t.phone)
		}
		back := line
		back.Quantity = units
		matched = append(matched, back)
		returned = append(returned, billed...)
	}
	if len(matched) == 0 {
		return settlement{}, nil
	}

	if _, err := t.deps.Stock.Reconcile(ctx, target, matched, items, false); err != nil {
		return settlement{}, fmt.Errorf("finalize rental return: %w", err)
	}
	if err := t.deps.Rentals.MarkReturned(ctx, t.phone, returned); err != nil {
		t.deps.Logger.Printf("transaction %s: compensating stock for failed rental return: %v", t.id, err)
		if _, cerr := t.deps.Stock.Reconcile(ctx, target, matched, items, true); cerr != nil {
			t.deps.Logger.Printf("transaction %s: failed to compensate stock: %v", t.id, cerr)
		}
		return settlement{}, fmt.Errorf("finalize rental return: %w", err)
	}

	if t.couponApplied {
		s.subtotal *= t.deps.CouponDiscount
	}
	s.total = s.subtotal
	lateFeeCounter.Add(ctx, s.total)
	return s, nil
}

// LateFee is quantity * unitPrice * rate * daysOutstanding.
func LateFee(line stock.LineItem, daysOutstanding int, rate float64) float64 {
	return float64(line.Quantity) * line.UnitPrice * rate * float64(daysOutstanding)
}

func (t *Transaction) taxed() settlement {
	s := settlement{
		subtotal: t.total,
		total:    t.total * t.deps.TaxRate,
		lines:    make([]invoice.Line, 0, len(t.lines)),
	}
	for _, line := range t.lines {
		s.lines = append(s.lines, invoice.Line{
			ItemID:      line.ItemID,
			Description: line.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Amount:      line.Amount(),
		})
	}
	return s
}

// issueInvoice appends the invoice. Stock is already committed at this point,
// so a failure is logged and the transaction still completes.
func (t *Transaction) issueInvoice(ctx context.Context, s settlement) {
	log := t.deps.Invoices.forKind(t.kind)
	if log == nil {
		return
	}
	inv := invoice.Invoice{
		ID:       t.id,
		Kind:     string(t.kind),
		Issued:   t.deps.Now(),
		Phone:    t.phone,
		Lines:    s.lines,
		Subtotal: s.subtotal,
		Total:    s.total,
	}
	if err := log.Append(ctx, inv); err != nil {
		t.deps.Logger.Printf("transaction %s: %v", t.id, err)
	}
}

// matchRentals takes up to qty units of itemID from records in order and
// returns the part of each record that was taken.
func matchRentals(records []rental.Record, itemID, qty int) []rental.Record {
	var out []rental.Record
	for _, r := range records {
		if qty <= 0 {
			break
		}
		if r.ItemID != itemID || r.Quantity <= 0 {
			continue
		}
		take := min(qty, r.Quantity)
		out = append(out, rental.Record{ItemID: itemID, Quantity: take, DaysOutstanding: r.DaysOutstanding})
		qty -= take
	}
	return out
}

func recordsFor(lines []stock.LineItem) []rental.Record {
	out := make([]rental.Record, len(lines))
	for i, l := range lines {
		out[i] = rental.Record{ItemID: l.ItemID, Quantity: l.Quantity}
	}
	return out
}
