// internal/rental/implementation.go
package rental

import (
	"context"
	"fmt"
	"log"
	"time"

	"retailpos/internal/stock"
	"retailpos/pkg/flatstore"
)

// ledger implements the Service interface over a single flat file.
type ledger struct {
	store  *flatstore.Store
	path   string
	now    func() time.Time
	logger *log.Logger
}

// Option configures the rental ledger.
type Option func(*ledger)

// WithClock overrides the clock used to date rentals and count days outstanding.
func WithClock(now func() time.Time) Option {
	return func(l *ledger) { l.now = now }
}

// WithLogger sets the logger for degraded reads and writes.
func WithLogger(logger *log.Logger) Option {
	return func(l *ledger) { l.logger = logger }
}

// NewLedger creates a customer rental ledger backed by path.
func NewLedger(store *flatstore.Store, path string, opts ...Option) Service {
	l := &ledger{
		store:  store,
		path:   path,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AccountExists reports whether phone has an account line. Read failures
// count as an unknown customer.
func (l *ledger) AccountExists(ctx context.Context, phone int64) bool {
	lines, err := l.store.Scan(ctx, l.path)
	if err != nil {
		l.logger.Printf("rental: account lookup for %d: %v", phone, err)
		return false
	}
	_, idx := findAccount(lines, phone)
	return idx >= 0
}

// CreateAccount appends an empty account line for phone.
func (l *ledger) CreateAccount(ctx context.Context, phone int64) bool {
	if l.AccountExists(ctx, phone) {
		return true
	}
	var lines []string
	if !l.store.Exists(l.path) {
		lines = append(lines, header)
	}
	lines = append(lines, account{phone: phone}.String())
	if err := l.store.Append(ctx, l.path, lines); err != nil {
		l.logger.Printf("rental: create account %d: %v", phone, err)
		return false
	}
	return true
}

// OutstandingRentals lists the customer's unreturned rentals in ledger order.
func (l *ledger) OutstandingRentals(ctx context.Context, phone int64) []Record {
	lines, err := l.store.Scan(ctx, l.path)
	if err != nil {
		l.logger.Printf("rental: outstanding rentals for %d: %v", phone, err)
		return []Record{}
	}
	acct, idx := findAccount(lines, phone)
	if idx < 0 {
		return []Record{}
	}

	now := l.now()
	records := []Record{}
	for _, e := range acct.entries {
		if !e.valid() || e.returned {
			continue
		}
		records = append(records, Record{
			ItemID:          e.itemID,
			Quantity:        e.quantity,
			DaysOutstanding: daysBetween(e.checkedOut, now),
		})
	}
	return records
}

// AddRental records one rental per cart line, dated today, with the line's
// quantity. Lines with quantity <= 0 are skipped. The account line
// is created when the customer has none. Nothing is written when the ledger
// file cannot be read.
func (l *ledger) AddRental(ctx context.Context, phone int64, items []stock.LineItem) error {
	lines, err := l.store.Scan(ctx, l.path)
	if err != nil {
		return fmt.Errorf("add rental for %d: %w", phone, err)
	}

	acct, idx := findAccount(lines, phone)
	if idx < 0 {
		acct = account{phone: phone}
		lines = append(lines, "")
		idx = len(lines) - 1
	}
	today := l.now()
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		acct.entries = append(acct.entries, entry{itemID: item.ItemID, quantity: item.Quantity, checkedOut: today})
	}
	lines[idx] = acct.String()

	if err := l.store.Rewrite(ctx, l.path, lines); err != nil {
		return fmt.Errorf("add rental for %d: %w", phone, err)
	}
	return nil
}

// MarkReturned closes Quantity outstanding units per record, oldest rental
// first. Units beyond what is outstanding, and ids with no outstanding
// rental, are ignored.
func (l *ledger) MarkReturned(ctx context.Context, phone int64, returned []Record) error {
	lines, err := l.store.Scan(ctx, l.path)
	if err != nil {
		return fmt.Errorf("mark returned for %d: %w", phone, err)
	}
	acct, idx := findAccount(lines, phone)
	if idx < 0 {
		return nil
	}

	changed := false
	for _, r := range returned {
		if r.Quantity > 0 && acct.closeUnits(r.ItemID, r.Quantity) > 0 {
			changed = true
		}
	}
	if !changed {
		return nil
	}

	lines[idx] = acct.String()
	if err := l.store.Rewrite(ctx, l.path, lines); err != nil {
		return fmt.Errorf("mark returned for %d: %w", phone, err)
	}
	return nil
}

func findAccount(lines []string, phone int64) (account, int) {
	for i, line := range lines {
		acct, ok := parseAccount(line)
		if ok && acct.phone == phone {
			return acct, i
		}
	}
	return account{}, -1
}
