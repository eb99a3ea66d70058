// internal/stock/implementation.go
package stock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"

	"retailpos/pkg/flatstore"
)

var ErrLedgerUnavailable = errors.New("stock ledger unavailable")

// Adjustment summarizes one reconciliation.
type Adjustment struct {
	Applied int // lines that changed a stock count
	Skipped int // unknown ids and non-positive quantities
}

// ledger implements the Service interface.
type ledger struct {
	store  *flatstore.Store
	logger *log.Logger
}

// NewLedger creates the stock ledger. One ledger is built per process and
// handed to everything that needs it.
func NewLedger(store *flatstore.Store, logger *log.Logger) Service {
	if logger == nil {
		logger = log.Default()
	}
	return &ledger{
		store:  store,
		logger: logger,
	}
}

// Load reads the stock file. Lines that fail to parse are skipped.
func (l *ledger) Load(ctx context.Context, source string) ([]Item, error) {
	lines, err := l.store.Scan(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}

	items := make([]Item, 0, len(lines))
	for n, line := range lines {
		item, err := parseItem(line)
		if err != nil {
			l.logger.Printf("stock: skipping %s line %d: %v", source, n+1, err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Reconcile applies the cart lines to items in place and writes items to
// target. taking subtracts quantities (sale, rental check-out); otherwise
// quantities are added back. Unknown ids and quantities <= 0 are skipped.
// items is only modified when the write succeeds.
func (l *ledger) Reconcile(ctx context.Context, target string, lines []LineItem, items []Item, taking bool) (Adjustment, error) {
	var adj Adjustment
	updated := slices.Clone(items)
	for _, line := range lines {
		if line.Quantity <= 0 {
			adj.Skipped++
			continue
		}
		idx := indexOf(updated, line.ItemID)
		if idx < 0 {
			adj.Skipped++
			continue
		}
		if taking {
			updated[idx].Stock -= line.Quantity
		} else {
			updated[idx].Stock += line.Quantity
		}
		adj.Applied++
	}

	records := make([]string, len(updated))
	for i, item := range updated {
		records[i] = item.record()
	}
	if err := l.store.Rewrite(ctx, target, records); err != nil {
		return Adjustment{}, fmt.Errorf("write stock ledger: %w", err)
	}
	copy(items, updated)
	return adj, nil
}

func indexOf(items []Item, id int) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
