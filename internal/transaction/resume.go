// internal/transaction/resume.go
package transaction

import (
	"context"
	"fmt"

	"retailpos/internal/recovery"
)

// Resume rebuilds an interrupted transaction from its recovery record,
// pricing lines from the stock at source. Lines for items that are gone from
// the ledger, or that no longer fit in stock, are dropped. The slot is
// rewritten to match the rebuilt cart. mode picks the rental half since the
// slot only records the kind.
func Resume(ctx context.Context, deps Deps, source string, rec *recovery.Record, mode Mode) (*Transaction, error) {
	if rec == nil {
		return nil, recovery.ErrNoSlot
	}
	t, err := New(deps, rec.Kind, mode, rec.Phone)
	if err != nil {
		return nil, err
	}
	if !t.Start(ctx, source) {
		return nil, fmt.Errorf("resume %s: %w", rec.Kind, ErrLedgerUnavailable)
	}

	t.restoring = true
	for _, line := range rec.Lines {
		if !t.AddLine(ctx, line.ItemID, line.Quantity) {
			t.deps.Logger.Printf("transaction %s: dropping recovered line %s", t.id, line)
		}
	}
	t.restoring = false
	t.mirror(ctx)
	return t, nil
}
