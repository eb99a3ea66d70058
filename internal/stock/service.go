// internal/stock/service.go
package stock

import "context"

// Service defines the interface for the stock ledger.
type Service interface {
	Load(ctx context.Context, source string) ([]Item, error)
	Reconcile(ctx context.Context, target string, lines []LineItem, items []Item, taking bool) (Adjustment, error)
}

// Lookup finds the item with the given id.
func Lookup(items []Item, id int) (Item, bool) {
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}
