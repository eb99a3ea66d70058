// internal/rental/service.go
package rental

import (
	"context"

	"retailpos/internal/stock"
)

// Service defines the interface for the customer rental ledger.
type Service interface {
	AccountExists(ctx context.Context, phone int64) bool
	CreateAccount(ctx context.Context, phone int64) bool
	OutstandingRentals(ctx context.Context, phone int64) []Record
	AddRental(ctx context.Context, phone int64, lines []stock.LineItem) error
	MarkReturned(ctx context.Context, phone int64, returned []Record) error
}
