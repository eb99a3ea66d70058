// internal/invoice/invoice.go
package invoice

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"retailpos/pkg/flatstore"
)

const timeLayout = "2006-01-02 15:04:05"

// Line is one billed row. Amount is the charge for the row before tax.
type Line struct {
	ItemID      int     `json:"item_id"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// Invoice is a completed transaction as written to the invoice log.
type Invoice struct {
	ID       uuid.UUID `json:"id"`
	Kind     string    `json:"kind"`
	Issued   time.Time `json:"issued"`
	Phone    int64     `json:"phone,omitempty"`
	Lines    []Line    `json:"lines"`
	Subtotal float64   `json:"subtotal"`
	Total    float64   `json:"total"`
}

// Tax is the difference between Total and Subtotal.
func (inv Invoice) Tax() float64 {
	return amount(inv.Total).Sub(amount(inv.Subtotal)).InexactFloat64()
}

// Render formats the invoice as log lines.
func (inv Invoice) Render() []string {
	out := make([]string, 0, len(inv.Lines)+6)
	out = append(out, fmt.Sprintf("Invoice %s %s %s", inv.ID, inv.Kind, inv.Issued.Format(timeLayout)))
	if inv.Phone != 0 {
		out = append(out, "Phone number: "+strconv.FormatInt(inv.Phone, 10))
	}
	for _, l := range inv.Lines {
		out = append(out, fmt.Sprintf("%d %s x%d @ %s = %s",
			l.ItemID, l.Description, l.Quantity, Format(l.UnitPrice), Format(l.Amount)))
	}
	out = append(out,
		"Subtotal: "+Format(inv.Subtotal),
		"Tax: "+Format(inv.Tax()),
		"Total with tax: "+Format(inv.Total),
		"",
	)
	return out
}

// Format renders a money amount rounded to cents without trailing zeros.
func Format(v float64) string {
	return amount(v).String()
}

func amount(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// Log is an append-only invoice file.
type Log struct {
	store *flatstore.Store
	path  string
}

// NewLog creates an invoice log at path.
func NewLog(store *flatstore.Store, path string) *Log {
	return &Log{store: store, path: path}
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Append writes inv to the end of the log.
func (l *Log) Append(ctx context.Context, inv Invoice) error {
	if err := l.store.Append(ctx, l.path, inv.Render()); err != nil {
		return fmt.Errorf("append invoice %s: %w", inv.ID, err)
	}
	return nil
}
