// internal/transaction/domain.go
package transaction

import (
	"errors"
	"log"
	"time"

	"retailpos/internal/invoice"
	"retailpos/internal/recovery"
	"retailpos/internal/rental"
	"retailpos/internal/stock"
	"retailpos/pkg/flatstore"
)

var (
	ErrFinalized         = errors.New("transaction already finalized")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrNoTarget          = errors.New("no target ledger given")
	ErrLedgerUnavailable = stock.ErrLedgerUnavailable
	ErrUnknownKind       = errors.New("unknown transaction kind")
)

// Kind tags the transaction variant. The tag doubles as the first line of the
// recovery slot.
type Kind = recovery.Kind

const (
	Sale   = recovery.KindSale
	Rental = recovery.KindRental
	Return = recovery.KindReturn
)

// Mode distinguishes the two halves of a rental.
type Mode int

const (
	CheckOut Mode = iota
	CheckIn
)

func (m Mode) String() string {
	if m == CheckIn {
		return "check-in"
	}
	return "check-out"
}

// State is the cart lifecycle: Empty, then Building on the first mutation,
// then Finalized for good.
type State int

const (
	Empty State = iota
	Building
	Finalized
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Finalized:
		return "finalized"
	default:
		return "empty"
	}
}

// Invoices holds one append-only log per transaction kind.
type Invoices struct {
	Sale   *invoice.Log
	Return *invoice.Log
	Rental *invoice.Log
}

func (iv Invoices) forKind(k Kind) *invoice.Log {
	switch k {
	case Sale:
		return iv.Sale
	case Return:
		return iv.Return
	case Rental:
		return iv.Rental
	}
	return nil
}

// Deps are the collaborators shared by every transaction of a session.
// Recovery and the invoice logs are optional.
type Deps struct {
	Stock    stock.Service
	Rentals  rental.Service
	Recovery *recovery.Log
	Invoices Invoices
	Store    *flatstore.Store

	CouponPath     string
	TaxRate        float64
	CouponDiscount float64
	LateFeeRate    float64

	Logger *log.Logger
	Now    func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Store == nil {
		d.Store = flatstore.New()
	}
	if d.TaxRate == 0 {
		d.TaxRate = 1.06
	}
	if d.CouponDiscount == 0 {
		d.CouponDiscount = 0.90
	}
	if d.LateFeeRate == 0 {
		d.LateFeeRate = 0.1
	}
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// ValidatePaymentCard reports whether number is exactly 16 decimal digits.
func ValidatePaymentCard(number string) bool {
	if len(number) != 16 {
		return false
	}
	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return false
		}
	}
	return true
}
