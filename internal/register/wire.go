// internal/register/wire.go
package register

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"retailpos/internal/config"
	"retailpos/internal/employee"
	"retailpos/internal/invoice"
	"retailpos/internal/recovery"
	"retailpos/internal/rental"
	"retailpos/internal/stock"
	"retailpos/internal/transaction"
	"retailpos/pkg/flatstore"
)

// FromConfig builds a register over the files named in cfg. When the employee
// database is empty and cfg carries an admin password, the first
// administrator is created.
func FromConfig(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, logger *log.Logger) (*Register, error) {
	store := flatstore.New()

	employees := employee.NewService(store, cfg.EmployeeDB, cfg.EmployeeLog, employee.WithLogger(logger))
	if cfg.AdminPassword != "" {
		admin, err := employees.Bootstrap(ctx, cfg.AdminName, cfg.AdminPassword)
		switch {
		case err == nil:
			logger.Printf("created administrator %s (%s)", admin.Username, admin.Name)
		case !errors.Is(err, employee.ErrAlreadySeeded):
			return nil, fmt.Errorf("failed to bootstrap administrator: %w", err)
		}
	}

	deps := transaction.Deps{
		Stock:    stock.NewLedger(store, logger),
		Rentals:  rental.NewLedger(store, cfg.UserDB, rental.WithLogger(logger)),
		Recovery: recovery.NewLog(store, cfg.TempFile, logger),
		Invoices: transaction.Invoices{
			Sale:   invoice.NewLog(store, cfg.SaleInvoiceLog),
			Return: invoice.NewLog(store, cfg.ReturnInvoiceLog),
			Rental: invoice.NewLog(store, cfg.RentalInvoiceLog),
		},
		Store:          store,
		CouponPath:     cfg.CouponDB,
		TaxRate:        cfg.TaxRate,
		CouponDiscount: cfg.CouponDiscount,
		LateFeeRate:    cfg.LateFeeRate,
		Logger:         logger,
	}
	return New(employees, deps, cfg.ItemDB, in, out), nil
}
