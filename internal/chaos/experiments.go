// internal/chaos/experiments.go
package chaos

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"retailpos/internal/recovery"
	"retailpos/internal/rental"
	"retailpos/internal/stock"
	"retailpos/internal/transaction"
	"retailpos/pkg/flatstore"
)

var (
	seedItems   = []string{"1000 Potato 1.0 249", "1001 PlasticCup 0.5 376", "1002 Lamp 12.75 20"}
	seedUsers   = []string{"User Database", "1234567890 1002,12/30/22,false"}
	seedCoupons = []string{"C001"}
)

// Lab is a scratch data directory holding a full set of ledgers, so
// experiments never touch a live terminal's files.
type Lab struct {
	Dir      string
	ItemDB   string
	UserDB   string
	CouponDB string
	TempFile string
	Deps     transaction.Deps

	store *flatstore.Store
}

// NewLab seeds dir with fresh ledgers.
func NewLab(ctx context.Context, dir string, logger *log.Logger) (*Lab, error) {
	store := flatstore.New()
	lab := &Lab{
		Dir:      dir,
		ItemDB:   filepath.Join(dir, "itemDatabase.txt"),
		UserDB:   filepath.Join(dir, "userDatabase.txt"),
		CouponDB: filepath.Join(dir, "couponNumber.txt"),
		TempFile: filepath.Join(dir, "temp.txt"),
		store:    store,
	}
	lab.Deps = transaction.Deps{
		Stock:      stock.NewLedger(store, logger),
		Rentals:    rental.NewLedger(store, lab.UserDB, rental.WithLogger(logger)),
		Recovery:   recovery.NewLog(store, lab.TempFile, logger),
		Store:      store,
		CouponPath: lab.CouponDB,
		Logger:     logger,
	}
	if err := lab.Reset(ctx); err != nil {
		return nil, err
	}
	return lab, nil
}

// Reset rewrites the seed ledgers and drops any recovery slot.
func (l *Lab) Reset(ctx context.Context) error {
	for path, lines := range map[string][]string{
		l.ItemDB:   seedItems,
		l.UserDB:   seedUsers,
		l.CouponDB: seedCoupons,
	} {
		if err := l.store.Rewrite(ctx, path, lines); err != nil {
			return fmt.Errorf("failed to seed lab: %w", err)
		}
	}
	return l.store.Remove(ctx, l.TempFile)
}

func (l *Lab) stockOf(ctx context.Context, id int) (float64, error) {
	items, err := l.Deps.Stock.Load(ctx, l.ItemDB)
	if err != nil {
		return 0, err
	}
	item, ok := stock.Lookup(items, id)
	if !ok {
		return 0, fmt.Errorf("item %d not in lab ledger", id)
	}
	return float64(item.Stock), nil
}

// RegisterExperiments registers all predefined chaos experiments with the engine.
func (e *Engine) RegisterExperiments(lab *Lab) {
	e.RegisterExperiment(InterruptedTransactionExperiment(lab))
	e.RegisterExperiment(StockConservationExperiment(lab))
	e.RegisterExperiment(CorruptedRecoverySlotExperiment(lab))
	e.RegisterExperiment(MissingLedgerExperiment(lab))
}

func ledgerReadable(lab *Lab) Metric {
	return Metric{
		Name: "stock_ledger_readable",
		Query: func(ctx context.Context) (float64, error) {
			if _, err := lab.Deps.Stock.Load(ctx, lab.ItemDB); err != nil {
				return 0, nil
			}
			return 1, nil
		},
		Threshold: Threshold{Operator: "==", Value: 1},
	}
}

func value(name string, v *float64) Metric {
	return Metric{
		Name:  name,
		Query: func(context.Context) (float64, error) { return *v, nil },
	}
}

// InterruptedTransactionExperiment abandons a sale mid-cart, as a crash
// would, then resumes it from the recovery slot and completes it.
func InterruptedTransactionExperiment(lab *Lab) Experiment {
	var recovered, charged float64

	return Experiment{
		Name:        "interrupted-transaction-resume",
		Hypothesis:  "A sale abandoned mid-cart is rebuilt from the recovery slot and settles exactly once",
		SteadyState: []Metric{ledgerReadable(lab)},
		Observe: []Metric{
			value("recovered_lines", &recovered),
			value("charged_amount", &charged),
			{
				Name: "recovery_slot_present",
				Query: func(context.Context) (float64, error) {
					if lab.Deps.Recovery.Exists() {
						return 1, nil
					}
					return 0, nil
				},
			},
			{
				Name:  "potato_stock",
				Query: func(ctx context.Context) (float64, error) { return lab.stockOf(ctx, 1000) },
			},
		},
		Method: []Action{
			{
				Type:   "crash",
				Target: lab.TempFile,
				Execute: func(ctx context.Context) error {
					if err := lab.Reset(ctx); err != nil {
						return err
					}
					tx := transaction.NewSale(lab.Deps)
					if !tx.Start(ctx, lab.ItemDB) {
						return transaction.ErrLedgerUnavailable
					}
					tx.AddLine(ctx, 1000, 2)
					tx.AddLine(ctx, 1001, 4)
					return nil
				},
			},
			{
				Type:   "restart",
				Target: lab.TempFile,
				Execute: func(ctx context.Context) error {
					rec, err := lab.Deps.Recovery.Read(ctx)
					if err != nil {
						return err
					}
					tx, err := transaction.Resume(ctx, lab.Deps, lab.ItemDB, rec, transaction.CheckOut)
					if err != nil {
						return err
					}
					recovered = float64(tx.CartSize())
					charged, err = tx.Finalize(ctx, lab.ItemDB)
					return err
				},
			},
		},
		Validation: []Assertion{
			{Metric: "recovered_lines", Condition: func(v float64) bool { return v == 2 }, Message: "Both cart lines should be recovered"},
			{Metric: "charged_amount", Condition: func(v float64) bool { return v > 0 }, Message: "The resumed sale should be charged"},
			{Metric: "recovery_slot_present", Condition: func(v float64) bool { return v == 0 }, Message: "The recovery slot should be cleared after settlement"},
			{Metric: "potato_stock", Condition: func(v float64) bool { return v == 247 }, Message: "Potato stock should drop by exactly 2"},
		},
	}
}

// StockConservationExperiment sells a cart and returns the same cart.
func StockConservationExperiment(lab *Lab) Experiment {
	var drift float64

	return Experiment{
		Name:        "sale-return-conservation",
		Hypothesis:  "Selling and then returning the same lines leaves every stock count unchanged",
		SteadyState: []Metric{ledgerReadable(lab)},
		Observe:     []Metric{value("stock_drift", &drift)},
		Method: []Action{
			{
				Type:   "sale-then-return",
				Target: lab.ItemDB,
				Execute: func(ctx context.Context) error {
					if err := lab.Reset(ctx); err != nil {
						return err
					}
					before, err := lab.Deps.Stock.Load(ctx, lab.ItemDB)
					if err != nil {
						return err
					}
					sale := transaction.NewSale(lab.Deps)
					ret := transaction.NewReturn(lab.Deps, 1234567890)
					for _, tx := range []*transaction.Transaction{sale, ret} {
						if !tx.Start(ctx, lab.ItemDB) {
							return transaction.ErrLedgerUnavailable
						}
						tx.AddLine(ctx, 1000, 3)
						tx.AddLine(ctx, 1002, 1)
						tx.AddLine(ctx, 4242, 1)
						if _, err := tx.Finalize(ctx, lab.ItemDB); err != nil {
							return err
						}
					}
					after, err := lab.Deps.Stock.Load(ctx, lab.ItemDB)
					if err != nil {
						return err
					}
					drift = 0
					for i := range before {
						d := before[i].Stock - after[i].Stock
						if d < 0 {
							d = -d
						}
						drift += float64(d)
					}
					return nil
				},
			},
		},
		Validation: []Assertion{
			{Metric: "stock_drift", Condition: func(v float64) bool { return v == 0 }, Message: "Net stock change should be zero"},
		},
	}
}

// CorruptedRecoverySlotExperiment damages the recovery slot and checks that
// the well-formed lines still come back.
func CorruptedRecoverySlotExperiment(lab *Lab) Experiment {
	var recovered float64
	slot := []string{"Sale", "1000 2", "%%garbage%%", "1001 1", "1002 x", "1002 3 extra", "1002 3"}

	return Experiment{
		Name:        "corrupted-recovery-slot",
		Hypothesis:  "Malformed recovery lines are skipped without losing the good ones",
		SteadyState: []Metric{ledgerReadable(lab)},
		Observe:     []Metric{value("recovered_lines", &recovered)},
		Method: []Action{
			{
				Type:   "corrupt",
				Target: lab.TempFile,
				Execute: func(ctx context.Context) error {
					if err := lab.store.Rewrite(ctx, lab.TempFile, slot); err != nil {
						return err
					}
					rec, err := lab.Deps.Recovery.Read(ctx)
					if err != nil {
						return err
					}
					recovered = float64(len(rec.Lines))
					return nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:    "restore",
				Target:  lab.TempFile,
				Execute: lab.Deps.Recovery.Clear,
			},
		},
		Validation: []Assertion{
			{Metric: "recovered_lines", Condition: func(v float64) bool { return v == 3 }, Message: "Three well-formed lines should be recovered"},
		},
	}
}

// MissingLedgerExperiment removes the stock file between cart building and
// settlement.
func MissingLedgerExperiment(lab *Lab) Experiment {
	var charged, cartLines, ledgerError float64
	moved := lab.ItemDB + ".chaos"

	return Experiment{
		Name:        "missing-ledger-finalize",
		Hypothesis:  "Settling against a missing stock ledger charges nothing and keeps the cart",
		SteadyState: []Metric{ledgerReadable(lab)},
		Observe: []Metric{
			value("charged_amount", &charged),
			value("cart_lines", &cartLines),
			value("ledger_error", &ledgerError),
		},
		Method: []Action{
			{
				Type:   "remove",
				Target: lab.ItemDB,
				Execute: func(ctx context.Context) error {
					if err := lab.Reset(ctx); err != nil {
						return err
					}
					tx := transaction.NewSale(lab.Deps)
					if !tx.Start(ctx, lab.ItemDB) {
						return transaction.ErrLedgerUnavailable
					}
					tx.AddLine(ctx, 1001, 10)
					if err := os.Rename(lab.ItemDB, moved); err != nil {
						return err
					}

					amount, err := tx.Finalize(ctx, lab.ItemDB)
					charged = amount
					cartLines = float64(tx.CartSize())
					ledgerError = 0
					if errors.Is(err, transaction.ErrLedgerUnavailable) {
						ledgerError = 1
					}
					return tx.Cancel(ctx)
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "restore",
				Target: lab.ItemDB,
				Execute: func(ctx context.Context) error {
					if err := os.Rename(moved, lab.ItemDB); err != nil && !errors.Is(err, fs.ErrNotExist) {
						return err
					}
					return nil
				},
			},
		},
		Validation: []Assertion{
			{Metric: "charged_amount", Condition: func(v float64) bool { return v == 0 }, Message: "Nothing should be charged"},
			{Metric: "cart_lines", Condition: func(v float64) bool { return v == 1 }, Message: "The cart should survive the failed settlement"},
			{Metric: "ledger_error", Condition: func(v float64) bool { return v == 1 }, Message: "The failure should be reported as an unavailable ledger"},
		},
	}
}
