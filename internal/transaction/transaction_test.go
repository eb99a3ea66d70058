package transaction

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"retailpos/internal/invoice"
	"retailpos/internal/recovery"
	"retailpos/internal/rental"
	"retailpos/internal/stock"
	"retailpos/pkg/flatstore"
)

const (
	customer  int64 = 1234567890
	stockData       = "1 Item1 10.0 5\n2 Item2 4.5 10\n1022 Lamp 3.0 2\n"
	userData        = "User Database\n1234567890 1,2,12/30/22,false 1022,4,01/03/23,false\n"
)

var fixedNow = time.Date(2023, time.January, 4, 15, 30, 0, 0, time.UTC)

type fixture struct {
	dir      string
	items    string
	users    string
	slot     string
	coupons  string
	invoices string
	deps     Deps
}

func newFixture(t testing.TB) *fixture {
	dir := t.TempDir()
	f := &fixture{
		dir:      dir,
		items:    filepath.Join(dir, "itemDatabase.txt"),
		users:    filepath.Join(dir, "userDatabase.txt"),
		slot:     filepath.Join(dir, "temp.txt"),
		coupons:  filepath.Join(dir, "couponNumber.txt"),
		invoices: filepath.Join(dir, "invoiceRecord.txt"),
	}
	mustWrite(t, f.items, stockData)
	mustWrite(t, f.users, userData)
	mustWrite(t, f.coupons, "C001\nC002\n")

	logger := log.New(io.Discard, "", 0)
	store := flatstore.New()
	invoices := invoice.NewLog(store, f.invoices)
	f.deps = Deps{
		Stock:    stock.NewLedger(store, logger),
		Rentals:  rental.NewLedger(store, f.users, rental.WithClock(func() time.Time { return fixedNow }), rental.WithLogger(logger)),
		Recovery: recovery.NewLog(store, f.slot, logger),
		Invoices: Invoices{Sale: invoices, Return: invoices, Rental: invoices},
		Store:    store,

		CouponPath:     f.coupons,
		TaxRate:        1.06,
		CouponDiscount: 0.90,
		LateFeeRate:    0.1,

		Logger: logger,
		Now:    func() time.Time { return fixedNow },
	}
	return f
}

func mustWrite(t testing.TB, path, content string) {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) stockOf(t *testing.T, id int) int {
	t.Helper()
	items, err := f.deps.Stock.Load(context.Background(), f.items)
	require.NoError(t, err)
	item, ok := stock.Lookup(items, id)
	require.True(t, ok)
	return item.Stock
}

func (f *fixture) started(t *testing.T, tx *Transaction) *Transaction {
	t.Helper()
	require.True(t, tx.Start(context.Background(), f.items))
	return tx
}

func TestSaleFinalize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.started(t, NewSale(f.deps))

	require.True(t, tx.AddLine(ctx, 1, 2))
	assert.Equal(t, "Sale\n1 2\n", read(t, f.slot))

	total, err := tx.Finalize(ctx, f.items)
	require.NoError(t, err)
	assert.InDelta(t, 21.2, total, 1e-9)
	assert.Equal(t, 3, f.stockOf(t, 1))
	assert.Contains(t, read(t, f.invoices), "Total with tax: 21.2\n")
	assert.NoFileExists(t, f.slot)
	assert.Equal(t, Finalized, tx.State())
	assert.Zero(t, tx.CartSize())
}

func TestFinalizedTransactionRejectsMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.started(t, NewSale(f.deps))
	require.True(t, tx.AddLine(ctx, 2, 1))
	_, err := tx.Finalize(ctx, f.items)
	require.NoError(t, err)

	total, err := tx.Finalize(ctx, f.items)
	assert.ErrorIs(t, err, ErrFinalized)
	assert.Zero(t, total)
	assert.False(t, tx.AddLine(ctx, 1, 1))
	assert.False(t, tx.RemoveLine(ctx, 2))
	assert.False(t, tx.ApplyCoupon(ctx, "C001"))
	assert.False(t, tx.Start(ctx, f.items))
	assert.ErrorIs(t, tx.Cancel(ctx), ErrFinalized)
	assert.Equal(t, 9, f.stockOf(t, 2))
}

func TestReturnFinalize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.started(t, NewReturn(f.deps, customer))

	require.True(t, tx.AddLine(ctx, 1022, 4))
	assert.Equal(t, "Return\n1234567890\n1022 4\n", read(t, f.slot))

	total, err := tx.Finalize(ctx, f.items)
	require.NoError(t, err)
	assert.InDelta(t, 12*1.06, total, 1e-9)
	assert.Equal(t, 6, f.stockOf(t, 1022))
	assert.Equal(t, "User Database\n1234567890 1,2,12/30/22,false 1022,4,01/03/23,true\n", read(t, f.users))
}

func TestRentalCheckOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.started(t, NewRentalCheckOut(f.deps, 5550001111))

	require.True(t, tx.AddLine(ctx, 2, 3))
	total, err := tx.Finalize(ctx, f.items)
	require.NoError(t, err)
	assert.InDelta(t, 13.5*1.06, total, 1e-9)
	assert.Equal(t, 7, f.stockOf(t, 2))
	assert.Contains(t, read(t, f.users), "5550001111 2,3,01/04/23,false\n")
}

func TestRentalCheckOutCompensatesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.started(t, NewRentalCheckOut(f.deps, customer))
	require.True(t, tx.AddLine(ctx, 2, 3))
	require.NoError(t, os.Remove(f.users))

	total, err := tx.Finalize(ctx, f.items)
	assert.Error(t, err)
	assert.Zero(t, total)
	assert.Equal(t, stockData, read(t, f.items))
	assert.Equal(t, 1, tx.CartSize())
	assert.Equal(t, Building, tx.State())
	assert.FileExists(t, f.slot)
}

func TestRentalCheckInLateFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.started(t, NewRentalCheckIn(f.deps, customer))

	require.True(t, tx.AddLine(ctx, 1, 2))
	total, err := tx.Finalize(ctx, f.items)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, total, 1e-9)
	assert.Equal(t, 7, f.stockOf(t, 1))
	assert.Equal(t, "User Database\n1234567890 1,2,12/30/22,true 1022,4,01/03/23,false\n", read(t, f.users))
	assert.Contains(t, read(t, f.invoices), "Item1(5-days-late)")
}

func TestRentalCheckInCapsAtRentedUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := f.started(t, NewRentalCheckOut(f.deps, 5550001111))
	require.True(t, out.AddLine(ctx, 2, 1))
	_, err := out.Finalize(ctx, f.items)
	require.NoError(t, err)
	require.Equal(t, 9, f.stockOf(t, 2))

	in := f.started(t, NewRentalCheckIn(f.deps, 5550001111))
	require.True(t, in.AddLine(ctx, 2, 5))
	total, err := in.Finalize(ctx, f.items)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, 10, f.stockOf(t, 2))
	assert.Contains(t, read(t, f.users), "5550001111 2,1,01/04/23,true\n")
	assert.Contains(t, read(t, f.invoices), "2 Item2(0-days-late) x1 @ 4.5 = 0")
}

func TestRentalCheckInBillsEachRental(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mustWrite(t, f.users, "User Database\n1234567890 1,12/30/22,false 1,01/03/23,false\n")

	tx := f.started(t, NewRentalCheckIn(f.deps, customer))
	require.True(t, tx.AddLine(ctx, 1, 1))
	total, err := tx.Finalize(ctx, f.items)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, total, 1e-9)
	assert.Equal(t, 6, f.stockOf(t, 1))

	outstanding := f.deps.Rentals.OutstandingRentals(ctx, customer)
	assert.Equal(t, []rental.Record{{ItemID: 1, Quantity: 1, DaysOutstanding: 1}}, outstanding)

	tx = f.started(t, NewRentalCheckIn(f.deps, customer))
	require.True(t, tx.AddLine(ctx, 1, 1))
	total, err = tx.Finalize(ctx, f.items)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Empty(t, f.deps.Rentals.OutstandingRentals(ctx, customer))
}

func TestRentalCheckInSpansRentals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mustWrite(t, f.users, "User Database\n1234567890 1,1,12/30/22,false 1,2,01/03/23,false\n")

	tx := f.started(t, NewRentalCheckIn(f.deps, customer))
	require.True(t, tx.AddLine(ctx, 1, 2))
	total, err := tx.Finalize(ctx, f.items)
	require.NoError(t, err)
	assert.InDelta(t, 5.0+1.0, total, 1e-9)
	assert.Equal(t, 7, f.stockOf(t, 1))
	assert.Equal(t, "User Database\n1234567890 1,1,12/30/22,true 1,1,01/03/23,false 1,1,01/03/23,true\n", read(t, f.users))
}

func TestRentalCheckInUnmatchedLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.started(t, NewRentalCheckIn(f.deps, customer))

	require.True(t, tx.AddLine(ctx, 2, 1))
	total, err := tx.Finalize(ctx, f.items)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, stockData, read(t, f.items))
	assert.Equal(t, userData, read(t, f.users))
	assert.NoFileExists(t, f.invoices)
}

func TestLateFee(t *testing.T) {
	line := stock.LineItem{ItemID: 1, UnitPrice: 10, Quantity: 2}
	assert.InDelta(t, 10.0, LateFee(line, 5, 0.1), 1e-9)
	assert.Zero(t, LateFee(line, 0, 0.1))
}

func TestEmptyCartFinalize(t *testing.T) {
	ctors := map[string]func(Deps) *Transaction{
		"sale":     NewSale,
		"return":   func(d Deps) *Transaction { return NewReturn(d, customer) },
		"checkout": func(d Deps) *Transaction { return NewRentalCheckOut(d, customer) },
		"checkin":  func(d Deps) *Transaction { return NewRentalCheckIn(d, customer) },
	}
	for name, ctor := range ctors {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			tx := f.started(t, ctor(f.deps))

			total, err := tx.Finalize(context.Background(), f.items)
			require.NoError(t, err)
			assert.Zero(t, total)
			assert.Equal(t, stockData, read(t, f.items))
			assert.Equal(t, userData, read(t, f.users))
			assert.NoFileExists(t, f.slot)
			assert.NoFileExists(t, f.invoices)
		})
	}
}

func TestFinalizeBlankTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.started(t, NewRentalCheckIn(f.deps, customer))
	require.True(t, tx.AddLine(ctx, 1, 2))

	total, err := tx.Finalize(ctx, "  ")
	assert.ErrorIs(t, err, ErrNoTarget)
	assert.Zero(t, total)
	assert.Equal(t, 1, tx.CartSize())
	assert.Equal(t, userData, read(t, f.users))
}

func TestFinalizeMissingLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.started(t, NewSale(f.deps))
	require.True(t, tx.AddLine(ctx, 1, 2))

	total, err := tx.Finalize(ctx, filepath.Join(f.dir, "missing.txt"))
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Zero(t, total)
	assert.Equal(t, 1, tx.CartSize())
	assert.FileExists(t, f.slot)
	assert.NoFileExists(t, f.invoices)

	total, err = tx.Finalize(ctx, f.items)
	require.NoError(t, err)
	assert.InDelta(t, 21.2, total, 1e-9)
}

func TestStartMissingLedger(t *testing.T) {
	f := newFixture(t)
	tx := NewSale(f.deps)
	assert.False(t, tx.Start(context.Background(), filepath.Join(f.dir, "missing.txt")))
	assert.False(t, tx.AddLine(context.Background(), 1, 1))
}

func TestAddLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.started(t, NewSale(f.deps))

	assert.False(t, tx.AddLine(ctx, 999, 1), "unknown item")
	assert.False(t, tx.AddLine(ctx, 1, 0), "zero quantity")
	assert.False(t, tx.AddLine(ctx, 1, -2), "negative quantity")
	assert.Equal(t, Empty, tx.State())
	assert.NoFileExists(t, f.slot)

	require.True(t, tx.AddLine(ctx, 1, 2))
	require.True(t, tx.AddLine(ctx, 2, 1))
	require.True(t, tx.AddLine(ctx, 1, 3))
	assert.False(t, tx.AddLine(ctx, 1, 1), "exceeds stock")

	assert.Equal(t, []stock.LineItem{
		{ItemID: 1, Name: "Item1", UnitPrice: 10, Quantity: 5},
		{ItemID: 2, Name: "Item2", UnitPrice: 4.5, Quantity: 1},
	}, tx.Cart())
	assert.InDelta(t, 54.5, tx.Total(), 1e-9)
	assert.Equal(t, "Sale\n1 5\n2 1\n", read(t, f.slot))

	last, err := tx.LastAddedLine()
	require.NoError(t, err)
	assert.Equal(t, 1, last.ItemID)
	assert.Equal(t, 5, last.Quantity)

	require.True(t, tx.RemoveLine(ctx, 1))
	last, err = tx.LastAddedLine()
	require.NoError(t, err)
	assert.Equal(t, 2, last.ItemID)
}

func TestAddLineReturnIgnoresStockLevel(t *testing.T) {
	f := newFixture(t)
	tx := f.started(t, NewReturn(f.deps, customer))
	assert.True(t, tx.AddLine(context.Background(), 1022, 50))
}

func TestRemoveLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.started(t, NewRentalCheckOut(f.deps, customer))
	require.True(t, tx.AddLine(ctx, 1, 1))
	require.True(t, tx.AddLine(ctx, 2, 2))

	assert.False(t, tx.RemoveLine(ctx, 1022))
	require.True(t, tx.RemoveLine(ctx, 1))
	assert.InDelta(t, 9.0, tx.Total(), 1e-9)
	assert.Equal(t, "Rental\n1234567890\n2 2\n", read(t, f.slot))

	require.NoError(t, os.Remove(f.slot))
	require.True(t, tx.RemoveLine(ctx, 2))
	assert.Equal(t, "Rental\n1234567890\n", read(t, f.slot))
	assert.Zero(t, tx.Total())
}

func TestLastAddedLineEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := NewSale(f.deps).LastAddedLine()
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestApplyCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.started(t, NewSale(f.deps))
	require.True(t, tx.AddLine(ctx, 1, 2))

	assert.False(t, tx.ApplyCoupon(ctx, "NOPE"))
	assert.InDelta(t, 20.0, tx.Total(), 1e-9)

	require.True(t, tx.ApplyCoupon(ctx, "C002"))
	assert.InDelta(t, 18.0, tx.Total(), 1e-9)
	assert.False(t, tx.ApplyCoupon(ctx, "C001"), "one coupon per transaction")

	require.True(t, tx.AddLine(ctx, 2, 2))
	assert.InDelta(t, 29.0*0.9, tx.Total(), 1e-9)

	total, err := tx.Finalize(ctx, f.items)
	require.NoError(t, err)
	assert.InDelta(t, 29.0*0.9*1.06, total, 1e-9)
}

func TestApplyCouponUnreadableSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, os.Remove(f.coupons))
	tx := f.started(t, NewSale(f.deps))
	require.True(t, tx.AddLine(ctx, 1, 1))

	assert.False(t, tx.ApplyCoupon(ctx, "C001"))
	assert.InDelta(t, 10.0, tx.Total(), 1e-9)
}

func TestUnknownCouponNeverChangesTotalProperty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		tx := NewSale(f.deps)
		tx.deps.Recovery = nil
		if !tx.Start(ctx, f.items) {
			rt.Fatalf("start failed")
		}
		tx.AddLine(ctx, 2, rapid.IntRange(1, 10).Draw(rt, "qty"))
		before := tx.Total()

		code := rapid.StringMatching(`[A-Za-z0-9]{0,8}`).Filter(func(s string) bool {
			return s != "C001" && s != "C002"
		}).Draw(rt, "code")
		if tx.ApplyCoupon(ctx, code) {
			rt.Fatalf("coupon %q accepted", code)
		}
		if tx.Total() != before {
			rt.Fatalf("total changed from %v to %v", before, tx.Total())
		}
	})
}

func TestNonPositiveQuantityInertProperty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		tx := NewSale(f.deps)
		tx.deps.Recovery = nil
		if !tx.Start(ctx, f.items) {
			rt.Fatalf("start failed")
		}
		tx.AddLine(ctx, 1, 1)
		before := tx.Cart()

		id := rapid.SampledFrom([]int{1, 2, 1022, 77}).Draw(rt, "id")
		qty := rapid.IntRange(-100, 0).Draw(rt, "qty")
		if tx.AddLine(ctx, id, qty) {
			rt.Fatalf("accepted quantity %d", qty)
		}
		if len(tx.Cart()) != len(before) || tx.Cart()[0] != before[0] {
			rt.Fatalf("cart changed: %v", tx.Cart())
		}
	})
}

func TestSaleThenReturnConservesStockProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.deps.Recovery = nil

		qty := map[int]int{
			1: rapid.IntRange(0, 5).Draw(rt, "qty1"),
			2: rapid.IntRange(0, 10).Draw(rt, "qty2"),
		}
		sale := NewSale(f.deps)
		ret := NewReturn(f.deps, customer)
		if !sale.Start(ctx, f.items) || !ret.Start(ctx, f.items) {
			rt.Fatalf("start failed")
		}
		for id, q := range qty {
			sale.AddLine(ctx, id, q)
			ret.AddLine(ctx, id, q)
		}
		if _, err := sale.Finalize(ctx, f.items); err != nil {
			rt.Fatalf("sale: %v", err)
		}
		if _, err := ret.Finalize(ctx, f.items); err != nil {
			rt.Fatalf("return: %v", err)
		}
		if got := read(t, f.items); got != stockData {
			rt.Fatalf("stock drifted:\n%s", got)
		}
	})
}

func TestValidatePaymentCard(t *testing.T) {
	tests := []struct {
		number string
		want   bool
	}{
		{"1234567812345678", true},
		{"12345678abcd5678", false},
		{"123456781234567", false},
		{"12345678123456789", false},
		{"", false},
		{"1234 5678 1234 5", false},
		{"１２３４５６７８１２３４５６７８", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidatePaymentCard(tt.number), tt.number)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.started(t, NewSale(f.deps))
	require.True(t, tx.AddLine(ctx, 1, 1))

	require.NoError(t, tx.Cancel(ctx))
	assert.NoFileExists(t, f.slot)
	assert.Equal(t, Finalized, tx.State())
	assert.Equal(t, stockData, read(t, f.items))
}

func TestResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mustWrite(t, f.slot, "Sale\n1 2\n999 1\nMalformed data\n2 1\n")

	rec, err := f.deps.Recovery.Read(ctx)
	require.NoError(t, err)
	tx, err := Resume(ctx, f.deps, f.items, rec, CheckOut)
	require.NoError(t, err)

	assert.Equal(t, Sale, tx.Kind())
	assert.Equal(t, 2, tx.CartSize())
	assert.InDelta(t, 24.5, tx.Total(), 1e-9)
	assert.Equal(t, "Sale\n1 2\n2 1\n", read(t, f.slot))
}

func TestResumeRentalCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mustWrite(t, f.slot, "Rental\n1234567890\n1 2\n")

	rec, err := f.deps.Recovery.Read(ctx)
	require.NoError(t, err)
	tx, err := Resume(ctx, f.deps, f.items, rec, CheckIn)
	require.NoError(t, err)
	assert.Equal(t, customer, tx.Phone())
	assert.Equal(t, CheckIn, tx.Mode())

	total, err := tx.Finalize(ctx, f.items)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, total, 1e-9)
}

func TestResumeErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := Resume(ctx, f.deps, f.items, nil, CheckOut)
	assert.ErrorIs(t, err, recovery.ErrNoSlot)

	_, err = Resume(ctx, f.deps, f.items, &recovery.Record{Phone: customer}, CheckOut)
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Resume(ctx, f.deps, filepath.Join(f.dir, "missing.txt"), &recovery.Record{Kind: Sale}, CheckOut)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}
