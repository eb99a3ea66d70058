// internal/register/cart.go
package register

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"retailpos/internal/invoice"
	"retailpos/internal/transaction"
)

const cartHelp = `Commands:
  add <item id> <quantity>
  remove <item id>
  coupon <code>
  card <16 digit number>
  total
  done
  cancel
`

// cart runs the cart prompt until the transaction is finalized or
// cancelled. Running out of input leaves the recovery slot in place.
func (r *Register) cart(ctx context.Context, tx *transaction.Transaction) error {
	r.printf("%s %s started. Type help for commands.\n", tx.Kind(), tx.ID())
	for {
		line, err := r.prompt(ctx, "cart> ")
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch cmd, args := strings.ToLower(fields[0]), fields[1:]; cmd {
		case "add":
			r.add(ctx, tx, args)
		case "remove":
			r.remove(ctx, tx, args)
		case "coupon":
			if len(args) != 1 {
				r.printf("usage: coupon <code>\n")
			} else if tx.ApplyCoupon(ctx, args[0]) {
				r.printf("Coupon applied. Total: %s\n", invoice.Format(tx.Total()))
			} else {
				r.printf("Coupon rejected.\n")
			}
		case "card":
			if len(args) == 1 && tx.ValidatePaymentCard(args[0]) {
				r.printf("Card accepted.\n")
			} else {
				r.printf("Invalid card number.\n")
			}
		case "total":
			r.showCart(tx)
		case "done":
			if r.finish(ctx, tx) {
				return nil
			}
		case "cancel":
			if err := tx.Cancel(ctx); err != nil {
				r.deps.Logger.Printf("register: cancel: %v", err)
			}
			r.printf("Transaction cancelled.\n")
			return nil
		case "help":
			r.printf("%s", cartHelp)
		default:
			r.printf("Unknown command %q. Type help for commands.\n", cmd)
		}
	}
}

func (r *Register) add(ctx context.Context, tx *transaction.Transaction, args []string) {
	if len(args) != 2 {
		r.printf("usage: add <item id> <quantity>\n")
		return
	}
	id, err1 := strconv.Atoi(args[0])
	qty, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		r.printf("Item id and quantity must be whole numbers.\n")
		return
	}
	if !tx.AddLine(ctx, id, qty) {
		r.printf("Cannot add %d x item %d.\n", qty, id)
		return
	}
	last, _ := tx.LastAddedLine()
	r.printf("Added %s. Total: %s\n", last.Name, invoice.Format(tx.Total()))
}

func (r *Register) remove(ctx context.Context, tx *transaction.Transaction, args []string) {
	if len(args) != 1 {
		r.printf("usage: remove <item id>\n")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || !tx.RemoveLine(ctx, id) {
		r.printf("Item %s is not in the cart.\n", args[0])
		return
	}
	r.printf("Removed item %d. Total: %s\n", id, invoice.Format(tx.Total()))
}

func (r *Register) showCart(tx *transaction.Transaction) {
	for _, line := range tx.Cart() {
		r.printf("  %d %s x%d @ %s\n", line.ItemID, line.Name, line.Quantity, invoice.Format(line.UnitPrice))
	}
	r.printf("Total: %s\n", invoice.Format(tx.Total()))
}

// finish settles the transaction. It reports false when the cashier should
// stay in the cart, for instance when the stock ledger could not be read.
func (r *Register) finish(ctx context.Context, tx *transaction.Transaction) bool {
	amount, err := tx.Finalize(ctx, r.itemDB)
	if err != nil {
		if errors.Is(err, transaction.ErrFinalized) {
			return true
		}
		r.printf("Transaction could not be completed: %v\n", err)
		return false
	}

	switch {
	case tx.Kind() == transaction.Return:
		r.printf("Refund with tax: %s\n", invoice.Format(amount))
	case tx.Kind() == transaction.Rental && tx.Mode() == transaction.CheckIn:
		r.printf("Late fees: %s\n", invoice.Format(amount))
	default:
		r.printf("Total with tax: %s\n", invoice.Format(amount))
	}
	return true
}
