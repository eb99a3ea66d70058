// internal/register/register.go
package register

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"strconv"
	"strings"
	"sync"

	"retailpos/internal/employee"
	"retailpos/internal/recovery"
	"retailpos/internal/transaction"
)

// errQuit ends the session loop when input runs out or the cashier exits.
var errQuit = errors.New("quit")

// Register is one terminal session: sign-in, crash recovery, the role menu
// and the cart prompt, driven line by line from in.
type Register struct {
	employees employee.Service
	deps      transaction.Deps
	itemDB    string

	in    *bufio.Scanner
	lines chan inputLine
	once  sync.Once
	out   io.Writer
}

type inputLine struct {
	text string
	err  error
}

// New creates a register reading commands from in and writing to out.
// Transactions are priced from and settled against the stock file itemDB.
func New(employees employee.Service, deps transaction.Deps, itemDB string, in io.Reader, out io.Writer) *Register {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Register{
		employees: employees,
		deps:      deps,
		itemDB:    itemDB,
		in:        bufio.NewScanner(in),
		lines:     make(chan inputLine),
		out:       out,
	}
}

// Run serves sign-in sessions until input is exhausted, a user exits or ctx
// is cancelled. An interrupted cart stays in the recovery slot.
func (r *Register) Run(ctx context.Context) error {
	for {
		user, role, err := r.login(ctx)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			return err
		}

		err = r.offerResume(ctx)
		if err == nil {
			err = r.menu(ctx, user, role)
		}
		if lerr := r.employees.LogOut(context.WithoutCancel(ctx), user); lerr != nil {
			r.deps.Logger.Printf("register: %v", lerr)
		}
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			return err
		}
		r.printf("Logged out.\n")
	}
}

func (r *Register) login(ctx context.Context) (*employee.Employee, employee.Role, error) {
	for {
		username, err := r.prompt(ctx, "Username: ")
		if err != nil {
			return nil, employee.RoleNone, err
		}
		password, err := r.prompt(ctx, "Password: ")
		if err != nil {
			return nil, employee.RoleNone, err
		}
		user, role := r.employees.LogIn(ctx, username, password)
		if role == employee.RoleNone {
			r.printf("Login failed.\n")
			continue
		}
		r.printf("Welcome, %s (%s).\n", user.Name, user.Position)
		return user, role, nil
	}
}

// offerResume asks whether to continue a transaction left in the recovery
// slot by a previous session.
func (r *Register) offerResume(ctx context.Context) error {
	slot := r.deps.Recovery
	if slot == nil || !slot.Exists() {
		return nil
	}
	rec, err := slot.Read(ctx)
	if err != nil {
		r.deps.Logger.Printf("register: read recovery slot: %v", err)
		return nil
	}

	kind := string(rec.Kind)
	if kind == "" {
		kind = "unknown"
	}
	ok, err := r.confirm(ctx, fmt.Sprintf("Unfinished %s transaction with %d line(s) found. Resume? (y/n) ", kind, len(rec.Lines)))
	if err != nil {
		return err
	}
	if !ok {
		if err := slot.Clear(ctx); err != nil {
			r.deps.Logger.Printf("register: clear recovery slot: %v", err)
		}
		return nil
	}

	if rec.Kind == "" {
		kind, err := r.prompt(ctx, "Transaction type? (sale/rental/return) ")
		if err != nil {
			return err
		}
		k, ok := recovery.ParseKind(strings.TrimSpace(kind))
		if !ok {
			r.printf("Unknown transaction type %q. The unfinished transaction is kept.\n", strings.TrimSpace(kind))
			return nil
		}
		rec.Kind = k
	}
	if rec.Kind != transaction.Sale && rec.Phone == 0 {
		phone, err := r.phone(ctx)
		if err != nil {
			return err
		}
		if phone == 0 {
			r.printf("The unfinished transaction is kept.\n")
			return nil
		}
		rec.Phone = phone
	}

	mode := transaction.CheckOut
	if rec.Kind == transaction.Rental {
		in, err := r.confirm(ctx, "Is this a rental return? (y/n) ")
		if err != nil {
			return err
		}
		if in {
			mode = transaction.CheckIn
		}
	}

	tx, err := transaction.Resume(ctx, r.deps, r.itemDB, rec, mode)
	if err != nil {
		r.printf("Cannot resume: %v\n", err)
		return nil
	}
	r.printf("Resumed %s with %d line(s).\n", tx.Kind(), tx.CartSize())
	return r.cart(ctx, tx)
}

func (r *Register) menu(ctx context.Context, user *employee.Employee, role employee.Role) error {
	for {
		line, err := r.prompt(ctx, menuFor(role))
		if err != nil {
			return err
		}
		cmd := strings.ToLower(strings.TrimSpace(line))
		if !allowed(role, cmd) {
			r.printf("Unknown or forbidden command %q.\n", cmd)
			continue
		}

		switch cmd {
		case "sale":
			err = r.begin(ctx, transaction.NewSale(r.deps))
		case "rental":
			err = r.rental(ctx)
		case "return":
			err = r.customerTransaction(ctx, transaction.NewReturn)
		case "employees":
			err = r.manageEmployees(ctx)
		case "logout":
			return nil
		case "exit", "quit":
			return errQuit
		}
		if err != nil {
			return err
		}
	}
}

func (r *Register) rental(ctx context.Context) error {
	line, err := r.prompt(ctx, "Check out or check in? (out/in) ")
	if err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "out":
		return r.customerTransaction(ctx, transaction.NewRentalCheckOut)
	case "in":
		return r.customerTransaction(ctx, transaction.NewRentalCheckIn)
	}
	r.printf("Please answer out or in.\n")
	return nil
}

// customerTransaction asks for the customer's phone, opening an account for
// new customers, and starts the transaction.
func (r *Register) customerTransaction(ctx context.Context, newTx func(transaction.Deps, int64) *transaction.Transaction) error {
	phone, err := r.phone(ctx)
	if err != nil {
		return err
	}
	if phone == 0 {
		return nil
	}
	tx := newTx(r.deps, phone)
	if r.deps.Rentals != nil && !r.deps.Rentals.AccountExists(ctx, phone) {
		if tx.Kind() == transaction.Rental && tx.Mode() == transaction.CheckIn {
			r.printf("No account for %d.\n", phone)
			return nil
		}
		if !r.deps.Rentals.CreateAccount(ctx, phone) {
			r.printf("Could not create an account for %d.\n", phone)
			return nil
		}
		r.printf("New customer account %d created.\n", phone)
	}
	if tx.Kind() == transaction.Rental && tx.Mode() == transaction.CheckIn {
		r.showOutstanding(ctx, phone)
	}
	return r.begin(ctx, tx)
}

func (r *Register) showOutstanding(ctx context.Context, phone int64) {
	records := r.deps.Rentals.OutstandingRentals(ctx, phone)
	if len(records) == 0 {
		r.printf("Customer %d has no outstanding rentals.\n", phone)
		return
	}
	r.printf("Outstanding rentals:\n")
	for _, rec := range records {
		r.printf("  item %d x%d, %d day(s)\n", rec.ItemID, rec.Quantity, rec.DaysOutstanding)
	}
}

func (r *Register) begin(ctx context.Context, tx *transaction.Transaction) error {
	if !tx.Start(ctx, r.itemDB) {
		r.printf("Stock ledger unavailable.\n")
		return nil
	}
	return r.cart(ctx, tx)
}

// phone reads a 10 digit phone number. It returns 0 when the input is not
// one.
func (r *Register) phone(ctx context.Context) (int64, error) {
	line, err := r.prompt(ctx, "Customer phone number: ")
	if err != nil {
		return 0, err
	}
	line = strings.TrimSpace(line)
	if len(line) != 10 || strings.Trim(line, "0123456789") != "" {
		r.printf("Invalid phone number.\n")
		return 0, nil
	}
	phone, err := strconv.ParseInt(line, 10, 64)
	if err != nil || phone == 0 {
		r.printf("Invalid phone number.\n")
		return 0, nil
	}
	return phone, nil
}

// prompt prints text and waits for the next input line or for ctx to end.
func (r *Register) prompt(ctx context.Context, text string) (string, error) {
	r.printf("%s", text)
	r.once.Do(func() { go r.read() })
	select {
	case <-ctx.Done():
		return "", errQuit
	case line, ok := <-r.lines:
		if !ok {
			return "", errQuit
		}
		if line.err != nil {
			return "", fmt.Errorf("read input: %w", line.err)
		}
		return line.text, nil
	}
}

// read feeds input lines to prompt. A blocked terminal read cannot be
// interrupted, so the goroutine outlives a cancelled session.
func (r *Register) read() {
	defer close(r.lines)
	for r.in.Scan() {
		r.lines <- inputLine{text: r.in.Text()}
	}
	if err := r.in.Err(); err != nil {
		r.lines <- inputLine{err: err}
	}
}

func (r *Register) confirm(ctx context.Context, text string) (bool, error) {
	line, err := r.prompt(ctx, text)
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func (r *Register) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

var commands = map[employee.Role][]string{
	employee.RoleCashier: {"sale", "rental", "return", "logout", "exit", "quit"},
	employee.RoleAdmin:   {"sale", "rental", "return", "employees", "logout", "exit", "quit"},
}

func allowed(role employee.Role, cmd string) bool {
	return slices.Contains(commands[role], cmd)
}

func menuFor(role employee.Role) string {
	if role == employee.RoleAdmin {
		return "[sale | rental | return | employees | logout | exit] > "
	}
	return "[sale | rental | return | logout | exit] > "
}
