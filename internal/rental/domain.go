// internal/rental/domain.go
package rental

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	header     = "User Database"
	dateLayout = "01/02/06"
)

// Record is one unreturned rental for a customer. As an argument to
// MarkReturned, Quantity is the number of units coming back.
type Record struct {
	ItemID          int `json:"item_id"`
	Quantity        int `json:"quantity"`
	DaysOutstanding int `json:"days_outstanding"`
}

// entry is `itemId,quantity,MM/DD/YY,returned` on an account line. Entries
// written without a quantity (`itemId,MM/DD/YY,returned`) hold one unit.
type entry struct {
	itemID     int
	quantity   int
	checkedOut time.Time
	returned   bool
	raw        string // kept verbatim when the token does not parse
}

// account is one line of the rental ledger: `phone entry entry ...`.
type account struct {
	phone   int64
	entries []entry
}

func parseAccount(line string) (account, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return account{}, false
	}
	phone, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return account{}, false
	}
	acct := account{phone: phone}
	for _, tok := range fields[1:] {
		e, err := parseEntry(tok)
		if err != nil {
			e = entry{raw: tok}
		}
		acct.entries = append(acct.entries, e)
	}
	return acct, true
}

func parseEntry(tok string) (entry, error) {
	parts := strings.Split(tok, ",")
	qty := 1
	switch len(parts) {
	case 3:
	case 4:
		n, err := strconv.Atoi(parts[1])
		if err != nil || n <= 0 {
			return entry{}, fmt.Errorf("rental entry %q: bad quantity", tok)
		}
		qty = n
		parts = append(parts[:1], parts[2:]...)
	default:
		return entry{}, fmt.Errorf("rental entry %q: want 3 or 4 parts", tok)
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return entry{}, fmt.Errorf("rental entry %q: %w", tok, err)
	}
	date, err := time.Parse(dateLayout, parts[1])
	if err != nil {
		return entry{}, fmt.Errorf("rental entry %q: %w", tok, err)
	}
	returned, err := strconv.ParseBool(parts[2])
	if err != nil {
		return entry{}, fmt.Errorf("rental entry %q: %w", tok, err)
	}
	return entry{itemID: id, quantity: qty, checkedOut: date, returned: returned}, nil
}

func (e entry) valid() bool { return e.raw == "" }

func (e entry) String() string {
	if !e.valid() {
		return e.raw
	}
	return fmt.Sprintf("%d,%d,%s,%t", e.itemID, e.quantity, e.checkedOut.Format(dateLayout), e.returned)
}

func (e entry) outstanding(itemID int) bool {
	return e.valid() && !e.returned && e.itemID == itemID
}

// closeUnits marks up to qty outstanding units of itemID returned, oldest
// entry first. A partly returned entry is split into an outstanding entry
// and a returned one. It reports how many units were closed.
func (a *account) closeUnits(itemID, qty int) int {
	closed := 0
	entries := make([]entry, 0, len(a.entries)+1)
	for _, e := range a.entries {
		if closed == qty || !e.outstanding(itemID) {
			entries = append(entries, e)
			continue
		}
		take := min(qty-closed, e.quantity)
		closed += take
		if take == e.quantity {
			e.returned = true
			entries = append(entries, e)
			continue
		}
		back := e
		back.quantity = take
		back.returned = true
		e.quantity -= take
		entries = append(entries, e, back)
	}
	a.entries = entries
	return closed
}

func (a account) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(a.phone, 10))
	for _, e := range a.entries {
		b.WriteByte(' ')
		b.WriteString(e.String())
	}
	return b.String()
}

// daysBetween counts whole calendar days from checkout to now, never negative.
func daysBetween(checkedOut, now time.Time) int {
	from := time.Date(checkedOut.Year(), checkedOut.Month(), checkedOut.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := int(to.Sub(from).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
