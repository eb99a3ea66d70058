// internal/recovery/domain.go
package recovery

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the transaction type tag written on the first line of the slot.
type Kind string

const (
	KindSale   Kind = "Sale"
	KindRental Kind = "Rental"
	KindReturn Kind = "Return"
)

// ParseKind accepts the tag in any case, with or without a "Type:" prefix.
func ParseKind(s string) (Kind, bool) {
	s = strings.TrimSpace(s)
	if rest, ok := cutPrefixFold(s, "type:"); ok {
		s = strings.TrimSpace(rest)
	}
	for _, k := range []Kind{KindSale, KindRental, KindReturn} {
		if strings.EqualFold(s, string(k)) {
			return k, true
		}
	}
	return "", false
}

// Line is one cart entry as persisted in the slot.
type Line struct {
	ItemID   int `json:"item_id"`
	Quantity int `json:"quantity"`
}

func (l Line) String() string {
	return fmt.Sprintf("%d %d", l.ItemID, l.Quantity)
}

// Record is the persisted shadow of an in-flight transaction. Phone is zero
// when the transaction has no customer.
type Record struct {
	Kind  Kind   `json:"kind"`
	Phone int64  `json:"phone,omitempty"`
	Lines []Line `json:"lines"`
}

func parseLine(s string) (Line, bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Line{}, false
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return Line{}, false
	}
	qty, err := strconv.Atoi(fields[1])
	if err != nil {
		return Line{}, false
	}
	return Line{ItemID: id, Quantity: qty}, true
}

func parsePhone(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if rest, ok := cutPrefixFold(s, "phone number:"); ok {
		s = strings.TrimSpace(rest)
	}
	if strings.ContainsAny(s, " \t") {
		return 0, false
	}
	phone, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return phone, true
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
