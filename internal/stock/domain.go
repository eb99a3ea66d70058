// internal/stock/domain.go
package stock

import (
	"fmt"
	"strconv"
	"strings"
)

// Item is one stock record: `id name unitPrice stockCount`.
type Item struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Stock     int     `json:"stock"`
}

// LineItem is a cart entry. Name and price are copied from the Item when the
// line enters the cart so later price edits do not affect it.
type LineItem struct {
	ItemID    int     `json:"item_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// Amount is UnitPrice * Quantity.
func (l LineItem) Amount() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

// Snapshot copies an item into a cart line with the requested quantity.
func (i Item) Snapshot(quantity int) LineItem {
	return LineItem{
		ItemID:    i.ID,
		Name:      i.Name,
		UnitPrice: i.UnitPrice,
		Quantity:  quantity,
	}
}

func parseItem(line string) (Item, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Item{}, fmt.Errorf("want 4 fields, got %d", len(fields))
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return Item{}, fmt.Errorf("item id: %w", err)
	}
	price, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Item{}, fmt.Errorf("unit price: %w", err)
	}
	count, err := strconv.Atoi(fields[3])
	if err != nil {
		return Item{}, fmt.Errorf("stock count: %w", err)
	}
	return Item{ID: id, Name: fields[1], UnitPrice: price, Stock: count}, nil
}

func (i Item) record() string {
	price := strconv.FormatFloat(i.UnitPrice, 'f', -1, 64)
	if !strings.ContainsAny(price, ".eE") {
		price += ".0"
	}
	return fmt.Sprintf("%d %s %s %d", i.ID, i.Name, price, i.Stock)
}
