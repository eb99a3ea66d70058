// internal/recovery/log.go
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"retailpos/pkg/flatstore"
)

var ErrNoSlot = errors.New("no transaction in progress")

// Log is the single recovery slot. The whole slot is rewritten on every cart
// change; carts are small and there is one terminal.
type Log struct {
	store  *flatstore.Store
	path   string
	logger *log.Logger
}

// NewLog creates a recovery log backed by path.
func NewLog(store *flatstore.Store, path string, logger *log.Logger) *Log {
	if logger == nil {
		logger = log.Default()
	}
	return &Log{store: store, path: path, logger: logger}
}

// Path returns the slot file location.
func (l *Log) Path() string { return l.path }

// Write replaces the slot with kind, phone (when non-zero) and lines.
func (l *Log) Write(ctx context.Context, kind Kind, phone int64, lines []Line) error {
	out := make([]string, 0, len(lines)+2)
	out = append(out, string(kind))
	if phone != 0 {
		out = append(out, strconv.FormatInt(phone, 10))
	}
	for _, line := range lines {
		out = append(out, line.String())
	}
	if err := l.store.Rewrite(ctx, l.path, out); err != nil {
		return fmt.Errorf("write recovery slot: %w", err)
	}
	return nil
}

// Read parses the slot. Lines that do not parse are skipped so a partly
// damaged slot still recovers what it can.
func (l *Log) Read(ctx context.Context) (*Record, error) {
	raw, err := l.store.Scan(ctx, l.path)
	if errors.Is(err, flatstore.ErrNotFound) {
		return nil, ErrNoSlot
	}
	if err != nil {
		return nil, fmt.Errorf("read recovery slot: %w", err)
	}

	rec := &Record{Lines: []Line{}}
	for i, s := range raw {
		if i == 0 {
			if kind, ok := ParseKind(s); ok {
				rec.Kind = kind
				continue
			}
		}
		if rec.Phone == 0 && len(rec.Lines) == 0 {
			if phone, ok := parsePhone(s); ok {
				rec.Phone = phone
				continue
			}
		}
		line, ok := parseLine(s)
		if !ok {
			l.logger.Printf("recovery: skipping malformed line %d: %q", i+1, s)
			continue
		}
		rec.Lines = append(rec.Lines, line)
	}
	return rec, nil
}

// DeleteLine rewrites the slot without the lines for itemID. Header and
// phone lines and the order of the remaining lines are kept.
func (l *Log) DeleteLine(ctx context.Context, itemID int) error {
	raw, err := l.store.Scan(ctx, l.path)
	if errors.Is(err, flatstore.ErrNotFound) {
		return ErrNoSlot
	}
	if err != nil {
		return fmt.Errorf("read recovery slot: %w", err)
	}

	kept := make([]string, 0, len(raw))
	for _, s := range raw {
		if line, ok := parseLine(s); ok && line.ItemID == itemID {
			continue
		}
		kept = append(kept, s)
	}
	if err := l.store.Rewrite(ctx, l.path, kept); err != nil {
		return fmt.Errorf("rewrite recovery slot: %w", err)
	}
	return nil
}

// Clear removes the slot.
func (l *Log) Clear(ctx context.Context) error {
	return l.store.Remove(ctx, l.path)
}

// Exists reports whether a transaction is in progress.
func (l *Log) Exists() bool {
	return l.store.Exists(l.path)
}
