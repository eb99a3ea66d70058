package flatstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotFound  = errors.New("record file not found")
	ErrNotAFile  = errors.New("record path is a directory")
	ErrEmptyPath = errors.New("record path is empty")
)

// Store reads and writes line-oriented record files. One record per line,
// fields separated by whitespace; the store itself never interprets fields.
type Store struct {
	tracer trace.Tracer
}

// New creates a record store.
func New() *Store {
	return &Store{
		tracer: otel.Tracer("retailpos/flatstore"),
	}
}

// Scan returns every non-blank line of the file in order.
func (s *Store) Scan(ctx context.Context, path string) ([]string, error) {
	_, span := s.tracer.Start(ctx, "flatstore.scan",
		trace.WithAttributes(attribute.String("file.path", path)),
	)
	defer span.End()

	f, err := s.open(path, os.O_RDONLY, 0)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	span.SetAttributes(attribute.Int("record.count", len(lines)))
	return lines, nil
}

// Rewrite atomically replaces the file contents with lines. The new content
// is written to a sibling temp file and renamed over the target, so a crash
// leaves either the old or the new version.
func (s *Store) Rewrite(ctx context.Context, path string, lines []string) error {
	_, span := s.tracer.Start(ctx, "flatstore.rewrite",
		trace.WithAttributes(
			attribute.String("file.path", path),
			attribute.Int("record.count", len(lines)),
		),
	)
	defer span.End()

	if path == "" {
		return ErrEmptyPath
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return ErrNotAFile
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			tmp.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		span.RecordError(err)
		return fmt.Errorf("replace %s: %w", path, err)
	}

	span.SetAttributes(attribute.Bool("rewrite.success", true))
	return nil
}

// Append adds lines to the end of the file, creating it if needed.
func (s *Store) Append(ctx context.Context, path string, lines []string) error {
	_, span := s.tracer.Start(ctx, "flatstore.append",
		trace.WithAttributes(
			attribute.String("file.path", path),
			attribute.Int("record.count", len(lines)),
		),
	)
	defer span.End()

	f, err := s.open(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("append %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

// Remove deletes the file. A file that is already gone is not an error.
func (s *Store) Remove(ctx context.Context, path string) error {
	_, span := s.tracer.Start(ctx, "flatstore.remove",
		trace.WithAttributes(attribute.String("file.path", path)),
	)
	defer span.End()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		span.RecordError(err)
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path names a regular file.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (s *Store) open(path string, flag int, perm os.FileMode) (*os.File, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return nil, ErrNotAFile
	case errors.Is(err, fs.ErrNotExist) && flag&os.O_CREATE == 0:
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}

	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

