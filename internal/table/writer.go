package table

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/gharvest/gharvest/pkg/types"
)

// Writer persists layer tables, preferring SQLite partitions and falling
// back to delimited text. Once a SQLite write fails for environmental
// reasons the fallback is sticky: every later write in the run uses text,
// and the downgrade is logged exactly once.
type Writer struct {
	logger *slog.Logger

	mu       sync.Mutex
	useCSV   bool
	warnOnce sync.Once
}

// NewWriter returns a Writer. When forceCSV is set every write uses
// delimited text from the start.
func NewWriter(logger *slog.Logger, forceCSV bool) *Writer {
	return &Writer{logger: logger, useCSV: forceCSV}
}

// Ext returns the file extension the next write will produce.
func (w *Writer) Ext() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.useCSV {
		return ".csv"
	}
	return ".sqlite"
}

// Write persists records under basePath plus the active format's extension
// and returns the final path. basePath carries no extension.
func (w *Writer) Write(ctx context.Context, basePath string, schema types.Schema, records []types.Record) (string, error) {
	w.mu.Lock()
	csvMode := w.useCSV
	w.mu.Unlock()

	if !csvMode {
		path := basePath + ".sqlite"
		err := WriteSQLite(ctx, path, schema, records)
		if err == nil {
			return path, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		w.downgrade(err)
		os.Remove(path)
	}

	path := basePath + ".csv"
	if err := WriteCSV(path, schema, records); err != nil {
		return "", err
	}
	return path, nil
}

// partAppender streams batches of rows into a partition file built under
// a temporary name.
type partAppender interface {
	append(rows []types.Record) error
	finalize() (string, error)
	abort()
}

// Appender streams batches of records into one partition file through the
// active format. Finalize renames the file into place; Abort discards it.
type Appender struct {
	impl partAppender
}

// Appender opens a streaming appender for basePath. A SQLite open failure
// triggers the same sticky text downgrade as Write.
func (w *Writer) Appender(ctx context.Context, basePath string, schema types.Schema) (*Appender, error) {
	w.mu.Lock()
	csvMode := w.useCSV
	w.mu.Unlock()

	if !csvMode {
		impl, err := newSQLiteAppender(ctx, basePath+".sqlite", schema)
		if err == nil {
			return &Appender{impl: impl}, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		w.downgrade(err)
	}

	impl, err := newCSVAppender(basePath+".csv", schema)
	if err != nil {
		return nil, err
	}
	return &Appender{impl: impl}, nil
}

// Append writes one batch of records.
func (a *Appender) Append(rows []types.Record) error {
	return a.impl.append(rows)
}

// Finalize flushes remaining state and renames the partition into place,
// returning its final path.
func (a *Appender) Finalize() (string, error) {
	return a.impl.finalize()
}

// Abort discards the partially written partition.
func (a *Appender) Abort() {
	a.impl.abort()
}

func (w *Writer) downgrade(err error) {
	w.mu.Lock()
	w.useCSV = true
	w.mu.Unlock()
	w.warnOnce.Do(func() {
		w.logger.Warn("sqlite partition write failed, falling back to delimited text for the remainder of the run",
			"error", err)
	})
}

// Read loads a partition file, dispatching on its extension.
func Read(ctx context.Context, path string, schema types.Schema) ([]types.Record, error) {
	switch {
	case strings.HasSuffix(path, ".sqlite"):
		return ReadSQLite(ctx, path, schema)
	case strings.HasSuffix(path, ".csv"):
		return ReadCSV(path, schema)
	default:
		return nil, fmt.Errorf("table: unrecognized partition format: %s", path)
	}
}

// ExistingPath returns the path of an already-written partition for
// basePath in either format, or "" when none exists.
func ExistingPath(basePath string) string {
	for _, ext := range []string{".sqlite", ".csv"} {
		p := basePath + ext
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
