// Package table reads and writes layer partition files. SQLite is the
// preferred on-disk format; delimited text serves as a fallback when the
// SQLite driver is unavailable or a run forces text output.
package table

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gharvest/gharvest/pkg/types"
	_ "github.com/mattn/go-sqlite3"
)

// sqliteAppender streams batches of rows into a single-table SQLite file.
// The file is built under a temporary name and renamed into place on
// finalize so a crashed run never leaves a readable half-written partition
// behind.
type sqliteAppender struct {
	ctx     context.Context
	path    string
	tmpPath string
	schema  types.Schema
	db      *sql.DB
	insert  string
}

func newSQLiteAppender(ctx context.Context, path string, schema types.Schema) (*sqliteAppender, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("table: failed to create output directory: %w", err)
	}

	tmpPath := path + ".tmp"
	os.Remove(tmpPath)

	db, err := sql.Open("sqlite3", tmpPath)
	if err != nil {
		return nil, fmt.Errorf("table: failed to create SQLite file: %w", err)
	}

	// WAL speeds up the build; the partition is switched back to DELETE
	// journal mode before the rename so the file ships as a single artifact.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("table: failed to set journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL(schema)); err != nil {
		db.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("table: failed to create table %s: %w", schema.Table, err)
	}

	return &sqliteAppender{
		ctx:     ctx,
		path:    path,
		tmpPath: tmpPath,
		schema:  schema,
		db:      db,
		insert:  insertSQL(schema),
	}, nil
}

// append writes one batch of rows as a single transaction.
func (a *sqliteAppender) append(rows []types.Record) error {
	tx, err := a.db.BeginTx(a.ctx, nil)
	if err != nil {
		return fmt.Errorf("table: failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(a.ctx, a.insert)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("table: failed to prepare insert: %w", err)
	}

	for _, rec := range rows {
		if _, err := stmt.ExecContext(a.ctx, a.schema.Project(rec)...); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("table: failed to insert row into %s: %w", a.schema.Table, err)
		}
	}
	stmt.Close()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("table: failed to commit: %w", err)
	}
	return nil
}

func (a *sqliteAppender) finalize() (string, error) {
	if _, err := a.db.ExecContext(a.ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return "", fmt.Errorf("table: failed to checkpoint WAL: %w", err)
	}
	if _, err := a.db.ExecContext(a.ctx, "PRAGMA journal_mode=DELETE"); err != nil {
		return "", fmt.Errorf("table: failed to set journal mode to DELETE: %w", err)
	}
	if err := a.db.Close(); err != nil {
		return "", fmt.Errorf("table: failed to close database: %w", err)
	}
	if err := os.Rename(a.tmpPath, a.path); err != nil {
		return "", fmt.Errorf("table: failed to finalize partition: %w", err)
	}
	return a.path, nil
}

func (a *sqliteAppender) abort() {
	a.db.Close()
	os.Remove(a.tmpPath)
}

// WriteSQLite writes records to a single-table SQLite file in one shot.
func WriteSQLite(ctx context.Context, path string, schema types.Schema, records []types.Record) error {
	a, err := newSQLiteAppender(ctx, path, schema)
	if err != nil {
		return err
	}
	if err := a.append(records); err != nil {
		a.abort()
		return err
	}
	if _, err := a.finalize(); err != nil {
		a.abort()
		return err
	}
	return nil
}

// ReadSQLite reads every row of the schema's table from a SQLite partition.
// Columns present in the schema but absent from the file come back nil.
func ReadSQLite(ctx context.Context, path string, schema types.Schema) ([]types.Record, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("table: failed to open SQLite file %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", schema.Table))
	if err != nil {
		return nil, fmt.Errorf("table: failed to query %s from %s: %w", schema.Table, path, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("table: failed to read columns from %s: %w", path, err)
	}

	var out []types.Record
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("table: failed to scan row from %s: %w", path, err)
		}

		rec := make(types.Record, len(cols))
		for i, name := range cols {
			switch v := values[i].(type) {
			case []byte:
				rec[name] = string(v)
			default:
				rec[name] = v
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table: failed to iterate rows from %s: %w", path, err)
	}

	return out, nil
}

func createTableSQL(schema types.Schema) string {
	defs := make([]string, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		defs = append(defs, fmt.Sprintf("%s %s", col.Name, sqliteType(col.Type)))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", schema.Table, strings.Join(defs, ", "))
}

func insertSQL(schema types.Schema) string {
	names := schema.ColumnNames()
	placeholders := make([]string, len(names))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		schema.Table, strings.Join(names, ", "), strings.Join(placeholders, ", "))
}

func sqliteType(t types.ColumnType) string {
	switch t {
	case types.ColInteger:
		return "INTEGER"
	case types.ColReal:
		return "REAL"
	case types.ColBlob:
		return "BLOB"
	default:
		return "TEXT"
	}
}
