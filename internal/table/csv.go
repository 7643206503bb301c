package table

import (
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gharvest/gharvest/pkg/types"
)

// csvAppender streams batches of rows into a delimited text file with a
// header row. Binary columns are base64-encoded since CSV has no byte
// representation. The file is built under a temporary name and renamed
// into place on finalize.
type csvAppender struct {
	path    string
	tmpPath string
	schema  types.Schema
	f       *os.File
	w       *csv.Writer
	row     []string
}

func newCSVAppender(path string, schema types.Schema) (*csvAppender, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("table: failed to create output directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("table: failed to create CSV file: %w", err)
	}

	w := csv.NewWriter(f)
	names := schema.ColumnNames()
	if err := w.Write(names); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("table: failed to write CSV header: %w", err)
	}

	return &csvAppender{
		path:    path,
		tmpPath: tmpPath,
		schema:  schema,
		f:       f,
		w:       w,
		row:     make([]string, len(names)),
	}, nil
}

// append writes one batch of rows and flushes it to disk.
func (a *csvAppender) append(rows []types.Record) error {
	for _, rec := range rows {
		for i, v := range a.schema.Project(rec) {
			a.row[i] = encodeCSVValue(v)
		}
		if err := a.w.Write(a.row); err != nil {
			return fmt.Errorf("table: failed to write CSV row: %w", err)
		}
	}
	a.w.Flush()
	if err := a.w.Error(); err != nil {
		return fmt.Errorf("table: failed to flush CSV: %w", err)
	}
	return nil
}

func (a *csvAppender) finalize() (string, error) {
	a.w.Flush()
	if err := a.w.Error(); err != nil {
		return "", fmt.Errorf("table: failed to flush CSV: %w", err)
	}
	if err := a.f.Close(); err != nil {
		return "", fmt.Errorf("table: failed to close CSV file: %w", err)
	}
	if err := os.Rename(a.tmpPath, a.path); err != nil {
		return "", fmt.Errorf("table: failed to finalize CSV file: %w", err)
	}
	return a.path, nil
}

func (a *csvAppender) abort() {
	a.f.Close()
	os.Remove(a.tmpPath)
}

// WriteCSV writes records as delimited text in one shot.
func WriteCSV(path string, schema types.Schema, records []types.Record) error {
	a, err := newCSVAppender(path, schema)
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

// ReadCSV reads a delimited text partition back into records. All values
// come back as strings except blob columns, which are base64-decoded.
func ReadCSV(path string, schema types.Schema) ([]types.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("table: failed to open CSV file %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("table: failed to read CSV file %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	out := make([]types.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(types.Record, len(header))
		for i, name := range header {
			if i >= len(row) {
				continue
			}
			if idx := schema.Index(name); idx >= 0 && schema.Columns[idx].Type == types.ColBlob {
				decoded, err := base64.StdEncoding.DecodeString(row[i])
				if err != nil {
					return nil, fmt.Errorf("table: failed to decode blob column %s in %s: %w", name, path, err)
				}
				rec[name] = string(decoded)
				continue
			}
			rec[name] = row[i]
		}
		out = append(out, rec)
	}

	return out, nil
}

func encodeCSVValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
