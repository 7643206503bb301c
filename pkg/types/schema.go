package types

// ColumnType is the storage type of a table column.
type ColumnType string

const (
	ColText    ColumnType = "TEXT"
	ColInteger ColumnType = "INTEGER"
	ColReal    ColumnType = "REAL"
	ColBlob    ColumnType = "BLOB"
)

// Column defines a single column in a table schema.
type Column struct {
	// Name is the column name
	Name string `json:"name" yaml:"name"`

	// Type is the storage type: TEXT, INTEGER, REAL, BLOB
	Type ColumnType `json:"type" yaml:"type"`
}

// Schema is the fixed column whitelist for one table. Every table written by
// the pipeline declares its schema up front; values outside the whitelist are
// dropped at write time and expected-but-absent values stay NULL.
type Schema struct {
	// Table is the table name ("events", "actors", ...)
	Table string `json:"table" yaml:"table"`

	// Columns lists the whitelisted columns, in output order
	Columns []Column `json:"columns" yaml:"columns"`
}

// ColumnNames returns the column names in schema order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1 when the column is
// not part of the schema.
func (s Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Record is an unprojected row keyed by column name, as produced by the
// Silver extraction step before whitelist projection.
type Record map[string]interface{}

// Project maps a Record onto the schema's column order. Keys outside the
// whitelist are dropped; whitelisted columns missing from the record come
// back as nil.
func (s Schema) Project(rec Record) []interface{} {
	row := make([]interface{}, len(s.Columns))
	for i, c := range s.Columns {
		if v, ok := rec[c.Name]; ok {
			row[i] = v
		}
	}
	return row
}
