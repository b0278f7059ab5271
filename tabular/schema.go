/*
schema.go - Row codec driven by an ordered column schema

PURPOSE:
  Maps a strongly-typed record to the flat, string-keyed row the tabular
  store holds, and back. One Schema per entity type lists its columns in
  header order; each column knows how to read and write one field.

LENIENT DECODING:
  Decode never fails. Missing columns fall back to defaults (counts 0,
  booleans false, strings empty). A malformed cell (bad number, invalid
  JSON list) decodes to the zero value or an empty collection and is
  reported as a FieldIssue so the caller can log it. One bad row must not
  block a full-table read.

EXAMPLE:
    var userSchema = tabular.NewSchema("Users", "Employee ID",
        tabular.String("Employee ID", func(u *User) *string { return &u.EmployeeID }),
        tabular.Int("Warning Count", func(u *User) *int { return &u.WarningCount }),
    )
    row := userSchema.Encode(&user)
    back, issues := userSchema.Decode(row)

SEE ALSO:
  - client.go: Uses Headers() for bootstrap and positional writes
  - repository.go: Encodes/decodes on every read and write
*/
package tabular

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one record keyed by column header.
type Row map[string]string

// Kind describes how a column is serialized.
type Kind string

const (
	KindString  Kind = "string"
	KindInt     Kind = "int"
	KindDecimal Kind = "decimal"
	KindBool    Kind = "bool"
	KindTime    Kind = "time"
	KindDate    Kind = "date"
	KindList    Kind = "json_list"
	KindMap     Kind = "json_map"
)

// FieldIssue records a cell that could not be parsed and was defaulted.
type FieldIssue struct {
	Column string
	Value  string
	Err    error
}

func (fi FieldIssue) String() string {
	return fmt.Sprintf("%s=%q: %v", fi.Column, fi.Value, fi.Err)
}

// =============================================================================
// COLUMN
// =============================================================================

// Column binds one header to one field of T.
type Column[T any] struct {
	Name    string
	Kind    Kind
	Default string

	encode func(*T) string
	decode func(*T, string) error
}

// Custom builds a column from explicit encode/decode functions. decode must
// leave the field at its zero value when it returns an error.
func Custom[T any](name string, kind Kind, encode func(*T) string, decode func(*T, string) error) Column[T] {
	return Column[T]{Name: name, Kind: kind, encode: encode, decode: decode}
}

// String maps a plain string field.
func String[T any](name string, field func(*T) *string) Column[T] {
	return StringAs(name, field)
}

// StringAs maps a string-backed field such as a status enum.
func StringAs[T any, S ~string](name string, field func(*T) *S) Column[T] {
	return Column[T]{
		Name: name,
		Kind: KindString,
		encode: func(v *T) string {
			return string(*field(v))
		},
		decode: func(v *T, s string) error {
			*field(v) = S(s)
			return nil
		},
	}
}

// Int maps an integer field. Empty cells decode to 0.
func Int[T any](name string, field func(*T) *int) Column[T] {
	return Column[T]{
		Name:    name,
		Kind:    KindInt,
		Default: "0",
		encode: func(v *T) string {
			return strconv.Itoa(*field(v))
		},
		decode: func(v *T, s string) error {
			s = strings.TrimSpace(s)
			if s == "" {
				return nil
			}
			n, err := strconv.Atoi(s)
			if err != nil {
				// Spreadsheets like to hand back "3.0".
				f, ferr := strconv.ParseFloat(s, 64)
				if ferr != nil {
					return err
				}
				n = int(f)
			}
			*field(v) = n
			return nil
		},
	}
}

// Decimal maps a decimal field such as hours.
func Decimal[T any](name string, field func(*T) *decimal.Decimal) Column[T] {
	return Column[T]{
		Name:    name,
		Kind:    KindDecimal,
		Default: "0",
		encode: func(v *T) string {
			return field(v).String()
		},
		decode: func(v *T, s string) error {
			s = strings.TrimSpace(s)
			if s == "" {
				*field(v) = decimal.Zero
				return nil
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				*field(v) = decimal.Zero
				return err
			}
			*field(v) = d
			return nil
		},
	}
}

// Bool maps a boolean field. Accepts true/false, 1/0, yes/no.
func Bool[T any](name string, field func(*T) *bool) Column[T] {
	return Column[T]{
		Name:    name,
		Kind:    KindBool,
		Default: "false",
		encode: func(v *T) string {
			return strconv.FormatBool(*field(v))
		},
		decode: func(v *T, s string) error {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "", "false", "no", "0":
				*field(v) = false
				return nil
			case "true", "yes", "1":
				*field(v) = true
				return nil
			}
			return fmt.Errorf("not a boolean")
		},
	}
}

// Time maps a timestamp stored as RFC 3339. Empty cells decode to the zero time.
func Time[T any](name string, field func(*T) *time.Time) Column[T] {
	return Column[T]{
		Name: name,
		Kind: KindTime,
		encode: func(v *T) string {
			return FormatTime(*field(v))
		},
		decode: func(v *T, s string) error {
			s = strings.TrimSpace(s)
			if s == "" {
				return nil
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return err
			}
			*field(v) = t
			return nil
		},
	}
}

// FormatTime renders t the way Time columns store it. Partial writes use it
// so their cells match full-row encodes.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// List maps a string slice stored as a JSON array. An empty slice is
// written as an empty cell; invalid JSON decodes to nil.
func List[T any](name string, field func(*T) *[]string) Column[T] {
	return Column[T]{
		Name: name,
		Kind: KindList,
		encode: func(v *T) string {
			items := *field(v)
			if len(items) == 0 {
				return ""
			}
			b, _ := json.Marshal(items)
			return string(b)
		},
		decode: func(v *T, s string) error {
			s = strings.TrimSpace(s)
			if s == "" {
				*field(v) = nil
				return nil
			}
			var items []string
			if err := json.Unmarshal([]byte(s), &items); err != nil {
				*field(v) = nil
				return err
			}
			if len(items) == 0 {
				items = nil
			}
			*field(v) = items
			return nil
		},
	}
}

// DecimalMap maps a map of decimals stored as a JSON object.
func DecimalMap[T any](name string, field func(*T) *map[string]decimal.Decimal) Column[T] {
	return Column[T]{
		Name: name,
		Kind: KindMap,
		encode: func(v *T) string {
			m := *field(v)
			if len(m) == 0 {
				return ""
			}
			b, _ := json.Marshal(m)
			return string(b)
		},
		decode: func(v *T, s string) error {
			s = strings.TrimSpace(s)
			if s == "" {
				*field(v) = nil
				return nil
			}
			var m map[string]decimal.Decimal
			if err := json.Unmarshal([]byte(s), &m); err != nil {
				*field(v) = nil
				return err
			}
			if len(m) == 0 {
				m = nil
			}
			*field(v) = m
			return nil
		},
	}
}

// =============================================================================
// SCHEMA
// =============================================================================

// Schema is the ordered column list of one table.
type Schema[T any] struct {
	Table     string
	KeyColumn string
	Columns   []Column[T]

	index map[string]int
}

// NewSchema builds a schema. It panics if keyColumn is not one of the
// columns or a header repeats; both are programming errors.
func NewSchema[T any](table, keyColumn string, columns ...Column[T]) *Schema[T] {
	s := &Schema[T]{
		Table:     table,
		KeyColumn: keyColumn,
		Columns:   columns,
		index:     make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if _, dup := s.index[c.Name]; dup {
			panic(fmt.Sprintf("tabular: duplicate column %q in %s", c.Name, table))
		}
		s.index[c.Name] = i
	}
	if _, ok := s.index[keyColumn]; !ok {
		panic(fmt.Sprintf("tabular: key column %q missing from %s", keyColumn, table))
	}
	return s
}

// Headers returns the expected header row.
func (s *Schema[T]) Headers() []string {
	headers := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		headers[i] = c.Name
	}
	return headers
}

// Index returns the position of a column, or -1.
func (s *Schema[T]) Index(column string) int {
	if i, ok := s.index[column]; ok {
		return i
	}
	return -1
}

// Encode turns a record into a row.
func (s *Schema[T]) Encode(v *T) Row {
	row := make(Row, len(s.Columns))
	for _, c := range s.Columns {
		row[c.Name] = c.encode(v)
	}
	return row
}

// Decode turns a row into a record. Unparseable cells are defaulted and
// returned as issues; Decode itself never fails.
func (s *Schema[T]) Decode(row Row) (T, []FieldIssue) {
	var (
		v      T
		issues []FieldIssue
	)
	for _, c := range s.Columns {
		raw, ok := row[c.Name]
		if !ok {
			raw = c.Default
		}
		if err := c.decode(&v, raw); err != nil {
			issues = append(issues, FieldIssue{Column: c.Name, Value: raw, Err: err})
		}
	}
	return v, issues
}

// KeyOf returns the record's key value.
func (s *Schema[T]) KeyOf(v *T) string {
	return s.Columns[s.index[s.KeyColumn]].encode(v)
}

// SetKey writes the key value into the record.
func (s *Schema[T]) SetKey(v *T, key string) {
	_ = s.Columns[s.index[s.KeyColumn]].decode(v, key)
}

// =============================================================================
// POSITIONAL HELPERS
// =============================================================================

// Values lays a row out in header order.
func Values(headers []string, row Row) []string {
	values := make([]string, len(headers))
	for i, h := range headers {
		values[i] = row[h]
	}
	return values
}

// RowFromValues pairs positional values with headers. Short rows are padded
// with empty cells; surplus values are dropped.
func RowFromValues(headers []string, values []string) Row {
	row := make(Row, len(headers))
	for i, h := range headers {
		if i < len(values) {
			row[h] = values[i]
		} else {
			row[h] = ""
		}
	}
	return row
}
