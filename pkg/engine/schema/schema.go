// Package schema describes the shape of the record batches flowing between
// plan operators: an ordered list of uniquely named, typed columns.
package schema

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/floedb/floe/pkg/engine/types"
)

// Column is a single named column of a schema.
type Column struct {
	Name     string
	Type     types.DataType
	Nullable bool
}

// String returns the column rendered as "name type".
func (c Column) String() string {
	return fmt.Sprintf("%s %s", c.Name, c.Type)
}

// Schema is an ordered set of columns. Schemas are immutable once built;
// callers must not modify Columns.
type Schema struct {
	Columns []Column
}

// New builds a schema from the given columns. It fails when two columns share
// a name.
func New(columns ...Column) (*Schema, error) {
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("column with empty name")
		}
		if _, ok := seen[col.Name]; ok {
			return nil, fmt.Errorf("duplicate column name %q", col.Name)
		}
		seen[col.Name] = struct{}{}
	}
	return &Schema{Columns: columns}, nil
}

// FromArrow converts an Arrow schema into an engine schema.
func FromArrow(as *arrow.Schema) (*Schema, error) {
	columns := make([]Column, 0, as.NumFields())
	for _, field := range as.Fields() {
		dt, err := types.FromArrow(field.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		columns = append(columns, Column{Name: field.Name, Type: dt, Nullable: field.Nullable})
	}
	return New(columns...)
}

// ArrowSchema returns the Arrow representation of the schema.
func (s *Schema) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(s.Columns))
	for _, col := range s.Columns {
		fields = append(fields, arrow.Field{
			Name:     col.Name,
			Type:     col.Type.ArrowType(),
			Nullable: col.Nullable,
		})
	}
	return arrow.NewSchema(fields, nil)
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.Columns) }

// Lookup returns the column with the given name and its position.
func (s *Schema) Lookup(name string) (Column, int, bool) {
	for i, col := range s.Columns {
		if col.Name == name {
			return col, i, true
		}
	}
	return Column{}, -1, false
}

// Has reports whether a column with the given name exists.
func (s *Schema) Has(name string) bool {
	_, _, ok := s.Lookup(name)
	return ok
}

// ColumnNames returns the column names in schema order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}

// Select returns the sub-schema with the named columns, in the given order.
// It fails when a name is missing.
func (s *Schema) Select(names []string) (*Schema, error) {
	columns := make([]Column, 0, len(names))
	for _, name := range names {
		col, _, ok := s.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		columns = append(columns, col)
	}
	return New(columns...)
}

// Equal reports whether two schemas have the same column names and types in
// the same order. Nullability is not part of the contract between operators
// and is ignored.
func Equal(a, b *Schema) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i].Name != b.Columns[i].Name || !a.Columns[i].Type.Equal(b.Columns[i].Type) {
			return false
		}
	}
	return true
}

// String returns the schema rendered as "(a int64, b string)".
func (s *Schema) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, col := range s.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(col.String())
	}
	sb.WriteByte(')')
	return sb.String()
}
