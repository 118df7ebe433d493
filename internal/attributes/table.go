package attributes

import (
	"strconv"
	"strings"
)

// Shape is the structural form an attribute value takes. It decides how the
// value is laid out as a table and how an edited table is written back.
type Shape int

const (
	ShapePrimitive Shape = iota
	ShapeObject
	ShapeArrayOfObjects
	ShapeArray
)

func (s Shape) String() string {
	switch s {
	case ShapeObject:
		return "object"
	case ShapeArrayOfObjects:
		return "array_of_objects"
	case ShapeArray:
		return "array"
	default:
		return "primitive"
	}
}

// Keyed reports whether columns are named by object keys rather than by
// position.
func (s Shape) Keyed() bool {
	return s == ShapeObject || s == ShapeArrayOfObjects
}

// Table is the rectangular view of one attribute value. Every row holds
// exactly len(Columns) cells.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Clone returns a deep copy.
func (t Table) Clone() Table {
	out := Table{
		Columns: append([]string{}, t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = append([]string{}, r...)
	}
	return out
}

// ShapeOf classifies a value without building its table.
func ShapeOf(v Value) Shape {
	switch v.Kind() {
	case KindObject:
		return ShapeObject
	case KindArray:
		items := v.Items()
		if len(items) > 0 && items[0].Kind() == KindObject {
			return ShapeArrayOfObjects
		}
		return ShapeArray
	default:
		return ShapePrimitive
	}
}

// DeriveTable lays a value out as a table and reports its shape.
func DeriveTable(v Value) (Table, Shape) {
	shape := ShapeOf(v)
	switch shape {
	case ShapeObject:
		row := make([]string, 0, v.Len())
		for _, f := range v.Fields() {
			row = append(row, f.Value.Text())
		}
		return Table{Columns: v.Keys(), Rows: [][]string{row}}, shape

	case ShapeArrayOfObjects:
		items := v.Items()
		cols := items[0].Keys()
		rows := make([][]string, len(items))
		for i, item := range items {
			row := make([]string, len(cols))
			for j, c := range cols {
				if cell, ok := item.Get(c); ok {
					row[j] = cell.Text()
				}
			}
			rows[i] = row
		}
		return Table{Columns: cols, Rows: rows}, shape

	case ShapeArray:
		items := v.Items()
		row := make([]string, len(items))
		for i, item := range items {
			row[i] = item.Text()
		}
		return Table{Columns: positionalColumns(len(items)), Rows: [][]string{row}}, shape

	default:
		tokens := strings.Split(v.Text(), ";")
		for i := range tokens {
			tokens[i] = strings.TrimSpace(tokens[i])
		}
		return Table{Columns: positionalColumns(len(tokens)), Rows: [][]string{tokens}}, shape
	}
}

// WriteBack rebuilds a value of the given shape from table contents. Cells
// that held nested JSON come back as their JSON text.
func WriteBack(columns []string, rows [][]string, shape Shape) Value {
	switch shape {
	case ShapeObject:
		var first []string
		if len(rows) > 0 {
			first = rows[0]
		}
		return rowObject(columns, first)

	case ShapeArrayOfObjects:
		items := make([]Value, len(rows))
		for i, r := range rows {
			items[i] = rowObject(columns, r)
		}
		return Array(items...)

	case ShapeArray:
		if len(rows) == 0 {
			return Array()
		}
		return Strings(rows[0])

	default:
		if len(rows) == 0 {
			return String("")
		}
		return String(strings.Join(rows[0], "; "))
	}
}

func rowObject(columns, row []string) Value {
	fields := make([]Field, len(columns))
	for i, c := range columns {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		fields[i] = Field{Key: c, Value: String(cell)}
	}
	return Object(fields...)
}

func positionalColumns(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = positionalLabel(i + 1)
	}
	return cols
}

func positionalLabel(n int) string {
	return "Value " + strconv.Itoa(n)
}
