package attributes

import "strconv"

// The edit operations below address an attribute by key and its table by
// (row, column). They never fail: unknown keys and out-of-range indices
// leave the document untouched and report false, while writes past the end
// of a table grow it first.

// edit derives the table for key, lets fn change it and writes the result
// back using the shape fn returns.
func (d *Document) edit(key string, fn func(t *Table, shape Shape) (Shape, bool)) bool {
	v, ok := d.Get(key)
	if !ok {
		return false
	}
	t, shape := DeriveTable(v)
	next, changed := fn(&t, shape)
	if !changed {
		return false
	}
	d.Set(key, WriteBack(t.Columns, t.Rows, next))
	return true
}

// SetCell writes value at (row, col), padding the table with empty rows and
// "Value N" columns as needed.
func (d *Document) SetCell(key string, row, col int, value string) bool {
	if row < 0 || col < 0 {
		return false
	}
	return d.edit(key, func(t *Table, shape Shape) (Shape, bool) {
		for len(t.Rows) <= row {
			t.Rows = append(t.Rows, make([]string, len(t.Columns)))
		}
		for len(t.Columns) <= col {
			t.Columns = append(t.Columns, positionalLabel(len(t.Columns)+1))
			for i := range t.Rows {
				t.Rows[i] = append(t.Rows[i], "")
			}
		}
		t.Rows[row][col] = value
		return shape, true
	})
}

// RenameColumn changes a key name. Only keyed shapes have named columns.
func (d *Document) RenameColumn(key string, col int, name string) bool {
	return d.edit(key, func(t *Table, shape Shape) (Shape, bool) {
		if !shape.Keyed() || col < 0 || col >= len(t.Columns) {
			return shape, false
		}
		t.Columns[col] = name
		return shape, true
	})
}

// AddColumn appends an empty column. Keyed shapes get a fresh "new_key"
// name; positional shapes get the next "Value N" label.
func (d *Document) AddColumn(key string) bool {
	return d.edit(key, func(t *Table, shape Shape) (Shape, bool) {
		var label string
		if shape.Keyed() {
			label = uniqueName("new_key", t.Columns)
		} else {
			label = positionalLabel(len(t.Columns) + 1)
		}
		t.Columns = append(t.Columns, label)
		for i := range t.Rows {
			t.Rows[i] = append(t.Rows[i], "")
		}
		return shape, true
	})
}

// RemoveColumn drops a column and its cells.
func (d *Document) RemoveColumn(key string, col int) bool {
	return d.edit(key, func(t *Table, shape Shape) (Shape, bool) {
		if col < 0 || col >= len(t.Columns) {
			return shape, false
		}
		t.Columns = append(t.Columns[:col:col], t.Columns[col+1:]...)
		for i, r := range t.Rows {
			if col < len(r) {
				t.Rows[i] = append(r[:col:col], r[col+1:]...)
			}
		}
		return shape, true
	})
}

// AddRow appends an empty row. An object gains a second row and becomes an
// array of objects from then on. Positional shapes only persist their first
// row, so the added row is not kept for them.
func (d *Document) AddRow(key string) bool {
	return d.edit(key, func(t *Table, shape Shape) (Shape, bool) {
		t.Rows = append(t.Rows, make([]string, len(t.Columns)))
		if shape == ShapeObject {
			return ShapeArrayOfObjects, true
		}
		return shape, true
	})
}

// RemoveRow deletes a row. Objects have a single row, which is cleared
// instead. Positional shapes drop their last value whatever row is given.
func (d *Document) RemoveRow(key string, row int) bool {
	return d.edit(key, func(t *Table, shape Shape) (Shape, bool) {
		switch shape {
		case ShapeObject:
			for i := range t.Rows {
				t.Rows[i] = make([]string, len(t.Columns))
			}
			return shape, true
		case ShapeArrayOfObjects:
			if row < 0 || row >= len(t.Rows) {
				return shape, false
			}
			t.Rows = append(t.Rows[:row:row], t.Rows[row+1:]...)
			return shape, true
		default:
			if len(t.Rows) == 0 || len(t.Rows[0]) == 0 {
				return shape, false
			}
			n := len(t.Rows[0]) - 1
			t.Rows[0] = t.Rows[0][:n]
			t.Columns = t.Columns[:n]
			return shape, true
		}
	})
}

// Table returns the current table and shape for key.
func (d *Document) Table(key string) (Table, Shape, bool) {
	v, ok := d.Get(key)
	if !ok {
		return Table{}, ShapePrimitive, false
	}
	t, shape := DeriveTable(v)
	return t, shape, true
}

// uniqueName returns base, or base_1, base_2, ... whichever is not taken.
func uniqueName(base string, taken []string) string {
	used := make(map[string]struct{}, len(taken))
	for _, s := range taken {
		used[s] = struct{}{}
	}
	if _, ok := used[base]; !ok {
		return base
	}
	for i := 1; ; i++ {
		name := base + "_" + strconv.Itoa(i)
		if _, ok := used[name]; !ok {
			return name
		}
	}
}
