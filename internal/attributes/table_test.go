package attributes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) Value {
	t.Helper()
	v, err := Parse([]byte(s))
	require.NoError(t, err)
	return v
}

func encode(t *testing.T, v Value) string {
	t.Helper()
	b, err := v.MarshalJSON()
	require.NoError(t, err)
	return string(b)
}

func TestDeriveTable(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		shape   Shape
		columns []string
		rows    [][]string
	}{
		{
			name:    "object keeps key order",
			input:   `{"z":"1","a":2,"m":true}`,
			shape:   ShapeObject,
			columns: []string{"z", "a", "m"},
			rows:    [][]string{{"1", "2", "true"}},
		},
		{
			name:    "object with nested value stringifies it",
			input:   `{"dose":{"amount":5,"unit":"mg"},"none":null}`,
			shape:   ShapeObject,
			columns: []string{"dose", "none"},
			rows:    [][]string{{`{"amount":5,"unit":"mg"}`, ""}},
		},
		{
			name:    "array of objects uses first element keys",
			input:   `[{"a":"1","b":"2"},{"b":"3","c":"4"}]`,
			shape:   ShapeArrayOfObjects,
			columns: []string{"a", "b"},
			rows:    [][]string{{"1", "2"}, {"", "3"}},
		},
		{
			name:    "array of objects with scalar member",
			input:   `[{"a":"1"},"loose"]`,
			shape:   ShapeArrayOfObjects,
			columns: []string{"a"},
			rows:    [][]string{{"1"}, {""}},
		},
		{
			name:    "scalar array is positional",
			input:   `["x",1.50,null]`,
			shape:   ShapeArray,
			columns: []string{"Value 1", "Value 2", "Value 3"},
			rows:    [][]string{{"x", "1.5", ""}},
		},
		{
			name:    "empty array has no columns",
			input:   `[]`,
			shape:   ShapeArray,
			columns: []string{},
			rows:    [][]string{{}},
		},
		{
			name:    "primitive splits on semicolons",
			input:   `"fracture;  contusion ; "`,
			shape:   ShapePrimitive,
			columns: []string{"Value 1", "Value 2", "Value 3"},
			rows:    [][]string{{"fracture", "contusion", ""}},
		},
		{
			name:    "number primitive",
			input:   `42`,
			shape:   ShapePrimitive,
			columns: []string{"Value 1"},
			rows:    [][]string{{"42"}},
		},
		{
			name:    "null primitive is one empty cell",
			input:   `null`,
			shape:   ShapePrimitive,
			columns: []string{"Value 1"},
			rows:    [][]string{{""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, shape := DeriveTable(mustParse(t, tt.input))
			assert.Equal(t, tt.shape, shape)
			assert.Equal(t, tt.columns, table.Columns)
			assert.Equal(t, tt.rows, table.Rows)
			for _, r := range table.Rows {
				assert.Len(t, r, len(table.Columns))
			}
		})
	}
}

func TestWriteBack(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		rows    [][]string
		shape   Shape
		want    string
	}{
		{"object from first row", []string{"a", "b"}, [][]string{{"1", "2"}, {"x", "y"}}, ShapeObject, `{"a":"1","b":"2"}`},
		{"object pads missing cells", []string{"a", "b"}, [][]string{{"1"}}, ShapeObject, `{"a":"1","b":""}`},
		{"object without rows", []string{"a"}, nil, ShapeObject, `{"a":""}`},
		{"array of objects", []string{"a"}, [][]string{{"1"}, {"2"}}, ShapeArrayOfObjects, `[{"a":"1"},{"a":"2"}]`},
		{"array", []string{"Value 1", "Value 2"}, [][]string{{"x", "y"}}, ShapeArray, `["x","y"]`},
		{"primitive joins", []string{"Value 1", "Value 2"}, [][]string{{"x", "y"}}, ShapePrimitive, `"x; y"`},
		{"html is not escaped", []string{"a"}, [][]string{{"<5 & >2"}}, ShapeObject, `{"a":"<5 & >2"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encode(t, WriteBack(tt.columns, tt.rows, tt.shape)))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	t.Run("scalar object", func(t *testing.T) {
		in := `{"name":"Jane","age":"44","site":"left femur"}`
		table, shape := DeriveTable(mustParse(t, in))
		assert.Equal(t, in, encode(t, WriteBack(table.Columns, table.Rows, shape)))
	})

	t.Run("uniform array of objects", func(t *testing.T) {
		in := `[{"drug":"A","dose":"5"},{"drug":"B","dose":"10"}]`
		table, shape := DeriveTable(mustParse(t, in))
		assert.Equal(t, in, encode(t, WriteBack(table.Columns, table.Rows, shape)))
	})

	t.Run("primitive", func(t *testing.T) {
		in := `"fracture; contusion"`
		table, shape := DeriveTable(mustParse(t, in))
		assert.Equal(t, in, encode(t, WriteBack(table.Columns, table.Rows, shape)))
	})
}

func TestValueText(t *testing.T) {
	assert.Equal(t, "1", mustParse(t, `1.0`).Text())
	assert.Equal(t, "1e+21", mustParse(t, `1e21`).Text())
	assert.Equal(t, "1e-7", mustParse(t, `0.0000001`).Text())
	assert.Equal(t, "false", mustParse(t, `false`).Text())
	assert.Equal(t, `[1,"a",{"k":null}]`, mustParse(t, `[1, "a", {"k": null}]`).Text())
}

func TestParseDuplicateKeys(t *testing.T) {
	v := mustParse(t, `{"a":"1","b":"2","a":"3"}`)
	assert.Equal(t, []string{"a", "b"}, v.Keys())
	got, ok := v.Get("a")
	require.True(t, ok)
	assert.Equal(t, "3", got.Text())
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)
}

func TestNumberLiteralsSurviveEncoding(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"n":12345678901234567890,"dose":1.50,"rows":[{"p":0.0000001}]}`))
	require.NoError(t, err)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"n":12345678901234567890,"dose":1.50,"rows":[{"p":0.0000001}]}`, string(out))

	// cells still show the shortest form
	v, _ := doc.Get("dose")
	assert.Equal(t, "1.5", v.Text())
	table, _, ok := doc.Table("rows")
	require.True(t, ok)
	assert.Equal(t, [][]string{{"1e-7"}}, table.Rows)
}
