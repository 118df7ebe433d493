package attributes

import (
	"encoding/json"
	"fmt"
)

// Document maps attribute names to values and remembers the order in which
// the names were first seen.
type Document struct {
	obj Value
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{obj: Object()}
}

// DocumentFromValue wraps an object value. Non-object values are rejected.
func DocumentFromValue(v Value) (*Document, error) {
	if v.Kind() != KindObject {
		return nil, fmt.Errorf("attributes document must be a JSON object, got %s", v.Kind())
	}
	return &Document{obj: Value{kind: KindObject, fields: append([]Field{}, v.fields...)}}, nil
}

// ParseDocument decodes a JSON object into a document.
func ParseDocument(data []byte) (*Document, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("decode attributes document: %w", err)
	}
	return DocumentFromValue(v)
}

func (d *Document) Keys() []string { return d.obj.Keys() }
func (d *Document) Len() int { return d.obj.Len() }

func (d *Document) Has(key string) bool {
	_, ok := d.obj.Get(key)
	return ok
}

func (d *Document) Get(key string) (Value, bool) {
	return d.obj.Get(key)
}

// Set stores a value, appending the key if it is new.
func (d *Document) Set(key string, v Value) {
	d.obj.set(key, v)
}

// Delete removes a key. Missing keys are ignored.
func (d *Document) Delete(key string) {
	for i, f := range d.obj.fields {
		if f.Key == key {
			d.obj.fields = append(d.obj.fields[:i:i], d.obj.fields[i+1:]...)
			return
		}
	}
}

// Value returns the document as an object value.
func (d *Document) Value() Value {
	return d.obj
}

// Clone returns a copy that shares no mutable state with d.
func (d *Document) Clone() *Document {
	// values are immutable once built; only the field slice is shared
	return &Document{obj: Value{kind: KindObject, fields: append([]Field{}, d.obj.fields...)}}
}

func (d *Document) MarshalJSON() ([]byte, error) {
	return d.obj.MarshalJSON()
}

func (d *Document) UnmarshalJSON(data []byte) error {
	parsed, err := ParseDocument(data)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

var _ json.Marshaler = (*Document)(nil)
