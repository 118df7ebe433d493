package attributes

import "fmt"

// Workspace pairs a document with its display order and keeps their key
// sets equal. All structural edits go through it.
type Workspace struct {
	doc   *Document
	order *Order
}

// View is one attribute rendered as a table.
type View struct {
	Key   string `json:"key"`
	Shape string `json:"shape"`
	Table Table  `json:"table"`
}

func NewWorkspace(doc *Document) *Workspace {
	if doc == nil {
		doc = NewDocument()
	}
	return &Workspace{doc: doc, order: NewOrder(doc)}
}

func (w *Workspace) Document() *Document { return w.doc }
func (w *Workspace) Order() []string { return w.order.Keys() }

// Load replaces the document and resynchronises the order.
func (w *Workspace) Load(doc *Document) {
	if doc == nil {
		doc = NewDocument()
	}
	w.doc = doc
	w.order.Sync(doc)
}

// NewAttribute adds an empty-object attribute under the first free name of
// new_attribute, new_attribute_1, ... and returns that name.
func (w *Workspace) NewAttribute() string {
	key := uniqueName("new_attribute", w.doc.Keys())
	w.doc.Set(key, Object())
	w.order.Add(key)
	return key
}

// AddAttribute adds key with an empty-object value.
func (w *Workspace) AddAttribute(key string) error {
	if key == "" {
		return fmt.Errorf("attribute name is required")
	}
	if w.doc.Has(key) {
		return fmt.Errorf("attribute %q already exists", key)
	}
	w.doc.Set(key, Object())
	w.order.Add(key)
	return nil
}

// RemoveAttribute deletes key from both the document and the order.
func (w *Workspace) RemoveAttribute(key string) bool {
	if !w.doc.Has(key) {
		return false
	}
	w.doc.Delete(key)
	w.order.Remove(key)
	return true
}

func (w *Workspace) Reorder(fromKey, toKey string) bool {
	return w.order.Reorder(fromKey, toKey)
}

// Views renders every attribute in display order.
func (w *Workspace) Views() []View {
	keys := w.order.Keys()
	views := make([]View, 0, len(keys))
	for _, k := range keys {
		t, shape, ok := w.doc.Table(k)
		if !ok {
			continue
		}
		views = append(views, View{Key: k, Shape: shape.String(), Table: t})
	}
	return views
}

// Ordered returns the document with keys rearranged into display order.
func (w *Workspace) Ordered() *Document {
	out := NewDocument()
	for _, k := range w.order.Keys() {
		if v, ok := w.doc.Get(k); ok {
			out.Set(k, v)
		}
	}
	return out
}
