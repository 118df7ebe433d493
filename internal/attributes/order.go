package attributes

// Order is the display order of a document's attribute keys.
type Order struct {
	keys []string
}

// NewOrder returns an order that mirrors the keys of doc.
func NewOrder(doc *Document) *Order {
	o := &Order{}
	o.Sync(doc)
	return o
}

// Keys returns a copy of the current order.
func (o *Order) Keys() []string {
	return append([]string{}, o.keys...)
}

func (o *Order) Len() int { return len(o.keys) }

// Sync resets the order to the document's keys in insertion order.
func (o *Order) Sync(doc *Document) {
	if doc == nil {
		o.keys = nil
		return
	}
	o.keys = doc.Keys()
}

// Reorder moves fromKey to the index toKey currently occupies. Absent or
// equal keys leave the order unchanged.
func (o *Order) Reorder(fromKey, toKey string) bool {
	if fromKey == toKey {
		return false
	}
	from, to := o.index(fromKey), o.index(toKey)
	if from < 0 || to < 0 {
		return false
	}
	o.keys = Move(o.keys, from, to)
	return true
}

// Add appends key unless it is already present.
func (o *Order) Add(key string) bool {
	if o.index(key) >= 0 {
		return false
	}
	o.keys = append(o.keys, key)
	return true
}

// Remove deletes key from the order.
func (o *Order) Remove(key string) bool {
	i := o.index(key)
	if i < 0 {
		return false
	}
	o.keys = append(o.keys[:i:i], o.keys[i+1:]...)
	return true
}

func (o *Order) index(key string) int {
	for i, k := range o.keys {
		if k == key {
			return i
		}
	}
	return -1
}

// Move returns a new slice with the element at from taken out and inserted
// at index to. The input is not modified. Out-of-range indices return an
// unchanged copy.
func Move[T any](list []T, from, to int) []T {
	out := append([]T{}, list...)
	if from < 0 || from >= len(out) || to < 0 || to >= len(out) || from == to {
		return out
	}
	item := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]T{item}, out[to:]...)...)
	return out
}
