package value

// Dict is an insertion-order preserving string-to-Value mapping. Go's
// map type is unordered, and none of the JSON libraries in the plugin
// ecosystem (gabs, segmentio/encoding) round-trip object key order, so
// scripts need their own structure to keep `parse_json(str(x)) == x`
// and `keys(d)` stable across a run.
type Dict struct {
	keys   []string
	values map[string]Value
}

// NewDict returns an empty ordered dict.
func NewDict() *Dict {
	return &Dict{values: map[string]Value{}}
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Get returns the value for key, or (Null, false) if absent.
func (d *Dict) Get(key string) (Value, bool) {
	if d == nil {
		return Null(), false
	}
	v, ok := d.values[key]
	return v, ok
}

// Set inserts or overwrites key. New keys are appended to the end of
// the iteration order; existing keys keep their original position, so
// re-assignment never reorders a dict.
func (d *Dict) Set(key string, v Value) {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

// Delete removes key if present.
func (d *Dict) Delete(key string) {
	if _, exists := d.values[key]; !exists {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Range calls fn for every entry in insertion order.
func (d *Dict) Range(fn func(key string, v Value)) {
	if d == nil {
		return
	}
	for _, k := range d.keys {
		fn(k, d.values[k])
	}
}

// Clone performs a shallow, structurally independent copy: the key
// order and top-level entries are copied, but nested Array/Dict values
// are shared until one of them is itself mutated (copy-on-write).
func (d *Dict) Clone() *Dict {
	if d == nil {
		return NewDict()
	}
	c := &Dict{
		keys:   append([]string(nil), d.keys...),
		values: make(map[string]Value, len(d.values)),
	}
	for k, v := range d.values {
		c.values[k] = v
	}
	return c
}

// Equal reports structural equality: same keys in the same order, with
// equal values.
func (d *Dict) Equal(o *Dict) bool {
	if d.Len() != o.Len() {
		return false
	}
	dk, ok := d.Keys(), o.Keys()
	for i := range dk {
		if dk[i] != ok[i] {
			return false
		}
		dv, _ := d.Get(dk[i])
		ov, _ := o.Get(ok[i])
		if !dv.Equal(ov) {
			return false
		}
	}
	return true
}
