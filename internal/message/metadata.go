package message

import "github.com/rc1405/fiddler/internal/value"

// Metadata is the string-to-Value mapping populated by an input and
// freely mutated by processors. Ordering is preserved but not
// semantically meaningful; it reuses value.Dict for that reason
// rather than a bare Go map.
type Metadata struct {
	d *value.Dict
}

// NewMetadata returns an empty metadata set.
func NewMetadata() *Metadata {
	return &Metadata{d: value.NewDict()}
}

// Get returns the value stored under key, or (Null, false).
func (m *Metadata) Get(key string) (value.Value, bool) {
	return m.d.Get(key)
}

// GetOrNull returns the value stored under key, or Null if absent.
func (m *Metadata) GetOrNull(key string) value.Value {
	v, _ := m.d.Get(key)
	return v
}

// Set stores a value under key.
func (m *Metadata) Set(key string, v value.Value) {
	m.d.Set(key, v)
}

// SetString is a convenience wrapper for the common string case.
func (m *Metadata) SetString(key, val string) {
	m.d.Set(key, value.Str(val))
}

// Delete removes key.
func (m *Metadata) Delete(key string) {
	m.d.Delete(key)
}

// Keys returns the metadata keys in insertion order.
func (m *Metadata) Keys() []string {
	return m.d.Keys()
}

// Range visits every key/value pair in insertion order.
func (m *Metadata) Range(fn func(key string, v value.Value)) {
	m.d.Range(fn)
}

// AsDict exposes the underlying ordered dict, e.g. for binding
// `metadata` into a FiddlerScript scope.
func (m *Metadata) AsDict() *value.Dict {
	return m.d
}

// Clone returns an independent copy.
func (m *Metadata) Clone() *Metadata {
	return &Metadata{d: m.d.Clone()}
}
