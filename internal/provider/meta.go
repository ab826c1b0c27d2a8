package provider

// MetaSkipDelete is set by a lifecycle hook once the row has already been
// removed (or archived) through a side channel.
const MetaSkipDelete = "skipDelete"

// Meta is the free-form bag carried by every operation. It is the only way
// two decorators may signal each other.
type Meta map[string]any

// SkipDelete reports whether the skip-delete flag is set to true.
func (m Meta) SkipDelete() bool {
	v, ok := m[MetaSkipDelete].(bool)
	return ok && v
}

// With returns a copy of m with key set to value. The receiver is left untouched.
func (m Meta) With(key string, value any) Meta {
	out := make(Meta, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}
