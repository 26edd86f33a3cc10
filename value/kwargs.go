package value

// KwargEntry is a single (name, value) pair from a call's keyword
// arguments, in the order the caller wrote it.
type KwargEntry struct {
	Name  string
	Value Value
}

// Kwargs is the "named" half of an ArgPack: an ordered sequence of
// (name, Value) pairs. Go's built-in map has no iteration order, so a
// plain map[string]Value loses call-site order the moment it's built -
// this type exists so that order survives from the parser's CallArg
// list all the way to callables like dict() that need to echo it back.
type Kwargs []KwargEntry

// Get looks up a named argument, scanning in order. Kwarg lists are
// small (a handful of entries at most), so linear scan beats building an
// index map for every call.
func (k Kwargs) Get(name string) (Value, bool) {
	for _, e := range k {
		if e.Name == name {
			return e.Value, true
		}
	}
	return Undefined(), false
}

// Has reports whether name was supplied.
func (k Kwargs) Has(name string) bool {
	_, ok := k.Get(name)
	return ok
}

// Set adds or overwrites a named argument, keeping the position of an
// existing entry rather than moving it to the end.
func (k *Kwargs) Set(name string, val Value) {
	for i, e := range *k {
		if e.Name == name {
			(*k)[i].Value = val
			return
		}
	}
	*k = append(*k, KwargEntry{Name: name, Value: val})
}

// Names returns the argument names in call-site order.
func (k Kwargs) Names() []string {
	names := make([]string, len(k))
	for i, e := range k {
		names[i] = e.Name
	}
	return names
}

// Len reports the number of named arguments.
func (k Kwargs) Len() int { return len(k) }

// ToMap converts to a plain map, for callers that only need lookup and
// don't care about order. Prefer Get/Names when order matters.
func (k Kwargs) ToMap() map[string]Value {
	m := make(map[string]Value, len(k))
	for _, e := range k {
		m[e.Name] = e.Value
	}
	return m
}

// AsValue builds a Value of kind KindMap from the kwargs, preserving
// their call-site order, the way dict(**kwargs) or dict(a=1, b=2) turns
// a callable's named arguments back into a template-visible dict.
func (k Kwargs) AsValue() Value {
	builder := NewMapBuilder(len(k))
	for _, e := range k {
		builder.Set(e.Name, e.Value)
	}
	return builder.Build()
}
