package value

// MergeMaps merges multiple map-like values into a single lazy map object.
//
// Later values override earlier ones when keys overlap. Non-map values are
// ignored for enumeration, but attribute lookups are forwarded to any objects
// that implement map-like access.
//
// Merging a system-prompt dict with a per-turn overrides dict needs the
// result to iterate in a stable order (system keys first, then any new
// override keys appended), not alphabetically, to match Jinja2 dict
// semantics for the merged keys.
func MergeMaps(sources ...Value) Value {
	if len(sources) == 1 {
		return sources[0]
	}
	return FromObject(&mergedMap{sources: sources})
}

type mergedMap struct {
	sources []Value
}

func (m *mergedMap) ObjectRepr() ObjectRepr {
	return ObjectReprMap
}

func (m *mergedMap) ObjectLen() int {
	return len(m.Keys())
}

func (m *mergedMap) Keys() []string {
	seen := make(map[string]struct{})
	keys := make([]string, 0)
	for _, src := range m.sources {
		for _, key := range keysForValue(src) {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

func (m *mergedMap) GetAttr(name string) Value {
	for i := len(m.sources) - 1; i >= 0; i-- {
		val := m.sources[i].GetAttr(name)
		if !val.IsUndefined() {
			return val
		}
	}
	return Undefined()
}

func (m *mergedMap) Map() map[string]Value {
	keys := m.Keys()
	result := make(map[string]Value, len(keys))
	for _, key := range keys {
		result[key] = m.GetAttr(key)
	}
	return result
}

func keysForValue(v Value) []string {
	if om, ok := v.data.(*orderedMap); ok {
		return om.orderedKeys()
	}
	if obj, ok := v.AsObject(); ok {
		if m, ok := obj.(MapObject); ok {
			return m.Keys()
		}
	}
	return nil
}
