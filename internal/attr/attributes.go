// Package attr holds attribute containers and the pluggable matching
// schema used by variant selection.
package attr

import (
	"sort"
	"strings"

	"github.com/roach88/graphres/internal/ir"
)

type entry struct {
	name  string
	value ir.Value
}

// Attributes is an immutable, name-sorted set of attribute values.
// The zero value is the empty set.
type Attributes struct {
	entries []entry
}

// Of builds Attributes from an object. Nil values are dropped.
func Of(obj ir.Object) Attributes {
	if len(obj) == 0 {
		return Attributes{}
	}
	entries := make([]entry, 0, len(obj))
	for _, k := range obj.SortedKeys() {
		if obj[k] == nil {
			continue
		}
		entries = append(entries, entry{name: k, value: obj[k]})
	}
	return Attributes{entries: entries}
}

// With returns a copy with the attribute set to v.
func (a Attributes) With(name string, v ir.Value) Attributes {
	out := make([]entry, 0, len(a.entries)+1)
	inserted := false
	for _, e := range a.entries {
		if !inserted && ir.CompareKeys(name, e.name) <= 0 {
			out = append(out, entry{name: name, value: v})
			inserted = true
			if e.name == name {
				continue
			}
		}
		out = append(out, e)
	}
	if !inserted {
		out = append(out, entry{name: name, value: v})
	}
	return Attributes{entries: out}
}

// Merge returns a copy overlaid with other; other wins on conflicts.
func (a Attributes) Merge(other Attributes) Attributes {
	out := a
	for _, e := range other.entries {
		out = out.With(e.name, e.value)
	}
	return out
}

// Get returns the attribute's value.
func (a Attributes) Get(name string) (ir.Value, bool) {
	i := sort.Search(len(a.entries), func(i int) bool {
		return ir.CompareKeys(a.entries[i].name, name) >= 0
	})
	if i < len(a.entries) && a.entries[i].name == name {
		return a.entries[i].value, true
	}
	return nil, false
}

// Names returns attribute names in canonical order.
func (a Attributes) Names() []string {
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.name
	}
	return names
}

func (a Attributes) Len() int      { return len(a.entries) }
func (a Attributes) IsEmpty() bool { return len(a.entries) == 0 }

// Equal reports whether both sets hold the same names and values.
func (a Attributes) Equal(other Attributes) bool {
	if len(a.entries) != len(other.entries) {
		return false
	}
	for i := range a.entries {
		if a.entries[i].name != other.entries[i].name ||
			!ir.Equal(a.entries[i].value, other.entries[i].value) {
			return false
		}
	}
	return true
}

// Object returns the attributes as a fresh ir.Object.
func (a Attributes) Object() ir.Object {
	obj := make(ir.Object, len(a.entries))
	for _, e := range a.entries {
		obj[e.name] = e.value
	}
	return obj
}

// String renders "{name=value, ...}".
func (a Attributes) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range a.entries {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.name)
		b.WriteByte('=')
		b.WriteString(ir.Format(e.value))
	}
	b.WriteByte('}')
	return b.String()
}
