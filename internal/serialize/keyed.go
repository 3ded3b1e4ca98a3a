package serialize

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/bytedance/sonic"
)

// OrderedMap is an insertion-ordered map with arbitrary keys, the host form
// of a script Map.
type OrderedMap struct {
	// Constructor names the collection type; "Map" when empty
	Constructor string

	keys   []any
	values []any
	index  map[any]int
}

// NewOrderedMap creates an empty OrderedMap
func NewOrderedMap(constructor string) *OrderedMap {
	return &OrderedMap{Constructor: constructor, index: map[any]int{}}
}

// Set stores value under key, keeping the position of an existing key.
// Keys that are not comparable are always appended.
func (m *OrderedMap) Set(key, value any) {
	if m.index == nil {
		m.index = map[any]int{}
	}
	hashable := key == nil || reflect.TypeOf(key).Comparable()
	if hashable {
		if i, ok := m.index[key]; ok {
			m.values[i] = value
			return
		}
		m.index[key] = len(m.keys)
	}
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
}

// Get returns the value stored under a comparable key
func (m *OrderedMap) Get(key any) (any, bool) {
	if key != nil && !reflect.TypeOf(key).Comparable() {
		return nil, false
	}
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.values[i], true
}

func (m *OrderedMap) Len() int { return len(m.keys) }

// Range calls fn for each entry in insertion order until fn returns false
func (m *OrderedMap) Range(fn func(key, value any) bool) {
	for i := range m.keys {
		if !fn(m.keys[i], m.values[i]) {
			return
		}
	}
}

// Entry is one decoded key-value pair
type Entry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Keyed is the decoded form of a key-value collection. Keys that were not
// strings arrive in their JSON form.
type Keyed struct {
	Constructor string  `json:"constructor"`
	Entries     []Entry `json:"entries"`
	// Remaining counts entries dropped by truncation
	Remaining int `json:"remaining,omitempty"`
}

// Get returns the value stored under key
func (k *Keyed) Get(key string) (any, bool) {
	for _, e := range k.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

type keyedTransform struct{}

// KeyValue handles *OrderedMap and Go maps whose keys are not strings
func KeyValue() Transform { return keyedTransform{} }

func (keyedTransform) Type() string { return "Map" }

func (keyedTransform) Match(v any) bool {
	if _, ok := v.(*OrderedMap); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Map && rv.Type().Key().Kind() != reflect.String
}

func (keyedTransform) Encode(v any, enc *Encoder) any {
	var keys, values []any
	proto := "Map"

	if m, ok := v.(*OrderedMap); ok {
		if m != nil {
			keys, values = m.keys, m.values
			if m.Constructor != "" {
				proto = m.Constructor
			}
		}
	} else {
		keys, values = sortedEntries(reflect.ValueOf(v))
	}

	visible := enc.Visible(len(keys))
	pairs := make([]any, 0, visible+1)
	for i := 0; i < visible; i++ {
		pairs = append(pairs, []any{KeyString(keys[i]), enc.Encode(values[i])})
	}
	if visible < len(keys) {
		pairs = append(pairs, Marker(len(keys)-visible))
	}
	return map[string]any{"name": "Map", "body": pairs, "proto": proto}
}

func (keyedTransform) Decode(body any, dec *Decoder) any {
	m, ok := body.(map[string]any)
	if !ok {
		return body
	}
	out := &Keyed{Constructor: "Map"}
	if proto, ok := m["proto"].(string); ok && proto != "" {
		out.Constructor = proto
	}
	dec.Bind(out)
	pairs, _ := m["body"].([]any)
	out.Entries = make([]Entry, 0, len(pairs))
	for _, p := range pairs {
		if n, ok := IsMarker(p); ok {
			out.Remaining += n
			continue
		}
		pair, ok := p.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		out.Entries = append(out.Entries, Entry{Key: KeyString(pair[0]), Value: dec.Decode(pair[1])})
	}
	return out
}

func sortedEntries(rv reflect.Value) (keys, values []any) {
	if rv.IsNil() {
		return nil, nil
	}
	mk := rv.MapKeys()
	sort.Slice(mk, func(i, j int) bool {
		return KeyString(mk[i].Interface()) < KeyString(mk[j].Interface())
	})
	keys = make([]any, len(mk))
	values = make([]any, len(mk))
	for i, k := range mk {
		keys[i] = k.Interface()
		values[i] = rv.MapIndex(k).Interface()
	}
	return keys, values
}

// KeyString turns a collection key into a plain string key: strings are
// kept, anything else takes its JSON form.
func KeyString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}
	if rv := reflect.ValueOf(key); rv.Kind() == reflect.String {
		return rv.String()
	}
	s, err := sonic.ConfigStd.MarshalToString(key)
	if err != nil {
		return fmt.Sprint(key)
	}
	return s
}
