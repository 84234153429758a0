package statemachine

import (
	"iter"
	"slices"
)

// orderedTable is a map that remembers insertion order. Iteration order is
// the evaluation order of the transition table, so it must be deterministic.
// Not thread-safe.
type orderedTable[K comparable, V any] struct {
	keys []K
	data map[K]V
}

func newOrderedTable[K comparable, V any]() *orderedTable[K, V] {
	return &orderedTable[K, V]{
		data: make(map[K]V),
	}
}

func (o *orderedTable[K, V]) get(key K) (V, bool) {
	val, ok := o.data[key]

	return val, ok
}

func (o *orderedTable[K, V]) contains(key K) bool {
	_, ok := o.data[key]

	return ok
}

// add appends key at the end of the order. Returns false if key exists.
func (o *orderedTable[K, V]) add(key K, value V) bool {
	if o.contains(key) {
		return false
	}

	o.keys = append(o.keys, key)
	o.data[key] = value

	return true
}

func (o *orderedTable[K, V]) remove(key K) bool {
	if !o.contains(key) {
		return false
	}

	delete(o.data, key)

	if i := slices.Index(o.keys, key); i >= 0 {
		o.keys = slices.Delete(o.keys, i, i+1)
	}

	return true
}

// rekey moves the value stored under from to to, keeping its position.
// Returns false if from is missing or to is taken.
func (o *orderedTable[K, V]) rekey(from, to K) bool {
	val, ok := o.data[from]
	if !ok {
		return false
	}

	if from == to {
		return true
	}

	if o.contains(to) {
		return false
	}

	delete(o.data, from)
	o.data[to] = val

	if i := slices.Index(o.keys, from); i >= 0 {
		o.keys[i] = to
	}

	return true
}

func (o *orderedTable[K, V]) size() int {
	return len(o.keys)
}

// seq ranges over a snapshot of the keys, so callers may mutate the table
// while iterating. Entries removed mid-iteration are skipped.
func (o *orderedTable[K, V]) seq() iter.Seq2[K, V] {
	keys := slices.Clone(o.keys)

	return func(yield func(K, V) bool) {
		for _, key := range keys {
			val, ok := o.data[key]
			if !ok {
				continue
			}

			if !yield(key, val) {
				return
			}
		}
	}
}

func (o *orderedTable[K, V]) values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, val := range o.seq() {
			if !yield(val) {
				return
			}
		}
	}
}
