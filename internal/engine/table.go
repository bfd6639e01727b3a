package engine

import (
	"sort"
	"sync"
)

// Table is a thread-safe in-memory Store.
type Table[V any] struct {
	mu   sync.RWMutex
	rows map[Identity]V
}

// NewTable returns an empty table.
func NewTable[V any]() *Table[V] {
	return &Table[V]{rows: make(map[Identity]V)}
}

func (t *Table[V]) Get(id Identity) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.rows[id]
	return v, ok
}

func (t *Table[V]) Set(id Identity, val V) {
	t.mu.Lock()
	t.rows[id] = val
	t.mu.Unlock()
}

func (t *Table[V]) Delete(id Identity) {
	t.mu.Lock()
	delete(t.rows, id)
	t.mu.Unlock()
}

func (t *Table[V]) Update(id Identity, fn func(cur V, ok bool) V) V {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.rows[id]
	next := fn(cur, ok)
	t.rows[id] = next
	return next
}

// Len returns the number of stored records.
func (t *Table[V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Identities lists stored keys ordered by client key, then persona.
func (t *Table[V]) Identities() []Identity {
	t.mu.RLock()
	list := make([]Identity, 0, len(t.rows))
	for id := range t.rows {
		list = append(list, id)
	}
	t.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].ClientKey != list[j].ClientKey {
			return list[i].ClientKey < list[j].ClientKey
		}
		return list[i].PersonaID < list[j].PersonaID
	})
	return list
}
