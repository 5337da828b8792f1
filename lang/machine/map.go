package machine

import (
	"fmt"

	"github.com/dolthub/swiss"
)

// A Map represents a map or dictionary. If you know the exact final number of
// entries, it is more efficient to call NewMap.
type Map struct {
	m *swiss.Map[Value, Value]
}

var (
	_ Value     = (*Map)(nil)
	_ Mapping   = (*Map)(nil)
	_ HasSetKey = (*Map)(nil)
	_ Iterable  = (*Map)(nil)
)

// NewMap returns a map with initial capacity for at least size items.
func NewMap(size int) *Map {
	m := swiss.NewMap[Value, Value](uint32(size))
	return &Map{m: m}
}

func (m *Map) String() string { return fmt.Sprintf("map(%p)", m) }
func (m *Map) Type() string   { return "map" }
func (m *Map) Get(k Value) (Value, bool, error) {
	v, ok := m.m.Get(k)
	return v, ok, nil
}
func (m *Map) SetKey(k, v Value) error {
	m.m.Put(k, v)
	return nil
}

func (m *Map) Len() int { return m.m.Count() }

// Iterate yields each entry as a 2-element Array of [key, value], mirroring
// the disassembled ARRAY literal shape so a for-in over a map destructures
// naturally into "for k, v in map".
func (m *Map) Iterate() Iterator {
	it := &mapIterator{pairs: make([]Value, 0, m.m.Count())}
	m.m.Iter(func(k, v Value) (stop bool) {
		it.pairs = append(it.pairs, NewArray([]Value{k, v}))
		return false
	})
	return it
}

type mapIterator struct{ pairs []Value }

func (it *mapIterator) Next(p *Value) bool {
	if len(it.pairs) == 0 {
		return false
	}
	*p = it.pairs[0]
	it.pairs = it.pairs[1:]
	return true
}

func (it *mapIterator) Done() {}
