package statemachine

import (
	"strconv"
	"sync"
)

// NamedState is an enumeration value identified by name at run time, for
// machines whose states come from a Config instead of a Go const block.
// Values are interned process-wide: the same name always maps to the same
// ordinal.
type NamedState int32

type stateInterner struct {
	mu    sync.RWMutex
	ids   map[string]NamedState
	names []string
}

var interner = &stateInterner{ids: make(map[string]NamedState)} //nolint:gochecknoglobals

// InternState returns the NamedState for name, allocating one on first use.
func InternState(name string) NamedState {
	interner.mu.RLock()
	id, ok := interner.ids[name]
	interner.mu.RUnlock()

	if ok {
		return id
	}

	interner.mu.Lock()
	defer interner.mu.Unlock()

	if id, ok := interner.ids[name]; ok {
		return id
	}

	id = NamedState(len(interner.names))
	interner.ids[name] = id
	interner.names = append(interner.names, name)

	return id
}

func (s NamedState) String() string {
	interner.mu.RLock()
	defer interner.mu.RUnlock()

	if s < 0 || int(s) >= len(interner.names) {
		return "NamedState(" + strconv.Itoa(int(s)) + ")"
	}

	return interner.names[s]
}
