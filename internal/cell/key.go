package cell

import (
	"fmt"
	"reflect"
)

// Key identifies a stateful cell. Two stateful cells constructed with equal,
// non-nil keys share the same CellState (spec invariant 6). Key also
// provides Hash so the registry can bucket entries without requiring Key
// implementations to be valid Go map keys (ValueKey below holds a slice of
// arguments, which Go maps cannot key on directly).
type Key interface {
	// Hash returns a bucket identifier for fast lookup. Equal keys must
	// return equal hashes; unequal keys should (but need not) differ.
	Hash() string

	// Equal reports whether other identifies the same logical cell.
	Equal(other Key) bool
}

// ValueKey is a Key distinguished from other keys of the same kind by an
// ordered tuple of arguments, exactly as described in spec.md §3: "a value
// key is equal to another of the same concrete kind iff its ordered
// argument tuple is equal." Ported from original_source's
// live_cells/keys.py ValueKey.
type ValueKey struct {
	Kind string
	Args []any
}

// NewValueKey builds a ValueKey for the given combinator kind (e.g.
// "awaited", "waited", "logand") and its ordered arguments.
func NewValueKey(kind string, args ...any) ValueKey {
	return ValueKey{Kind: kind, Args: args}
}

func (k ValueKey) Hash() string {
	return fmt.Sprintf("%s:%d", k.Kind, len(k.Args))
}

func (k ValueKey) Equal(other Key) bool {
	o, ok := other.(ValueKey)
	if !ok {
		return false
	}
	if k.Kind != o.Kind || len(k.Args) != len(o.Args) {
		return false
	}
	for i := range k.Args {
		if !reflect.DeepEqual(k.Args[i], o.Args[i]) {
			return false
		}
	}
	return true
}
