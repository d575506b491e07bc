package cells

import (
	"fmt"

	"github.com/livecellgo/cells/internal/cell"
)

// Peek reads c's current value without recording it as a dependency of
// any computation that might otherwise be tracking the caller (spec.md
// §6 "peek").
func Peek[T any](c Cell[T]) (T, error) {
	return c.Value()
}

// OnError returns a cell that evaluates to c's value, substituting other
// whenever c's value is an error (spec.md §6 "on_error").
func OnError[T any](c Cell[T], other Cell[T]) Cell[T] {
	return cell.NewComputed[T](cell.Global, cell.NewValueKey("on_error", cellIdentity(c), cellIdentity(other)), func() T {
		v, err := c.Call()
		if err == nil {
			return v
		}
		v, _ = other.Call()
		return v
	}, false)
}

// Error returns a cell holding the error c's value currently carries, or
// nil if c is not currently in an error state (spec.md §6 "error").
func Error[T any](c Cell[T]) Cell[error] {
	return cell.NewComputed[error](cell.Global, cell.NewValueKey("error", cellIdentity(c)), func() error {
		_, err := c.Call()
		return err
	}, false)
}

// LogAnd returns a cell that is true iff every argument is true
// (spec.md §6 "logand").
func LogAnd(cs ...Cell[bool]) Cell[bool] {
	return cell.NewComputed[bool](cell.Global, logicKey("logand", cs), func() bool {
		for _, c := range cs {
			v, _ := c.Call()
			if !v {
				return false
			}
		}
		return true
	}, false)
}

// LogOr returns a cell that is true iff at least one argument is true
// (spec.md §6 "logor").
func LogOr(cs ...Cell[bool]) Cell[bool] {
	return cell.NewComputed[bool](cell.Global, logicKey("logor", cs), func() bool {
		for _, c := range cs {
			v, _ := c.Call()
			if v {
				return true
			}
		}
		return false
	}, false)
}

// LogNot returns the logical negation of c (spec.md §6 "lognot").
func LogNot(c Cell[bool]) Cell[bool] {
	return cell.NewComputed[bool](cell.Global, cell.NewValueKey("lognot", cellIdentity(c)), func() bool {
		v, _ := c.Call()
		return !v
	}, false)
}

// Select returns ifTrue's value when cond is true, else ifFalse's value
// (spec.md §6 "select").
func Select[T any](cond Cell[bool], ifTrue Cell[T], ifFalse Cell[T]) Cell[T] {
	return cell.NewComputed[T](cell.Global, nil, func() T {
		v, _ := cond.Call()
		if v {
			r, _ := ifTrue.Call()
			return r
		}
		r, _ := ifFalse.Call()
		return r
	}, false)
}

func logicKey(kind string, cs []Cell[bool]) Key {
	args := make([]any, len(cs))
	for i, c := range cs {
		args[i] = cellIdentity(c)
	}
	return cell.NewValueKey(kind, args...)
}

// cellIdentity returns a value suitable for use inside a ValueKey's
// argument tuple: the cell's own Key if it has one (so two combinators
// over equally-keyed arguments share state, per spec.md §4.3's "derive a
// composite value key from the combinator kind and argument cells"),
// falling back to the handle's pointer identity for unkeyed cells.
// Formatted as a string rather than passed as the raw pointer so
// ValueKey.Equal's reflect.DeepEqual compares identity, not the pointed-to
// struct's contents (which would make two freshly-constructed, as-yet
// divergent cells compare equal).
func cellIdentity(c cell.AnyCell) any {
	if k := c.Key(); k != nil {
		return k
	}
	return fmt.Sprintf("%p", c)
}
