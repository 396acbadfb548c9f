package argument

import (
	"reflect"
	"unsafe"
	"weak"
)

// ---------------------------------------------------------------------------
// weakRef: a reference that doesn't prevent garbage collection
// ---------------------------------------------------------------------------

// weakRef holds a weak reference to a heap allocation together with the
// pointer type it was made from, so the typed pointer can be rebuilt while
// the target is alive. Two weakRefs made from the same pointer compare equal,
// even after the target has been collected.
type weakRef struct {
	handle weak.Pointer[byte]
	typ    reflect.Type
}

// makeWeakRef creates a weak reference to the allocation v points at.
// v must be a non-nil pointer, slice, map or chan.
func makeWeakRef(v reflect.Value) weakRef {
	return weakRef{
		handle: weak.Make((*byte)(v.UnsafePointer())),
		typ:    v.Type(),
	}
}

// Get rebuilds the typed pointer. It reports false once the target is gone.
// Only pointer-typed references can be rebuilt.
func (r weakRef) Get() (reflect.Value, bool) {
	p := r.handle.Value()
	if p == nil || r.typ.Kind() != reflect.Pointer {
		return reflect.Value{}, false
	}
	return reflect.NewAt(r.typ.Elem(), unsafe.Pointer(p)), true
}

// ---------------------------------------------------------------------------
// identity: how a placeholder is recognised again
// ---------------------------------------------------------------------------

// identity is the registry key of a placeholder. Reference-shaped
// placeholders are identified by a weak handle on their allocation, sentinel
// values by the (comparable) value itself.
type identity struct {
	handle weak.Pointer[byte]
	value  any
}

func (id identity) isWeak() bool {
	return id.handle != weak.Pointer[byte]{}
}

// isReferenceKind reports whether values of kind k point at a heap
// allocation that can carry identity.
func isReferenceKind(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Chan:
		return true
	}
	return false
}

// identityOf computes the registry key for a placeholder value.
func identityOf(v reflect.Value) (identity, error) {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		return identity{}, newConversionError(nil, "nil is never a placeholder")
	}

	if isReferenceKind(v.Kind()) {
		if v.IsNil() || v.UnsafePointer() == nil {
			return identity{}, newConversionError(v.Type(), "nil is never a placeholder")
		}
		return identity{handle: makeWeakRef(v).handle}, nil
	}

	if !v.Comparable() {
		return identity{}, newConversionError(v.Type(), "value is not comparable")
	}
	return identity{value: v.Interface()}, nil
}

// isNilValue reports whether v represents "no object": an invalid value or a
// nil pointer, interface, map, slice, chan or func.
func isNilValue(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice,
		reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return v.IsNil()
	}
	return false
}

// isNilableKind reports whether values of kind k can be nil.
func isNilableKind(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice,
		reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	}
	return false
}
