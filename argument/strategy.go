package argument

import (
	"errors"
	"fmt"
	"reflect"
)

// PlaceholderStrategy builds placeholders for a family of types. The
// registry asks its strategies in order and uses the first that supports
// the requested type.
type PlaceholderStrategy interface {
	Name() string
	Supports(r *Registry, t reflect.Type) bool
	// Create builds a placeholder of type t for seq and binds it with
	// Registry.Bind, usually seeded by Registry.NextSeed.
	Create(rec *Recorder, t reflect.Type, seq *Sequence) (reflect.Value, error)
}

// DefaultStrategies returns the built-in strategies in the order a registry
// consults them.
func DefaultStrategies() []PlaceholderStrategy {
	return []PlaceholderStrategy{
		lowCardinalityStrategy{},
		factoryStrategy{},
		interfaceStrategy{},
		referenceStrategy{},
		sentinelStrategy{},
	}
}

// ---------------------------------------------------------------------------
// Low cardinality: bool and registered enums
// ---------------------------------------------------------------------------

// lowCardinalityStrategy hands out the values of a type with too few values
// to be globally unique in rotation. Bindings live in the Recorder, so they
// are only meaningful to the goroutine that recorded them.
type lowCardinalityStrategy struct{}

func (lowCardinalityStrategy) Name() string { return "low-cardinality" }

func (lowCardinalityStrategy) Supports(r *Registry, t reflect.Type) bool {
	if t.Kind() == reflect.Bool {
		return true
	}
	_, ok := r.enumFor(t)
	return ok
}

func (lowCardinalityStrategy) Create(rec *Recorder, t reflect.Type, seq *Sequence) (reflect.Value, error) {
	return rec.rotate(t, seq)
}

// boolValues returns true and false as values of the boolean type t.
func boolValues(t reflect.Type) []reflect.Value {
	return []reflect.Value{
		reflect.ValueOf(true).Convert(t),
		reflect.ValueOf(false).Convert(t),
	}
}

// ---------------------------------------------------------------------------
// Registered factories
// ---------------------------------------------------------------------------

// factoryAttempts bounds how often a factory is asked again when it returns a
// value that is still bound.
const factoryAttempts = 16

type factoryStrategy struct{}

func (factoryStrategy) Name() string { return "factory" }

func (factoryStrategy) Supports(r *Registry, t reflect.Type) bool {
	_, ok := r.factoryFor(t)
	return ok
}

func (factoryStrategy) Create(rec *Recorder, t reflect.Type, seq *Sequence) (reflect.Value, error) {
	f, _ := rec.reg.factoryFor(t)
	v, err := rec.reg.bindSeeded(t, seq, factoryAttempts, func(seed uint64) (reflect.Value, error) {
		v := reflect.ValueOf(f(seed))
		if !v.IsValid() || !v.Type().AssignableTo(t) {
			return reflect.Value{}, &UnproxyableTypeError{Type: t, Reason: fmt.Sprintf("factory returned %v", v)}
		}
		return v, nil
	})
	var uerr *UnproxyableTypeError
	if err != nil && !errors.As(err, &uerr) {
		return reflect.Value{}, &UnproxyableTypeError{Type: t, Reason: err.Error()}
	}
	return v, err
}

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// opaquePlaceholder stands in for values of the empty interface.
type opaquePlaceholder struct {
	typ reflect.Type
}

func (p *opaquePlaceholder) String() string {
	return fmt.Sprintf("placeholder(%s)", p.typ)
}

// interfaceStrategy serves empty interfaces with an opaque pointer and other
// interfaces with their registered stub.
type interfaceStrategy struct{}

func (interfaceStrategy) Name() string { return "interface" }

func (interfaceStrategy) Supports(r *Registry, t reflect.Type) bool {
	if t.Kind() != reflect.Interface {
		return false
	}
	if t.NumMethod() == 0 {
		return true
	}
	_, ok := r.stubFor(t)
	return ok
}

func (interfaceStrategy) Create(rec *Recorder, t reflect.Type, seq *Sequence) (reflect.Value, error) {
	var v reflect.Value
	if stub, ok := rec.reg.stubFor(t); ok {
		v = reflect.ValueOf(stub())
	} else {
		v = reflect.ValueOf(&opaquePlaceholder{typ: t})
	}
	if !v.IsValid() || !isReferenceKind(v.Kind()) || v.IsNil() || !v.Type().Implements(t) {
		return reflect.Value{}, &UnproxyableTypeError{Type: t, Reason: "stub must return a non-nil pointer implementing the interface"}
	}
	if err := rec.reg.Bind(v, seq); err != nil {
		return reflect.Value{}, &UnproxyableTypeError{Type: t, Reason: err.Error()}
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// References: pointers, slices, maps, chans
// ---------------------------------------------------------------------------

// referenceStrategy allocates a fresh zero value and identifies it by its
// address. Pointers and slices need a non-zero-sized element, as zero-sized
// allocations share one address.
type referenceStrategy struct{}

func (referenceStrategy) Name() string { return "reference" }

func (referenceStrategy) Supports(_ *Registry, t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice:
		return t.Elem().Size() > 0
	case reflect.Map, reflect.Chan:
		return true
	}
	return false
}

func (referenceStrategy) Create(rec *Recorder, t reflect.Type, seq *Sequence) (reflect.Value, error) {
	var v reflect.Value
	switch t.Kind() {
	case reflect.Pointer:
		v = reflect.New(t.Elem())
	case reflect.Slice:
		v = reflect.MakeSlice(t, 0, 1)
	case reflect.Map:
		v = reflect.MakeMap(t)
	case reflect.Chan:
		v = reflect.MakeChan(t, 0)
	}
	if err := rec.reg.Bind(v, seq); err != nil {
		return reflect.Value{}, err
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Sentinels: numbers, strings, seedable structs
// ---------------------------------------------------------------------------

type sentinelStrategy struct{}

func (sentinelStrategy) Name() string { return "sentinel" }

func (sentinelStrategy) Supports(_ *Registry, t reflect.Type) bool {
	return hasSentinel(t)
}

// Create skips sentinels that are still bound, which happens once the seeds
// of a small type such as int8 wrap around.
func (sentinelStrategy) Create(rec *Recorder, t reflect.Type, seq *Sequence) (reflect.Value, error) {
	return rec.reg.bindSeeded(t, seq, sentinelSpace(t), func(seed uint64) (reflect.Value, error) {
		v := reflect.New(t).Elem()
		if !setSentinel(v, seed) {
			return reflect.Value{}, &UnproxyableTypeError{Type: t, Reason: "no sentinel value"}
		}
		return v, nil
	})
}

// unproxyable explains why no strategy supports t.
func unproxyable(t reflect.Type) error {
	reason := "no placeholder strategy supports it"
	switch t.Kind() {
	case reflect.Interface:
		reason = "interface has methods; register a stub"
	case reflect.Pointer, reflect.Slice:
		if t.Elem().Size() == 0 {
			reason = "zero-sized element type has no identity"
		}
	case reflect.Func:
		reason = "functions cannot be placeholders; register a factory"
	case reflect.Struct:
		reason = "struct has no exported scalar field to seed; use a pointer or register a factory"
	}
	return &UnproxyableTypeError{Type: t, Reason: reason}
}
