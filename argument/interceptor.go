package argument

import (
	"fmt"
	"reflect"
)

// ---------------------------------------------------------------------------
// Recording
// ---------------------------------------------------------------------------

// Invoke records a call of method with args on placeholder and returns the
// placeholder for its result. The method is never executed; the result
// placeholder stands for the extended sequence.
//
// The method is looked up on the placeholder's static type. For non-pointer
// types the pointer method set is searched too. Recordable methods return one
// value, optionally followed by an error.
func (rec *Recorder) Invoke(placeholder any, method string, args ...any) (any, error) {
	seq, err := rec.Resolve(placeholder)
	if err != nil {
		return nil, err
	}

	owner := seq.ReturnType()
	m, err := describeMethod(owner, method)
	if err != nil {
		return nil, err
	}
	values, err := convertArguments(m, args)
	if err != nil {
		return nil, err
	}

	next := seq.extend(newInvocation(owner, m, values, seq.last))
	v, err := rec.reg.placeholderFor(rec, next)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Call records a call of method on placeholder and returns the typed
// placeholder for its result.
//
//	p := argument.On[*Person](rec)
//	friend, _ := argument.Call[*Person](rec, p, "GetBestFriend")
//	age, _ := argument.Call[int](rec, friend, "Age")
//	seq, _ := rec.Resolve(age) // bestFriend.age
func Call[R any](rec *Recorder, placeholder any, method string, args ...any) (R, error) {
	var zero R
	out, err := rec.Invoke(placeholder, method, args...)
	if err != nil {
		return zero, err
	}
	r, ok := out.(R)
	if !ok {
		return zero, newConversionError(reflect.TypeFor[R](),
			fmt.Sprintf("%s returns %s", method, reflect.TypeOf(out)))
	}
	return r, nil
}

// MustCall is like Call but panics on error.
func MustCall[R any](rec *Recorder, placeholder any, method string, args ...any) R {
	r, err := Call[R](rec, placeholder, method, args...)
	if err != nil {
		panic(err)
	}
	return r
}

// Placeholder returns the root placeholder for T: the empty sequence on T.
func Placeholder[T any](rec *Recorder) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()
	v, err := rec.reg.placeholderFor(rec, newRootSequence(rec.reg, t))
	if err != nil {
		return zero, err
	}
	p, ok := v.Interface().(T)
	if !ok {
		return zero, &UnproxyableTypeError{Type: t, Reason: fmt.Sprintf("strategy produced %s", v.Type())}
	}
	return p, nil
}

// On is like Placeholder but panics on error.
func On[T any](rec *Recorder) T {
	p, err := Placeholder[T](rec)
	if err != nil {
		panic(err)
	}
	return p
}

// ---------------------------------------------------------------------------
// Equality and hashing
// ---------------------------------------------------------------------------

// Equal compares two values the way placeholders compare: two placeholders
// are equal when their sequences are. Values that are not placeholders of
// rec fall back to reflect.DeepEqual.
func Equal(rec *Recorder, a, b any) bool {
	sa, errA := rec.Resolve(a)
	sb, errB := rec.Resolve(b)
	if errA == nil && errB == nil {
		return sa.Equal(sb)
	}
	if errA == nil || errB == nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Hash returns the hash of the sequence placeholder stands for, consistent
// with Equal.
func Hash(rec *Recorder, placeholder any) (uint64, error) {
	seq, err := rec.Resolve(placeholder)
	if err != nil {
		return 0, err
	}
	return seq.Hash(), nil
}
