package argument

import (
	"reflect"
)

// Recorder records invocations on placeholders. It carries the state that
// must not be shared between goroutines: the rotation tables of
// low-cardinality types, whose placeholders are only meaningful to the
// recorder that produced them.
//
// A Recorder is not safe for concurrent use. Use one per goroutine; the
// sequences it records may be shared freely.
type Recorder struct {
	reg       *Registry
	rotations map[reflect.Type]*rotation
}

// rotation hands out the values of a low-cardinality type in turn and
// remembers which sequence each value was last handed out for.
type rotation struct {
	values []reflect.Value
	next   int
	bound  map[any]*Sequence
}

func newRecorder(r *Registry) *Recorder {
	return &Recorder{
		reg:       r,
		rotations: make(map[reflect.Type]*rotation),
	}
}

// NewRecorder creates a recorder on the default registry.
func NewRecorder() *Recorder {
	return Default().NewRecorder()
}

// Registry returns the registry the recorder binds placeholders in.
func (rec *Recorder) Registry() *Registry { return rec.reg }

func (rec *Recorder) rotate(t reflect.Type, seq *Sequence) (reflect.Value, error) {
	rot, ok := rec.rotations[t]
	if !ok {
		var values []reflect.Value
		if enum, ok := rec.reg.enumFor(t); ok {
			values = enum
		} else if t.Kind() == reflect.Bool {
			values = boolValues(t)
		}
		if len(values) == 0 {
			return reflect.Value{}, &UnproxyableTypeError{Type: t, Reason: "enum has no values"}
		}
		rot = &rotation{values: values, bound: make(map[any]*Sequence)}
		rec.rotations[t] = rot
	}

	v := rot.values[rot.next]
	rot.next = (rot.next + 1) % len(rot.values)
	rot.bound[v.Interface()] = seq
	return v, nil
}

// Resolve returns the sequence a placeholder stands for. Low-cardinality
// placeholders are resolved against this recorder's rotation tables, all
// others against the registry.
func (rec *Recorder) Resolve(placeholder any) (*Sequence, error) {
	if placeholder != nil {
		if rot, ok := rec.rotations[reflect.TypeOf(placeholder)]; ok {
			if seq, ok := rot.bound[placeholder]; ok {
				return seq, nil
			}
			return nil, newConversionError(reflect.TypeOf(placeholder), "value was not handed out by this recorder")
		}
	}
	return rec.reg.Resolve(placeholder)
}

// Reset forgets all low-cardinality bindings of the recorder.
func (rec *Recorder) Reset() {
	clear(rec.rotations)
}
