package argument

import (
	"fmt"
	"reflect"
)

var errorType = reflect.TypeFor[error]()

// ---------------------------------------------------------------------------
// Method description
// ---------------------------------------------------------------------------

// MethodID identifies a recordable method of a static type. Go has no
// overloading, so the owner type and the name are enough; the signature is
// kept for argument conversion and code generation.
type MethodID struct {
	Name         string
	Params       []reflect.Type // excluding the receiver
	Result       reflect.Type
	ReturnsError bool
	Variadic     bool
}

// describeMethod looks name up in the method set of owner, falling back to
// the method set of *owner for non-pointer, non-interface owners.
func describeMethod(owner reflect.Type, name string) (MethodID, error) {
	if owner == nil {
		return MethodID{}, fmt.Errorf("%w: %s on untyped nil", ErrMethodNotFound, name)
	}

	m, ok := owner.MethodByName(name)
	offset := 1
	if owner.Kind() == reflect.Interface {
		offset = 0
	} else if !ok && owner.Kind() != reflect.Pointer {
		m, ok = reflect.PointerTo(owner).MethodByName(name)
	}
	if !ok {
		return MethodID{}, fmt.Errorf("%w: %s.%s", ErrMethodNotFound, owner, name)
	}

	ft := m.Type
	id := MethodID{Name: name, Variadic: ft.IsVariadic()}
	for i := offset; i < ft.NumIn(); i++ {
		id.Params = append(id.Params, ft.In(i))
	}

	switch {
	case ft.NumOut() == 1 && ft.Out(0) != errorType:
		id.Result = ft.Out(0)
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
		id.Result = ft.Out(0)
		id.ReturnsError = true
	default:
		return MethodID{}, fmt.Errorf("%w: %s.%s must return one value, optionally followed by an error",
			ErrUnsupportedMethod, owner, name)
	}
	return id, nil
}

// paramType returns the type argument i must be converted to.
func (m MethodID) paramType(i int) reflect.Type {
	if m.Variadic && i >= len(m.Params)-1 {
		return m.Params[len(m.Params)-1].Elem()
	}
	return m.Params[i]
}

// ---------------------------------------------------------------------------
// Argument conversion
// ---------------------------------------------------------------------------

// convertArguments validates args against the method signature and returns
// them as values of the parameter types.
func convertArguments(m MethodID, args []any) ([]reflect.Value, error) {
	n := len(m.Params)
	if m.Variadic {
		if len(args) < n-1 {
			return nil, fmt.Errorf("%w: %s expects at least %d, got %d", ErrIncorrectArgumentCount, m.Name, n-1, len(args))
		}
	} else if len(args) != n {
		return nil, fmt.Errorf("%w: %s expects %d, got %d", ErrIncorrectArgumentCount, m.Name, n, len(args))
	}

	values := make([]reflect.Value, len(args))
	for i, arg := range args {
		v, err := argumentValue(arg, m.paramType(i))
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", m.Name, i, err)
		}
		values[i] = v
	}
	return values, nil
}

// argumentValue converts arg to a value assignable to t.
func argumentValue(arg any, t reflect.Type) (reflect.Value, error) {
	if arg == nil {
		if isNilableKind(t.Kind()) {
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: nil for %s", ErrInvalidArgumentValue, t)
	}

	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if isNumericKind(v.Kind()) && isNumericKind(t.Kind()) && v.Type().ConvertibleTo(t) {
		return v.Convert(t), nil
	}
	if v.Kind() == t.Kind() && v.Type().ConvertibleTo(t) {
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %s for %s", ErrInvalidArgumentValue, v.Type(), t)
}

// isScalarKind reports whether k is a boolean, numeric or string kind.
func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}

func isNumericKind(k reflect.Kind) bool {
	return isScalarKind(k) && k != reflect.Bool && k != reflect.String
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// dispatch is a resolved method for one concrete receiver type. fn takes the
// receiver as its first argument; addressable means the method is declared
// on the pointer type and the receiver must be copied into a new variable.
type dispatch struct {
	fn          reflect.Value
	addressable bool
}

// resolveDispatch finds the method named name for receivers of concrete type t.
func resolveDispatch(t reflect.Type, name string) (dispatch, bool) {
	if t.Kind() == reflect.Interface {
		return dispatch{}, false
	}
	if m, ok := t.MethodByName(name); ok {
		return dispatch{fn: m.Func}, true
	}
	if t.Kind() != reflect.Pointer {
		if m, ok := reflect.PointerTo(t).MethodByName(name); ok {
			return dispatch{fn: m.Func, addressable: true}, true
		}
	}
	return dispatch{}, false
}

// receiver adapts recv to the receiver the dispatched method expects.
func (d dispatch) receiver(recv reflect.Value) reflect.Value {
	if !d.addressable {
		return recv
	}
	pv := reflect.New(recv.Type())
	pv.Elem().Set(recv)
	return pv
}

// callMethod invokes fn with in and turns panics and trailing errors into
// an *InvocationError for method name on recv. Interface results are
// unwrapped to their dynamic value.
func callMethod(name string, recv reflect.Value, fn reflect.Value, in []reflect.Value) (out reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = reflect.Value{}
			err = WrapInvocationError(name, targetOf(recv), panicError(r))
		}
	}()

	outs := fn.Call(in)
	if len(outs) == 2 && !outs[1].IsNil() {
		return reflect.Value{}, WrapInvocationError(name, targetOf(recv), outs[1].Interface().(error))
	}
	out = outs[0]
	if out.Kind() == reflect.Interface {
		out = out.Elem()
	}
	return out, nil
}

// targetOf returns recv as an interface value for error reporting.
func targetOf(recv reflect.Value) any {
	if recv.IsValid() && recv.CanInterface() {
		return recv.Interface()
	}
	return nil
}

// resultOf converts the final value of an evaluation into its interface
// form. Nil results are reported as untyped nil.
func resultOf(v reflect.Value) any {
	if isNilValue(v) || !v.CanInterface() {
		return nil
	}
	return v.Interface()
}
