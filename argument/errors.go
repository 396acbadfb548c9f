package argument

import (
	"errors"
	"fmt"
	"reflect"
)

// Error types.
var (
	ErrConversion             = errors.New("cannot resolve placeholder")
	ErrUnproxyable            = errors.New("type cannot be proxied")
	ErrInvocation             = errors.New("invocation failed")
	ErrMethodNotFound         = errors.New("method not found")
	ErrIncorrectArgumentCount = errors.New("incorrect number of arguments")
	ErrInvalidArgumentValue   = errors.New("invalid argument value")
	ErrUnsupportedMethod      = errors.New("unsupported method")
	ErrArgumentCollected      = errors.New("argument was garbage collected")
	ErrPlaceholderInUse       = errors.New("placeholder value is bound to another sequence")
)

// ---------------------------------------------------------------------------
// InvocationError: a replayed step failed
// ---------------------------------------------------------------------------

// InvocationError reports a failure while replaying one step of a sequence,
// either reflectively or through a compiled evaluator. It carries the method
// and the object the method was invoked on.
type InvocationError struct {
	Method string
	Target any
	Cause  error
}

// Error returns a formatted error message naming the method and its target.
func (e *InvocationError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%v: %s on %T", ErrInvocation, e.Method, e.Target)
	}
	return fmt.Sprintf("%v: %s on %T: %v", ErrInvocation, e.Method, e.Target, e.Cause)
}

// Is matches ErrInvocation.
func (e *InvocationError) Is(target error) bool {
	return target == ErrInvocation
}

// Unwrap returns the underlying failure.
func (e *InvocationError) Unwrap() error {
	return e.Cause
}

// WrapInvocationError builds an InvocationError. Generated evaluators use it
// so that their failures look exactly like reflective ones.
func WrapInvocationError(method string, target any, cause error) error {
	return &InvocationError{Method: method, Target: target, Cause: cause}
}

// panicError turns a recovered panic value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}

// ---------------------------------------------------------------------------
// ConversionError: a placeholder could not be resolved
// ---------------------------------------------------------------------------

// ConversionError is returned when a value handed back by client code is not
// a known placeholder: it was never produced by a registry, it belongs to
// another recorder, or its binding was already collected.
type ConversionError struct {
	Type   reflect.Type
	Reason string
}

// Error returns a formatted error message.
func (e *ConversionError) Error() string {
	if e.Type == nil {
		return fmt.Sprintf("%v: %s", ErrConversion, e.Reason)
	}
	return fmt.Sprintf("%v: value of type %s: %s", ErrConversion, e.Type, e.Reason)
}

// Is matches ErrConversion.
func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

func newConversionError(t reflect.Type, reason string) error {
	return &ConversionError{Type: t, Reason: reason}
}

// ---------------------------------------------------------------------------
// UnproxyableTypeError: no strategy can build a placeholder
// ---------------------------------------------------------------------------

// UnproxyableTypeError is returned when a placeholder is requested for a type
// that no placeholder strategy supports and that has no registered factory.
// Callers can special-case it, e.g. to retry with an explicit type.
type UnproxyableTypeError struct {
	Type   reflect.Type
	Reason string
}

// Error returns a formatted error message naming the type.
func (e *UnproxyableTypeError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrUnproxyable, e.Type, e.Reason)
}

// Is matches ErrUnproxyable.
func (e *UnproxyableTypeError) Is(target error) bool {
	return target == ErrUnproxyable
}
