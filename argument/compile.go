package argument

import (
	"fmt"
	"reflect"
)

// ---------------------------------------------------------------------------
// Specialized evaluators
// ---------------------------------------------------------------------------

// compiledStep is one invocation of a compiled evaluator with its arguments
// converted up front and its method lookups cached by receiver type.
type compiledStep struct {
	name  string
	args  []reflect.Value
	cache *inlineCache
}

func newCompiledStep(inv *Invocation) (*compiledStep, error) {
	if !inv.jittable() {
		return nil, fmt.Errorf("%s has non-scalar arguments", inv)
	}
	args, err := inv.argumentValues()
	if err != nil {
		return nil, err
	}
	st := &compiledStep{
		name:  inv.method.Name,
		args:  args,
		cache: newInlineCache(),
	}
	// Concrete owners are resolved now; interface owners on first use.
	if inv.owner.Kind() != reflect.Interface {
		d, ok := resolveDispatch(inv.owner, st.name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrMethodNotFound, inv.owner, st.name)
		}
		st.cache.Update(inv.owner, d)
	}
	return st, nil
}

func (st *compiledStep) invoke(recv reflect.Value) (reflect.Value, error) {
	t := recv.Type()
	d, ok := st.cache.Lookup(t)
	if !ok {
		if d, ok = resolveDispatch(t, st.name); !ok {
			return reflect.Value{}, WrapInvocationError(st.name, targetOf(recv),
				fmt.Errorf("%w: %s.%s", ErrMethodNotFound, t, st.name))
		}
		st.cache.Update(t, d)
	}

	in := make([]reflect.Value, len(st.args)+1)
	in[0] = d.receiver(recv)
	copy(in[1:], st.args)
	return callMethod(st.name, recv, d.fn, in)
}

// compileSequence builds a specialized evaluator for s. The evaluator has
// the same observable behaviour as replay: nil propagation, error wrapping
// and untyped nil results.
func compileSequence(s *Sequence) (ev Evaluator, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev, err = nil, panicError(r)
		}
	}()

	if !s.jittable {
		return nil, fmt.Errorf("sequence %s is not eligible for compilation", s)
	}
	invs := s.invocations()
	if len(invs) == 0 {
		return nil, fmt.Errorf("empty sequence on %s", s.root)
	}

	steps := make([]*compiledStep, len(invs))
	for i, inv := range invs {
		if steps[i], err = newCompiledStep(inv); err != nil {
			return nil, err
		}
	}

	return func(target any) (any, error) {
		v := reflect.ValueOf(target)
		for _, st := range steps {
			if isNilValue(v) {
				return nil, nil
			}
			out, err := st.invoke(v)
			if err != nil {
				return nil, err
			}
			v = out
		}
		return resultOf(v), nil
	}, nil
}

// guardEvaluator protects against panics escaping precompiled evaluators.
func guardEvaluator(key string, fn Evaluator) Evaluator {
	return func(target any) (out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				out, err = nil, WrapInvocationError(key, target, panicError(r))
			}
		}()
		return fn(target)
	}
}
