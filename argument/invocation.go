package argument

import (
	"fmt"
	"hash/maphash"
	"reflect"
	"strings"
)

// hashSeed is the process-wide seed for descriptor hashes.
var hashSeed = maphash.MakeSeed()

// ---------------------------------------------------------------------------
// Argument references
// ---------------------------------------------------------------------------

// argRef holds one recorded argument. Pointer arguments are held weakly so
// that recording does not keep client objects alive; everything else is held
// by value.
type argRef struct {
	strong reflect.Value
	weak   weakRef
	isWeak bool
}

func newArgRef(v reflect.Value) argRef {
	if v.Kind() == reflect.Pointer && !v.IsNil() && v.Type().Elem().Size() > 0 {
		return argRef{weak: makeWeakRef(v), isWeak: true}
	}
	return argRef{strong: v}
}

// value returns the argument, or ErrArgumentCollected when a weakly held
// argument is gone.
func (a argRef) value() (reflect.Value, error) {
	if !a.isWeak {
		return a.strong, nil
	}
	v, ok := a.weak.Get()
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrArgumentCollected, a.weak.typ)
	}
	return v, nil
}

// scalar reports whether the argument is a strongly held boolean, number or
// string, i.e. something a compiled evaluator can bake in.
func (a argRef) scalar() bool {
	return !a.isWeak && isScalarKind(a.strong.Kind())
}

func (a argRef) equal(b argRef) bool {
	if a.isWeak != b.isWeak {
		return false
	}
	if a.isWeak {
		return a.weak.handle == b.weak.handle
	}
	if a.strong.Type() != b.strong.Type() {
		return false
	}
	if a.strong.Comparable() && b.strong.Comparable() {
		return a.strong.Equal(b.strong)
	}
	return reflect.DeepEqual(a.strong.Interface(), b.strong.Interface())
}

func (a argRef) writeHash(h *maphash.Hash) {
	if a.isWeak {
		maphash.WriteComparable(h, a.weak.handle)
		return
	}
	h.WriteString(a.strong.Type().String())
	if a.strong.Comparable() {
		maphash.WriteComparable(h, a.strong.Interface())
	}
}

func (a argRef) String() string {
	if a.isWeak {
		if v, ok := a.weak.Get(); ok {
			return fmt.Sprintf("(%s)(%p)", typeName(a.weak.typ), v.UnsafePointer())
		}
		return fmt.Sprintf("(%s)(collected)", typeName(a.weak.typ))
	}
	if !a.strong.IsValid() || isNilValue(a.strong) {
		return "nil"
	}
	// The type keeps int(1) and int64(1) passed as any apart.
	return fmt.Sprintf("%s(%#v)", typeName(a.strong.Type()), a.strong.Interface())
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// Invocation describes one recorded method call: the static type it was
// recorded on, the method, its arguments and the invocation that produced
// the receiver. Invocations are immutable once created.
type Invocation struct {
	owner  reflect.Type
	method MethodID
	args   []argRef
	prev   *Invocation
	hash   uint64
}

func newInvocation(owner reflect.Type, method MethodID, args []reflect.Value, prev *Invocation) *Invocation {
	inv := &Invocation{
		owner:  owner,
		method: method,
		args:   make([]argRef, len(args)),
		prev:   prev,
	}
	for i, a := range args {
		inv.args[i] = newArgRef(a)
	}

	var h maphash.Hash
	h.SetSeed(hashSeed)
	if prev != nil {
		maphash.WriteComparable(&h, prev.hash)
	}
	h.WriteString(typeName(owner))
	h.WriteString(method.Name)
	for _, a := range inv.args {
		a.writeHash(&h)
	}
	inv.hash = h.Sum64()
	return inv
}

// Owner returns the static type the method was recorded on.
func (inv *Invocation) Owner() reflect.Type { return inv.owner }

// Method returns the recorded method.
func (inv *Invocation) Method() MethodID { return inv.method }

// ReturnType returns the static result type of the method.
func (inv *Invocation) ReturnType() reflect.Type { return inv.method.Result }

// Previous returns the invocation that produced this one's receiver, or nil.
func (inv *Invocation) Previous() *Invocation { return inv.prev }

// NumArgs returns the number of recorded arguments.
func (inv *Invocation) NumArgs() int { return len(inv.args) }

// Arguments returns the recorded arguments. It fails with
// ErrArgumentCollected if a weakly held argument has been collected.
func (inv *Invocation) Arguments() ([]any, error) {
	values, err := inv.argumentValues()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v.Interface()
	}
	return out, nil
}

func (inv *Invocation) argumentValues() ([]reflect.Value, error) {
	values := make([]reflect.Value, len(inv.args))
	for i, a := range inv.args {
		v, err := a.value()
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// jittable reports whether every argument is a strongly held scalar.
func (inv *Invocation) jittable() bool {
	for _, a := range inv.args {
		if !a.scalar() {
			return false
		}
	}
	return true
}

// PropertyName returns the bean-style property name of the method.
func (inv *Invocation) PropertyName() string {
	return PropertyName(inv.method.Name)
}

// InvokeOn replays the invocation on target and returns the result. A nil
// target yields nil without calling anything.
func (inv *Invocation) InvokeOn(target any) (any, error) {
	out, err := inv.invokeOn(reflect.ValueOf(target))
	if err != nil {
		return nil, err
	}
	return resultOf(out), nil
}

func (inv *Invocation) invokeOn(target reflect.Value) (reflect.Value, error) {
	if target.Kind() == reflect.Interface {
		target = target.Elem()
	}
	if isNilValue(target) {
		return reflect.Value{}, nil
	}

	d, ok := resolveDispatch(target.Type(), inv.method.Name)
	if !ok {
		return reflect.Value{}, WrapInvocationError(inv.method.Name, targetOf(target),
			fmt.Errorf("%w: %s.%s", ErrMethodNotFound, target.Type(), inv.method.Name))
	}
	args, err := inv.argumentValues()
	if err != nil {
		return reflect.Value{}, WrapInvocationError(inv.method.Name, targetOf(target), err)
	}

	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, d.receiver(target))
	in = append(in, args...)
	return callMethod(inv.method.Name, target, d.fn, in)
}

// Equal reports whether two invocations describe the same call: same owner,
// method, arguments and previous invocation.
func (inv *Invocation) Equal(other *Invocation) bool {
	for a, b := inv, other; ; a, b = a.prev, b.prev {
		if a == b {
			return true
		}
		if a == nil || b == nil {
			return false
		}
		if a.hash != b.hash || a.owner != b.owner || a.method.Name != b.method.Name || len(a.args) != len(b.args) {
			return false
		}
		for i := range a.args {
			if !a.args[i].equal(b.args[i]) {
				return false
			}
		}
	}
}

// Hash returns a hash consistent with Equal.
func (inv *Invocation) Hash() uint64 { return inv.hash }

// String renders the invocation as (Owner).Method(args).
func (inv *Invocation) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(typeName(inv.owner))
	sb.WriteString(").")
	sb.WriteString(inv.method.Name)
	sb.WriteString("(")
	for i, a := range inv.args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.String())
	}
	sb.WriteString(")")
	return sb.String()
}

// typeName renders t with package paths instead of package names so that
// equally named types from different packages never collide.
func typeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + typeName(t.Elem())
	case reflect.Slice:
		return "[]" + typeName(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), typeName(t.Elem()))
	case reflect.Map:
		return "map[" + typeName(t.Key()) + "]" + typeName(t.Elem())
	case reflect.Chan:
		switch t.ChanDir() {
		case reflect.RecvDir:
			return "<-chan " + typeName(t.Elem())
		case reflect.SendDir:
			return "chan<- " + typeName(t.Elem())
		}
		return "chan " + typeName(t.Elem())
	}
	return t.String()
}
