package argument

import (
	"encoding/binary"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// sentinelNamespace is the UUID namespace for string and UUID sentinels.
var sentinelNamespace = uuid.MustParse("4f1d7c52-3b0e-5a7e-9c1b-6d2e8f0a1b3c")

// ---------------------------------------------------------------------------
// Sentinel values
// ---------------------------------------------------------------------------

// Sentinels are values of otherwise unproxyable types chosen so that they
// are unlikely to collide with real data: integers count up from the kind's
// minimum, unsigned integers count down from its maximum, floats are
// negative multiples of the smallest denormal and strings are name-based
// UUIDs derived from the seed.

func sentinelBytes(seed uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seed)
	return b[:]
}

func sentinelString(seed uint64) string {
	return uuid.NewSHA1(sentinelNamespace, sentinelBytes(seed)).String()
}

func sentinelUUID(seed uint64) uuid.UUID {
	return uuid.NewSHA1(sentinelNamespace, sentinelBytes(seed))
}

func sentinelTime(seed uint64) time.Time {
	return time.Unix(0, math.MinInt64+int64(seed)).UTC()
}

// setSentinel stores the sentinel for seed in v. It reports false for kinds
// that have no sentinel.
func setSentinel(v reflect.Value, seed uint64) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		bits := v.Type().Bits()
		v.SetInt(int64(-1)<<(bits-1) + int64(seed%(uint64(1)<<(bits-1))))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		bits := v.Type().Bits()
		if bits == 64 {
			v.SetUint(math.MaxUint64 - seed)
		} else {
			v.SetUint(uint64(1)<<bits - 1 - seed%(uint64(1)<<bits))
		}
	case reflect.Float32:
		v.SetFloat(-math.SmallestNonzeroFloat32 * float64(seed%(1<<23)+1))
	case reflect.Float64:
		v.SetFloat(-math.SmallestNonzeroFloat64 * float64(seed%(1<<52)+1))
	case reflect.Complex64:
		v.SetComplex(complex(-math.SmallestNonzeroFloat32*float64(seed%(1<<23)+1), 0))
	case reflect.Complex128:
		v.SetComplex(complex(-math.SmallestNonzeroFloat64*float64(seed%(1<<52)+1), 0))
	case reflect.String:
		v.SetString(sentinelString(seed))
	case reflect.Struct:
		return setStructSentinel(v, seed)
	default:
		return false
	}
	return true
}

// setStructSentinel seeds the first exported scalar field of a struct.
func setStructSentinel(v reflect.Value, seed uint64) bool {
	if !v.Type().Comparable() {
		return false
	}
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if !v.Type().Field(i).IsExported() || !f.CanSet() {
			continue
		}
		if k := f.Kind(); k == reflect.Bool || !isScalarKind(k) {
			continue
		}
		return setSentinel(f, seed)
	}
	return false
}

// sentinelSpace returns the number of distinct sentinels setSentinel makes
// for t before the seeds wrap around.
func sentinelSpace(t reflect.Type) uint64 {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(1) << (t.Bits() - 1)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if t.Bits() == 64 {
			return math.MaxUint64
		}
		return uint64(1) << t.Bits()
	case reflect.Float32, reflect.Complex64:
		return 1 << 23
	case reflect.Float64, reflect.Complex128:
		return 1 << 52
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.IsExported() && f.Type.Kind() != reflect.Bool && isScalarKind(f.Type.Kind()) {
				return sentinelSpace(f.Type)
			}
		}
	}
	return math.MaxUint64
}

// hasSentinel reports whether values of t can be made into sentinels.
func hasSentinel(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Struct:
		if !t.Comparable() {
			return false
		}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.IsExported() && f.Type.Kind() != reflect.Bool && isScalarKind(f.Type.Kind()) {
				return true
			}
		}
		return false
	case reflect.Bool:
		return false
	}
	return isScalarKind(t.Kind())
}

// ---------------------------------------------------------------------------
// Factories, enums and stubs
// ---------------------------------------------------------------------------

// Factory creates a placeholder for a type no built-in strategy can handle
// well. seed is unique per call; the factory must return distinct values for
// distinct seeds, either fresh pointers or comparable values.
type Factory func(seed uint64) any

// RegisterFactory registers f as the placeholder factory for t, replacing
// any previous registration. Factories take precedence over every other
// strategy except low-cardinality rotation.
func (r *Registry) RegisterFactory(t reflect.Type, f Factory) {
	r.typesMu.Lock()
	defer r.typesMu.Unlock()
	r.factories[t] = f
}

// RegisterFactoryFor is the typed form of RegisterFactory.
func RegisterFactoryFor[T any](r *Registry, f func(seed uint64) T) {
	r.RegisterFactory(reflect.TypeFor[T](), func(seed uint64) any { return f(seed) })
}

// RegisterEnum declares the complete value set of a small enumerated type.
// Placeholders of T are then produced by rotating through values, which
// keeps them valid members of the enumeration.
func RegisterEnum[T comparable](r *Registry, values ...T) {
	rv := make([]reflect.Value, len(values))
	for i := range values {
		rv[i] = reflect.ValueOf(&values[i]).Elem()
	}
	r.typesMu.Lock()
	defer r.typesMu.Unlock()
	r.enums[reflect.TypeFor[T]()] = rv
}

// RegisterStub registers a constructor for placeholders of interface type I.
// Interfaces with methods cannot be implemented at run time, so recording on
// them requires a stub; newStub must return a fresh non-nil pointer on every
// call.
func RegisterStub[I any](r *Registry, newStub func() I) {
	t := reflect.TypeFor[I]()
	r.typesMu.Lock()
	defer r.typesMu.Unlock()
	r.stubs[t] = func() any { return newStub() }
}

func (r *Registry) factoryFor(t reflect.Type) (Factory, bool) {
	r.typesMu.RLock()
	defer r.typesMu.RUnlock()
	f, ok := r.factories[t]
	return f, ok
}

func (r *Registry) enumFor(t reflect.Type) ([]reflect.Value, bool) {
	r.typesMu.RLock()
	defer r.typesMu.RUnlock()
	v, ok := r.enums[t]
	return v, ok
}

func (r *Registry) stubFor(t reflect.Type) (func() any, bool) {
	r.typesMu.RLock()
	defer r.typesMu.RUnlock()
	f, ok := r.stubs[t]
	return f, ok
}

func (r *Registry) registerBuiltinFactories() {
	RegisterFactoryFor(r, sentinelTime)
	RegisterFactoryFor(r, sentinelUUID)
}
