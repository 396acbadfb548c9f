package argument

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
	"weak"

	"github.com/tliron/commonlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ImportPath is the import path of this package, used by generated code and
// as the instrumentation scope name.
const ImportPath = "github.com/chazu/fluentarg/argument"

var registryLog = commonlog.GetLogger("fluentarg.registry")

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Default configuration values.
const (
	DefaultQueueSize      = 100
	DefaultWorkers        = 1
	DefaultSentinelMaxAge = 2
)

type options struct {
	threshold      int
	async          bool
	workers        int
	queueSize      int
	sweepInterval  time.Duration
	sentinelMaxAge uint64
	tracerProvider trace.TracerProvider
	profileFile    string
	strategies     []PlaceholderStrategy
}

func defaultOptions() *options {
	return &options{
		async:          true,
		workers:        DefaultWorkers,
		queueSize:      DefaultQueueSize,
		sweepInterval:  DefaultSweepInterval,
		sentinelMaxAge: DefaultSentinelMaxAge,
	}
}

// Option configures a Registry.
type Option func(*options)

// WithJITThreshold sets the number of evaluations after which a jittable
// sequence is compiled. Zero or less disables compilation.
func WithJITThreshold(n int) Option {
	return func(o *options) { o.threshold = n }
}

// WithAsyncCompile selects background (true) or inline (false) compilation.
func WithAsyncCompile(async bool) Option {
	return func(o *options) { o.async = async }
}

// WithWorkers sets the number of background compilation workers.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithQueueSize sets the capacity of the compilation queue.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithSweepInterval sets how often the sweeper runs. Zero or less disables
// the background sweeper; Sweeper().Sweep still works.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

// WithSentinelMaxAge sets after how many sweeps an unused sentinel binding
// is evicted.
func WithSentinelMaxAge(sweeps uint64) Option {
	return func(o *options) { o.sentinelMaxAge = max(sweeps, 1) }
}

// WithTracerProvider sets the provider for compilation spans. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithProfileFile loads a persisted profile from path when the registry is
// created, if the file exists, and saves the profile there on Close.
func WithProfileFile(path string) Option {
	return func(o *options) { o.profileFile = path }
}

// WithStrategies replaces the placeholder strategies. They are consulted in
// order; prepend to DefaultStrategies() to extend the built-in set.
func WithStrategies(strategies ...PlaceholderStrategy) Option {
	return func(o *options) { o.strategies = strategies }
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// binding ties a live placeholder to the sequence it stands for.
type binding struct {
	seq        *Sequence
	typ        reflect.Type // concrete placeholder type
	generation uint64
}

// Registry owns the placeholder bindings, the type registrations, the
// profiler and the compiler. It is safe for concurrent use; recording itself
// goes through a Recorder.
type Registry struct {
	opts *options

	// Bidirectional maps, guarded by mu.
	mu         sync.Mutex
	bindings   map[identity]*binding
	byKey      map[string]identity
	generation uint64

	seeds sync.Map // reflect.Type -> *atomic.Uint64

	typesMu   sync.RWMutex
	factories map[reflect.Type]Factory
	enums     map[reflect.Type][]reflect.Value
	stubs     map[reflect.Type]func() any

	strategies []PlaceholderStrategy

	profiler  *Profiler
	jit       *JITCompiler
	sweeper   *Sweeper
	sweepOnce sync.Once
}

// NewRegistry creates a registry.
func NewRegistry(opts ...Option) *Registry {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.strategies == nil {
		o.strategies = DefaultStrategies()
	}

	r := &Registry{
		opts:       o,
		bindings:   make(map[identity]*binding),
		byKey:      make(map[string]identity),
		factories:  make(map[reflect.Type]Factory),
		enums:      make(map[reflect.Type][]reflect.Value),
		stubs:      make(map[reflect.Type]func() any),
		strategies: o.strategies,
		profiler:   NewProfiler(),
	}
	r.jit = newJITCompiler(r.profiler, o)
	r.sweeper = NewSweeper(r, o.sweepInterval, o.sentinelMaxAge)
	r.registerBuiltinFactories()

	if o.profileFile != "" {
		if _, err := r.LoadProfileFile(o.profileFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			registryLog.Warningf("could not load profile %s: %s", o.profileFile, err.Error())
		}
	}
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry()
})

// Default returns the process-wide registry used by the package-level
// functions.
func Default() *Registry {
	return defaultRegistry()
}

// SetJITThreshold sets the compile threshold of the default registry.
// Zero or less disables compilation.
func SetJITThreshold(n int) {
	Default().JIT().SetThreshold(n)
}

// JIT returns the registry's compiler.
func (r *Registry) JIT() *JITCompiler { return r.jit }

// Profiler returns the registry's evaluation profiler.
func (r *Registry) Profiler() *Profiler { return r.profiler }

// Sweeper returns the registry's binding sweeper.
func (r *Registry) Sweeper() *Sweeper { return r.sweeper }

// NewRecorder creates a recorder bound to r.
func (r *Registry) NewRecorder() *Recorder {
	return newRecorder(r)
}

// Len returns the number of live bindings.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}

// Close stops the compiler workers and the sweeper and saves the profile
// if a profile file is configured.
func (r *Registry) Close() error {
	r.jit.Stop()
	r.sweeper.Stop()
	if r.opts.profileFile != "" {
		return r.SaveProfileFile(r.opts.profileFile)
	}
	return nil
}

// NextSeed returns the next seed for placeholders of type t. Every type
// counts on its own, so a type with few sentinel values is not used up by
// placeholders of other types.
func (r *Registry) NextSeed(t reflect.Type) uint64 {
	c, ok := r.seeds.Load(t)
	if !ok {
		c, _ = r.seeds.LoadOrStore(t, new(atomic.Uint64))
	}
	return c.(*atomic.Uint64).Add(1) - 1
}

// maxSeedAttempts bounds the search for an unbound placeholder value.
const maxSeedAttempts = 1 << 16

// bindSeeded builds placeholders of type t from successive seeds until one
// is not bound to another sequence and binds it to seq. space is the number
// of distinct values build can produce.
func (r *Registry) bindSeeded(t reflect.Type, seq *Sequence, space uint64, build func(seed uint64) (reflect.Value, error)) (reflect.Value, error) {
	attempts := min(space, maxSeedAttempts)
	for range attempts {
		v, err := build(r.NextSeed(t))
		if err != nil {
			return reflect.Value{}, err
		}
		err = r.Bind(v, seq)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrPlaceholderInUse) {
			return reflect.Value{}, err
		}
	}
	return reflect.Value{}, &UnproxyableTypeError{
		Type:   t,
		Reason: fmt.Sprintf("no unbound placeholder value left after %d attempts", attempts),
	}
}

// Resolve returns the sequence the placeholder stands for. Values that are
// not live placeholders of r fail with a *ConversionError.
func (r *Registry) Resolve(placeholder any) (*Sequence, error) {
	id, err := identityOf(reflect.ValueOf(placeholder))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[id]
	if !ok {
		return nil, newConversionError(reflect.TypeOf(placeholder), "not a live placeholder")
	}
	b.generation = r.generation
	return b.seq, nil
}

// placeholderFor returns a placeholder for seq, reusing a live one for an
// equal sequence where possible.
func (r *Registry) placeholderFor(rec *Recorder, seq *Sequence) (reflect.Value, error) {
	t := seq.ReturnType()
	for _, s := range r.strategies {
		if !s.Supports(r, t) {
			continue
		}
		if _, lowCard := s.(lowCardinalityStrategy); !lowCard {
			if v, ok := r.reuse(seq); ok {
				return v, nil
			}
		}
		return s.Create(rec, t, seq)
	}
	return reflect.Value{}, unproxyable(t)
}

// reuse looks for a live placeholder of a sequence equal to seq.
func (r *Registry) reuse(seq *Sequence) (reflect.Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byKey[seq.String()]
	if !ok {
		return reflect.Value{}, false
	}
	b := r.bindings[id]
	if b == nil || !b.seq.Equal(seq) {
		return reflect.Value{}, false
	}
	if !id.isWeak() {
		b.generation = r.generation
		return reflect.ValueOf(id.value), true
	}
	p := id.handle.Value()
	if p == nil {
		return reflect.Value{}, false
	}
	return reflect.NewAt(b.typ.Elem(), unsafe.Pointer(p)), true
}

// Bind records that v is the placeholder for seq. Pointer-shaped
// placeholders are unbound by a cleanup once collected; other values are
// left to the sweeper. A value still bound to a different sequence is
// refused with ErrPlaceholderInUse. Strategies call Bind from Create.
func (r *Registry) Bind(v reflect.Value, seq *Sequence) error {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	id, err := identityOf(v)
	if err != nil {
		return err
	}

	key := seq.String()
	r.mu.Lock()
	if old, ok := r.bindings[id]; ok && !id.isWeak() && !old.seq.Equal(seq) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %v stands for %s", ErrPlaceholderInUse, v, old.seq)
	}
	r.bindings[id] = &binding{seq: seq, typ: v.Type(), generation: r.generation}
	if !id.isWeak() || v.Kind() == reflect.Pointer {
		r.byKey[key] = id
	}
	r.mu.Unlock()

	if id.isWeak() {
		runtime.AddCleanup((*byte)(v.UnsafePointer()), r.release, id.handle)
	} else {
		r.sweepOnce.Do(r.sweeper.Start)
	}
	return nil
}

// release drops the binding of a collected placeholder.
func (r *Registry) release(handle weak.Pointer[byte]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbindLocked(identity{handle: handle})
}

func (r *Registry) unbindLocked(id identity) bool {
	b, ok := r.bindings[id]
	if !ok {
		return false
	}
	delete(r.bindings, id)
	if key := b.seq.String(); r.byKey[key] == id {
		delete(r.byKey, key)
	}
	return true
}
