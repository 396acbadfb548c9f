package argument

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var jitLog = commonlog.GetLogger("fluentarg.jit")

// JITCompiler manages adaptive compilation of hot sequences. The profiler
// counts evaluations by canonical key; once a jittable sequence exceeds the
// threshold it is compiled into a specialized evaluator, which is cached by
// key and installed into every Sequence with that key on its next
// evaluation.
//
// Compilation runs on a small worker pool fed by a bounded queue, or inline
// when async compilation is disabled. A full queue skips the item; it is
// queued again on a later evaluation. A sequence whose compilation fails
// stays on reflective replay for good.
type JITCompiler struct {
	profiler *Profiler
	tracer   trace.Tracer

	threshold atomic.Int64
	async     bool
	workers   int

	// Compilation queue for background processing
	pending   chan *Sequence
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup

	group    singleflight.Group
	compiled sync.Map // key -> Evaluator
	failed   sync.Map // key -> error
	queued   sync.Map // key -> struct{}

	// Statistics
	sequencesCompiled atomic.Uint64
	failures          atomic.Uint64
	dropped           atomic.Uint64
	precompiled       atomic.Uint64
	compilationTime   atomic.Int64 // nanoseconds
}

func newJITCompiler(profiler *Profiler, o *options) *JITCompiler {
	jit := &JITCompiler{
		profiler: profiler,
		tracer:   o.tracerProvider.Tracer(ImportPath),
		async:    o.async,
		workers:  max(o.workers, 1),
		pending:  make(chan *Sequence, max(o.queueSize, 1)),
		done:     make(chan struct{}),
	}
	jit.threshold.Store(int64(o.threshold))
	return jit
}

// Threshold returns the evaluation count a sequence must exceed before it is
// compiled. Zero or less means compilation is disabled.
func (jit *JITCompiler) Threshold() int {
	return int(jit.threshold.Load())
}

// SetThreshold changes the threshold. Zero or less disables compilation.
func (jit *JITCompiler) SetThreshold(n int) {
	jit.threshold.Store(int64(n))
}

// Enabled reports whether compilation is enabled.
func (jit *JITCompiler) Enabled() bool {
	return jit.threshold.Load() > 0
}

// observe is called after every reflective evaluation of s.
func (jit *JITCompiler) observe(s *Sequence) {
	threshold := jit.threshold.Load()
	if threshold <= 0 || !s.jittable || s.last == nil || s.reflective.Load() {
		return
	}
	if !jit.profiler.record(s.profileEntry(jit.profiler), uint64(threshold)) {
		return
	}

	key := s.String()
	if ev, ok := jit.lookup(key); ok {
		s.install(ev)
		return
	}
	if _, failed := jit.failed.Load(key); failed {
		s.reflective.Store(true)
		return
	}
	jit.schedule(s)
}

// schedule compiles s now or hands it to the worker pool.
func (jit *JITCompiler) schedule(s *Sequence) {
	if !jit.async {
		jit.compileAndInstall(s)
		return
	}

	key := s.String()
	if _, loaded := jit.queued.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	jit.startOnce.Do(jit.start)

	select {
	case <-jit.done:
		jit.queued.Delete(key)
	case jit.pending <- s:
	default:
		// Queue full, skip this one
		jit.queued.Delete(key)
		jit.dropped.Add(1)
		jitLog.Warningf("compile queue full, skipping %s", key)
	}
}

func (jit *JITCompiler) start() {
	for i := 0; i < jit.workers; i++ {
		jit.wg.Add(1)
		go jit.compilationWorker()
	}
}

// compilationWorker processes the compilation queue in the background.
func (jit *JITCompiler) compilationWorker() {
	defer jit.wg.Done()
	for {
		select {
		case s := <-jit.pending:
			jit.compileAndInstall(s)
			jit.queued.Delete(s.String())
		case <-jit.done:
			return
		}
	}
}

// compileAndInstall compiles s unless an evaluator for its key exists and
// installs the result. Concurrent requests for one key share one compile.
func (jit *JITCompiler) compileAndInstall(s *Sequence) {
	key := s.String()
	v, err, _ := jit.group.Do(key, func() (any, error) {
		if ev, ok := jit.lookup(key); ok {
			return ev, nil
		}
		return jit.compile(s)
	})
	if err != nil {
		s.reflective.Store(true)
		return
	}
	s.install(v.(Evaluator))
}

func (jit *JITCompiler) compile(s *Sequence) (Evaluator, error) {
	key := s.String()
	_, span := jit.tracer.Start(context.Background(), "fluentarg.compile",
		trace.WithAttributes(
			attribute.String("fluentarg.sequence", key),
			attribute.Int("fluentarg.length", s.Len()),
		))
	defer span.End()

	start := time.Now()
	ev, err := compileSequence(s)
	jit.compilationTime.Add(int64(time.Since(start)))

	if err != nil {
		jit.failed.Store(key, err)
		jit.failures.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "compilation failed")
		jitLog.Warningf("compilation of %s failed, staying on replay: %s", key, err.Error())
		return nil, err
	}

	jit.compiled.Store(key, ev)
	jit.sequencesCompiled.Add(1)
	jitLog.Debugf("compiled hot sequence %s", key)
	return ev, nil
}

func (jit *JITCompiler) lookup(key string) (Evaluator, bool) {
	if v, ok := jit.compiled.Load(key); ok {
		return v.(Evaluator), true
	}
	return nil, false
}

// RegisterCompiled installs a precompiled evaluator for the sequence with
// canonical key. Sequences with that key pick it up once they are hot;
// generated code calls this from RegisterAll.
func (jit *JITCompiler) RegisterCompiled(key string, fn Evaluator) {
	jit.compiled.Store(key, guardEvaluator(key, fn))
	jit.failed.Delete(key)
	jit.precompiled.Add(1)
}

// Compile compiles s immediately, regardless of its count, and installs the
// result. It reports whether s now runs compiled.
func (jit *JITCompiler) Compile(s *Sequence) bool {
	if !s.jittable || s.last == nil || s.reflective.Load() {
		return false
	}
	jit.compileAndInstall(s)
	return s.Compiled()
}

// IsCompiled returns true if an evaluator is cached for key.
func (jit *JITCompiler) IsCompiled(key string) bool {
	_, ok := jit.compiled.Load(key)
	return ok
}

// ---------------------------------------------------------------------------
// Statistics and lifecycle
// ---------------------------------------------------------------------------

// JITStats holds JIT compilation statistics.
type JITStats struct {
	Threshold         int
	SequencesCompiled uint64
	Failures          uint64
	Dropped           uint64
	Precompiled       uint64
	CachedEvaluators  int
	QueueLength       int
	CompilationTime   time.Duration
	Profile           ProfilerStats
}

// Stats returns JIT compilation statistics.
func (jit *JITCompiler) Stats() JITStats {
	cached := 0
	jit.compiled.Range(func(_, _ any) bool {
		cached++
		return true
	})
	return JITStats{
		Threshold:         jit.Threshold(),
		SequencesCompiled: jit.sequencesCompiled.Load(),
		Failures:          jit.failures.Load(),
		Dropped:           jit.dropped.Load(),
		Precompiled:       jit.precompiled.Load(),
		CachedEvaluators:  cached,
		QueueLength:       len(jit.pending),
		CompilationTime:   time.Duration(jit.compilationTime.Load()),
		Profile:           jit.profiler.Stats(),
	}
}

// Stop stops the compilation workers and waits for them to exit. Queued
// work is discarded; sequences keep replaying reflectively.
func (jit *JITCompiler) Stop() {
	jit.stopOnce.Do(func() {
		close(jit.done)
	})
	jit.wg.Wait()
}

// Reset clears cached evaluators, failure marks and counters. Sequences
// that already run compiled keep their evaluator.
func (jit *JITCompiler) Reset() {
	jit.compiled.Clear()
	jit.failed.Clear()
	jit.sequencesCompiled.Store(0)
	jit.failures.Store(0)
	jit.dropped.Store(0)
	jit.precompiled.Store(0)
	jit.compilationTime.Store(0)
	jit.profiler.Reset()
}
