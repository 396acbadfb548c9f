package argument

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
)

var sweepLog = commonlog.GetLogger("fluentarg.sweep")

// DefaultSweepInterval is how often a registry's sweeper runs unless
// configured otherwise.
const DefaultSweepInterval = 30 * time.Second

// SweepStats describes one pass of a Sweeper.
type SweepStats struct {
	Generation uint64
	Evicted    int // sentinel bindings past their age
	Pruned     int // reference bindings whose placeholder was collected
	Live       int
	Took       time.Duration
	At         time.Time
}

// Total returns the number of bindings removed by the pass.
func (s *SweepStats) Total() int { return s.Evicted + s.Pruned }

// Sweeper removes stale placeholder bindings from a registry.
//
// Sentinels are plain values with no address to watch, so each pass bumps
// the registry generation and evicts sentinel bindings that were neither
// created nor resolved during the last maxAge generations. Reference
// placeholders are unbound by their cleanup when collected; a pass only
// prunes the ones whose cleanup has not run yet.
//
// The background goroutine starts with the first sentinel binding.
type Sweeper struct {
	reg      *Registry
	interval time.Duration
	maxAge   uint64
	paused   atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	passes atomic.Uint64
	last   atomic.Pointer[SweepStats]
}

// NewSweeper creates a sweeper for reg. With an interval of zero or less it
// never runs on its own and only Sweep removes bindings.
func NewSweeper(reg *Registry, interval time.Duration, maxAge uint64) *Sweeper {
	return &Sweeper{reg: reg, interval: interval, maxAge: max(maxAge, 1)}
}

// Start launches the background goroutine unless it is running already or
// the interval disables it.
func (s *Sweeper) Start() {
	if s.interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop ends the background goroutine and waits for it. Stopping a sweeper
// that is not running does nothing.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}

// Running reports whether the background goroutine is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Pause makes the background goroutine skip its passes until Resume.
func (s *Sweeper) Pause() { s.paused.Store(true) }

// Resume undoes Pause.
func (s *Sweeper) Resume() { s.paused.Store(false) }

// Paused reports whether background passes are skipped.
func (s *Sweeper) Paused() bool { return s.paused.Load() }

// Interval returns the time between background passes.
func (s *Sweeper) Interval() time.Duration { return s.interval }

// MaxAge returns the number of generations an unused sentinel survives.
func (s *Sweeper) MaxAge() uint64 { return s.maxAge }

// Passes returns the number of passes run so far.
func (s *Sweeper) Passes() uint64 { return s.passes.Load() }

// Last returns the stats of the latest pass, or nil before the first one.
func (s *Sweeper) Last() *SweepStats { return s.last.Load() }

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	tick := time.NewTicker(s.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if !s.paused.Load() {
				s.Sweep()
			}
		}
	}
}

// Sweep runs one pass now, whether or not the sweeper is paused.
func (s *Sweeper) Sweep() *SweepStats {
	began := time.Now()
	r := s.reg

	r.mu.Lock()
	r.generation++
	gen := r.generation
	var evicted, pruned int
	for id, b := range r.bindings {
		switch {
		case id.isWeak():
			if id.handle.Value() == nil && r.unbindLocked(id) {
				pruned++
			}
		case gen-b.generation >= s.maxAge:
			if r.unbindLocked(id) {
				evicted++
			}
		}
	}
	live := len(r.bindings)
	r.mu.Unlock()

	stats := &SweepStats{
		Generation: gen,
		Evicted:    evicted,
		Pruned:     pruned,
		Live:       live,
		Took:       time.Since(began),
		At:         began,
	}
	s.passes.Add(1)
	s.last.Store(stats)

	if stats.Total() > 0 {
		sweepLog.Debugf("generation %d: evicted %d sentinels, pruned %d references, %d live",
			gen, evicted, pruned, live)
	}
	return stats
}
