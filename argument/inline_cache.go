package argument

import (
	"reflect"
	"sync/atomic"
)

// Inline caching for compiled steps.
//
// Most recorded receivers are monomorphic: the static type is concrete, or
// an interface that is always backed by the same implementation. Each
// compiled step owns one cache keyed by the receiver's dynamic type. Compiled
// evaluators are shared between goroutines, so the cache state is an
// immutable snapshot swapped atomically on update.

// CacheState says how many receiver types a compiled step has seen.
type CacheState uint8

const (
	CacheEmpty       CacheState = iota // nothing dispatched yet
	CacheMonomorphic                   // one receiver type
	CachePolymorphic                   // up to MaxPICEntries receiver types
	CacheMegamorphic                   // gave up; every call resolves the method again
)

func (s CacheState) String() string {
	switch s {
	case CacheMonomorphic:
		return "monomorphic"
	case CachePolymorphic:
		return "polymorphic"
	case CacheMegamorphic:
		return "megamorphic"
	}
	return "empty"
}

// MaxPICEntries bounds the receiver types a step remembers before it goes
// megamorphic.
const MaxPICEntries = 6

// icEntry holds a single cached method lookup result.
type icEntry struct {
	Type   reflect.Type
	Method dispatch
}

type icSnapshot struct {
	state   CacheState
	entries []icEntry
}

var emptySnapshot = &icSnapshot{}

// inlineCache is a thread-safe receiver-type cache for one compiled step.
// It progresses through states: Empty -> Monomorphic -> Polymorphic -> Megamorphic
type inlineCache struct {
	snap atomic.Pointer[icSnapshot]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// newInlineCache creates an empty cache.
func newInlineCache() *inlineCache {
	ic := &inlineCache{}
	ic.snap.Store(emptySnapshot)
	return ic
}

// State returns the current cache state.
func (ic *inlineCache) State() CacheState {
	return ic.snap.Load().state
}

// Lookup returns the cached method for receivers of type t.
func (ic *inlineCache) Lookup(t reflect.Type) (dispatch, bool) {
	snap := ic.snap.Load()
	for i := range snap.entries {
		if snap.entries[i].Type == t {
			ic.hits.Add(1)
			return snap.entries[i].Method, true
		}
	}
	ic.misses.Add(1)
	return dispatch{}, false
}

// Update remembers the dispatch for receiver type t and moves the cache to
// the next state when t is new. Racing updates may drop one of the types,
// which costs a second miss.
func (ic *inlineCache) Update(t reflect.Type, d dispatch) {
	for {
		old := ic.snap.Load()
		next := old.with(t, d)
		if next == old || ic.snap.CompareAndSwap(old, next) {
			return
		}
	}
}

func (s *icSnapshot) with(t reflect.Type, d dispatch) *icSnapshot {
	if s.state == CacheMegamorphic {
		return s
	}
	for i := range s.entries {
		if s.entries[i].Type == t {
			return s // Already cached
		}
	}

	switch n := len(s.entries); {
	case n == 0:
		return &icSnapshot{state: CacheMonomorphic, entries: []icEntry{{Type: t, Method: d}}}
	case n < MaxPICEntries:
		entries := make([]icEntry, n, n+1)
		copy(entries, s.entries)
		return &icSnapshot{state: CachePolymorphic, entries: append(entries, icEntry{Type: t, Method: d})}
	default:
		return &icSnapshot{state: CacheMegamorphic}
	}
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (ic *inlineCache) HitRate() float64 {
	hits, misses := ic.hits.Load(), ic.misses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) * 100 / float64(total)
}

// Reset clears the cache back to empty state.
func (ic *inlineCache) Reset() {
	ic.snap.Store(emptySnapshot)
	ic.hits.Store(0)
	ic.misses.Store(0)
}
