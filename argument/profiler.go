package argument

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Profiler counts sequence evaluations by canonical key to find hot
// sequences for the compiler. Counters are shared by every Sequence with the
// same key and are approximate under contention only in the sense that the
// hot transition may be observed by several evaluations at once.

// SequenceProfile holds profiling data for one canonical sequence.
type SequenceProfile struct {
	InvocationCount atomic.Uint64
	IsHot           atomic.Bool
}

// Profiler manages the evaluation counters of a registry.
type Profiler struct {
	profiles sync.Map // string -> *SequenceProfile
}

// NewProfiler creates an empty profiler.
func NewProfiler() *Profiler {
	return &Profiler{}
}

func (p *Profiler) profileFor(key string) *SequenceProfile {
	if val, ok := p.profiles.Load(key); ok {
		return val.(*SequenceProfile)
	}
	val, _ := p.profiles.LoadOrStore(key, &SequenceProfile{})
	return val.(*SequenceProfile)
}

// record counts one evaluation and reports whether the profile's count now
// exceeds threshold.
func (p *Profiler) record(profile *SequenceProfile, threshold uint64) bool {
	count := profile.InvocationCount.Add(1)
	if count <= threshold {
		return false
	}
	if !profile.IsHot.Load() {
		profile.IsHot.Store(true)
	}
	return true
}

// Count returns the evaluation count for a canonical key.
func (p *Profiler) Count(key string) uint64 {
	if val, ok := p.profiles.Load(key); ok {
		return val.(*SequenceProfile).InvocationCount.Load()
	}
	return 0
}

// IsHot returns true if the sequence with key has exceeded the threshold.
func (p *Profiler) IsHot(key string) bool {
	if val, ok := p.profiles.Load(key); ok {
		return val.(*SequenceProfile).IsHot.Load()
	}
	return false
}

// Seed raises the count for key to at least count. It is used to restore a
// persisted profile.
func (p *Profiler) Seed(key string, count uint64) {
	profile := p.profileFor(key)
	for {
		cur := profile.InvocationCount.Load()
		if cur >= count || profile.InvocationCount.CompareAndSwap(cur, count) {
			return
		}
	}
}

// ProfileCount is one entry of a profile listing.
type ProfileCount struct {
	Key   string
	Count uint64
	Hot   bool
}

// Snapshot returns all profiled sequences sorted by descending count, then
// by key.
func (p *Profiler) Snapshot() []ProfileCount {
	var all []ProfileCount
	p.profiles.Range(func(key, value any) bool {
		profile := value.(*SequenceProfile)
		all = append(all, ProfileCount{
			Key:   key.(string),
			Count: profile.InvocationCount.Load(),
			Hot:   profile.IsHot.Load(),
		})
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Key < all[j].Key
	})
	return all
}

// Top returns the n most frequently evaluated sequences.
func (p *Profiler) Top(n int) []ProfileCount {
	all := p.Snapshot()
	if n < len(all) {
		all = all[:n]
	}
	return all
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	TotalSequences   int    // Number of sequences profiled
	HotSequences     int    // Number of sequences over the threshold
	TotalEvaluations uint64 // Sum of all counters
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	p.profiles.Range(func(_, value any) bool {
		profile := value.(*SequenceProfile)
		stats.TotalSequences++
		stats.TotalEvaluations += profile.InvocationCount.Load()
		if profile.IsHot.Load() {
			stats.HotSequences++
		}
		return true
	})
	return stats
}

// Reset zeroes every counter. Sequences keep their profile entries, so
// counting resumes from zero.
func (p *Profiler) Reset() {
	p.profiles.Range(func(_, value any) bool {
		profile := value.(*SequenceProfile)
		profile.InvocationCount.Store(0)
		profile.IsHot.Store(false)
		return true
	})
}
