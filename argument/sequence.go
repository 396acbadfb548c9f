package argument

import (
	"hash/maphash"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
)

// Evaluator evaluates a recorded sequence against a target. Compiled and
// ahead-of-time evaluators share this shape with reflective replay.
type Evaluator func(target any) (any, error)

// ---------------------------------------------------------------------------
// Sequence
// ---------------------------------------------------------------------------

// Sequence is an ordered chain of invocations rooted at a static type. The
// empty sequence is the identity function on its root type.
//
// A Sequence is immutable apart from its lazily computed caches, its profile
// entry and the compiled evaluator slot, all of which are safe for concurrent
// use, so one Sequence may be evaluated from many goroutines.
type Sequence struct {
	reg      *Registry
	root     reflect.Type
	last     *Invocation
	parent   *Sequence
	jittable bool
	hash     uint64

	pathOnce sync.Once
	path     string

	keyOnce sync.Once
	key     string

	chainOnce sync.Once
	chain     []*Invocation

	profile    atomic.Pointer[SequenceProfile]
	evaluator  atomic.Pointer[Evaluator]
	reflective atomic.Bool // compilation failed; stay on replay
}

func newRootSequence(reg *Registry, root reflect.Type) *Sequence {
	s := &Sequence{reg: reg, root: root, jittable: true}
	s.hash = rootHash(root)
	return s
}

func rootHash(root reflect.Type) uint64 {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	h.WriteString(typeName(root))
	return h.Sum64()
}

// extend returns the sequence that results from recording inv on s.
func (s *Sequence) extend(inv *Invocation) *Sequence {
	return &Sequence{
		reg:      s.reg,
		root:     s.root,
		last:     inv,
		parent:   s,
		jittable: s.jittable && inv.jittable(),
		hash:     s.hash ^ inv.hash,
	}
}

// RootType returns the type of the object the sequence is evaluated on.
func (s *Sequence) RootType() reflect.Type { return s.root }

// ReturnType returns the result type of the last invocation, or the root
// type for the empty sequence.
func (s *Sequence) ReturnType() reflect.Type {
	if s.last == nil {
		return s.root
	}
	return s.last.ReturnType()
}

// Last returns the most recent invocation, or nil for the empty sequence.
func (s *Sequence) Last() *Invocation { return s.last }

// Parent returns the sequence this one extends, or nil for the root.
func (s *Sequence) Parent() *Sequence { return s.parent }

// Len returns the number of invocations.
func (s *Sequence) Len() int { return len(s.invocations()) }

// Jittable reports whether the sequence may be compiled.
func (s *Sequence) Jittable() bool { return s.jittable }

// Compiled reports whether a compiled evaluator has been installed.
func (s *Sequence) Compiled() bool { return s.evaluator.Load() != nil }

// invocations returns the chain root-first.
func (s *Sequence) invocations() []*Invocation {
	s.chainOnce.Do(func() {
		for inv := s.last; inv != nil; inv = inv.prev {
			s.chain = append(s.chain, inv)
		}
		for i, j := 0, len(s.chain)-1; i < j; i, j = i+1, j-1 {
			s.chain[i], s.chain[j] = s.chain[j], s.chain[i]
		}
	})
	return s.chain
}

// Invocations returns a copy of the chain, root-first.
func (s *Sequence) Invocations() []*Invocation {
	return append([]*Invocation(nil), s.invocations()...)
}

// PropertyPath returns the dotted property names of the chain, for example
// "bestFriend.age". The empty sequence has an empty path.
func (s *Sequence) PropertyPath() string {
	s.pathOnce.Do(func() {
		switch {
		case s.last == nil:
		case s.parent == nil || s.parent.last == nil:
			s.path = s.last.PropertyName()
		default:
			s.path = s.parent.PropertyPath() + "." + s.last.PropertyName()
		}
	})
	return s.path
}

// String returns the canonical rendering of the sequence, root first. It is
// stable across processes and serves as the compiled-evaluator cache key.
func (s *Sequence) String() string {
	s.keyOnce.Do(func() {
		var sb strings.Builder
		sb.WriteString("[")
		invs := s.invocations()
		if len(invs) == 0 {
			sb.WriteString("(")
			sb.WriteString(typeName(s.root))
			sb.WriteString(")")
		}
		for i, inv := range invs {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(inv.String())
		}
		sb.WriteString("]")
		s.key = sb.String()
	})
	return s.key
}

// Equal reports whether both sequences have the same root type and equal
// invocation chains.
func (s *Sequence) Equal(other *Sequence) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil {
		return false
	}
	if s.hash != other.hash || s.root != other.root {
		return false
	}
	if s.last == nil || other.last == nil {
		return s.last == other.last
	}
	return s.last.Equal(other.last)
}

// Hash returns a hash consistent with Equal.
func (s *Sequence) Hash() uint64 { return s.hash }

// ---------------------------------------------------------------------------
// Evaluation
// ---------------------------------------------------------------------------

// Evaluate replays the sequence on target and returns the result of the last
// invocation. A nil intermediate result ends the evaluation with nil.
//
// Once the sequence has been evaluated often enough the registry's compiler
// installs a specialized evaluator, which is used from then on; the call that
// crosses the threshold still completes by replay.
func (s *Sequence) Evaluate(target any) (any, error) {
	if ev := s.evaluator.Load(); ev != nil {
		return (*ev)(target)
	}
	out, err := s.replay(reflect.ValueOf(target))
	if s.reg != nil {
		s.reg.jit.observe(s)
	}
	return out, err
}

// Replay evaluates the sequence reflectively, bypassing any compiled
// evaluator and the profiler.
func (s *Sequence) Replay(target any) (any, error) {
	return s.replay(reflect.ValueOf(target))
}

func (s *Sequence) replay(v reflect.Value) (any, error) {
	for _, inv := range s.invocations() {
		out, err := inv.invokeOn(v)
		if err != nil {
			return nil, err
		}
		if isNilValue(out) {
			return nil, nil
		}
		v = out
	}
	return resultOf(v), nil
}

func (s *Sequence) install(ev Evaluator) {
	s.evaluator.Store(&ev)
}

// profileEntry returns the sequence's counter, creating it on first use.
func (s *Sequence) profileEntry(p *Profiler) *SequenceProfile {
	if prof := s.profile.Load(); prof != nil {
		return prof
	}
	prof := p.profileFor(s.String())
	s.profile.Store(prof)
	return prof
}
