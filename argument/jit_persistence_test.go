package argument

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProfileRoundTrip(t *testing.T) {
	reg := newTestRegistry(WithJITThreshold(100))
	t.Cleanup(func() { reg.Close() })
	seq := recordFriendAge(t, reg.NewRecorder())

	alice, _, _ := newFamily()
	for i := 0; i < 7; i++ {
		_, err := seq.Evaluate(alice)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, reg.SaveProfile(&buf))

	restored := newTestRegistry(WithJITThreshold(5))
	t.Cleanup(func() { restored.Close() })
	s, err := restored.LoadProfile(&buf)
	require.NoError(t, err)
	require.Equal(t, ProfileVersion, s.Version)
	require.Equal(t, int64(100), s.Threshold)
	require.Equal(t, []ProfileEntry{{Key: seq.String(), Count: 7}}, s.Entries)
	require.Equal(t, uint64(7), restored.Profiler().Count(seq.String()))

	// The restored count is already over the threshold, so the first
	// evaluation in the new registry compiles.
	again := recordFriendAge(t, restored.NewRecorder())
	require.Equal(t, seq.String(), again.String())
	got, err := again.Evaluate(alice)
	require.NoError(t, err)
	require.Equal(t, 40, got)
	require.True(t, again.Compiled())
}

func TestProfileSeedOnlyGrows(t *testing.T) {
	p := NewProfiler()
	p.Seed("k", 10)
	p.Seed("k", 3)
	require.Equal(t, uint64(10), p.Count("k"))
	p.Seed("k", 12)
	require.Equal(t, uint64(12), p.Count("k"))
	require.Zero(t, p.Count("missing"))
}

func TestProfilerListing(t *testing.T) {
	p := NewProfiler()
	p.Seed("b", 2)
	p.Seed("a", 2)
	p.Seed("c", 9)
	require.True(t, p.record(p.profileFor("c"), 5))
	require.False(t, p.record(p.profileFor("a"), 5))

	require.Equal(t, []ProfileCount{
		{Key: "c", Count: 10, Hot: true},
		{Key: "a", Count: 3},
		{Key: "b", Count: 2},
	}, p.Snapshot())
	require.Len(t, p.Top(1), 1)
	require.Len(t, p.Top(10), 3)

	require.Equal(t, ProfilerStats{TotalSequences: 3, HotSequences: 1, TotalEvaluations: 15}, p.Stats())
	require.True(t, p.IsHot("c"))

	p.Reset()
	require.False(t, p.IsHot("c"))
	require.Equal(t, ProfilerStats{TotalSequences: 3}, p.Stats())
}

func TestUnmarshalProfileErrors(t *testing.T) {
	_, err := UnmarshalProfile([]byte{0xff, 0x00})
	require.ErrorContains(t, err, "unmarshal profile")

	data, err := MarshalProfile(&ProfileSnapshot{Version: ProfileVersion + 1})
	require.NoError(t, err)
	_, err = UnmarshalProfile(data)
	require.ErrorContains(t, err, "unsupported profile version")
}

func TestMarshalProfileIsDeterministic(t *testing.T) {
	s := &ProfileSnapshot{
		Version:   ProfileVersion,
		Threshold: 3,
		Entries:   []ProfileEntry{{Key: "[(*p.T).A()]", Count: 4}},
	}
	a, err := MarshalProfile(s)
	require.NoError(t, err)
	b, err := MarshalProfile(s)
	require.NoError(t, err)
	require.Equal(t, a, b)

	got, err := UnmarshalProfile(a)
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestProfileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles", "fluentarg.cbor")

	// A missing file is not an error.
	reg := newTestRegistry(WithJITThreshold(50), WithProfileFile(path))
	seq := recordFriendAge(t, reg.NewRecorder())
	alice, _, _ := newFamily()
	for i := 0; i < 4; i++ {
		_, err := seq.Evaluate(alice)
		require.NoError(t, err)
	}
	require.NoError(t, reg.Close())

	s, err := ReadProfileFile(path)
	require.NoError(t, err)
	require.Equal(t, []ProfileEntry{{Key: seq.String(), Count: 4}}, s.Entries)
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))

	reopened := newTestRegistry(WithJITThreshold(50), WithProfileFile(path))
	t.Cleanup(func() { reopened.Close() })
	require.Equal(t, uint64(4), reopened.Profiler().Count(seq.String()))

	_, err = ReadProfileFile(filepath.Join(t.TempDir(), "missing.cbor"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
