package argument

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Profile snapshots
// ---------------------------------------------------------------------------

// ProfileVersion is the current snapshot format version.
const ProfileVersion uint32 = 1

// ProfileSnapshot is the persisted form of a registry's evaluation counts.
// Loading it into a new process lets sequences that were hot last time
// compile on their first evaluation.
type ProfileSnapshot struct {
	Version   uint32         `cbor:"1,keyasint"`
	Threshold int64          `cbor:"2,keyasint"`
	Entries   []ProfileEntry `cbor:"3,keyasint"`
}

// ProfileEntry is the count of one canonical sequence.
type ProfileEntry struct {
	Key   string `cbor:"1,keyasint"`
	Count uint64 `cbor:"2,keyasint"`
}

// canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("argument: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalProfile serializes a snapshot to CBOR bytes.
func MarshalProfile(s *ProfileSnapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalProfile deserializes a snapshot from CBOR bytes.
func UnmarshalProfile(data []byte) (*ProfileSnapshot, error) {
	var s ProfileSnapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("argument: unmarshal profile: %w", err)
	}
	if s.Version != ProfileVersion {
		return nil, fmt.Errorf("argument: unsupported profile version %d", s.Version)
	}
	return &s, nil
}

// ReadProfileFile reads a snapshot from path.
func ReadProfileFile(path string) (*ProfileSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalProfile(data)
}

// Snapshot captures the registry's current evaluation counts.
func (r *Registry) Snapshot() *ProfileSnapshot {
	counts := r.profiler.Snapshot()
	s := &ProfileSnapshot{
		Version:   ProfileVersion,
		Threshold: int64(r.jit.Threshold()),
		Entries:   make([]ProfileEntry, 0, len(counts)),
	}
	for _, c := range counts {
		if c.Count > 0 {
			s.Entries = append(s.Entries, ProfileEntry{Key: c.Key, Count: c.Count})
		}
	}
	return s
}

// Seed restores counts from a snapshot. Counts only ever grow; entries lower
// than the current count are ignored.
func (r *Registry) Seed(s *ProfileSnapshot) {
	for _, e := range s.Entries {
		r.profiler.Seed(e.Key, e.Count)
	}
}

// SaveProfile writes the current snapshot to w.
func (r *Registry) SaveProfile(w io.Writer) error {
	data, err := MarshalProfile(r.Snapshot())
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// LoadProfile reads a snapshot from rd and seeds the profiler with it.
func (r *Registry) LoadProfile(rd io.Reader) (*ProfileSnapshot, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}
	s, err := UnmarshalProfile(data)
	if err != nil {
		return nil, err
	}
	r.Seed(s)
	return s, nil
}

// SaveProfileFile writes the snapshot to path, replacing it atomically.
func (r *Registry) SaveProfileFile(path string) error {
	var buf bytes.Buffer
	if err := r.SaveProfile(&buf); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	registryLog.Infof("saved profile (%d bytes) to %s", buf.Len(), path)
	return nil
}

// LoadProfileFile reads a snapshot from path and seeds the profiler with it.
func (r *Registry) LoadProfileFile(path string) (*ProfileSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := r.LoadProfile(f)
	if err != nil {
		return nil, err
	}
	registryLog.Infof("loaded profile with %d entries from %s", len(s.Entries), path)
	return s, nil
}
