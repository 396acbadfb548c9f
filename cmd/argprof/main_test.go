package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/fluentarg/argument"
	"github.com/chazu/fluentarg/config"
)

func writeProfile(t *testing.T, path string, entries ...argument.ProfileEntry) {
	t.Helper()
	data, err := argument.MarshalProfile(&argument.ProfileSnapshot{
		Version:   argument.ProfileVersion,
		Threshold: 2,
		Entries:   entries,
	})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestRunPrintsProfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName),
		[]byte("[jit]\nthreshold = 5\nprofile = \"prof/p.cbor\"\n"), 0644))
	writeProfile(t, filepath.Join(dir, "prof", "p.cbor"),
		argument.ProfileEntry{Key: "[(*a.T).B()]", Count: 3},
		argument.ProfileEntry{Key: "[(*a.T).C()]", Count: 9},
		argument.ProfileEntry{Key: "[(*a.T).A()]", Count: 3},
	)

	var out bytes.Buffer
	require.NoError(t, run(&out, dir, 0, false, nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	require.Equal(t, "profile version 1, recorded threshold 2, threshold 5", lines[0])
	require.Equal(t, []string{"COUNT", "HOT", "SEQUENCE"}, strings.Fields(lines[1]))
	require.Equal(t, []string{"9", "*", "[(*a.T).C()]"}, strings.Fields(lines[2]))
	require.Equal(t, []string{"3", "[(*a.T).A()]"}, strings.Fields(lines[3]))
	require.Equal(t, []string{"3", "[(*a.T).B()]"}, strings.Fields(lines[4]))

	out.Reset()
	require.NoError(t, run(&out, dir, 1, false, nil))
	require.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 3)
}

func TestRunExplicitProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "explicit.cbor")
	writeProfile(t, path, argument.ProfileEntry{Key: "[(*a.T).A()]", Count: 1})
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), nil, 0644))

	var out bytes.Buffer
	require.NoError(t, run(&out, dir, 0, true, []string{path}))
	require.Contains(t, out.String(), "[(*a.T).A()]")
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), nil, 0644))

	var out bytes.Buffer
	require.ErrorContains(t, run(&out, dir, 0, false, nil), "no profile given")
	require.ErrorContains(t, run(&out, dir, 0, false, []string{"a", "b"}), "at most one profile")
	require.ErrorIs(t, run(&out, dir, 0, false, []string{filepath.Join(dir, "missing.cbor")}), os.ErrNotExist)
	require.Error(t, run(&out, filepath.Join(dir, "nowhere"), 0, false, nil))
}
