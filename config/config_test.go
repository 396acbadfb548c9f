package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chazu/fluentarg/argument"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[jit]
threshold = 500
async = false
workers = 4
queue-size = 16
profile = ".fluentarg/profile.cbor"

[registry]
sweep-interval = "1m30s"
sentinel-max-age = 5

[log]
verbosity = 2
file = "fluentarg.log"
`)

	c, err := Load(dir)
	require.NoError(t, err)

	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	require.Equal(t, abs, c.Dir)
	require.Equal(t, JIT{
		Threshold: 500,
		Async:     false,
		Workers:   4,
		QueueSize: 16,
		Profile:   ".fluentarg/profile.cbor",
	}, c.JIT)
	require.Equal(t, 90*time.Second, c.Registry.SweepInterval.Duration)
	require.Equal(t, uint64(5), c.Registry.SentinelMaxAge)
	require.Equal(t, Log{Verbosity: 2, File: "fluentarg.log"}, c.Log)
	require.Equal(t, filepath.Join(abs, ".fluentarg", "profile.cbor"), c.ProfilePath())
	require.Len(t, c.Options(), 7)
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[jit]
threshold = 10
`)

	c, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 10, c.JIT.Threshold)
	require.True(t, c.JIT.Async)
	require.Equal(t, argument.DefaultWorkers, c.JIT.Workers)
	require.Equal(t, argument.DefaultQueueSize, c.JIT.QueueSize)
	require.Equal(t, argument.DefaultSweepInterval, c.Registry.SweepInterval.Duration)
	require.Equal(t, uint64(argument.DefaultSentinelMaxAge), c.Registry.SentinelMaxAge)
	require.Empty(t, c.ProfilePath())
	require.Len(t, c.Options(), 6)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[jit\n", "parse error"},
		{"bad duration", "[registry]\nsweep-interval = \"often\"\n", "parse error"},
		{"unknown key", "[jit]\nthreshhold = 3\n", "unknown key jit.threshhold"},
		{"no workers", "[jit]\nworkers = 0\n", "jit.workers"},
		{"no queue", "[jit]\nqueue-size = 0\n", "jit.queue-size"},
		{"max age", "[registry]\nsentinel-max-age = 0\n", "sentinel-max-age"},
		{"negative interval", "[registry]\nsweep-interval = \"-1s\"\n", "sweep-interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			_, err := Load(dir)
			require.ErrorContains(t, err, tt.want)
		})
	}

	_, err := Load(t.TempDir())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0755))
	writeConfig(t, root, "[jit]\nthreshold = 7\n")

	c, err := FindAndLoad(nested)
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, 7, c.JIT.Threshold)

	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	require.Equal(t, abs, c.Dir)
}

func TestFindAndLoadMissing(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestNewRegistry(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[jit]
threshold = 3
async = false
profile = "profile.cbor"

[registry]
sweep-interval = "0s"
sentinel-max-age = 4
`)
	c, err := Load(dir)
	require.NoError(t, err)

	reg := c.NewRegistry()
	require.Equal(t, 3, reg.JIT().Threshold())
	require.Equal(t, uint64(4), reg.Sweeper().MaxAge())
	require.Zero(t, reg.Sweeper().Interval())
	require.NoError(t, reg.Close())

	_, err = os.Stat(filepath.Join(dir, "profile.cbor"))
	require.NoError(t, err)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("250ms")))
	require.Equal(t, 250*time.Millisecond, d.Duration)
	text, err := d.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "250ms", string(text))
	require.Error(t, d.UnmarshalText([]byte("soon")))
}
