// Package config handles fluentarg.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/fluentarg/argument"
)

// FileName is the name of the configuration file.
const FileName = "fluentarg.toml"

// Config represents a fluentarg.toml configuration.
type Config struct {
	JIT      JIT      `toml:"jit"`
	Registry Registry `toml:"registry"`
	Log      Log      `toml:"log"`

	// Dir is the directory containing the fluentarg.toml file (set at load time).
	Dir string `toml:"-"`
}

// JIT configures hot-sequence compilation.
type JIT struct {
	Threshold int    `toml:"threshold"`
	Async     bool   `toml:"async"`
	Workers   int    `toml:"workers"`
	QueueSize int    `toml:"queue-size"`
	Profile   string `toml:"profile"`
}

// Registry configures placeholder bookkeeping.
type Registry struct {
	SweepInterval  Duration `toml:"sweep-interval"`
	SentinelMaxAge uint64   `toml:"sentinel-max-age"`
}

// Log configures the commonlog backend.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		JIT: JIT{
			Async:     true,
			Workers:   argument.DefaultWorkers,
			QueueSize: argument.DefaultQueueSize,
		},
		Registry: Registry{
			SweepInterval:  Duration{argument.DefaultSweepInterval},
			SentinelMaxAge: argument.DefaultSentinelMaxAge,
		},
	}
}

// Load parses a fluentarg.toml file from the given directory. Keys missing
// from the file keep their defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %s in %s", undecoded[0], path)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, c.Validate()
}

// FindAndLoad walks up from startDir to find a fluentarg.toml file,
// then loads and returns the configuration. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate reports settings that cannot be turned into registry options.
func (c *Config) Validate() error {
	switch {
	case c.JIT.Workers < 1:
		return fmt.Errorf("jit.workers must be at least 1, got %d", c.JIT.Workers)
	case c.JIT.QueueSize < 1:
		return fmt.Errorf("jit.queue-size must be at least 1, got %d", c.JIT.QueueSize)
	case c.Registry.SentinelMaxAge < 1:
		return fmt.Errorf("registry.sentinel-max-age must be at least 1")
	case c.Registry.SweepInterval.Duration < 0:
		return fmt.Errorf("registry.sweep-interval must not be negative")
	}
	return nil
}

// ProfilePath returns the profile file path resolved against Dir, or "" if
// no profile is configured.
func (c *Config) ProfilePath() string {
	if c.JIT.Profile == "" || filepath.IsAbs(c.JIT.Profile) || c.Dir == "" {
		return c.JIT.Profile
	}
	return filepath.Join(c.Dir, c.JIT.Profile)
}

// Options converts the configuration into registry options.
func (c *Config) Options() []argument.Option {
	opts := []argument.Option{
		argument.WithJITThreshold(c.JIT.Threshold),
		argument.WithAsyncCompile(c.JIT.Async),
		argument.WithWorkers(c.JIT.Workers),
		argument.WithQueueSize(c.JIT.QueueSize),
		argument.WithSweepInterval(c.Registry.SweepInterval.Duration),
		argument.WithSentinelMaxAge(c.Registry.SentinelMaxAge),
	}
	if path := c.ProfilePath(); path != "" {
		opts = append(opts, argument.WithProfileFile(path))
	}
	return opts
}

// NewRegistry creates a registry configured by c.
func (c *Config) NewRegistry(extra ...argument.Option) *argument.Registry {
	return argument.NewRegistry(append(c.Options(), extra...)...)
}

// ConfigureLog applies the [log] section to commonlog. A backend must have
// been registered, usually by importing github.com/tliron/commonlog/simple.
func (c *Config) ConfigureLog() {
	if c.Log.File == "" {
		commonlog.Configure(c.Log.Verbosity, nil)
		return
	}
	path := c.Log.File
	if !filepath.IsAbs(path) && c.Dir != "" {
		path = filepath.Join(c.Dir, path)
	}
	commonlog.Configure(c.Log.Verbosity, &path)
}
