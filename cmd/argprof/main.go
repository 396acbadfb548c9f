// argprof prints a persisted fluentarg hot-sequence profile.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/fluentarg/argument"
	"github.com/chazu/fluentarg/config"
)

var log = commonlog.GetLogger("fluentarg.argprof")

func main() {
	configPath := flag.String("config", "", "Directory containing fluentarg.toml (default: search upwards from the working directory)")
	top := flag.Int("top", 0, "Only print the n most evaluated sequences (0 prints all)")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: argprof [options] [profile.cbor]\n\n")
		fmt.Fprintf(os.Stderr, "Prints the evaluation counts stored in a fluentarg profile and marks\n")
		fmt.Fprintf(os.Stderr, "the sequences that are hot under the configured JIT threshold.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  argprof                       # Profile named in fluentarg.toml\n")
		fmt.Fprintf(os.Stderr, "  argprof -top 10 profile.cbor  # Ten hottest sequences\n")
	}
	flag.Parse()

	if err := run(os.Stdout, *configPath, *top, *verbose, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, configPath string, top int, verbose bool, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if verbose && cfg.Log.Verbosity < 1 {
		cfg.Log.Verbosity = 1
	}
	cfg.ConfigureLog()

	var path string
	switch len(args) {
	case 0:
		path = cfg.ProfilePath()
		if path == "" {
			return fmt.Errorf("no profile given and none configured in %s", config.FileName)
		}
	case 1:
		path = args[0]
	default:
		return fmt.Errorf("expected at most one profile, got %d", len(args))
	}

	snapshot, err := argument.ReadProfileFile(path)
	if err != nil {
		return err
	}
	log.Infof("read %d entries from %s", len(snapshot.Entries), path)
	return printProfile(w, snapshot, cfg.JIT.Threshold, top)
}

// loadConfig loads fluentarg.toml from dir, or searches for it from the
// working directory when dir is empty. Without a file the defaults apply.
func loadConfig(dir string) (*config.Config, error) {
	if dir != "" {
		return config.Load(dir)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return config.Default(), nil
	}
	return cfg, nil
}

// printProfile writes the entries sorted by descending count. Entries whose
// count exceeds threshold are marked hot; a threshold of zero or less marks
// nothing.
func printProfile(w io.Writer, s *argument.ProfileSnapshot, threshold, top int) error {
	entries := append([]argument.ProfileEntry(nil), s.Entries...)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	if top > 0 && top < len(entries) {
		entries = entries[:top]
	}

	fmt.Fprintf(w, "profile version %d, recorded threshold %d, threshold %d\n", s.Version, s.Threshold, threshold)
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "COUNT\tHOT\tSEQUENCE")
	for _, e := range entries {
		hot := ""
		if threshold > 0 && e.Count > uint64(threshold) {
			hot = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Count, hot, e.Key)
	}
	return tw.Flush()
}
