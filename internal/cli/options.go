// internal/cli/options.go
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"shardmap/internal/conclave"
	"shardmap/internal/config"
)

// ErrNoOutput reports a run without --output.
var ErrNoOutput = errors.New("--output is required")

// BindRun registers the run command's flags on fs, writing into c. The
// current values of c become the flag defaults, so a loaded config file
// sits between the built-in defaults and explicit flags.
func BindRun(fs *pflag.FlagSet, c *config.Config) {
	// Input
	fs.StringSliceVarP(&c.Templates, "templates", "t", c.Templates, "template shard prefixes, in id order (repeatable) [*]")
	fs.StringVar(&c.Manifest, "manifest", c.Manifest, "TOML shard manifest (alternative to --templates)")
	fs.StringVar(&c.Streams, "streams", c.Streams, "shard match stream prefix; shard i reads <streams>.<i> [--output]")
	fs.BoolVar(&c.Follow, "follow", c.Follow, "keep reading stream files that are still being written")
	fs.DurationVar(&c.Poll, "poll", c.Poll, "sleep between stream readiness checks")
	fs.DurationVar(&c.IdleTimeout, "idle-timeout", c.IdleTimeout, "fail a stream that stays absent or stops growing this long (0 = wait forever)")

	// Voting
	fs.IntVarP(&c.KmerSize, "kmer-size", "k", c.KmerSize, "k-mer size, 4-32 (other values fall back to 16)")
	fs.IntVar(&c.Conclave, "conclave", c.Conclave, "ConClave policy: 1 normalized score | 2 significance filtered")
	fs.Float64Var(&c.ScoreThreshold, "score-threshold", c.ScoreThreshold, "minimum vote score per template base")
	fs.Float64Var(&c.Evalue, "evalue", c.Evalue, "significance level of the template acceptance test")
	fs.StringVar(&c.Combine, "combine", c.Combine, "combine significance and score threshold: and | or")

	// Assembly & output
	fs.StringVarP(&c.Output, "output", "o", c.Output, "output prefix (.res, .fsa, .mapstat) [*]")
	fs.IntVar(&c.Threads, "threads", c.Threads, "assembly worker threads (0 = all CPUs)")
	fs.Float64Var(&c.Identity, "identity", c.Identity, "minimum template identity to report, %")
	fs.IntVar(&c.MaxFragments, "max-fragments", c.MaxFragments, "fragments held in memory before spilling to disk")
	fs.StringVar(&c.SpoolDir, "spool-dir", c.SpoolDir, "directory for temporary spool files [OS temp dir]")
	fs.BoolVar(&c.ExtendedFeatures, "extended-features", c.ExtendedFeatures, "also write <output>.mapstat")
	fs.BoolVar(&c.Progress, "progress", c.Progress, "show assembly progress on stderr")
}

// BindGlobal registers flags shared by every command.
func BindGlobal(fs *pflag.FlagSet, c *config.Config, configPath *string) {
	fs.StringVar(configPath, "config", "", "YAML config file")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug | info | warn | error")
}

// ConfigPath finds --config in argv before flag parsing, so the file can
// seed the flag defaults.
func ConfigPath(argv []string) string {
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
		if arg == "--config" && i+1 < len(argv) {
			return argv[i+1]
		}
	}
	return ""
}

// Validate checks the run options after Normalize.
func Validate(c *config.Config) error {
	if c.Output == "" {
		return ErrNoOutput
	}
	if len(c.Templates) == 0 && c.Manifest == "" {
		return errors.New("provide --templates or --manifest")
	}
	if len(c.Templates) > 0 && c.Manifest != "" {
		return errors.New("--templates conflicts with --manifest")
	}
	if c.Conclave != int(conclave.Normalized) && c.Conclave != int(conclave.Significance) {
		return fmt.Errorf("invalid --conclave %d", c.Conclave)
	}
	if c.Threads < 0 {
		return errors.New("--threads must be ≥ 0")
	}
	if c.MaxFragments < 1 {
		return errors.New("--max-fragments must be ≥ 1")
	}
	if c.Evalue < 0 || c.Evalue > 1 {
		return errors.New("--evalue must be within [0,1]")
	}
	if c.Identity < 0 || c.Identity > 100 {
		return errors.New("--identity must be within [0,100]")
	}
	if c.ScoreThreshold < 0 {
		return errors.New("--score-threshold must be ≥ 0")
	}
	if _, err := conclave.ParseCombine(c.Combine); err != nil {
		return err
	}
	if c.Poll < 0 {
		return errors.New("--poll must be ≥ 0")
	}
	if c.IdleTimeout < 0 {
		return errors.New("--idle-timeout must be ≥ 0")
	}
	return nil
}

// Threshold builds the acceptance threshold from validated options.
func Threshold(c *config.Config) conclave.Threshold {
	comb, _ := conclave.ParseCombine(c.Combine)
	return conclave.Threshold{Evalue: c.Evalue, ScoreT: c.ScoreThreshold, Combine: comb}
}
