// internal/app/run.go
package app

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shardmap/internal/assembly"
	"shardmap/internal/cli"
	"shardmap/internal/conclave"
	"shardmap/internal/pipeline"
	"shardmap/internal/shard"
	"shardmap/internal/version"
)

func (a *app) runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve shard match streams, vote with ConClave and assemble accepted templates",
		Args:  cobra.NoArgs,
	}
	cli.BindRun(cmd.Flags(), a.cfg)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		c := a.cfg
		if err := cli.Validate(c); err != nil {
			return usageError{err}
		}
		if c.Manifest != "" {
			m, err := shard.ReadManifest(c.Manifest)
			if err != nil {
				return err
			}
			c.Templates = m.Shards
			if m.KmerSize > 0 && !changed(cmd.Flags(), "kmer-size") {
				c.KmerSize = m.KmerSize
			}
		}
		c.Normalize()

		var progress io.Writer
		if c.Progress {
			progress = a.stderr
		}
		opts := pipeline.Options{
			Templates:        c.Templates,
			Output:           c.Output,
			KmerSize:         c.KmerSize,
			Policy:           conclave.Policy(c.Conclave),
			Threads:          c.Threads,
			Identity:         c.Identity,
			Threshold:        cli.Threshold(c),
			MaxFragments:     c.MaxFragments,
			SpoolDir:         c.SpoolDir,
			ExtendedFeatures: c.ExtendedFeatures,
			Progress:         progress,
			Version:          version.Version,
			Command:          append([]string{"shardmap"}, a.argv...),
		}
		src := &shard.FileSource{Prefix: c.Streams, Poll: c.Poll, Idle: c.IdleTimeout, Follow: c.Follow, Log: a.log}

		a.log.Info("run",
			zap.Strings("templates", c.Templates),
			zap.String("streams", c.Streams),
			zap.Int("kmer_size", c.KmerSize),
			zap.Int("conclave", c.Conclave),
			zap.Int("threads", c.Threads))
		sum, err := pipeline.Run(cmd.Context(), opts, src, assembly.Pileup{K: c.KmerSize}, a.log)
		if err != nil {
			return err
		}
		a.log.Info("done",
			zap.Int("reads", sum.Resolve.Reads),
			zap.Int("fragments", sum.Fragments),
			zap.Int("accepted", sum.Assemble.Accepted),
			zap.Int("rejected", sum.Assemble.Rejected))
		return nil
	}
	return cmd
}
