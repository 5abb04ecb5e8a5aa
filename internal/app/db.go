// internal/app/db.go
package app

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shardmap/internal/cli"
	"shardmap/internal/config"
	"shardmap/internal/fasta"
	"shardmap/internal/shard"
)

func (a *app) dbCommand() *cobra.Command {
	var (
		prefix string
		shards int
		k      int
	)
	cmd := &cobra.Command{
		Use:   "db -o PREFIX [--shards N] FASTA...",
		Short: "Split reference FASTA into template shards and write a manifest",
		Args:  positional(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := cli.ExpandPaths(args)
			if err != nil {
				return usageError{err}
			}
			if prefix == "" {
				return usagef("db: --output is required")
			}
			if shards < 1 {
				return usagef("db: --shards must be ≥ 1")
			}
			var templates []shard.Template
			for _, p := range paths {
				recs, err := fasta.ReadAll(cmd.Context(), p)
				if err != nil {
					return err
				}
				for _, r := range recs {
					templates = append(templates, shard.Template{Name: r.Header, Seq: r.Seq})
				}
			}
			if len(templates) == 0 {
				return fmt.Errorf("db: %w", shard.ErrNoTemplates)
			}
			if shards > len(templates) {
				shards = len(templates)
			}

			m := &shard.Manifest{KmerSize: k}
			for i, part := range split(templates, shards) {
				p := fmt.Sprintf("%s.%d", prefix, i)
				if err := shard.Write(p, part); err != nil {
					return fmt.Errorf("write shard %d: %w", i, err)
				}
				m.Shards = append(m.Shards, filepath.Base(p))
				a.log.Debug("shard written", zap.String("prefix", p), zap.Int("templates", len(part)))
			}
			path := prefix + ".toml"
			if err := shard.WriteManifest(path, m); err != nil {
				return fmt.Errorf("write manifest: %w", err)
			}
			a.log.Info("database written", zap.String("manifest", path), zap.Int("shards", shards), zap.Int("templates", len(templates)))
			_, err = fmt.Fprintln(a.stdout, path)
			return err
		},
	}
	cmd.Flags().StringVarP(&prefix, "output", "o", "", "database prefix; shards are <prefix>.<i> [*]")
	cmd.Flags().IntVar(&shards, "shards", 1, "number of shards")
	cmd.Flags().IntVarP(&k, "kmer-size", "k", config.DefaultKmerSize, "k-mer size recorded in the manifest")
	return cmd
}

// split cuts ts into n contiguous parts of near-equal size, keeping id order.
func split(ts []shard.Template, n int) [][]shard.Template {
	out := make([][]shard.Template, 0, n)
	for i := 0; i < n; i++ {
		lo, hi := i*len(ts)/n, (i+1)*len(ts)/n
		out = append(out, ts[lo:hi])
	}
	return out
}
