// internal/app/count.go
package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shardmap/internal/cli"
	"shardmap/internal/config"
	"shardmap/internal/counting"
	"shardmap/internal/fasta"
)

// countBuckets sizes the global table; it never grows.
const countBuckets = 1 << 20

func (a *app) countCommand() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "count [-k K] FASTA...",
		Short: "Count canonical k-mers per record and singletons over all records",
		Args:  positional(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := cli.ExpandPaths(args)
			if err != nil {
				return usageError{err}
			}
			if k < config.MinKmerSize || k > config.MaxKmerSize {
				k = config.DefaultKmerSize
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			set := counting.NewKmerSet(1024)
			table := counting.NewCountTable(countBuckets)
			records := 0

			if _, err := fmt.Fprintln(a.stdout, "#record\tkmers\tdistinct"); err != nil {
				return err
			}
			for _, path := range paths {
				ch, errc, err := fasta.Stream(ctx, path)
				if err != nil {
					return fmt.Errorf("open %s: %w", path, err)
				}
				for rec := range ch {
					set.Clear()
					distinct, err := counting.DistinctSequence(set, rec.Seq, k)
					if err != nil {
						return err
					}
					n, err := counting.CountSequence(table, rec.Seq, k)
					if err != nil {
						return err
					}
					records++
					if _, err := fmt.Fprintf(a.stdout, "%s\t%d\t%d\n", rec.ID, n, distinct); err != nil {
						return err
					}
				}
				if err := <-errc; err != nil {
					return err
				}
			}

			singletons := 0
			table.Each(func(_ uint64, count uint32) bool {
				if count == 1 {
					singletons++
				}
				return true
			})
			if _, err := fmt.Fprintf(a.stdout, "#total\t%d\t%d\tsingletons=%d\n", records, table.Len(), singletons); err != nil {
				return err
			}
			a.log.Info("k-mers counted", zap.Int("records", records), zap.Int("kmer_size", k), zap.Int("distinct", table.Len()))
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "kmer-size", "k", config.DefaultKmerSize, "k-mer size, 4-32")
	return cmd
}
