// internal/app/mux.go
package app

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shardmap/internal/anker"
	"shardmap/internal/cli"
	"shardmap/internal/mux"
)

func (a *app) muxCommand() *cobra.Command {
	var (
		output string
		buffer int
	)
	cmd := &cobra.Command{
		Use:   "mux -o STREAM PRODUCER...",
		Short: "Merge per-producer record files into one ordered shard stream",
		Args:  positional(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := cli.ExpandPaths(args)
			if err != nil {
				return usageError{err}
			}
			if output == "" {
				return usagef("mux: --output is required")
			}
			if buffer < 1 {
				return usagef("mux: --buffer must be ≥ 1")
			}
			var w io.Writer = a.stdout
			var f *os.File
			if output != "-" {
				if f, err = os.Create(output); err != nil {
					return fmt.Errorf("create stream: %w", err)
				}
				defer f.Close()
				w = f
			}
			n, err := a.multiplex(cmd, w, paths, buffer)
			if err != nil {
				return err
			}
			if f != nil {
				if err := f.Close(); err != nil {
					return err
				}
			}
			a.log.Info("stream written", zap.String("path", output), zap.Int("producers", len(paths)), zap.Int("reads", n))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "stream file to write ('-' for stdout) [*]")
	cmd.Flags().IntVar(&buffer, "buffer", 64, "items queued between producers and the multiplexer")
	return cmd
}

func (a *app) multiplex(cmd *cobra.Command, w io.Writer, paths []string, buffer int) (int, error) {
	files := make([]*os.File, len(paths))
	for i, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			for _, o := range files[:i] {
				o.Close()
			}
			return 0, fmt.Errorf("open producer: %w", err)
		}
		files[i] = f
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	m := mux.Start(mux.StreamSink{W: anker.NewWriter(w)}, len(files), buffer)
	counts := make([]int, len(files))
	g, ctx := errgroup.WithContext(cmd.Context())
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			n, err := mux.Produce(ctx, m, i, bufio.NewReader(f))
			counts[i] = n
			if err != nil {
				return fmt.Errorf("%s: %w", paths[i], err)
			}
			a.log.Debug("producer finished", zap.String("path", paths[i]), zap.Int("reads", n))
			return nil
		})
	}
	gerr := g.Wait()
	merr := m.Wait()
	if gerr != nil {
		return 0, gerr
	}
	if merr != nil {
		return 0, fmt.Errorf("write stream: %w", merr)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}
