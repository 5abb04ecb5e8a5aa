// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"shardmap/internal/assembly"
	"shardmap/internal/conclave"
	"shardmap/internal/report"
	"shardmap/internal/resolver"
	"shardmap/internal/shard"
	"shardmap/internal/spool"
)

// Options controls one run.
type Options struct {
	Templates        []string // shard prefixes, in id order
	Output           string   // result files are <Output>.res, .fsa, .mapstat
	KmerSize         int
	Policy           conclave.Policy
	Threads          int
	Identity         float64 // minimum template identity, %
	Threshold        conclave.Threshold
	MaxFragments     int // spool ceiling
	SpoolDir         string
	ExtendedFeatures bool
	Progress         io.Writer // nil disables the progress bar
	Version          string
	Command          []string
}

// Summary counts what each stage did.
type Summary struct {
	Resolve    resolver.Stats
	Input      int
	Vote       conclave.Stats
	Fragments  int
	SpoolFiles int
	Assemble   assembly.Stats
}

// ErrNoOutput reports a run without an output prefix.
var ErrNoOutput = errors.New("no output prefix")

// Run executes the whole pipeline. src supplies the shard match streams and
// asm assembles accepted templates.
func Run(ctx context.Context, o Options, src shard.StreamSource, asm assembly.Assembler, log *zap.Logger) (Summary, error) {
	var sum Summary
	if log == nil {
		log = zap.NewNop()
	}
	if o.Output == "" {
		return sum, ErrNoOutput
	}
	start := time.Now()

	cat, err := shard.Load(o.Templates)
	if err != nil {
		return sum, fmt.Errorf("load templates: %w", err)
	}
	log.Info("templates loaded", zap.Int("shards", len(cat.Shards)), zap.Int("templates", cat.Len()), zap.Int64("bases", cat.Total))

	outs, closeOuts, err := createOutputs(o)
	if err != nil {
		return sum, err
	}
	defer closeOuts()

	eng, err := conclave.NewEngine(conclave.Config{
		Policy:    o.Policy,
		K:         o.KmerSize,
		Lengths:   cat.Lengths,
		Total:     cat.Total,
		Threshold: o.Threshold,
		Dir:       o.SpoolDir,
		Log:       log,
	})
	if err != nil {
		return sum, err
	}
	defer eng.Close()

	if sum.Resolve, sum.Input, err = resolve(ctx, src, cat, o.KmerSize, eng, log); err != nil {
		return sum, err
	}

	sp := spool.New(o.SpoolDir, cat.Len(), o.MaxFragments, log)
	if err := eng.Run(sp); err != nil {
		return sum, fmt.Errorf("vote: %w", err)
	}
	set, err := sp.Close()
	if err != nil {
		return sum, err
	}
	defer func() {
		if err := set.Remove(); err != nil {
			log.Warn("spool cleanup", zap.Error(err))
		}
	}()
	sum.Vote = eng.Stats()
	sum.Fragments = sp.Total()
	sum.SpoolFiles = len(set.Files)
	log.Info("fragments spooled", zap.Int("fragments", sum.Fragments), zap.Int("files", sum.SpoolFiles))

	weighted := eng.Scores().Weighted
	var expected []int32
	for t, v := range assembly.Accepted(cat, weighted, o.Threshold) {
		if weighted[t] > 0 && v.Pass {
			expected = append(expected, int32(t))
		}
	}

	if outs.MapStat != nil {
		if err := report.WriteMapStatHeader(outs.MapStat, report.MapStatMeta{
			Version:   o.Version,
			Databases: o.Templates,
			Fragments: uint64(sum.Input),
			Date:      time.Now(),
			Command:   o.Command,
		}); err != nil {
			return sum, fmt.Errorf("write mapstat: %w", err)
		}
	}
	in, done := report.StartWriter(outs, report.Options{
		Identity:       o.Identity,
		Expected:       expected,
		ReadCounts:     eng.ReadCounts(),
		FragmentCounts: eng.FragmentCounts(),
		Log:            log,
	}, o.Threads*2)

	sched := &assembly.Scheduler{
		Catalog:   cat,
		Assembler: asm,
		Spool:     set,
		Threshold: o.Threshold,
		Threads:   o.Threads,
		Progress:  o.Progress,
		Log:       log,
	}
	sum.Assemble, err = sched.Run(ctx, weighted, in)
	close(in)
	werr := <-done
	if err != nil {
		return sum, err
	}
	if werr != nil {
		return sum, fmt.Errorf("write results: %w", werr)
	}
	if err := closeOuts(); err != nil {
		return sum, err
	}
	log.Info("run finished", zap.Duration("took", time.Since(start)))
	return sum, nil
}

// resolve feeds every resolved read to eng and returns the resolver's
// counters and the number of input reads named by the end records.
func resolve(ctx context.Context, src shard.StreamSource, cat *shard.Catalog, k int, eng *conclave.Engine, log *zap.Logger) (resolver.Stats, int, error) {
	r, err := resolver.Open(ctx, src, cat, k)
	if err != nil {
		return resolver.Stats{}, 0, fmt.Errorf("open shard streams: %w", err)
	}
	defer r.Close()

	start := time.Now()
	var rd resolver.Read
	for {
		if err := ctx.Err(); err != nil {
			return r.Stats(), 0, err
		}
		err := r.Next(&rd)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.Stats(), 0, fmt.Errorf("resolve: %w", err)
		}
		if err := eng.Stage(&rd); err != nil {
			return r.Stats(), 0, err
		}
	}
	st := r.Stats()
	input := int(r.Last()) + 1
	log.Info("reads resolved",
		zap.Int("input", input),
		zap.Int("reads", st.Reads),
		zap.Int("short", st.Short),
		zap.Int("paired", st.Paired),
		zap.Duration("took", time.Since(start)))
	return st, input, nil
}

// createOutputs opens the result files. The returned close func is safe to
// call more than once.
func createOutputs(o Options) (report.Outputs, func() error, error) {
	var files []*os.File
	closeAll := func() error {
		var errs []error
		for _, f := range files {
			if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	create := func(suffix string) (*os.File, error) {
		f, err := os.Create(o.Output + suffix)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("create output: %w", err)
		}
		files = append(files, f)
		return f, nil
	}

	var outs report.Outputs
	res, err := create(".res")
	if err != nil {
		return outs, nil, err
	}
	outs.Results = res
	fsa, err := create(".fsa")
	if err != nil {
		return outs, nil, err
	}
	outs.Consensus = fsa
	if o.ExtendedFeatures {
		ms, err := create(".mapstat")
		if err != nil {
			return outs, nil, err
		}
		outs.MapStat = ms
	}
	return outs, closeAll, nil
}
