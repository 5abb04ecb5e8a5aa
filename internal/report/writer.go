package report

import (
	"bufio"
	"fmt"
	"io"

	"go.uber.org/zap"

	"shardmap/internal/assembly"
)

// Outputs are the report destinations. Consensus and MapStat are optional.
type Outputs struct {
	Results   io.Writer
	Consensus io.Writer
	MapStat   io.Writer
}

// Options control what the writer reports.
type Options struct {
	// Identity is the minimum template identity (%) for a row.
	Identity float64
	// Expected lists, ascending, every template id that will arrive.
	Expected []int32
	// ReadCounts and FragmentCounts feed the extended feature report.
	ReadCounts     []uint64
	FragmentCounts []uint64
	Log            *zap.Logger
}

// StartWriter spins up the report goroutine. Outcomes may arrive in any
// order; rows are written in ascending template id. The error channel
// yields once, after the input channel is closed.
func StartWriter(out Outputs, opt Options, bufSize int) (chan<- assembly.Outcome, <-chan error) {
	if bufSize <= 0 {
		bufSize = 64
	}
	if opt.Log == nil {
		opt.Log = zap.NewNop()
	}
	in := make(chan assembly.Outcome, bufSize)
	errCh := make(chan error, 1)

	go func() {
		res := bufio.NewWriter(out.Results)
		var fsa, ms *bufio.Writer
		if out.Consensus != nil {
			fsa = bufio.NewWriter(out.Consensus)
		}
		if out.MapStat != nil {
			ms = bufio.NewWriter(out.MapStat)
		}
		reported, filtered := 0, 0

		release := func(o assembly.Outcome) error {
			row := NewRow(o)
			if !row.Reportable(opt.Identity) {
				filtered++
				opt.Log.Debug("template below identity",
					zap.String("template", row.Template),
					zap.Float64("identity", row.TemplateIdentity))
				return nil
			}
			reported++
			if err := WriteRow(res, row); err != nil {
				return err
			}
			if fsa != nil {
				if err := WriteConsensus(fsa, o.Job.Name, o.Result.Consensus); err != nil {
					return err
				}
			}
			if ms != nil {
				t := o.Job.Template
				if err := WriteMapStat(ms, MapStat{
					Template:       o.Job.Name,
					Reads:          at(opt.ReadCounts, t),
					Fragments:      at(opt.FragmentCounts, t),
					ScoreSum:       o.Result.ScoreSum,
					Covered:        o.Result.Aligned,
					ConsensusDepth: o.Result.ConsensusDepth,
					Bases:          o.Result.Depth,
				}); err != nil {
					return err
				}
			}
			return nil
		}

		_, err := fmt.Fprintln(res, Header)
		ord := NewOrdered(opt.Expected)
		for o := range in {
			if err != nil {
				continue // drain so producers never block
			}
			err = ord.Put(o, release)
		}
		if err == nil && !ord.Done() {
			err = fmt.Errorf("report: %d of %d templates never arrived", len(opt.Expected)-reported-filtered, len(opt.Expected))
		}
		for _, w := range []*bufio.Writer{res, fsa, ms} {
			if w == nil {
				continue
			}
			if ferr := w.Flush(); err == nil {
				err = ferr
			}
		}
		opt.Log.Info("report written", zap.Int("reported", reported), zap.Int("below_identity", filtered))
		errCh <- err
	}()
	return in, errCh
}

func at(v []uint64, t int32) uint64 {
	if int(t) < len(v) {
		return v[t]
	}
	return 0
}
