package assembly

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shardmap/internal/conclave"
	"shardmap/internal/shard"
	"shardmap/internal/spool"
)

// Scheduler assembles every accepted template across a pool of workers.
// The dispatching goroutine reads templates in ascending id order and runs a
// job itself whenever no worker is idle.
type Scheduler struct {
	Catalog   *shard.Catalog
	Assembler Assembler
	Spool     *spool.Set
	Threshold conclave.Threshold
	// Threads is the total number of assembling goroutines, the dispatcher
	// included.
	Threads int
	// Progress, when set, receives a progress bar.
	Progress io.Writer
	Log      *zap.Logger
}

// Stats summarizes one scheduling run.
type Stats struct {
	Accepted int
	Rejected int
	Inline   int
}

// Accepted returns the significance verdict of every template with a
// positive vote total, and whether it passed.
func Accepted(cat *shard.Catalog, weighted []uint64, th conclave.Threshold) []conclave.Verdict {
	var hits uint64
	for _, w := range weighted {
		hits += w
	}
	out := make([]conclave.Verdict, len(weighted))
	for t, w := range weighted {
		if w > 0 {
			out[t] = conclave.Test(w, cat.Length(int32(t)), hits, cat.Total, th)
		}
	}
	return out
}

// Run dispatches one job per accepted template and sends each outcome to
// results. It does not close results.
func (s *Scheduler) Run(ctx context.Context, weighted []uint64, results chan<- Outcome) (Stats, error) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	threads := s.Threads
	if threads < 1 {
		threads = 1
	}
	verdicts := Accepted(s.Catalog, weighted, s.Threshold)
	var st Stats
	for t, v := range verdicts {
		if weighted[t] > 0 {
			if v.Pass {
				st.Accepted++
			} else {
				st.Rejected++
			}
		}
	}

	var bar *mpb.Bar
	var pbs *mpb.Progress
	if s.Progress != nil {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(s.Progress))
		bar = pbs.AddBar(int64(st.Accepted),
			mpb.PrependDecorators(
				decor.Name("assembled templates: ", decor.WC{W: len("assembled templates: "), C: decor.DindentRight}),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
				decor.EwmaETA(decor.ET_STYLE_GO, 10),
				decor.OnComplete(decor.Name(""), ". done"),
			),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan *Job)

	work := func(cur *spool.Cursor, job *Job) error {
		start := time.Now()
		res, err := s.Assembler.Assemble(gctx, job, cur)
		if err != nil {
			return fmt.Errorf("assemble %s: %w", job.Name, err)
		}
		if bar != nil {
			bar.EwmaIncrBy(1, time.Since(start))
		}
		select {
		case results <- Outcome{Job: job, Result: res}:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	}

	for w := 1; w < threads; w++ {
		g.Go(func() error {
			cur, err := s.Spool.Open()
			if err != nil {
				return err
			}
			defer cur.Close()
			for job := range jobs {
				if err := work(cur, job); err != nil {
					return err
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		cur, err := s.Spool.Open()
		if err != nil {
			return err
		}
		defer cur.Close()
		ld := NewLoader(s.Catalog)
		defer ld.Close()

		for t := range verdicts {
			id := int32(t)
			if weighted[t] == 0 || !verdicts[t].Pass {
				if _, err := ld.Skip(id); err != nil {
					return err
				}
				continue
			}
			name, codes, err := ld.Load(id)
			if err != nil {
				return err
			}
			job := &Job{Template: id, Name: name, Seq: codes, Score: weighted[t], Verdict: verdicts[t]}
			if threads > 1 {
				select {
				case jobs <- job:
					continue
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
			}
			st.Inline++
			if err := work(cur, job); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	if pbs != nil {
		if err != nil {
			bar.Abort(false)
		}
		pbs.Wait()
	}
	if err != nil {
		return st, err
	}
	log.Info("templates assembled",
		zap.Int("accepted", st.Accepted),
		zap.Int("rejected", st.Rejected),
		zap.Int("inline", st.Inline))
	return st, nil
}
