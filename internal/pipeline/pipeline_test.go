package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"shardmap/internal/anker"
	"shardmap/internal/assembly"
	"shardmap/internal/conclave"
	"shardmap/internal/seq"
	"shardmap/internal/shard"
	"shardmap/internal/spool"
)

const tpl5 = "GATTACACCGGTTAACGTACGATCGGCTAGCTAAGGCCTTAGGATCCATGCAAGTCGTTG"

func stream(t *testing.T, last int32, recs ...anker.Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := anker.NewWriter(&buf)
	for i := range recs {
		if err := w.Write(&recs[i]); err != nil {
			t.Fatalf("write record: %v", err)
		}
	}
	if err := w.WriteEnd(last); err != nil {
		t.Fatalf("write end: %v", err)
	}
	return buf.Bytes()
}

// fixture writes shard A (templates 0-5) and shard B (template 6).
func fixture(t *testing.T) (dir string, prefixes []string) {
	t.Helper()
	dir = t.TempDir()
	var a []shard.Template
	for i := 0; i < 5; i++ {
		a = append(a, shard.Template{Name: "pad" + string(rune('0'+i)), Seq: []byte(strings.Repeat("ACGT", 25))})
	}
	a = append(a, shard.Template{Name: "tpl5", Seq: []byte(tpl5)})
	pa, pb := filepath.Join(dir, "db.0"), filepath.Join(dir, "db.1")
	if err := shard.Write(pa, a); err != nil {
		t.Fatalf("write shard A: %v", err)
	}
	if err := shard.Write(pb, []shard.Template{{Name: "other", Seq: []byte(strings.Repeat("TTGCA", 20))}}); err != nil {
		t.Fatalf("write shard B: %v", err)
	}
	return dir, []string{pa, pb}
}

type recorder struct {
	assembly.Pileup
	mu    sync.Mutex
	frags map[int32][]spool.Fragment
}

func (r *recorder) Assemble(ctx context.Context, job *assembly.Job, frags assembly.Fragments) (*assembly.Result, error) {
	err := frags.Each(job.Template, func(f *spool.Fragment) error {
		c := *f
		c.Seq = append([]byte(nil), f.Seq...)
		c.Header = append([]byte(nil), f.Header...)
		r.mu.Lock()
		r.frags[job.Template] = append(r.frags[job.Template], c)
		r.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Pileup.Assemble(ctx, job, frags)
}

func options(dir string, prefixes []string) Options {
	return Options{
		Templates:    prefixes,
		Output:       filepath.Join(dir, "out"),
		KmerSize:     16,
		Policy:       conclave.Normalized,
		Threads:      2,
		Identity:     1,
		Threshold:    conclave.DefaultThreshold,
		MaxFragments: spool.DefaultCeiling,
		SpoolDir:     dir,
	}
}

func TestRunHigherScoringShardWins(t *testing.T) {
	dir, prefixes := fixture(t)
	read := []byte(tpl5[:40])
	src := shard.MemorySource{
		stream(t, 0, anker.NewRecord(0, read, "@read0", 40, 6)),
		stream(t, 0, anker.NewRecord(0, read, "@read0", 30, 1)),
	}
	o := options(dir, prefixes)
	asm := &recorder{Pileup: assembly.Pileup{K: 16}, frags: map[int32][]spool.Fragment{}}

	sum, err := Run(context.Background(), o, src, asm, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Resolve.Reads != 1 || sum.Fragments != 1 || sum.SpoolFiles != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(asm.frags[5]) != 1 || len(asm.frags) != 1 {
		t.Fatalf("fragments not on template 5: %v", asm.frags)
	}

	res, err := os.ReadFile(o.Output + ".res")
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(res)), "\n")
	if len(lines) != 2 {
		t.Fatalf("want header + 1 row, got %q", res)
	}
	f := strings.Fields(lines[1])
	if f[0] != "tpl5" || f[1] != "40" || f[3] != "60" {
		t.Fatalf("unexpected row %q", lines[1])
	}
	fsa, _ := os.ReadFile(o.Output + ".fsa")
	if !strings.HasPrefix(string(fsa), ">tpl5\n"+tpl5[:40]+"--------------------\n") {
		t.Fatalf("unexpected consensus %q", fsa)
	}

	left, _ := filepath.Glob(filepath.Join(dir, "shardmap-*"))
	if len(left) != 0 {
		t.Fatalf("temporary files left behind: %v", left)
	}
}

func TestRunPairedEndSpoolsBothMates(t *testing.T) {
	dir, prefixes := fixture(t)
	mate := seq.Encode([]byte(tpl5[20:60]))
	seq.RevCompCodes(mate)
	mate = seq.Decode(mate)
	src := shard.MemorySource{
		stream(t, 3,
			anker.NewRecord(3, []byte(tpl5[:40]), "@pair/1", -35),
			anker.NewRecord(3, mate, "@pair/2", -35, 6),
		),
		stream(t, 3),
	}
	o := options(dir, prefixes)
	o.ExtendedFeatures = true
	o.Threads = 1
	asm := &recorder{Pileup: assembly.Pileup{K: 16}, frags: map[int32][]spool.Fragment{}}

	sum, err := Run(context.Background(), o, src, asm, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Resolve.Paired != 1 {
		t.Fatalf("pair not resolved: %+v", sum.Resolve)
	}
	got := asm.frags[5]
	if len(got) != 2 {
		t.Fatalf("want both mates on template 5, got %d fragments", len(got))
	}
	if string(got[0].Header) != "@pair/1" || string(got[1].Header) != "@pair/2" {
		t.Fatalf("unexpected mates %q %q", got[0].Header, got[1].Header)
	}
	if got[0].Mate || !got[1].Mate {
		t.Fatalf("mate flags: first %v, second %v", got[0].Mate, got[1].Mate)
	}
	if got[0].Score != 0 {
		t.Fatalf("negative read should spool unscored, got %d", got[0].Score)
	}

	ms, err := os.ReadFile(o.Output + ".mapstat")
	if err != nil {
		t.Fatalf("read mapstat: %v", err)
	}
	if !strings.Contains(string(ms), "## fragmentCount\t4\n") {
		t.Fatalf("fragmentCount should count every input read:\n%s", ms)
	}
	if !strings.Contains(string(ms), "\ntpl5\t2\t1\t0\t") {
		t.Fatalf("unexpected mapstat:\n%s", ms)
	}
}

func TestRunRequiresOutput(t *testing.T) {
	_, err := Run(context.Background(), Options{}, shard.MemorySource{}, assembly.Pileup{}, nil)
	if !errors.Is(err, ErrNoOutput) {
		t.Fatalf("want ErrNoOutput, got %v", err)
	}
}

func TestRunMissingTemplates(t *testing.T) {
	dir := t.TempDir()
	o := options(dir, []string{filepath.Join(dir, "missing")})
	if _, err := Run(context.Background(), o, shard.MemorySource{}, assembly.Pileup{}, nil); err == nil {
		t.Fatal("expected error for missing template files")
	}
}

func TestRunCancelled(t *testing.T) {
	dir, prefixes := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := shard.MemorySource{stream(t, 0, anker.NewRecord(0, []byte(tpl5[:40]), "@r", 40, 6)), stream(t, 0)}
	if _, err := Run(ctx, options(dir, prefixes), src, assembly.Pileup{K: 16}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
