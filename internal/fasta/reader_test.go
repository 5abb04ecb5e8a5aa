// internal/fasta/reader_test.go
package fasta

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

const plain = `>seq1 first entry
ACgt
AC
>seq2
NNnn
`

func writeGz(t *testing.T, name string, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	fh, err := os.Create(path)
	if err != nil {
		t.Fatalf("tmp: %v", err)
	}
	gw := gzip.NewWriter(fh)
	if _, err := gw.Write([]byte(data)); err != nil {
		t.Fatalf("write gz: %v", err)
	}
	gw.Close()
	fh.Close()
	return path
}

func TestReadAllGzip(t *testing.T) {
	recs, err := ReadAll(context.Background(), writeGz(t, "test.fa.gz", plain))
	if err != nil {
		t.Fatalf("read gz: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "seq1" || recs[1].ID != "seq2" {
		t.Fatalf("gzip parse failed, recs=%+v", recs)
	}
	if recs[0].Header != "seq1 first entry" || string(recs[0].Seq) != "ACGTAC" {
		t.Fatalf("unexpected first record %+v", recs[0])
	}
	if string(recs[1].Seq) != "NNNN" {
		t.Fatalf("want upper-cased sequence, got %q", recs[1].Seq)
	}
}

func TestStreamStdin(t *testing.T) {
	orig := os.Stdin
	r, w, _ := os.Pipe()
	os.Stdin = r
	defer func() { os.Stdin = orig }()
	go func() { io.WriteString(w, plain); w.Close() }()

	ch, errc, err := Stream(context.Background(), "-")
	if err != nil {
		t.Fatalf("stream stdin: %v", err)
	}
	count := 0
	for range ch {
		count++
	}
	if err := <-errc; err != nil {
		t.Fatalf("stdin: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 records from stdin, got %d", count)
	}
}

func TestStreamRejectsHeaderlessData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.fa")
	if err := os.WriteFile(path, []byte("ACGT\n>x\nA\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadAll(context.Background(), path); err == nil {
		t.Fatal("expected error for sequence before header")
	}
}
