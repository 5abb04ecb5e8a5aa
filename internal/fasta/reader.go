// internal/fasta/reader.go
package fasta

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one FASTA entry. Header is the full title line without '>'.
type Record struct {
	ID     string
	Header string
	Seq    []byte
}

// Stream parses path ("-" for stdin, ".gz" transparently) in a goroutine.
// The error channel yields exactly one value after the record channel closes.
func Stream(ctx context.Context, path string) (<-chan Record, <-chan error, error) {
	rc, err := openReader(path)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan Record, 4)
	errc := make(chan error, 1)

	go func() {
		defer rc.Close()
		err := parse(ctx, bufio.NewReader(rc), out)
		close(out)
		if err != nil {
			err = fmt.Errorf("%s: %w", path, err)
		}
		errc <- err
	}()
	return out, errc, nil
}

// ReadAll collects every record of path.
func ReadAll(ctx context.Context, path string) ([]Record, error) {
	ch, errc, err := Stream(ctx, path)
	if err != nil {
		return nil, err
	}
	var recs []Record
	for r := range ch {
		recs = append(recs, r)
	}
	return recs, <-errc
}

func parse(ctx context.Context, r *bufio.Reader, out chan<- Record) error {
	var (
		cur  Record
		open bool
	)
	emit := func() error {
		if !open {
			return nil
		}
		select {
		case out <- cur:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	for {
		line, err := r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return err
		}
		eof := err == io.EOF
		line = bytes.TrimRight(line, "\r\n")

		switch {
		case len(line) > 0 && line[0] == '>':
			if err := emit(); err != nil {
				return err
			}
			hdr := strings.TrimSpace(string(line[1:]))
			id := hdr
			if f := strings.Fields(hdr); len(f) > 0 {
				id = f[0]
			}
			cur = Record{ID: id, Header: hdr}
			open = true
		case len(line) > 0:
			if !open {
				return fmt.Errorf("sequence data before first header")
			}
			cur.Seq = append(cur.Seq, bytes.ToUpper(line)...)
		}
		if eof {
			return emit()
		}
	}
}

/* ---------------- small helpers ---------------- */

func openReader(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(fh)
		if err != nil {
			fh.Close()
			return nil, err
		}
		return struct {
			io.Reader
			io.Closer
		}{Reader: gr, Closer: fh}, nil
	}
	return fh, nil
}
