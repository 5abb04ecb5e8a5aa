package shard

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"shardmap/internal/seq"
)

// Files holds the open name and sequence files of one shard. Both are read
// strictly in template order; Skip moves past a template without decoding it.
type Files struct {
	name  *os.File
	seq   *os.File
	names *bufio.Reader
	words []uint64
	raw   []byte
}

// OpenFiles opens the name and sequence files of prefix.
func OpenFiles(prefix string) (*Files, error) {
	nf, err := os.Open(prefix + NameSuffix)
	if err != nil {
		return nil, fmt.Errorf("open names: %w", err)
	}
	sf, err := os.Open(prefix + SeqSuffix)
	if err != nil {
		nf.Close()
		return nil, fmt.Errorf("open sequences: %w", err)
	}
	return &Files{name: nf, seq: sf, names: bufio.NewReader(nf)}, nil
}

// Next returns the next template's name and 2-bit codes (one byte per base).
// dst is reused when large enough.
func (f *Files) Next(length int32, dst []byte) (string, []byte, error) {
	name, err := f.nextName()
	if err != nil {
		return "", nil, err
	}
	n := seq.Words(int(length))
	if cap(f.words) < n {
		f.words = make([]uint64, n)
		f.raw = make([]byte, n*8)
	}
	f.words = f.words[:n]
	raw := f.raw[:n*8]
	if _, err := io.ReadFull(f.seq, raw); err != nil {
		return "", nil, fmt.Errorf("read sequence %s: %w", name, err)
	}
	for i := range f.words {
		f.words[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}
	return name, seq.Unpack(dst, f.words, int(length), nil), nil
}

// Skip moves past the next template: its name line is consumed and the
// sequence file is seeked past its words.
func (f *Files) Skip(length int32) (string, error) {
	name, err := f.nextName()
	if err != nil {
		return "", err
	}
	if _, err := f.seq.Seek(int64(seq.Words(int(length)))*8, io.SeekCurrent); err != nil {
		return "", fmt.Errorf("seek past %s: %w", name, err)
	}
	return name, nil
}

func (f *Files) nextName() (string, error) {
	line, err := f.names.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", fmt.Errorf("read template name: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Close closes both files.
func (f *Files) Close() error {
	err := f.name.Close()
	if e := f.seq.Close(); err == nil {
		err = e
	}
	return err
}

// Template is one reference sequence to write into a shard.
type Template struct {
	Name string
	Seq  []byte
}

// Write creates the length, name and sequence files of one shard. Bases
// other than ACGT are stored as A.
func Write(prefix string, templates []Template) error {
	lens := make([]int32, len(templates))
	for i, t := range templates {
		lens[i] = int32(len(t.Seq))
	}
	if err := writeFile(prefix+LengthSuffix, func(w *bufio.Writer) error {
		return WriteLengths(w, lens)
	}); err != nil {
		return err
	}
	if err := writeFile(prefix+NameSuffix, func(w *bufio.Writer) error {
		for _, t := range templates {
			if _, err := fmt.Fprintln(w, t.Name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	return writeFile(prefix+SeqSuffix, func(w *bufio.Writer) error {
		var b [8]byte
		for _, t := range templates {
			words, _ := seq.Pack(t.Seq)
			for _, wd := range words {
				binary.LittleEndian.PutUint64(b[:], wd)
				if _, err := w.Write(b[:]); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func writeFile(path string, fill func(*bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := fill(w); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
