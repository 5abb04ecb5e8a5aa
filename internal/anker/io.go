package anker

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Writer buffers encoded records onto an io.Writer.
type Writer struct {
	bw  *bufio.Writer
	buf []byte
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, 1<<16)}
}

// Write encodes one record.
func (w *Writer) Write(r *Record) error {
	w.buf = Append(w.buf[:0], r)
	_, err := w.bw.Write(w.buf)
	return err
}

// WriteRaw writes an already encoded record.
func (w *Writer) WriteRaw(b []byte) error {
	_, err := w.bw.Write(b)
	return err
}

// WriteEnd writes the end record and flushes.
func (w *Writer) WriteEnd(last int32) error {
	w.buf = AppendEnd(w.buf[:0], last)
	if _, err := w.bw.Write(w.buf); err != nil {
		return err
	}
	return w.bw.Flush()
}

// Flush flushes buffered records.
func (w *Writer) Flush() error { return w.bw.Flush() }

// Reader decodes records from a stream.
type Reader struct {
	br   *bufio.Reader
	head [HeadSize]byte
	tmp  []byte
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 1<<16)}
}

// ReadHead reads the next head. It returns io.EOF only when the stream ends
// cleanly on a record boundary.
func (r *Reader) ReadHead() (Head, error) {
	if _, err := io.ReadFull(r.br, r.head[:]); err != nil {
		return Head{}, short(err)
	}
	h := decodeHead(r.head[:])
	if !h.valid() {
		return Head{}, fmt.Errorf("%w: ordinal %d", ErrBadHead, h.Ordinal)
	}
	return h, nil
}

// ReadBody decodes the body following h into rec, reusing its slices.
func (r *Reader) ReadBody(h Head, rec *Record) error {
	rec.Ordinal = h.Ordinal
	rec.SeqLen = h.SeqLen
	rec.Score = h.Score
	rec.Words = rec.Words[:0]
	rec.Ambiguous = rec.Ambiguous[:0]
	rec.Templates = rec.Templates[:0]
	rec.Header = rec.Header[:0]
	if h.End() {
		return nil
	}

	b, err := r.fill(int(h.BodySize()))
	if err != nil {
		return err
	}
	le := binary.LittleEndian
	for i := int32(0); i < h.Words; i++ {
		rec.Words = append(rec.Words, le.Uint64(b))
		b = b[8:]
	}
	for i := int32(0); i < h.Ambiguous; i++ {
		rec.Ambiguous = append(rec.Ambiguous, int32(le.Uint32(b)))
		b = b[4:]
	}
	for i := int32(0); i < h.Templates; i++ {
		rec.Templates = append(rec.Templates, int32(le.Uint32(b)))
		b = b[4:]
	}
	rec.Header = append(rec.Header, b...)
	return nil
}

// SkipBody discards the body following h.
func (r *Reader) SkipBody(h Head) error {
	n := h.BodySize()
	if n == 0 {
		return nil
	}
	if _, err := r.br.Discard(int(n)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return short(err)
	}
	return nil
}

// Read reads one whole record. The end record is returned like any other;
// check rec.Ordinal against EndOrdinal.
func (r *Reader) Read(rec *Record) error {
	h, err := r.ReadHead()
	if err != nil {
		return err
	}
	return r.ReadBody(h, rec)
}

// ReadRaw reads one record and appends its full encoding to dst.
func (r *Reader) ReadRaw(dst []byte) (Head, []byte, error) {
	h, err := r.ReadHead()
	if err != nil {
		return h, dst, err
	}
	dst = append(dst, r.head[:]...)
	b, err := r.fill(int(h.BodySize()))
	if err != nil {
		return h, dst, err
	}
	return h, append(dst, b...), nil
}

func (r *Reader) fill(n int) ([]byte, error) {
	if cap(r.tmp) < n {
		r.tmp = make([]byte, n)
	}
	r.tmp = r.tmp[:n]
	if _, err := io.ReadFull(r.br, r.tmp); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, short(err)
	}
	return r.tmp, nil
}

func short(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrShortRecord, err)
	}
	return err
}
