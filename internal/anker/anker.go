// Package anker encodes and decodes the per-shard match stream: one binary
// record per read (or mate) linking it to its candidate templates, in
// increasing ordinal order, closed by an end record.
//
// Layout, all little-endian:
//
//	head:  ordinal u32, seqLen i32, words i32, ambiguous i32, score i32,
//	       templates i32, headerLen i32
//	body:  words × u64 packed sequence, ambiguous × i32 positions,
//	       templates × i32 candidate ids, headerLen header bytes
//
// Candidate ids are 1-based and local to the shard; a negative id is a match
// on the reverse complement.
//
// The end record is a head with ordinal EndOrdinal and seqLen holding the
// last ordinal the shard processed; its other fields are zero and it has no
// body.
package anker

import (
	"encoding/binary"
	"errors"
	"math"

	"shardmap/internal/seq"
)

// EndOrdinal marks the end-of-shard record.
const EndOrdinal uint32 = math.MaxUint32

// HeadSize is the encoded size of a record head.
const HeadSize = 7 * 4

// Upper bounds a head must respect before its body is read.
const (
	MaxSeqLen    = 1 << 26
	MaxTemplates = 1 << 20
	MaxHeaderLen = 1 << 16
)

var (
	// ErrShortRecord reports a stream that ends inside a record.
	ErrShortRecord = errors.New("anker: truncated record")
	// ErrBadHead reports field counts in a head that are negative,
	// inconsistent with seqLen or over the Max limits.
	ErrBadHead = errors.New("anker: malformed record head")
)

// Head is the fixed-size prefix of every record.
type Head struct {
	Ordinal   uint32
	SeqLen    int32
	Words     int32
	Ambiguous int32
	// Score carries the best match score; a negative value flags a
	// reverse-complement hit.
	Score     int32
	Templates int32
	HeaderLen int32
}

// End reports whether h is the end-of-shard record.
func (h Head) End() bool { return h.Ordinal == EndOrdinal }

// Last is the final ordinal recorded in an end record.
func (h Head) Last() int32 { return h.SeqLen }

// BodySize is the number of bytes following the head.
func (h Head) BodySize() int64 {
	if h.End() {
		return 0
	}
	return int64(h.Words)*8 + int64(h.Ambiguous)*4 + int64(h.Templates)*4 + int64(h.HeaderLen)
}

func (h Head) valid() bool {
	if h.End() {
		return true
	}
	if h.SeqLen < 0 || h.Words < 0 || h.Ambiguous < 0 || h.Templates < 0 || h.HeaderLen < 0 {
		return false
	}
	return h.SeqLen <= MaxSeqLen &&
		int(h.Words) <= seq.Words(int(h.SeqLen)) &&
		h.Ambiguous <= h.SeqLen &&
		h.Templates <= MaxTemplates &&
		h.HeaderLen <= MaxHeaderLen
}

// Record is one decoded match event. A paired read is written as two records
// with the same ordinal: the first with no templates, the mate carrying the
// candidates.
type Record struct {
	Ordinal   uint32
	SeqLen    int32
	Words     []uint64
	Ambiguous []int32
	Score     int32
	Templates []int32
	Header    []byte
}

// Head returns the head describing r.
func (r *Record) Head() Head {
	return Head{
		Ordinal:   r.Ordinal,
		SeqLen:    r.SeqLen,
		Words:     int32(len(r.Words)),
		Ambiguous: int32(len(r.Ambiguous)),
		Score:     r.Score,
		Templates: int32(len(r.Templates)),
		HeaderLen: int32(len(r.Header)),
	}
}

func appendHead(dst []byte, h Head) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, h.Ordinal)
	for _, v := range [...]int32{h.SeqLen, h.Words, h.Ambiguous, h.Score, h.Templates, h.HeaderLen} {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(v))
	}
	return dst
}

func decodeHead(b []byte) Head {
	le := binary.LittleEndian
	return Head{
		Ordinal:   le.Uint32(b[0:]),
		SeqLen:    int32(le.Uint32(b[4:])),
		Words:     int32(le.Uint32(b[8:])),
		Ambiguous: int32(le.Uint32(b[12:])),
		Score:     int32(le.Uint32(b[16:])),
		Templates: int32(le.Uint32(b[20:])),
		HeaderLen: int32(le.Uint32(b[24:])),
	}
}

// Append appends the encoding of r to dst.
func Append(dst []byte, r *Record) []byte {
	dst = appendHead(dst, r.Head())
	for _, w := range r.Words {
		dst = binary.LittleEndian.AppendUint64(dst, w)
	}
	for _, a := range r.Ambiguous {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(a))
	}
	for _, t := range r.Templates {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(t))
	}
	return append(dst, r.Header...)
}

// AppendEnd appends an end record naming last as the final ordinal.
func AppendEnd(dst []byte, last int32) []byte {
	return appendHead(dst, Head{Ordinal: EndOrdinal, SeqLen: last})
}

// NewRecord packs an ASCII read into a record.
func NewRecord(ordinal uint32, s []byte, header string, score int32, templates ...int32) Record {
	words, amb := seq.Pack(s)
	return Record{
		Ordinal:   ordinal,
		SeqLen:    int32(len(s)),
		Words:     words,
		Ambiguous: amb,
		Score:     score,
		Templates: templates,
		Header:    []byte(header),
	}
}
