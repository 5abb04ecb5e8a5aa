package mux

import (
	"context"
	"errors"
	"fmt"
	"io"

	"shardmap/internal/anker"
)

// ErrOrder reports a producer whose ordinals go backwards.
var ErrOrder = errors.New("mux: producer ordinals not increasing")

// Produce reads one producer's anker records from r and feeds them to slot.
// Consecutive records sharing an ordinal (a paired-end primary and its
// mate) travel as one item. An end record or a clean EOF finishes the
// producer; the slot is closed on every return path.
func Produce(ctx context.Context, m *Mux, slot int, r io.Reader) (int, error) {
	defer m.Close(slot)
	rd := anker.NewReader(r)

	var (
		cur  Item
		have bool
		n    int
	)
	flush := func() error {
		if !have {
			return nil
		}
		have = false
		n++
		return m.Send(ctx, slot, cur)
	}

	for {
		h, raw, err := rd.ReadRaw(nil)
		if errors.Is(err, io.EOF) || (err == nil && h.End()) {
			return n, flush()
		}
		if err != nil {
			return n, fmt.Errorf("producer %d: %w", slot, err)
		}
		if have && h.Ordinal == cur.Ordinal {
			cur.Payload = append(cur.Payload, raw...)
			continue
		}
		if have && h.Ordinal < cur.Ordinal {
			return n, fmt.Errorf("%w: slot %d read %d after %d", ErrOrder, slot, h.Ordinal, cur.Ordinal)
		}
		if err := flush(); err != nil {
			return n, err
		}
		cur = Item{Ordinal: h.Ordinal, Payload: raw}
		have = true
	}
}
