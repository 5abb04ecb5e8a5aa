package mux

import (
	"context"

	"shardmap/internal/anker"
)

type msg struct {
	slot  int
	item  Item
	close bool
}

// Mux runs an Orderer on its own goroutine. Producers call Send and Close
// for their own slot only; the goroutine is the sole owner of the rings.
type Mux struct {
	in   chan msg
	done chan struct{}
	err  error
}

// Start launches the multiplexing goroutine. buffer sizes the inbound
// channel shared by all producers.
func Start(sink Sink, producers, buffer int) *Mux {
	m := &Mux{
		in:   make(chan msg, buffer),
		done: make(chan struct{}),
	}
	o := NewOrderer(sink, producers)
	go m.loop(o, producers)
	return m
}

func (m *Mux) loop(o *Orderer, open int) {
	defer close(m.done)
	for open > 0 {
		mm := <-m.in
		if m.err != nil {
			if mm.close {
				open--
			}
			continue
		}
		if mm.close {
			open--
			m.err = o.CloseSlot(mm.slot)
			continue
		}
		m.err = o.Add(mm.slot, mm.item)
	}
	if m.err == nil {
		m.err = o.Finish()
	}
}

// Send hands one item from slot to the multiplexer.
func (m *Mux) Send(ctx context.Context, slot int, it Item) error {
	select {
	case m.in <- msg{slot: slot, item: it}:
		return nil
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close reports that slot will send nothing more. Every slot must be
// closed exactly once for Wait to return.
func (m *Mux) Close(slot int) {
	select {
	case m.in <- msg{slot: slot, close: true}:
	case <-m.done:
	}
}

// Wait blocks until every slot is closed and the end record is written.
func (m *Mux) Wait() error {
	<-m.done
	return m.err
}

// StreamSink writes items as raw anker records.
type StreamSink struct {
	W *anker.Writer
}

// Emit writes the item's encoded records.
func (s StreamSink) Emit(it Item) error { return s.W.WriteRaw(it.Payload) }

// End writes the end record and flushes.
func (s StreamSink) End(last int32) error { return s.W.WriteEnd(last) }
