// Package mux restores global read order within one shard when several
// producers emit match records concurrently.
package mux

import (
	"errors"
	"fmt"
)

// ErrSlot reports a send to an unknown or already closed producer slot.
var ErrSlot = errors.New("mux: bad producer slot")

// Item is one read's encoded records, keyed by read ordinal.
type Item struct {
	Ordinal uint32
	Payload []byte
}

// Sink receives items in increasing ordinal order followed by one End call.
type Sink interface {
	Emit(Item) error
	End(last int32) error
}

// Orderer is the single-owner reordering core. Each producer slot is a FIFO;
// an item whose ordinal is the next expected one bypasses buffering, and
// buffered items are released smallest-first whenever no open slot can still
// supply a smaller one.
type Orderer struct {
	sink    Sink
	slots   []cylinder
	closed  []bool
	open    int
	next    uint32
	last    int32
	emitted int
}

// NewOrderer returns an orderer for the given number of producer slots.
func NewOrderer(sink Sink, producers int) *Orderer {
	return &Orderer{
		sink:   sink,
		slots:  make([]cylinder, producers),
		closed: make([]bool, producers),
		open:   producers,
		last:   -1,
	}
}

// Add accepts one item from slot and emits whatever became releasable.
func (o *Orderer) Add(slot int, it Item) error {
	if slot < 0 || slot >= len(o.slots) || o.closed[slot] {
		return fmt.Errorf("%w: %d", ErrSlot, slot)
	}
	if it.Ordinal == o.next && o.slots[slot].empty() {
		if err := o.emit(it); err != nil {
			return err
		}
	} else {
		o.slots[slot].push(it)
	}
	return o.drain(false)
}

// CloseSlot marks slot as finished; it will never supply another item.
func (o *Orderer) CloseSlot(slot int) error {
	if slot < 0 || slot >= len(o.slots) || o.closed[slot] {
		return fmt.Errorf("%w: %d", ErrSlot, slot)
	}
	o.closed[slot] = true
	o.open--
	return o.drain(false)
}

// Finish flushes every buffered item smallest-first and writes the end
// record. Slots still open are treated as closed.
func (o *Orderer) Finish() error {
	if err := o.drain(true); err != nil {
		return err
	}
	return o.sink.End(o.last)
}

// Emitted is the number of items written so far.
func (o *Orderer) Emitted() int { return o.emitted }

func (o *Orderer) drain(final bool) error {
	for {
		min := -1
		blocked := false
		for i := range o.slots {
			c := &o.slots[i]
			if c.empty() {
				if !o.closed[i] && !final {
					blocked = true
				}
				continue
			}
			if min < 0 || c.front().Ordinal < o.slots[min].front().Ordinal {
				min = i
			}
		}
		if min < 0 {
			return nil
		}
		if blocked && o.slots[min].front().Ordinal != o.next {
			return nil
		}
		if err := o.emit(o.slots[min].pop()); err != nil {
			return err
		}
	}
}

func (o *Orderer) emit(it Item) error {
	if err := o.sink.Emit(it); err != nil {
		return err
	}
	o.emitted++
	o.next = it.Ordinal + 1
	if int32(it.Ordinal) > o.last {
		o.last = int32(it.Ordinal)
	}
	return nil
}
