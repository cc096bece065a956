// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// overwritingRingPacket is the SPSC overwriting ring buffer: same array
// layout as boundedRingPacket, but a send on a full buffer advances the
// read index and drops the oldest unread value instead of failing.
//
// Grounded on the teacher's spsc.go ring layout; the overwrite behavior
// itself is described by SPEC_FULL.md §4.5 and has no teacher precedent
// (the teacher's queues are never overwriting), so the CAS-guarded
// displacement loop below is new, using the same atomix/spin idiom as
// every other flavor in this package.
type overwritingRingPacket[T any] struct {
	base
	_    pad
	head atomix.Uint64 // next slot a reader may claim; also advanced by an overwriting writer
	_    pad
	tail atomix.Uint64 // next slot the sole writer will use
	_    pad
	buffer []T
	mask   uint64

	mu                   sync.Mutex
	cond                 *sync.Cond
	receiverSleeping     atomix.Bool
	senderDisconnected   atomix.Bool
	receiverDisconnected atomix.Bool
}

func newOverwritingRingPacket[T any](capacity int) *overwritingRingPacket[T] {
	n := uint64(roundToPow2(capacity))
	p := &overwritingRingPacket[T]{
		base:   newBase(),
		buffer: make([]T, n),
		mask:   n - 1,
	}
	p.cond = sync.NewCond(&p.mu)
	p.selfWeakFn = func() weakRef { return weakSelectableRef(p) }
	return p
}

func (p *overwritingRingPacket[T]) wakeReceiver() {
	if p.receiverSleeping.LoadAcquire() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// send writes v, returning the displaced value and true if the buffer was
// full and the oldest unread value had to be dropped.
func (p *overwritingRingPacket[T]) send(v T) (displaced T, overwrote bool, err error) {
	if p.receiverDisconnected.LoadAcquire() {
		return displaced, false, ErrDisconnected
	}
	tail := p.tail.LoadRelaxed()
	for {
		head := p.head.LoadAcquire()
		if tail-head <= p.mask {
			break
		}
		old := p.buffer[head&p.mask]
		if p.head.CompareAndSwapAcqRel(head, head+1) {
			displaced, overwrote = old, true
			break
		}
		// A real consumer raced the overflow check and already advanced
		// head; recheck from scratch rather than double-drop.
	}
	p.buffer[tail&p.mask] = v
	p.tail.StoreRelease(tail + 1)
	p.wakeReceiver()
	p.notifyReady()
	return displaced, overwrote, nil
}

// SendAsync writes v, overwriting the oldest unread value if the buffer is
// full. Returns the displaced value and whether an overwrite occurred, so
// the caller may inspect or release it.
func (p *overwritingRingPacket[T]) SendAsync(v T) (displaced T, overwrote bool, err error) {
	return p.send(v)
}

// SendSync is identical to SendAsync: an overwriting ring never blocks a
// writer, it only ever fails with Disconnected.
func (p *overwritingRingPacket[T]) SendSync(v T) (displaced T, overwrote bool, err error) {
	return p.send(v)
}

func (p *overwritingRingPacket[T]) tryRecv() (T, error) {
	var zero T
	for {
		head := p.head.LoadAcquire()
		tail := p.tail.LoadAcquire()
		if head >= tail {
			if p.senderDisconnected.LoadAcquire() {
				return zero, ErrDisconnected
			}
			return zero, ErrEmpty
		}
		v := p.buffer[head&p.mask]
		if p.head.CompareAndSwapAcqRel(head, head+1) {
			p.buffer[head&p.mask] = zero
			p.notifyReady()
			return v, nil
		}
		// The writer overwrote this slot concurrently; retry against the
		// now-current head.
	}
}

// RecvAsync dequeues an element, or fails with Empty or Disconnected.
func (p *overwritingRingPacket[T]) RecvAsync() (T, error) { return p.tryRecv() }

// RecvSync dequeues an element, blocking while empty.
func (p *overwritingRingPacket[T]) RecvSync() (T, error) {
	for {
		v, err := p.tryRecv()
		if err == nil || IsDisconnected(err) {
			return v, err
		}
		p.mu.Lock()
		p.receiverSleeping.StoreRelease(true)
		for !p.senderDisconnected.LoadAcquire() && p.tail.LoadAcquire() == p.head.LoadAcquire() {
			p.cond.Wait()
		}
		p.receiverSleeping.StoreRelease(false)
		p.mu.Unlock()
	}
}

// Ready reports whether RecvAsync would not return Empty.
func (p *overwritingRingPacket[T]) Ready() bool {
	return p.tail.LoadAcquire() != p.head.LoadAcquire() || p.senderDisconnected.LoadAcquire()
}

// Cap returns the channel's rounded capacity.
func (p *overwritingRingPacket[T]) Cap() int { return int(p.mask + 1) }

func (p *overwritingRingPacket[T]) disconnectSender() {
	p.senderDisconnected.StoreRelease(true)
	p.wakeReceiver()
	p.notifyReady()
}

func (p *overwritingRingPacket[T]) disconnectReceiver() {
	p.receiverDisconnected.StoreRelease(true)
	p.notifyReady()
	p.closeSelectable()
}

// OverwritingRingProducer is the sole producer endpoint of an SPSC
// overwriting ring channel.
type OverwritingRingProducer[T any] struct {
	p      *overwritingRingPacket[T]
	closed bool
}

// OverwritingRingConsumer is the sole consumer endpoint of an SPSC
// overwriting ring channel.
type OverwritingRingConsumer[T any] struct {
	p      *overwritingRingPacket[T]
	closed bool
}

// NewOverwritingRing creates an SPSC overwriting ring channel of the given
// capacity (rounded up to the next power of two, minimum 1).
func NewOverwritingRing[T any](capacity int) (*OverwritingRingProducer[T], *OverwritingRingConsumer[T]) {
	p := newOverwritingRingPacket[T](capacity)
	return &OverwritingRingProducer[T]{p: p}, &OverwritingRingConsumer[T]{p: p}
}

func (e *OverwritingRingProducer[T]) SendAsync(v T) (T, bool, error) { return e.p.SendAsync(v) }
func (e *OverwritingRingProducer[T]) SendSync(v T) (T, bool, error)  { return e.p.SendSync(v) }
func (e *OverwritingRingProducer[T]) Cap() int                       { return e.p.Cap() }

// Close disconnects the producer side. Safe to call at most once.
func (e *OverwritingRingProducer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.p.disconnectSender()
}

func (e *OverwritingRingConsumer[T]) RecvAsync() (T, error) { return e.p.RecvAsync() }
func (e *OverwritingRingConsumer[T]) RecvSync() (T, error)  { return e.p.RecvSync() }
func (e *OverwritingRingConsumer[T]) Ready() bool           { return e.p.Ready() }
func (e *OverwritingRingConsumer[T]) ID() uint64            { return e.p.ID() }
func (e *OverwritingRingConsumer[T]) Cap() int              { return e.p.Cap() }

// AsSelectable exposes the consumer side's readiness to a [Select].
func (e *OverwritingRingConsumer[T]) AsSelectable() Selectable { return e.p }

// Close disconnects the consumer side. Safe to call at most once.
func (e *OverwritingRingConsumer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.p.disconnectReceiver()
}
