// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// boundedRingPacket is the SPSC bounded ring channel: a fixed-capacity
// Lamport-style ring buffer with cached head/tail indices.
//
// Grounded on the teacher's spsc.go (cached-index Lamport ring), extended
// with the blocking Sync operations, disconnect latches, and Selectable
// support this domain requires that the teacher's non-blocking-only queue
// did not.
type boundedRingPacket[T any] struct {
	base
	_          pad
	head       atomix.Uint64 // consumer's publish point
	_          pad
	cachedTail uint64 // producer's cached view of tail
	_          pad
	tail       atomix.Uint64 // producer's publish point
	_          pad
	cachedHead uint64 // consumer's cached view of head
	_          pad
	buffer     []T
	mask       uint64

	mu                   sync.Mutex
	cond                 *sync.Cond
	senderSleeping       atomix.Bool
	receiverSleeping     atomix.Bool
	senderDisconnected   atomix.Bool
	receiverDisconnected atomix.Bool
}

func newBoundedRingPacket[T any](capacity int) *boundedRingPacket[T] {
	n := uint64(roundToPow2(capacity))
	p := &boundedRingPacket[T]{
		base:   newBase(),
		buffer: make([]T, n),
		mask:   n - 1,
	}
	p.cond = sync.NewCond(&p.mu)
	p.selfWeakFn = func() weakRef { return weakSelectableRef(p) }
	return p
}

func (p *boundedRingPacket[T]) wakeReceiver() {
	if p.receiverSleeping.LoadAcquire() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

func (p *boundedRingPacket[T]) wakeSender() {
	if p.senderSleeping.LoadAcquire() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

func (p *boundedRingPacket[T]) trySend(v T) error {
	if p.receiverDisconnected.LoadAcquire() {
		return ErrDisconnected
	}
	tail := p.tail.LoadRelaxed()
	if tail-p.cachedHead > p.mask {
		p.cachedHead = p.head.LoadAcquire()
		if tail-p.cachedHead > p.mask {
			return ErrFull
		}
	}
	p.buffer[tail&p.mask] = v
	p.tail.StoreRelease(tail + 1)
	p.wakeReceiver()
	p.notifyReady()
	return nil
}

// SendAsync enqueues v, or fails immediately with Full or Disconnected.
func (p *boundedRingPacket[T]) SendAsync(v T) error { return p.trySend(v) }

// SendSync enqueues v, blocking while full.
func (p *boundedRingPacket[T]) SendSync(v T) error {
	for {
		if err := p.trySend(v); err == nil || IsDisconnected(err) {
			return err
		}
		p.mu.Lock()
		p.senderSleeping.StoreRelease(true)
		for !p.receiverDisconnected.LoadAcquire() && p.tail.LoadRelaxed()-p.head.LoadAcquire() > p.mask {
			p.cond.Wait()
		}
		p.senderSleeping.StoreRelease(false)
		p.mu.Unlock()
	}
}

func (p *boundedRingPacket[T]) tryRecv() (T, error) {
	var zero T
	head := p.head.LoadRelaxed()
	if head >= p.cachedTail {
		p.cachedTail = p.tail.LoadAcquire()
		if head >= p.cachedTail {
			if p.senderDisconnected.LoadAcquire() {
				return zero, ErrDisconnected
			}
			return zero, ErrEmpty
		}
	}
	v := p.buffer[head&p.mask]
	p.buffer[head&p.mask] = zero
	p.head.StoreRelease(head + 1)
	p.wakeSender()
	p.notifyReady()
	return v, nil
}

// RecvAsync dequeues an element, or fails with Empty or Disconnected.
func (p *boundedRingPacket[T]) RecvAsync() (T, error) { return p.tryRecv() }

// RecvSync dequeues an element, blocking while empty.
func (p *boundedRingPacket[T]) RecvSync() (T, error) {
	for {
		v, err := p.tryRecv()
		if err == nil || IsDisconnected(err) {
			return v, err
		}
		p.mu.Lock()
		p.receiverSleeping.StoreRelease(true)
		for !p.senderDisconnected.LoadAcquire() && p.tail.LoadAcquire() == p.head.LoadRelaxed() {
			p.cond.Wait()
		}
		p.receiverSleeping.StoreRelease(false)
		p.mu.Unlock()
	}
}

// Ready reports whether RecvAsync would not return Empty.
func (p *boundedRingPacket[T]) Ready() bool {
	return p.tail.LoadAcquire() != p.head.LoadAcquire() || p.senderDisconnected.LoadAcquire()
}

// Cap returns the channel's rounded capacity.
func (p *boundedRingPacket[T]) Cap() int { return int(p.mask + 1) }

func (p *boundedRingPacket[T]) disconnectSender() {
	p.senderDisconnected.StoreRelease(true)
	p.wakeReceiver()
	p.notifyReady()
}

func (p *boundedRingPacket[T]) disconnectReceiver() {
	p.receiverDisconnected.StoreRelease(true)
	p.wakeSender()
	p.notifyReady()
	p.closeSelectable()
}

// BoundedRingProducer is the sole producer endpoint of an SPSC bounded ring
// channel.
type BoundedRingProducer[T any] struct {
	p      *boundedRingPacket[T]
	closed bool
}

// BoundedRingConsumer is the sole consumer endpoint of an SPSC bounded ring
// channel.
type BoundedRingConsumer[T any] struct {
	p      *boundedRingPacket[T]
	closed bool
}

// NewBoundedRing creates an SPSC bounded ring channel of the given capacity
// (rounded up to the next power of two, minimum 1) and returns its two
// endpoints.
func NewBoundedRing[T any](capacity int) (*BoundedRingProducer[T], *BoundedRingConsumer[T]) {
	p := newBoundedRingPacket[T](capacity)
	return &BoundedRingProducer[T]{p: p}, &BoundedRingConsumer[T]{p: p}
}

func (e *BoundedRingProducer[T]) SendAsync(v T) error { return e.p.SendAsync(v) }
func (e *BoundedRingProducer[T]) SendSync(v T) error  { return e.p.SendSync(v) }
func (e *BoundedRingProducer[T]) Cap() int            { return e.p.Cap() }

// Close disconnects the producer side. Safe to call at most once.
func (e *BoundedRingProducer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.p.disconnectSender()
}

func (e *BoundedRingConsumer[T]) RecvAsync() (T, error) { return e.p.RecvAsync() }
func (e *BoundedRingConsumer[T]) RecvSync() (T, error)  { return e.p.RecvSync() }
func (e *BoundedRingConsumer[T]) Ready() bool           { return e.p.Ready() }
func (e *BoundedRingConsumer[T]) ID() uint64            { return e.p.ID() }
func (e *BoundedRingConsumer[T]) Cap() int              { return e.p.Cap() }

// AsSelectable exposes the consumer side's readiness to a [Select].
func (e *BoundedRingConsumer[T]) AsSelectable() Selectable { return e.p }

// Close disconnects the consumer side. Safe to call at most once.
func (e *BoundedRingConsumer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.p.disconnectReceiver()
}
