// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx

import (
	"sync"
	"sync/atomic"

	"code.hybscloud.com/atomix"
)

// unboundedNode is one link of the singly linked list shared by the
// unbounded flavors (SPSC, SPMC, MPSC). A trailing empty node — the
// sentinel — is always present so emptiness reduces to "next == nil",
// matching original_source/spsc semantics described in SPEC_FULL.md §4.4.
type unboundedNode[T any] struct {
	next atomic.Pointer[unboundedNode[T]]
	val  T
}

// unboundedListPacket is the SPSC unbounded channel: a singly linked list
// where the sole producer owns writeEnd and the sole consumer owns
// readEnd.
//
// Grounded on original_source/mpsc/unbounded/imp.rs and
// original_source/spmc/unbounded/imp.rs's shared node shape, specialized
// to the single-producer/single-consumer case described in SPEC_FULL.md
// §4.4 (no CAS or swap is needed on either end since there is exactly one
// of each).
type unboundedListPacket[T any] struct {
	base
	writeEnd atomic.Pointer[unboundedNode[T]]
	readEnd  atomic.Pointer[unboundedNode[T]]

	mu                   sync.Mutex
	cond                 *sync.Cond
	receiverSleeping     atomix.Bool
	senderDisconnected   atomix.Bool
	receiverDisconnected atomix.Bool
}

func newUnboundedListPacket[T any]() *unboundedListPacket[T] {
	sentinel := &unboundedNode[T]{}
	p := &unboundedListPacket[T]{base: newBase()}
	p.writeEnd.Store(sentinel)
	p.readEnd.Store(sentinel)
	p.cond = sync.NewCond(&p.mu)
	p.selfWeakFn = func() weakRef { return weakSelectableRef(p) }
	return p
}

func (p *unboundedListPacket[T]) wakeReceiver() {
	if p.receiverSleeping.LoadAcquire() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

func (p *unboundedListPacket[T]) send(v T) error {
	if p.receiverDisconnected.LoadAcquire() {
		return ErrDisconnected
	}
	tail := p.writeEnd.Load()
	tail.val = v
	next := &unboundedNode[T]{}
	tail.next.Store(next)
	p.writeEnd.Store(next)
	p.wakeReceiver()
	p.notifyReady()
	return nil
}

// SendAsync appends v. An unbounded channel is never Full, so the only
// failure is Disconnected.
func (p *unboundedListPacket[T]) SendAsync(v T) error { return p.send(v) }

// SendSync is identical to SendAsync: there is no "full" state to block on.
func (p *unboundedListPacket[T]) SendSync(v T) error { return p.send(v) }

func (p *unboundedListPacket[T]) tryRecv() (T, error) {
	var zero T
	cur := p.readEnd.Load()
	next := cur.next.Load()
	if next == nil {
		if p.senderDisconnected.LoadAcquire() {
			return zero, ErrDisconnected
		}
		return zero, ErrEmpty
	}
	v := cur.val
	cur.val = zero
	p.readEnd.Store(next)
	p.notifyReady()
	return v, nil
}

// RecvAsync dequeues the oldest value, or fails with Empty or Disconnected.
func (p *unboundedListPacket[T]) RecvAsync() (T, error) { return p.tryRecv() }

// RecvSync dequeues the oldest value, blocking while empty.
func (p *unboundedListPacket[T]) RecvSync() (T, error) {
	for {
		v, err := p.tryRecv()
		if err == nil || IsDisconnected(err) {
			return v, err
		}
		p.mu.Lock()
		p.receiverSleeping.StoreRelease(true)
		for !p.senderDisconnected.LoadAcquire() && p.readEnd.Load().next.Load() == nil {
			p.cond.Wait()
		}
		p.receiverSleeping.StoreRelease(false)
		p.mu.Unlock()
	}
}

// Ready reports whether RecvAsync would not return Empty.
func (p *unboundedListPacket[T]) Ready() bool {
	return p.readEnd.Load().next.Load() != nil || p.senderDisconnected.LoadAcquire()
}

func (p *unboundedListPacket[T]) disconnectSender() {
	p.senderDisconnected.StoreRelease(true)
	p.wakeReceiver()
	p.notifyReady()
}

// disconnectReceiver latches receiver disconnection and drains the
// remaining resident values so their references are released instead of
// kept alive by the list until the whole packet is collected.
func (p *unboundedListPacket[T]) disconnectReceiver() {
	p.receiverDisconnected.StoreRelease(true)
	cur := p.readEnd.Load()
	for {
		next := cur.next.Load()
		if next == nil {
			break
		}
		var zero T
		cur.val = zero
		cur = next
	}
	p.readEnd.Store(cur)
	p.notifyReady()
	p.closeSelectable()
}

// UnboundedListProducer is the sole producer endpoint of an SPSC unbounded
// channel.
type UnboundedListProducer[T any] struct {
	p      *unboundedListPacket[T]
	closed bool
}

// UnboundedListConsumer is the sole consumer endpoint of an SPSC unbounded
// channel.
type UnboundedListConsumer[T any] struct {
	p      *unboundedListPacket[T]
	closed bool
}

// NewUnboundedList creates an SPSC unbounded channel and returns its two
// endpoints.
func NewUnboundedList[T any]() (*UnboundedListProducer[T], *UnboundedListConsumer[T]) {
	p := newUnboundedListPacket[T]()
	return &UnboundedListProducer[T]{p: p}, &UnboundedListConsumer[T]{p: p}
}

func (e *UnboundedListProducer[T]) SendAsync(v T) error { return e.p.SendAsync(v) }
func (e *UnboundedListProducer[T]) SendSync(v T) error  { return e.p.SendSync(v) }

// Close disconnects the producer side. Safe to call at most once.
func (e *UnboundedListProducer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.p.disconnectSender()
}

func (e *UnboundedListConsumer[T]) RecvAsync() (T, error) { return e.p.RecvAsync() }
func (e *UnboundedListConsumer[T]) RecvSync() (T, error)  { return e.p.RecvSync() }
func (e *UnboundedListConsumer[T]) Ready() bool           { return e.p.Ready() }
func (e *UnboundedListConsumer[T]) ID() uint64            { return e.p.ID() }

// AsSelectable exposes the consumer side's readiness to a [Select].
func (e *UnboundedListConsumer[T]) AsSelectable() Selectable { return e.p }

// Close disconnects the consumer side. Safe to call at most once.
func (e *UnboundedListConsumer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.p.disconnectReceiver()
}
