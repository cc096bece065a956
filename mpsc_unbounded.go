// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx

import (
	"sync"
	"sync/atomic"

	"code.hybscloud.com/atomix"
)

// mpscUnboundedPacket is the MPSC unbounded channel: the same linked list
// as unboundedListPacket, but writeEnd is now contended by any number of
// producers, who serialize against each other with a single Swap instead
// of a CAS loop — grounded on original_source/mpsc/unbounded/imp.rs, whose
// send() does exactly one AtomicPtr::swap and nothing else to claim its
// slot.
type mpscUnboundedPacket[T any] struct {
	base
	writeEnd atomic.Pointer[unboundedNode[T]]
	readEnd  atomic.Pointer[unboundedNode[T]]

	mu                   sync.Mutex
	cond                 *sync.Cond
	receiverSleeping     atomix.Bool
	numSenders           atomix.Int64
	receiverDisconnected atomix.Bool
}

func newMPSCUnboundedPacket[T any]() *mpscUnboundedPacket[T] {
	sentinel := &unboundedNode[T]{}
	p := &mpscUnboundedPacket[T]{base: newBase()}
	p.writeEnd.Store(sentinel)
	p.readEnd.Store(sentinel)
	p.numSenders.StoreRelaxed(1)
	p.cond = sync.NewCond(&p.mu)
	p.selfWeakFn = func() weakRef { return weakSelectableRef(p) }
	return p
}

func (p *mpscUnboundedPacket[T]) wakeReceiver() {
	if p.receiverSleeping.LoadAcquire() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// send publishes v. Swapping writeEnd is the only point of contention
// between producers: whichever goroutine's swap lands last owns the
// previous tail and is the only one allowed to populate and link it, so two
// producers can never race on the same node.
func (p *mpscUnboundedPacket[T]) send(v T) error {
	if p.numSenders.LoadRelaxed() == 0 {
		panic("chanx: SendAsync/SendSync called after all producer handles were closed")
	}
	if p.receiverDisconnected.LoadAcquire() {
		return ErrDisconnected
	}
	next := &unboundedNode[T]{}
	tail := p.writeEnd.Swap(next)
	tail.val = v
	tail.next.Store(next)
	p.wakeReceiver()
	p.notifyReady()
	return nil
}

// SendAsync appends v; an unbounded channel is never Full, so the only
// failure is Disconnected.
func (p *mpscUnboundedPacket[T]) SendAsync(v T) error { return p.send(v) }

// SendSync is identical to SendAsync.
func (p *mpscUnboundedPacket[T]) SendSync(v T) error { return p.send(v) }

func (p *mpscUnboundedPacket[T]) tryRecv() (T, error) {
	var zero T
	cur := p.readEnd.Load()
	next := cur.next.Load()
	if next == nil {
		if p.numSenders.LoadRelaxed() == 0 {
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
func (p *mpscUnboundedPacket[T]) RecvAsync() (T, error) { return p.tryRecv() }

// RecvSync dequeues the oldest value, blocking while empty.
func (p *mpscUnboundedPacket[T]) RecvSync() (T, error) {
	for {
		v, err := p.tryRecv()
		if err == nil || IsDisconnected(err) {
			return v, err
		}
		p.mu.Lock()
		p.receiverSleeping.StoreRelease(true)
		for p.numSenders.LoadRelaxed() != 0 && p.readEnd.Load().next.Load() == nil {
			p.cond.Wait()
		}
		p.receiverSleeping.StoreRelease(false)
		p.mu.Unlock()
	}
}

// Ready reports whether RecvAsync would not return Empty.
func (p *mpscUnboundedPacket[T]) Ready() bool {
	return p.readEnd.Load().next.Load() != nil || p.numSenders.LoadRelaxed() == 0
}

// disconnectSender runs once the last live producer handle closes.
func (p *mpscUnboundedPacket[T]) disconnectSender() {
	p.wakeReceiver()
	p.notifyReady()
}

// disconnectReceiver latches receiver disconnection and drains the
// remaining resident values so their references are released.
func (p *mpscUnboundedPacket[T]) disconnectReceiver() {
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

// MPSCUnboundedProducer is one of N producer endpoints of an MPSC
// unbounded channel, created via NewMPSCUnbounded or Clone.
type MPSCUnboundedProducer[T any] struct {
	p      *mpscUnboundedPacket[T]
	closed bool
}

// MPSCUnboundedConsumer is the sole consumer endpoint of an MPSC unbounded
// channel.
type MPSCUnboundedConsumer[T any] struct {
	p      *mpscUnboundedPacket[T]
	closed bool
}

// NewMPSCUnbounded creates an MPSC unbounded channel and returns the first
// producer handle and the consumer.
func NewMPSCUnbounded[T any]() (*MPSCUnboundedProducer[T], *MPSCUnboundedConsumer[T]) {
	p := newMPSCUnboundedPacket[T]()
	return &MPSCUnboundedProducer[T]{p: p}, &MPSCUnboundedConsumer[T]{p: p}
}

// Clone creates another producer endpoint sharing this channel.
func (e *MPSCUnboundedProducer[T]) Clone() *MPSCUnboundedProducer[T] {
	e.p.numSenders.AddAcqRel(1)
	return &MPSCUnboundedProducer[T]{p: e.p}
}

func (e *MPSCUnboundedProducer[T]) SendAsync(v T) error { return e.p.SendAsync(v) }
func (e *MPSCUnboundedProducer[T]) SendSync(v T) error  { return e.p.SendSync(v) }

// Close disconnects this producer endpoint. When the last live producer
// closes, the channel latches sender-disconnection and wakes the receiver.
// Safe to call at most once per endpoint.
func (e *MPSCUnboundedProducer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	if e.p.numSenders.AddAcqRel(-1) == 0 {
		e.p.disconnectSender()
	}
}

func (e *MPSCUnboundedConsumer[T]) RecvAsync() (T, error) { return e.p.RecvAsync() }
func (e *MPSCUnboundedConsumer[T]) RecvSync() (T, error)  { return e.p.RecvSync() }
func (e *MPSCUnboundedConsumer[T]) Ready() bool           { return e.p.Ready() }
func (e *MPSCUnboundedConsumer[T]) ID() uint64            { return e.p.ID() }

// AsSelectable exposes the consumer side's readiness to a [Select].
func (e *MPSCUnboundedConsumer[T]) AsSelectable() Selectable { return e.p }

// Close disconnects the consumer side. Safe to call at most once.
func (e *MPSCUnboundedConsumer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.p.disconnectReceiver()
}
