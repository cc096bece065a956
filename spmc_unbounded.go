// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx

import (
	"sync"
	"sync/atomic"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// spmcUnboundedPacket is the SPMC unbounded channel: identical to
// unboundedListPacket from the writer's side, but readers contend for the
// single read end by swapping it to nil and looping until they observe it
// non-nil again.
//
// Grounded on original_source/spmc/unbounded/imp.rs, which documents this
// as deliberately coarse: scaling across many consumers is not a design
// goal for this flavor.
type spmcUnboundedPacket[T any] struct {
	base
	writeEnd atomic.Pointer[unboundedNode[T]]
	readEnd  atomic.Pointer[unboundedNode[T]]

	mu                   sync.Mutex
	cond                 *sync.Cond
	sleepingReceivers    atomix.Int64
	numConsumers         atomix.Int64
	senderDisconnected   atomix.Bool
	receiverDisconnected atomix.Bool
}

func newSPMCUnboundedPacket[T any]() *spmcUnboundedPacket[T] {
	sentinel := &unboundedNode[T]{}
	p := &spmcUnboundedPacket[T]{base: newBase()}
	p.writeEnd.Store(sentinel)
	p.readEnd.Store(sentinel)
	p.numConsumers.StoreRelaxed(1)
	p.cond = sync.NewCond(&p.mu)
	p.selfWeakFn = func() weakRef { return weakSelectableRef(p) }
	return p
}

func (p *spmcUnboundedPacket[T]) wakeReceivers() {
	if p.sleepingReceivers.LoadRelaxed() > 0 {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

func (p *spmcUnboundedPacket[T]) send(v T) error {
	if p.receiverDisconnected.LoadAcquire() {
		return ErrDisconnected
	}
	tail := p.writeEnd.Load()
	tail.val = v
	next := &unboundedNode[T]{}
	tail.next.Store(next)
	p.writeEnd.Store(next)
	p.wakeReceivers()
	p.notifyReady()
	return nil
}

// SendAsync appends v; the single producer never sees Full.
func (p *spmcUnboundedPacket[T]) SendAsync(v T) error { return p.send(v) }

// SendSync is identical to SendAsync.
func (p *spmcUnboundedPacket[T]) SendSync(v T) error { return p.send(v) }

// tryRecv claims the read end via swap-to-nil, inspects it, and restores or
// advances it before returning.
func (p *spmcUnboundedPacket[T]) tryRecv() (T, error) {
	var zero T
	sw := spin.Wait{}
	for {
		cur := p.readEnd.Swap(nil)
		if cur == nil {
			sw.Once()
			continue
		}
		next := cur.next.Load()
		if next == nil {
			p.readEnd.Store(cur)
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
}

// RecvAsync dequeues the oldest value, or fails with Empty or Disconnected.
func (p *spmcUnboundedPacket[T]) RecvAsync() (T, error) { return p.tryRecv() }

// RecvSync dequeues the oldest value, blocking while empty.
func (p *spmcUnboundedPacket[T]) RecvSync() (T, error) {
	for {
		v, err := p.tryRecv()
		if err == nil || IsDisconnected(err) {
			return v, err
		}
		p.mu.Lock()
		p.sleepingReceivers.AddAcqRel(1)
		p.cond.Wait()
		p.sleepingReceivers.AddAcqRel(-1)
		p.mu.Unlock()
	}
}

// Ready reports whether RecvAsync would not return Empty.
func (p *spmcUnboundedPacket[T]) Ready() bool {
	sw := spin.Wait{}
	for {
		cur := p.readEnd.Swap(nil)
		if cur == nil {
			sw.Once()
			continue
		}
		ready := cur.next.Load() != nil
		p.readEnd.Store(cur)
		return ready || p.senderDisconnected.LoadAcquire()
	}
}

func (p *spmcUnboundedPacket[T]) disconnectSender() {
	p.senderDisconnected.StoreRelease(true)
	p.wakeReceivers()
	p.notifyReady()
}

// disconnectReceiver runs once the last live consumer closes.
func (p *spmcUnboundedPacket[T]) disconnectReceiver() {
	p.receiverDisconnected.StoreRelease(true)
	cur := p.readEnd.Swap(nil)
	for cur != nil {
		next := cur.next.Load()
		if next == nil {
			p.readEnd.Store(cur)
			break
		}
		var zero T
		cur.val = zero
		cur = next
	}
	p.notifyReady()
	p.closeSelectable()
}

// SPMCUnboundedProducer is the sole producer endpoint of an SPMC unbounded
// channel.
type SPMCUnboundedProducer[T any] struct {
	p      *spmcUnboundedPacket[T]
	closed bool
}

// SPMCUnboundedConsumer is one of N consumer endpoints of an SPMC
// unbounded channel, created via NewSPMCUnbounded or Clone.
type SPMCUnboundedConsumer[T any] struct {
	p      *spmcUnboundedPacket[T]
	closed bool
}

// NewSPMCUnbounded creates an SPMC unbounded channel and returns the
// producer and the first consumer handle.
func NewSPMCUnbounded[T any]() (*SPMCUnboundedProducer[T], *SPMCUnboundedConsumer[T]) {
	p := newSPMCUnboundedPacket[T]()
	return &SPMCUnboundedProducer[T]{p: p}, &SPMCUnboundedConsumer[T]{p: p}
}

func (e *SPMCUnboundedProducer[T]) SendAsync(v T) error { return e.p.SendAsync(v) }
func (e *SPMCUnboundedProducer[T]) SendSync(v T) error  { return e.p.SendSync(v) }

// Close disconnects the producer side. Safe to call at most once.
func (e *SPMCUnboundedProducer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.p.disconnectSender()
}

// Clone creates another consumer endpoint sharing this channel.
func (e *SPMCUnboundedConsumer[T]) Clone() *SPMCUnboundedConsumer[T] {
	e.p.numConsumers.AddAcqRel(1)
	return &SPMCUnboundedConsumer[T]{p: e.p}
}

func (e *SPMCUnboundedConsumer[T]) RecvAsync() (T, error) { return e.p.RecvAsync() }
func (e *SPMCUnboundedConsumer[T]) RecvSync() (T, error)  { return e.p.RecvSync() }
func (e *SPMCUnboundedConsumer[T]) Ready() bool           { return e.p.Ready() }
func (e *SPMCUnboundedConsumer[T]) ID() uint64            { return e.p.ID() }

// AsSelectable exposes the consumer side's readiness to a [Select].
func (e *SPMCUnboundedConsumer[T]) AsSelectable() Selectable { return e.p }

// Close disconnects this consumer endpoint. When the last live consumer
// closes, the channel latches receiver-disconnection. Safe to call at most
// once per endpoint.
func (e *SPMCUnboundedConsumer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	if e.p.numConsumers.AddAcqRel(-1) == 0 {
		e.p.disconnectReceiver()
	}
}
