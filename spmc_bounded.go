// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// spmcBoundedNode is one ring slot. pos is a sequence counter, not a
// boolean: a writer claims slot i once pos==i, and a reader claims it once
// pos==i+1, so the same array index can be safely reused by writers and
// readers that are temporarily out of phase.
//
// Grounded on original_source/spmc/bounded_fast/imp.rs's Node, cross-checked
// against the teacher's mpmc_seq.go and
// _examples/ccnlui-lockfree/mpmc/mpmc.go, which use the identical
// "ticket" idiom for bounded multi-party queues.
type spmcBoundedNode[T any] struct {
	val T
	pos atomix.Uint64
	_   padShort
}

// spmcBoundedPacket is the SPMC bounded channel: a single producer owns
// nextWrite outright (no atomic needed there), while the shared nextRead
// counter is CAS-advanced by however many consumers are contending for the
// next unread slot.
type spmcBoundedPacket[T any] struct {
	base
	buf       []spmcBoundedNode[T]
	capMask   uint64
	nextWrite uint64
	_         pad
	nextRead  atomix.Uint64
	_         pad

	mu                   sync.Mutex
	sendCond             *sync.Cond
	recvCond             *sync.Cond
	senderSleeping       atomix.Bool
	sleepingReceivers    atomix.Int64
	senderDisconnected   atomix.Bool
	numReceivers         atomix.Int64
}

func newSPMCBoundedPacket[T any](capacity int) *spmcBoundedPacket[T] {
	// At least two slots: with one, a slot's "written at pos" sequence
	// (pos+1) would equal its "free for pos+1" sequence.
	n := uint64(roundToPow2(max(capacity, 2)))
	p := &spmcBoundedPacket[T]{
		base:    newBase(),
		buf:     make([]spmcBoundedNode[T], n),
		capMask: n - 1,
	}
	for i := range p.buf {
		p.buf[i].pos.StoreRelaxed(uint64(i))
	}
	p.numReceivers.StoreRelaxed(1)
	p.sendCond = sync.NewCond(&p.mu)
	p.recvCond = sync.NewCond(&p.mu)
	p.selfWeakFn = func() weakRef { return weakSelectableRef(p) }
	return p
}

func (p *spmcBoundedPacket[T]) node(pos uint64) *spmcBoundedNode[T] {
	return &p.buf[pos&p.capMask]
}

// getWritePos returns the next slot to write, or false if the ring is full
// from the sole producer's point of view.
func (p *spmcBoundedPacket[T]) getWritePos() (uint64, bool) {
	next := p.nextWrite
	node := p.node(next)
	diff := int64(node.pos.LoadAcquire()) - int64(next)
	if diff < 0 {
		return 0, false
	}
	p.nextWrite = next + 1
	return next, true
}

func (p *spmcBoundedPacket[T]) wakeReceivers() {
	if p.sleepingReceivers.LoadRelaxed() > 0 {
		p.mu.Lock()
		p.recvCond.Broadcast()
		p.mu.Unlock()
	}
}

func (p *spmcBoundedPacket[T]) wakeSender() {
	if p.senderSleeping.LoadAcquire() {
		p.mu.Lock()
		p.sendCond.Broadcast()
		p.mu.Unlock()
	}
}

func (p *spmcBoundedPacket[T]) trySend(v T) error {
	if p.numReceivers.LoadRelaxed() == 0 {
		return ErrDisconnected
	}
	pos, ok := p.getWritePos()
	if !ok {
		if p.numReceivers.LoadRelaxed() == 0 {
			return ErrDisconnected
		}
		return ErrFull
	}
	node := p.node(pos)
	node.val = v
	node.pos.StoreRelease(pos + 1)
	p.wakeReceivers()
	p.notifyReady()
	return nil
}

// SendAsync enqueues v, or fails immediately with Full or Disconnected.
func (p *spmcBoundedPacket[T]) SendAsync(v T) error { return p.trySend(v) }

// SendSync enqueues v, blocking while full.
func (p *spmcBoundedPacket[T]) SendSync(v T) error {
	for {
		if err := p.trySend(v); err == nil || IsDisconnected(err) {
			return err
		}
		p.mu.Lock()
		p.senderSleeping.StoreRelease(true)
		p.sendCond.Wait()
		p.senderSleeping.StoreRelease(false)
		p.mu.Unlock()
	}
}

// getReadPos CAS-advances the shared nextRead counter, contending against
// any other consumer that observed the same ready slot.
func (p *spmcBoundedPacket[T]) getReadPos() (uint64, bool) {
	next := p.nextRead.LoadAcquire()
	for {
		node := p.node(next)
		diff := int64(node.pos.LoadAcquire()) - 1 - int64(next)
		if diff < 0 {
			return 0, false
		}
		if diff > 0 {
			next = p.nextRead.LoadAcquire()
			continue
		}
		if p.nextRead.CompareAndSwapAcqRel(next, next+1) {
			return next, true
		}
		next = p.nextRead.LoadAcquire()
	}
}

func (p *spmcBoundedPacket[T]) tryRecv() (T, error) {
	var zero T
	pos, ok := p.getReadPos()
	if !ok {
		if p.senderDisconnected.LoadAcquire() {
			return zero, ErrDisconnected
		}
		return zero, ErrEmpty
	}
	node := p.node(pos)
	v := node.val
	node.val = zero
	node.pos.StoreRelease(pos + p.capMask + 1)
	p.wakeSender()
	p.notifyReady()
	return v, nil
}

// RecvAsync dequeues an element, or fails with Empty or Disconnected.
func (p *spmcBoundedPacket[T]) RecvAsync() (T, error) { return p.tryRecv() }

// RecvSync dequeues an element, blocking while empty.
func (p *spmcBoundedPacket[T]) RecvSync() (T, error) {
	for {
		v, err := p.tryRecv()
		if err == nil || IsDisconnected(err) {
			return v, err
		}
		p.mu.Lock()
		p.sleepingReceivers.AddAcqRel(1)
		p.recvCond.Wait()
		p.sleepingReceivers.AddAcqRel(-1)
		p.mu.Unlock()
	}
}

// Ready reports whether RecvAsync would not return Empty.
func (p *spmcBoundedPacket[T]) Ready() bool {
	if p.senderDisconnected.LoadAcquire() {
		return true
	}
	next := p.nextRead.LoadAcquire()
	node := p.node(next)
	return int64(node.pos.LoadAcquire())-1-int64(next) >= 0
}

// Cap returns the channel's rounded capacity.
func (p *spmcBoundedPacket[T]) Cap() int { return int(p.capMask + 1) }

func (p *spmcBoundedPacket[T]) disconnectSender() {
	p.senderDisconnected.StoreRelease(true)
	p.wakeReceivers()
	p.notifyReady()
}

// disconnectReceiver runs once the last live consumer closes.
func (p *spmcBoundedPacket[T]) disconnectReceiver() {
	p.wakeSender()
	p.notifyReady()
	p.closeSelectable()
}

// SPMCBoundedProducer is the sole producer endpoint of an SPMC bounded
// channel.
type SPMCBoundedProducer[T any] struct {
	p      *spmcBoundedPacket[T]
	closed bool
}

// SPMCBoundedConsumer is one of N consumer endpoints of an SPMC bounded
// channel, created via NewSPMCBounded or Clone.
type SPMCBoundedConsumer[T any] struct {
	p      *spmcBoundedPacket[T]
	closed bool
}

// NewSPMCBounded creates an SPMC bounded channel of the given capacity
// (rounded up to the next power of two, minimum 2) and returns the producer
// and the first consumer handle.
func NewSPMCBounded[T any](capacity int) (*SPMCBoundedProducer[T], *SPMCBoundedConsumer[T]) {
	p := newSPMCBoundedPacket[T](capacity)
	return &SPMCBoundedProducer[T]{p: p}, &SPMCBoundedConsumer[T]{p: p}
}

func (e *SPMCBoundedProducer[T]) SendAsync(v T) error { return e.p.SendAsync(v) }
func (e *SPMCBoundedProducer[T]) SendSync(v T) error  { return e.p.SendSync(v) }
func (e *SPMCBoundedProducer[T]) Cap() int            { return e.p.Cap() }

// Close disconnects the producer side. Safe to call at most once.
func (e *SPMCBoundedProducer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.p.disconnectSender()
}

// Clone creates another consumer endpoint sharing this channel.
func (e *SPMCBoundedConsumer[T]) Clone() *SPMCBoundedConsumer[T] {
	e.p.numReceivers.AddAcqRel(1)
	return &SPMCBoundedConsumer[T]{p: e.p}
}

func (e *SPMCBoundedConsumer[T]) RecvAsync() (T, error) { return e.p.RecvAsync() }
func (e *SPMCBoundedConsumer[T]) RecvSync() (T, error)  { return e.p.RecvSync() }
func (e *SPMCBoundedConsumer[T]) Ready() bool           { return e.p.Ready() }
func (e *SPMCBoundedConsumer[T]) ID() uint64            { return e.p.ID() }
func (e *SPMCBoundedConsumer[T]) Cap() int              { return e.p.Cap() }

// AsSelectable exposes the consumer side's readiness to a [Select].
func (e *SPMCBoundedConsumer[T]) AsSelectable() Selectable { return e.p }

// Close disconnects this consumer endpoint. When the last live consumer
// closes, the channel wakes any blocked producer with a Disconnected error.
// Safe to call at most once per endpoint.
func (e *SPMCBoundedConsumer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	if e.p.numReceivers.AddAcqRel(-1) == 0 {
		e.p.disconnectReceiver()
	}
}
