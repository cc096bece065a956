// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// mpscBoundedNode is one ring slot, using the same sequence-counter
// ("ticket") idiom as spmcBoundedNode but with the roles of the contending
// side reversed: here it is the write side (N producers) that contends on
// pos via CAS, while the sole consumer advances past it without an atomic.
//
// Grounded on original_source/mpsc/bounded_fast/mod.rs (imp.rs itself was
// not kept in the retrieval pack, so the node layout mirrors
// spmc_bounded.go's Node — the mirror-image flavor of this one, both
// ultimately the same bounded-ring-with-ticket-counter idiom the teacher's
// mpmc_seq.go and _examples/ccnlui-lockfree/mpmc/mpmc.go also use).
type mpscBoundedNode[T any] struct {
	val T
	pos atomix.Uint64
	_   padShort
}

// mpscBoundedPacket is the MPSC bounded channel: the shared nextWrite
// counter is CAS-advanced by however many producers are contending for the
// next free slot, while the sole consumer owns nextRead outright.
type mpscBoundedPacket[T any] struct {
	base
	buf       []mpscBoundedNode[T]
	capMask   uint64
	nextWrite atomix.Uint64
	_         pad
	nextRead  uint64
	_         pad

	mu                   sync.Mutex
	sendCond             *sync.Cond
	recvCond             *sync.Cond
	sleepingSenders      atomix.Int64
	receiverSleeping     atomix.Bool
	receiverDisconnected atomix.Bool
	numSenders           atomix.Int64
}

func newMPSCBoundedPacket[T any](capacity int) *mpscBoundedPacket[T] {
	// At least two slots: with one, a slot's "written at pos" sequence
	// (pos+1) would equal its "free for pos+1" sequence.
	n := uint64(roundToPow2(max(capacity, 2)))
	p := &mpscBoundedPacket[T]{
		base:    newBase(),
		buf:     make([]mpscBoundedNode[T], n),
		capMask: n - 1,
	}
	for i := range p.buf {
		p.buf[i].pos.StoreRelaxed(uint64(i))
	}
	p.numSenders.StoreRelaxed(1)
	p.sendCond = sync.NewCond(&p.mu)
	p.recvCond = sync.NewCond(&p.mu)
	p.selfWeakFn = func() weakRef { return weakSelectableRef(p) }
	return p
}

func (p *mpscBoundedPacket[T]) node(pos uint64) *mpscBoundedNode[T] {
	return &p.buf[pos&p.capMask]
}

// getWritePos CAS-advances the shared nextWrite counter, contending against
// any other producer that observed the same free slot.
func (p *mpscBoundedPacket[T]) getWritePos() (uint64, bool) {
	next := p.nextWrite.LoadAcquire()
	for {
		node := p.node(next)
		diff := int64(node.pos.LoadAcquire()) - int64(next)
		if diff < 0 {
			return 0, false
		}
		if diff > 0 {
			next = p.nextWrite.LoadAcquire()
			continue
		}
		if p.nextWrite.CompareAndSwapAcqRel(next, next+1) {
			return next, true
		}
		next = p.nextWrite.LoadAcquire()
	}
}

func (p *mpscBoundedPacket[T]) wakeSenders() {
	if p.sleepingSenders.LoadRelaxed() > 0 {
		p.mu.Lock()
		p.sendCond.Broadcast()
		p.mu.Unlock()
	}
}

func (p *mpscBoundedPacket[T]) wakeReceiver() {
	if p.receiverSleeping.LoadAcquire() {
		p.mu.Lock()
		p.recvCond.Broadcast()
		p.mu.Unlock()
	}
}

func (p *mpscBoundedPacket[T]) trySend(v T) error {
	if p.receiverDisconnected.LoadAcquire() {
		return ErrDisconnected
	}
	pos, ok := p.getWritePos()
	if !ok {
		if p.receiverDisconnected.LoadAcquire() {
			return ErrDisconnected
		}
		return ErrFull
	}
	node := p.node(pos)
	node.val = v
	node.pos.StoreRelease(pos + 1)
	p.wakeReceiver()
	p.notifyReady()
	return nil
}

// SendAsync enqueues v, or fails immediately with Full or Disconnected.
func (p *mpscBoundedPacket[T]) SendAsync(v T) error { return p.trySend(v) }

// SendSync enqueues v, blocking while full.
func (p *mpscBoundedPacket[T]) SendSync(v T) error {
	for {
		if err := p.trySend(v); err == nil || IsDisconnected(err) {
			return err
		}
		p.mu.Lock()
		p.sleepingSenders.AddAcqRel(1)
		p.sendCond.Wait()
		p.sleepingSenders.AddAcqRel(-1)
		p.mu.Unlock()
	}
}

// getReadPos advances the sole consumer's plain read position; no atomic is
// needed since only one goroutine ever calls this.
func (p *mpscBoundedPacket[T]) getReadPos() (uint64, bool) {
	next := p.nextRead
	node := p.node(next)
	diff := int64(node.pos.LoadAcquire()) - 1 - int64(next)
	if diff < 0 {
		return 0, false
	}
	p.nextRead = next + 1
	return next, true
}

func (p *mpscBoundedPacket[T]) tryRecv() (T, error) {
	var zero T
	pos, ok := p.getReadPos()
	if !ok {
		if p.numSenders.LoadRelaxed() == 0 {
			return zero, ErrDisconnected
		}
		return zero, ErrEmpty
	}
	node := p.node(pos)
	v := node.val
	node.val = zero
	node.pos.StoreRelease(pos + p.capMask + 1)
	p.wakeSenders()
	p.notifyReady()
	return v, nil
}

// RecvAsync dequeues an element, or fails with Empty or Disconnected.
func (p *mpscBoundedPacket[T]) RecvAsync() (T, error) { return p.tryRecv() }

// RecvSync dequeues an element, blocking while empty.
func (p *mpscBoundedPacket[T]) RecvSync() (T, error) {
	for {
		v, err := p.tryRecv()
		if err == nil || IsDisconnected(err) {
			return v, err
		}
		p.mu.Lock()
		p.receiverSleeping.StoreRelease(true)
		p.recvCond.Wait()
		p.receiverSleeping.StoreRelease(false)
		p.mu.Unlock()
	}
}

// Ready reports whether RecvAsync would not return Empty.
func (p *mpscBoundedPacket[T]) Ready() bool {
	if p.numSenders.LoadRelaxed() == 0 {
		return true
	}
	next := p.nextRead
	node := p.node(next)
	return int64(node.pos.LoadAcquire())-1-int64(next) >= 0
}

// Cap returns the channel's rounded capacity.
func (p *mpscBoundedPacket[T]) Cap() int { return int(p.capMask + 1) }

// disconnectSender runs once the last live producer closes.
func (p *mpscBoundedPacket[T]) disconnectSender() {
	p.wakeReceiver()
	p.notifyReady()
}

func (p *mpscBoundedPacket[T]) disconnectReceiver() {
	p.receiverDisconnected.StoreRelease(true)
	p.wakeSenders()
	p.notifyReady()
	p.closeSelectable()
}

// MPSCBoundedProducer is one of N producer endpoints of an MPSC bounded
// channel, created via NewMPSCBounded or Clone.
type MPSCBoundedProducer[T any] struct {
	p      *mpscBoundedPacket[T]
	closed bool
}

// MPSCBoundedConsumer is the sole consumer endpoint of an MPSC bounded
// channel.
type MPSCBoundedConsumer[T any] struct {
	p      *mpscBoundedPacket[T]
	closed bool
}

// NewMPSCBounded creates an MPSC bounded channel of the given capacity
// (rounded up to the next power of two, minimum 2) and returns the first
// producer and the sole consumer handle.
func NewMPSCBounded[T any](capacity int) (*MPSCBoundedProducer[T], *MPSCBoundedConsumer[T]) {
	p := newMPSCBoundedPacket[T](capacity)
	return &MPSCBoundedProducer[T]{p: p}, &MPSCBoundedConsumer[T]{p: p}
}

// Clone creates another producer endpoint sharing this channel.
func (e *MPSCBoundedProducer[T]) Clone() *MPSCBoundedProducer[T] {
	e.p.numSenders.AddAcqRel(1)
	return &MPSCBoundedProducer[T]{p: e.p}
}

func (e *MPSCBoundedProducer[T]) SendAsync(v T) error { return e.p.SendAsync(v) }
func (e *MPSCBoundedProducer[T]) SendSync(v T) error  { return e.p.SendSync(v) }
func (e *MPSCBoundedProducer[T]) Cap() int            { return e.p.Cap() }

// Close disconnects this producer endpoint. Safe to call at most once.
func (e *MPSCBoundedProducer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	if e.p.numSenders.AddAcqRel(-1) == 0 {
		e.p.disconnectSender()
	}
}

func (e *MPSCBoundedConsumer[T]) RecvAsync() (T, error) { return e.p.RecvAsync() }
func (e *MPSCBoundedConsumer[T]) RecvSync() (T, error)  { return e.p.RecvSync() }
func (e *MPSCBoundedConsumer[T]) Ready() bool           { return e.p.Ready() }
func (e *MPSCBoundedConsumer[T]) ID() uint64            { return e.p.ID() }
func (e *MPSCBoundedConsumer[T]) Cap() int              { return e.p.Cap() }

// AsSelectable exposes the channel's readiness to a [Select].
func (e *MPSCBoundedConsumer[T]) AsSelectable() Selectable { return e.p }

// Close disconnects the consumer side. Safe to call at most once.
func (e *MPSCBoundedConsumer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.p.disconnectReceiver()
}
