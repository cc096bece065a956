// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Flag bits for oneSlotPacket, grounded on
// original_source/spsc/one_space/imp.rs's bitmask.
const (
	flagSenderDisconnected uint64 = 1 << iota
	flagDataAvailable
	flagReceiverWorking
	flagReceiverSleeping
	flagReceiverDisconnected
)

// oneSlotPacket is the SPSC one-slot channel: capacity exactly one, no
// buffer array at all — a single cell guarded by a flag bitmask.
//
// Grounded on original_source/spsc/one_space/imp.rs. The parked-thread
// handle in the original becomes a buffered chan struct{} of capacity 1 (a
// channel-as-semaphore), grounded on
// _examples/ccnlui-lockfree/sema_spsc/sema_spsc.go's wake-channel idiom, in
// place of thread::park/Thread::unpark.
type oneSlotPacket[T any] struct {
	base
	flags atomix.Uint64
	value T
	wake  chan struct{}
}

func newOneSlotPacket[T any]() *oneSlotPacket[T] {
	p := &oneSlotPacket[T]{
		base: newBase(),
		wake: make(chan struct{}, 1),
	}
	p.selfWeakFn = func() weakRef { return weakSelectableRef(p) }
	return p
}

func (p *oneSlotPacket[T]) orFlags(bits uint64) (old uint64) {
	sw := spin.Wait{}
	for {
		old = p.flags.LoadAcquire()
		if old&bits == bits {
			return old
		}
		if p.flags.CompareAndSwapAcqRel(old, old|bits) {
			return old
		}
		sw.Once()
	}
}

func (p *oneSlotPacket[T]) andFlags(mask uint64) (old uint64) {
	sw := spin.Wait{}
	for {
		old = p.flags.LoadAcquire()
		if old&^mask == 0 {
			return old
		}
		if p.flags.CompareAndSwapAcqRel(old, old&mask) {
			return old
		}
		sw.Once()
	}
}

// trySend implements the §4.2 send sequence. It returns ErrFull or
// ErrDisconnected on failure, nil on success.
func (p *oneSlotPacket[T]) trySend(v T) error {
	flags := p.flags.LoadAcquire()
	if flags&flagReceiverDisconnected != 0 {
		return ErrDisconnected
	}
	if flags&flagDataAvailable != 0 {
		return ErrFull
	}
	p.value = v
	p.orFlags(flagDataAvailable)

	sw := spin.Wait{}
	for {
		flags = p.flags.LoadAcquire()
		receiverState := flags & (flagReceiverWorking | flagReceiverSleeping | flagReceiverDisconnected)
		if receiverState == 0 {
			break
		}
		if flags&flagReceiverSleeping != 0 {
			p.andFlags(^flagReceiverSleeping)
			select {
			case p.wake <- struct{}{}:
			default:
			}
			break
		}
		if flags&flagReceiverDisconnected != 0 {
			var zero T
			p.value = zero
			p.andFlags(^flagDataAvailable)
			return ErrDisconnected
		}
		sw.Once()
	}
	p.notifyReady()
	return nil
}

// SendAsync enqueues v, or fails immediately with Full or Disconnected. A
// failed send never consumes the caller's copy of v (see DESIGN.md Open
// Question 6).
func (p *oneSlotPacket[T]) SendAsync(v T) error {
	return p.trySend(v)
}

// SendSync enqueues v, blocking while the slot is occupied. The one-slot
// flavor has no sleep/condvar path for the sender: SendSync spins, with no
// upper bound, until the consumer empties the slot or disconnects.
func (p *oneSlotPacket[T]) SendSync(v T) error {
	sw := spin.Wait{}
	for {
		err := p.trySend(v)
		if err == nil || IsDisconnected(err) {
			return err
		}
		sw.Once()
	}
}

// RecvAsync dequeues the slot's value, or fails with Empty or Disconnected.
func (p *oneSlotPacket[T]) RecvAsync() (T, error) {
	var zero T
	p.orFlags(flagReceiverWorking)
	defer p.andFlags(^flagReceiverWorking)

	flags := p.flags.LoadAcquire()
	if flags&flagDataAvailable != 0 {
		v := p.value
		p.value = zero
		p.andFlags(^flagDataAvailable)
		return v, nil
	}
	if flags&flagSenderDisconnected != 0 {
		return zero, ErrDisconnected
	}
	return zero, ErrEmpty
}

// RecvSync dequeues the slot's value, blocking while empty.
//
// Grounded directly on the original's receive sequence: RECEIVER_SLEEPING
// must be set *before* parking, so a send that races the park still wakes
// it; the flag may only be cleared by whoever is about to wake the
// receiver, never by the sleeper itself.
func (p *oneSlotPacket[T]) RecvSync() (T, error) {
	var zero T
	p.orFlags(flagReceiverWorking)
	defer p.andFlags(^flagReceiverWorking)

	for {
		flags := p.flags.LoadAcquire()
		if flags&flagDataAvailable != 0 {
			v := p.value
			p.value = zero
			p.andFlags(^flagDataAvailable)
			return v, nil
		}
		if flags&flagSenderDisconnected != 0 {
			return zero, ErrDisconnected
		}

		p.orFlags(flagReceiverSleeping)
		<-p.wake

		flags = p.flags.LoadAcquire()
		if flags&flagDataAvailable != 0 {
			v := p.value
			p.value = zero
			p.andFlags(^flagDataAvailable)
			return v, nil
		}
		if flags&flagSenderDisconnected != 0 {
			return zero, ErrDisconnected
		}
		// Spurious wake (shouldn't normally happen): loop and re-check.
	}
}

// Ready reports whether RecvAsync would not return Empty.
func (p *oneSlotPacket[T]) Ready() bool {
	flags := p.flags.LoadAcquire()
	return flags&flagDataAvailable != 0 || flags&flagSenderDisconnected != 0
}

// disconnectSender latches sender-side disconnection and wakes a sleeping
// receiver.
func (p *oneSlotPacket[T]) disconnectSender() {
	flags := p.orFlags(flagSenderDisconnected)
	if flags&flagReceiverSleeping != 0 {
		p.andFlags(^flagReceiverSleeping)
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	p.notifyReady()
}

// disconnectReceiver latches receiver-side disconnection. A concurrent
// sender observes it on its next send/wake loop and recovers its value.
// The consumer side is the packet's Selectable, so closing it also runs
// closeSelectable so blocked multiplexers wake promptly.
func (p *oneSlotPacket[T]) disconnectReceiver() {
	p.orFlags(flagReceiverDisconnected)
	p.notifyReady()
	p.closeSelectable()
}

// OneSlotProducer is the sole producer endpoint of an SPSC one-slot channel.
type OneSlotProducer[T any] struct {
	p      *oneSlotPacket[T]
	closed bool
}

// OneSlotConsumer is the sole consumer endpoint of an SPSC one-slot channel.
type OneSlotConsumer[T any] struct {
	p      *oneSlotPacket[T]
	closed bool
}

// NewOneSlot creates a one-slot SPSC channel and returns its two endpoints.
func NewOneSlot[T any]() (*OneSlotProducer[T], *OneSlotConsumer[T]) {
	p := newOneSlotPacket[T]()
	return &OneSlotProducer[T]{p: p}, &OneSlotConsumer[T]{p: p}
}

func (e *OneSlotProducer[T]) SendAsync(v T) error { return e.p.SendAsync(v) }
func (e *OneSlotProducer[T]) SendSync(v T) error  { return e.p.SendSync(v) }

// Close disconnects the producer side. Safe to call at most once.
func (e *OneSlotProducer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.p.disconnectSender()
}

func (e *OneSlotConsumer[T]) RecvAsync() (T, error) { return e.p.RecvAsync() }
func (e *OneSlotConsumer[T]) RecvSync() (T, error)  { return e.p.RecvSync() }
func (e *OneSlotConsumer[T]) Ready() bool           { return e.p.Ready() }
func (e *OneSlotConsumer[T]) ID() uint64            { return e.p.ID() }

// AsSelectable exposes the consumer side's readiness to a [Select].
func (e *OneSlotConsumer[T]) AsSelectable() Selectable { return e.p }

// Close disconnects the consumer side. Safe to call at most once.
func (e *OneSlotConsumer[T]) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.p.disconnectReceiver()
}
