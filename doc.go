// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package chanx provides typed, heap-allocated channels for passing values
// between goroutines, plus a readiness multiplexer for waiting on several
// of them at once.
//
// Unlike a built-in Go channel, each flavor here is specialized to one
// producer/consumer access pattern and exposes the distinction between a
// full/empty channel and a disconnected one as separate, inspectable error
// values.
//
// # Flavors
//
//	NewOneSlot[T]()          SPSC, capacity 1, no backing array
//	NewBoundedRing[T](n)     SPSC, fixed capacity, blocks when full
//	NewUnboundedList[T]()    SPSC, unbounded, never Full
//	NewOverwritingRing[T](n) SPSC, fixed capacity, overwrites the oldest value instead of blocking
//	NewSPMCBounded[T](n)     SPMC, fixed capacity, many consumers via Clone
//	NewSPMCUnbounded[T]()    SPMC, unbounded, many consumers via Clone
//	NewMPSCUnbounded[T]()    MPSC, unbounded, many producers via Clone
//	NewMPSCBounded[T](n)     MPSC, fixed capacity, many producers via Clone
//	NewMPMCBounded[T](n)     MPMC, fixed capacity, many producers and consumers via Clone
//
// # Basic usage
//
//	tx, rx := chanx.NewBoundedRing[int](64)
//	go func() {
//	    defer tx.Close()
//	    for i := range 100 {
//	        tx.SendSync(i)
//	    }
//	}()
//	for {
//	    v, err := rx.RecvSync()
//	    if chanx.IsDisconnected(err) {
//	        break
//	    }
//	    process(v)
//	}
//
// Every flavor offers an Async form (fails immediately rather than
// blocking) alongside the Sync form used above:
//
//	if err := tx.SendAsync(v); chanx.IsFull(err) {
//	    // back off and retry later
//	}
//
// # Errors
//
// Operations fail with one of four kinds, inspected with [IsFull],
// [IsEmpty], [IsDisconnected] and [IsDeadlock] (each built on [errors.Is]):
//
//	ErrFull        // SendAsync on a bounded channel at capacity
//	ErrEmpty       // RecvAsync on a channel with nothing to read
//	ErrDisconnected // the peer side has no live handles left
//	ErrDeadlock    // MPMCBounded only: every live handle is blocked
//
// Because Go passes values by copy, a failed SendAsync/SendSync never
// consumes the caller's value — only Recv operations return (T, error).
//
// # Multiplexing with Select
//
// Any consumer endpoint can be exposed to a [Select] via AsSelectable:
//
//	sel := chanx.NewSelect()
//	sel.Add(rx1.AsSelectable())
//	sel.Add(rx2.AsSelectable())
//	buf := make([]uint64, 2)
//	for {
//	    ready := sel.Wait(buf)
//	    for _, id := range ready {
//	        switch id {
//	        case rx1.ID():
//	            v, _ := rx1.RecvAsync()
//	            handle(v)
//	        case rx2.ID():
//	            v, _ := rx2.RecvAsync()
//	            handle(v)
//	        }
//	    }
//	}
//
// Readiness is level-triggered: a channel that is still readable stays in
// the ready set across calls to Wait until it is actually drained.
// [Select.WaitTimeout] bounds the wait; [Select.CheckReadyList] never
// blocks at all.
//
// # Thread safety
//
// Each flavor documents which side tolerates multiple concurrent
// goroutines. Using two producer goroutines against a channel whose name
// does not start with MP, for instance, is undefined behavior.
//
// # Capacity
//
// Bounded flavors round capacity up to the next power of two, with a
// minimum of 1 (2 for NewSPMCBounded and NewMPSCBounded, whose per-slot
// sequence counters need at least two slots):
//
//	chanx.NewBoundedRing[int](1)    // actual capacity: 1
//	chanx.NewBoundedRing[int](3)    // actual capacity: 4
//	chanx.NewBoundedRing[int](1000) // actual capacity: 1024
//
// # Dependencies
//
// This package uses [code.hybscloud.com/atomix] for atomic primitives with
// explicit memory ordering and [code.hybscloud.com/spin] for CPU pause
// instructions during CAS retry loops.
package chanx
