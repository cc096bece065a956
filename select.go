// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx

import (
	"slices"
	"sync"
	"time"
	"weak"

	"code.hybscloud.com/atomix"
)

// Selectable is the capability a channel packet exposes to a [Select]
// multiplexer. It is implemented only by the packet types in this package;
// the unexported methods keep it a closed, internally dispatched interface
// rather than an extension point for external implementers.
type Selectable interface {
	// ID returns the packet's stable channel identity.
	ID() uint64
	// Ready reports, without blocking, whether the next corresponding
	// operation would not return Empty.
	Ready() bool

	registerMux(muxID uint64, inner *selectInner)
	unregisterMux(muxID uint64)
	selfWeak() weakRef
}

// weakRef is a type-erased weak reference to a Selectable. Each concrete
// packet type builds one via weakSelectableRef, which captures a
// weak.Pointer to its own concrete type — Go's weak package requires the
// concrete pointee type as a type parameter, so the erasure happens inside
// the closure rather than at the weak.Pointer level.
type weakRef struct {
	upgrade func() (Selectable, bool)
}

func weakSelectableRef[T any](ptr *T) weakRef {
	wp := weak.Make(ptr)
	return weakRef{upgrade: func() (Selectable, bool) {
		v := wp.Value()
		if v == nil {
			return nil, false
		}
		s, ok := any(v).(Selectable)
		if !ok {
			return nil, false
		}
		return s, true
	}}
}

// muxRef is one entry in a selectable's wait queue: the registering Select's
// own id, paired with a weak reference to its inner state.
type muxRef struct {
	id    uint64
	inner weak.Pointer[selectInner]
}

// waitQueue is embedded in every packet (via [base]) and records which
// multiplexers have registered interest in that packet's readiness.
//
// Grounded on original_source/select/mod.rs's per-selectable wait queue:
// a vector of weak multiplexer references plus the selectable's own id.
type waitQueue struct {
	mu   sync.Mutex
	used atomix.Bool
	refs []muxRef
}

func (q *waitQueue) add(muxID uint64, inner *selectInner) {
	q.mu.Lock()
	q.refs = append(q.refs, muxRef{id: muxID, inner: weak.Make(inner)})
	q.used.StoreRelease(true)
	q.mu.Unlock()
}

func (q *waitQueue) remove(muxID uint64) {
	q.mu.Lock()
	for i, r := range q.refs {
		if r.id == muxID {
			q.refs = append(q.refs[:i:i], q.refs[i+1:]...)
			break
		}
	}
	q.used.StoreRelease(len(q.refs) > 0)
	q.mu.Unlock()
}

// notify walks the registered multiplexers and marks selfID ready on each.
// It never calls into a multiplexer while holding q.mu: the live refs are
// collected first, the lock released, then addReady is called on each.
func (q *waitQueue) notify(selfID uint64) {
	if !q.used.LoadAcquire() {
		return
	}
	q.mu.Lock()
	live := q.refs[:0:0]
	wake := make([]*selectInner, 0, len(q.refs))
	for _, r := range q.refs {
		if in := r.inner.Value(); in != nil {
			live = append(live, r)
			wake = append(wake, in)
		}
	}
	q.refs = live
	q.used.StoreRelease(len(live) > 0)
	q.mu.Unlock()

	for _, in := range wake {
		in.addReady(selfID)
	}
}

// clear runs when the packet's last relevant endpoint closes: every
// registered multiplexer is told selfID is going away, which drops it from
// the wait list and wakes a blocked Wait; Wait then returns an empty slice
// if no registered selectable remains, instead of waiting for a readiness
// transition that will never come on a dead channel.
func (q *waitQueue) clear(selfID uint64) {
	q.mu.Lock()
	refs := q.refs
	q.refs = nil
	q.used.StoreRelease(false)
	q.mu.Unlock()

	for _, r := range refs {
		if in := r.inner.Value(); in != nil {
			in.goingAway(selfID)
		}
	}
}

// selectInner is the lockable state shared by a Select handle; Select
// itself is the thin handle a caller keeps, and packets hold only a weak
// reference to selectInner — the cyclic-weak-reference design from
// SPEC_FULL.md §9.
type selectInner struct {
	mu        sync.Mutex
	cond      *sync.Cond
	waitList  map[uint64]weakRef
	readyList []uint64
}

func newSelectInner() *selectInner {
	in := &selectInner{waitList: make(map[uint64]weakRef)}
	in.cond = sync.NewCond(&in.mu)
	return in
}

func (in *selectInner) addReady(id uint64) {
	in.mu.Lock()
	in.insertReadyLocked(id)
	in.cond.Broadcast()
	in.mu.Unlock()
}

func (in *selectInner) goingAway(id uint64) {
	in.mu.Lock()
	delete(in.waitList, id)
	in.cond.Broadcast()
	in.mu.Unlock()
}

func (in *selectInner) insertReadyLocked(id uint64) {
	i, found := slices.BinarySearch(in.readyList, id)
	if !found {
		in.readyList = slices.Insert(in.readyList, i, id)
	}
}

// purgeLocked re-derives the ready list from the current wait list: entries
// whose selectable has been collected are dropped from both lists, and
// entries whose selectable is no longer actually ready are dropped from the
// ready list only (they remain registered).
func (in *selectInner) purgeLocked() {
	fresh := in.readyList[:0:0]
	for _, id := range in.readyList {
		ref, ok := in.waitList[id]
		if !ok {
			continue
		}
		s, alive := ref.upgrade()
		if !alive {
			delete(in.waitList, id)
			continue
		}
		if s.Ready() {
			fresh = append(fresh, id)
		}
	}
	in.readyList = fresh
}

// Select is the readiness multiplexer: it aggregates weak references to any
// number of [Selectable] channel endpoints and blocks the calling goroutine
// until at least one is ready.
//
// Grounded on original_source/select/imp.rs's Select/Inner pair.
type Select struct {
	id    uint64
	inner *selectInner
}

// NewSelect creates an empty multiplexer.
func NewSelect() *Select {
	return &Select{id: allocChannelID(), inner: newSelectInner()}
}

// Add registers s with the multiplexer. s is bound into the multiplexer
// before the multiplexer's own lock is taken — this order is required to
// avoid the lock-order inversion described in SPEC_FULL.md §5.
func (sel *Select) Add(s Selectable) {
	s.registerMux(sel.id, sel.inner)

	sel.inner.mu.Lock()
	sel.inner.waitList[s.ID()] = s.selfWeak()
	if s.Ready() {
		sel.inner.insertReadyLocked(s.ID())
	}
	sel.inner.mu.Unlock()
}

// Remove unregisters s from the multiplexer.
func (sel *Select) Remove(s Selectable) {
	sel.inner.mu.Lock()
	delete(sel.inner.waitList, s.ID())
	if i, found := slices.BinarySearch(sel.inner.readyList, s.ID()); found {
		sel.inner.readyList = slices.Delete(sel.inner.readyList, i, i+1)
	}
	sel.inner.mu.Unlock()

	s.unregisterMux(sel.id)
}

// Wait blocks until at least one registered selectable is ready, then
// copies up to len(buf) ready ids into buf and returns the filled prefix.
// If the last registered selectable goes away while Wait is blocked, Wait
// returns an empty slice.
// Readiness is level-triggered: a channel that remains ready is returned
// again on the next call until it is drained or removed.
//
// An empty multiplexer returns immediately with an empty slice, matching
// original_source/select/imp.rs's guard on an empty wait_list — nothing
// registered means no one will ever broadcast the condvar.
func (sel *Select) Wait(buf []uint64) []uint64 {
	in := sel.inner
	in.mu.Lock()
	defer in.mu.Unlock()

	if len(in.waitList) == 0 {
		return buf[:0]
	}

	in.purgeLocked()
	for len(in.readyList) == 0 {
		in.cond.Wait()
		in.purgeLocked()
		if len(in.waitList) == 0 {
			return buf[:0]
		}
	}
	n := copy(buf, in.readyList)
	return buf[:n]
}

// WaitTimeout is Wait bounded by d; it may return an empty slice on expiry.
//
// sync.Cond has no native timed wait, so this is realized with a
// time.AfterFunc timer that broadcasts the condvar on expiry.
func (sel *Select) WaitTimeout(buf []uint64, d time.Duration) []uint64 {
	in := sel.inner
	in.mu.Lock()
	defer in.mu.Unlock()

	in.purgeLocked()
	if len(in.readyList) == 0 {
		deadline := time.Now().Add(d)
		timer := time.AfterFunc(d, func() {
			in.mu.Lock()
			in.cond.Broadcast()
			in.mu.Unlock()
		})
		defer timer.Stop()
		for len(in.readyList) == 0 && time.Now().Before(deadline) {
			in.cond.Wait()
			in.purgeLocked()
		}
	}
	n := copy(buf, in.readyList)
	return buf[:n]
}

// CheckReadyList is the non-blocking variant of Wait.
func (sel *Select) CheckReadyList(buf []uint64) []uint64 {
	in := sel.inner
	in.mu.Lock()
	defer in.mu.Unlock()

	in.purgeLocked()
	n := copy(buf, in.readyList)
	return buf[:n]
}

// base is embedded in every packet type. It supplies the stable channel id
// and the Selectable plumbing (wait queue, weak self-reference) common to
// every flavor.
type base struct {
	id         uint64
	wq         waitQueue
	selfWeakFn func() weakRef
}

func newBase() base {
	return base{id: allocChannelID()}
}

func (b *base) ID() uint64 { return b.id }

func (b *base) registerMux(muxID uint64, inner *selectInner) { b.wq.add(muxID, inner) }
func (b *base) unregisterMux(muxID uint64)                   { b.wq.remove(muxID) }
func (b *base) selfWeak() weakRef                            { return b.selfWeakFn() }

// notifyReady runs whenever the packet may have transitioned to ready; it is
// the upward-only notification path from packet to registered multiplexers.
func (b *base) notifyReady() { b.wq.notify(b.id) }

// closeSelectable runs once, when the packet's last relevant endpoint
// closes, so blocked multiplexers wake promptly instead of waiting forever
// on a channel that can never become ready again.
func (b *base) closeSelectable() { b.wq.clear(b.id) }
