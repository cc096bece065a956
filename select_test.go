// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx_test

import (
	"sync"
	"testing"
	"time"

	"go.pellucid.dev/chanx"
)

// TestSelectManyOneSlotChannels is the spec's ten-producer staggered-wake
// scenario: producer k sleeps roughly k*10ms then sends k on its own
// one-slot channel, and a single Select registered across all ten must
// report every channel's id (each is removed once it has been received
// from), and each received value must be one of the values sent.
func TestSelectManyOneSlotChannels(t *testing.T) {
	const n = 10
	sel := chanx.NewSelect()

	type endpoint struct {
		id uint64
		rx *chanx.OneSlotConsumer[int]
	}
	endpoints := make([]endpoint, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for k := 0; k < n; k++ {
		tx, rx := chanx.NewOneSlot[int]()
		sel.Add(rx.AsSelectable())
		endpoints[k] = endpoint{id: rx.AsSelectable().ID(), rx: rx}
		go func(k int, tx *chanx.OneSlotProducer[int]) {
			defer wg.Done()
			time.Sleep(time.Duration(k) * 10 * time.Millisecond)
			_ = tx.SendSync(k)
		}(k, tx)
	}

	seen := make(map[uint64]bool, n)
	buf := make([]uint64, n)
	deadline := time.After(5 * time.Second)
	for len(seen) < n {
		ids := sel.Wait(buf)
		if len(ids) == 0 {
			select {
			case <-deadline:
				t.Fatalf("timed out waiting for all channels to become ready, got %d/%d", len(seen), n)
			default:
			}
			continue
		}
		for _, id := range ids {
			var ep endpoint
			for _, e := range endpoints {
				if e.id == id {
					ep = e
				}
			}
			if ep.rx == nil {
				continue
			}
			if seen[id] {
				continue
			}
			v, err := ep.rx.RecvSync()
			if err != nil {
				t.Fatalf("RecvSync(id=%d): %v", id, err)
			}
			seen[id] = true
			sel.Remove(ep.rx.AsSelectable())
			if v < 0 || v >= n {
				t.Fatalf("received out-of-range value %d", v)
			}
		}
	}

	wg.Wait()
	if len(seen) != n {
		t.Fatalf("distinct ready channels observed: got %d, want %d", len(seen), n)
	}
}

// TestSelectReadyBeforeAdd covers the case where a channel already has a
// value sitting in it before Add registers it with the multiplexer: Add
// must pick up the existing readiness immediately rather than requiring a
// fresh notification, since none will ever arrive for a send that already
// happened.
func TestSelectReadyBeforeAdd(t *testing.T) {
	tx, rx := chanx.NewOneSlot[int]()
	if err := tx.SendSync(42); err != nil {
		t.Fatalf("SendSync: %v", err)
	}

	sel := chanx.NewSelect()
	sel.Add(rx.AsSelectable())

	buf := make([]uint64, 1)
	ids := sel.CheckReadyList(buf)
	if len(ids) != 1 || ids[0] != rx.AsSelectable().ID() {
		t.Fatalf("CheckReadyList after Add on pre-filled channel: got %v", ids)
	}

	v, err := rx.RecvSync()
	if err != nil || v != 42 {
		t.Fatalf("RecvSync: got (%d, %v), want (42, nil)", v, err)
	}
}
