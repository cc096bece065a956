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

func TestMPMCBoundedBasic(t *testing.T) {
	tx, rx := chanx.NewMPMCBounded[int](4)

	for i := range 4 {
		if err := tx.SendAsync(i); err != nil {
			t.Fatalf("SendAsync(%d): %v", i, err)
		}
	}
	if err := tx.SendAsync(99); !chanx.IsFull(err) {
		t.Fatalf("SendAsync on full: got %v, want Full", err)
	}
	for i := range 4 {
		v, err := rx.RecvAsync()
		if err != nil || v != i {
			t.Fatalf("RecvAsync(%d): got (%d, %v), want (%d, nil)", i, v, err, i)
		}
	}
}

// TestMPMCBoundedFanInFanOut exercises many producers and many consumers
// against a small bounded channel: every value sent must be received
// exactly once.
func TestMPMCBoundedFanInFanOut(t *testing.T) {
	tx, rx := chanx.NewMPMCBounded[int](4)

	const numProducers = 8
	const numConsumers = 4
	itemsPerProducer := 200
	if chanx.RaceEnabled {
		itemsPerProducer = 40
	}

	var sendWG sync.WaitGroup
	sendWG.Add(numProducers)
	for p := range numProducers {
		txp := tx.Clone()
		go func(p int) {
			defer sendWG.Done()
			defer txp.Close()
			for i := range itemsPerProducer {
				for txp.SendSync(p*itemsPerProducer+i) != nil {
				}
			}
		}(p)
	}
	tx.Close()

	var mu sync.Mutex
	seen := make(map[int]int)
	var recvWG sync.WaitGroup
	recvWG.Add(numConsumers)
	// This flavor has no Disconnected signal on the hot path (matching
	// original_source/mpmc/bounded/imp.rs): once every producer has closed
	// and the buffer drains, a blocked RecvSync instead fails with
	// Deadlock, since no peer remains that could ever fill the channel
	// again. Any error therefore means this consumer is done.
	for c := 1; c < numConsumers; c++ {
		rxc := rx.Clone()
		go func() {
			defer recvWG.Done()
			defer rxc.Close()
			for {
				v, err := rxc.RecvSync()
				if err != nil {
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}
	go func() {
		defer recvWG.Done()
		defer rx.Close()
		for {
			v, err := rx.RecvSync()
			if err != nil {
				return
			}
			mu.Lock()
			seen[v]++
			mu.Unlock()
		}
	}()

	sendWG.Wait()
	recvWG.Wait()

	wantTotal := numProducers * itemsPerProducer
	if len(seen) != wantTotal {
		t.Fatalf("distinct values received: got %d, want %d", len(seen), wantTotal)
	}
	for k, n := range seen {
		if n != 1 {
			t.Fatalf("value %d delivered %d times, want exactly 1", k, n)
		}
	}
}

// TestMPMCBoundedDeadlockDetection is the spec's capacity-1 double-deadlock
// scenario: two consumer handles, no producer, both block on RecvSync on an
// empty capacity-1 channel, and both must wake with Deadlock rather than
// hang forever.
func TestMPMCBoundedDeadlockDetection(t *testing.T) {
	tx, rx := chanx.NewMPMCBounded[int](1)
	rx2 := rx.Clone()
	tx.Close()

	errs := make(chan error, 2)
	go func() { _, err := rx.RecvSync(); errs <- err }()
	go func() { _, err := rx2.RecvSync(); errs <- err }()

	for range 2 {
		select {
		case err := <-errs:
			if !chanx.IsDeadlock(err) {
				t.Fatalf("RecvSync with no live sender: got %v, want Deadlock", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("RecvSync did not return Deadlock in time")
		}
	}
}
