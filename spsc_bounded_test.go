// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx_test

import (
	"sync"
	"testing"

	"go.pellucid.dev/chanx"
)

func TestBoundedRingBasic(t *testing.T) {
	tx, rx := chanx.NewBoundedRing[int](3)

	if tx.Cap() != 4 {
		t.Fatalf("Cap: got %d, want 4", tx.Cap())
	}

	for i := range 4 {
		if err := tx.SendAsync(i + 100); err != nil {
			t.Fatalf("SendAsync(%d): %v", i, err)
		}
	}
	if err := tx.SendAsync(999); !chanx.IsFull(err) {
		t.Fatalf("SendAsync on full: got %v, want Full", err)
	}

	for i := range 4 {
		v, err := rx.RecvAsync()
		if err != nil {
			t.Fatalf("RecvAsync(%d): %v", i, err)
		}
		if v != i+100 {
			t.Fatalf("RecvAsync(%d): got %d, want %d", i, v, i+100)
		}
	}
	if _, err := rx.RecvAsync(); !chanx.IsEmpty(err) {
		t.Fatalf("RecvAsync on empty: got %v, want Empty", err)
	}
}

// TestBoundedRingRoundTrip is the capacity-3 round-trip scenario from the
// spec: a handful of sends followed by the matching receives must come back
// out in order.
func TestBoundedRingRoundTrip(t *testing.T) {
	tx, rx := chanx.NewBoundedRing[int](3)
	defer tx.Close()
	defer rx.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 10 {
			if err := tx.SendSync(i); err != nil {
				t.Errorf("SendSync(%d): %v", i, err)
				return
			}
		}
	}()

	for i := range 10 {
		v, err := rx.RecvSync()
		if err != nil {
			t.Fatalf("RecvSync(%d): %v", i, err)
		}
		if v != i {
			t.Fatalf("RecvSync(%d): got %d, want %d", i, v, i)
		}
	}
	wg.Wait()
}

func TestBoundedRingReceiverDisconnect(t *testing.T) {
	tx, rx := chanx.NewBoundedRing[int](2)
	rx.Close()

	if err := tx.SendAsync(1); !chanx.IsDisconnected(err) {
		t.Fatalf("SendAsync after receiver close: got %v, want Disconnected", err)
	}
}
