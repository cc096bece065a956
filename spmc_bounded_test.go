// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx_test

import (
	"sync"
	"testing"

	"go.pellucid.dev/chanx"
)

func TestSPMCBoundedFanOut(t *testing.T) {
	tx, rx1 := chanx.NewSPMCBounded[int](8)
	rx2 := rx1.Clone()
	rx3 := rx1.Clone()

	total := 300
	if chanx.RaceEnabled {
		total = 60
	}
	go func() {
		defer tx.Close()
		for i := range total {
			for tx.SendSync(i) != nil {
			}
		}
	}()

	var mu sync.Mutex
	seen := make(map[int]int, total)
	var wg sync.WaitGroup
	drain := func(rx *chanx.SPMCBoundedConsumer[int]) {
		defer wg.Done()
		defer rx.Close()
		for {
			v, err := rx.RecvSync()
			if chanx.IsDisconnected(err) {
				return
			}
			if err != nil {
				t.Errorf("RecvSync: %v", err)
				return
			}
			mu.Lock()
			seen[v]++
			mu.Unlock()
		}
	}
	wg.Add(3)
	go drain(rx1)
	go drain(rx2)
	go drain(rx3)
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("distinct values received: got %d, want %d", len(seen), total)
	}
	for i := range total {
		if seen[i] != 1 {
			t.Fatalf("value %d delivered %d times, want exactly 1", i, seen[i])
		}
	}
}

func TestSPMCBoundedLastConsumerCloseDisconnectsSender(t *testing.T) {
	tx, rx := chanx.NewSPMCBounded[int](2)
	rx.Close()

	if err := tx.SendAsync(1); !chanx.IsDisconnected(err) {
		t.Fatalf("SendAsync after last consumer close: got %v, want Disconnected", err)
	}
}
