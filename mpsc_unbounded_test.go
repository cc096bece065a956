// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx_test

import (
	"sync"
	"testing"

	"go.pellucid.dev/chanx"
)

// TestMPSCUnboundedSum is the spec's 100-producers-by-100-items scenario:
// every value sent by every producer must be received exactly once, and
// their sum must match the expected total.
func TestMPSCUnboundedSum(t *testing.T) {
	const numProducers = 100
	itemsPerProducer := 100
	if chanx.RaceEnabled {
		itemsPerProducer = 20
	}

	tx, rx := chanx.NewMPSCUnbounded[int]()

	var wg sync.WaitGroup
	wg.Add(numProducers)
	for p := range numProducers {
		txp := tx.Clone()
		go func(p int) {
			defer wg.Done()
			defer txp.Close()
			for i := range itemsPerProducer {
				if err := txp.SendSync(p*itemsPerProducer + i); err != nil {
					t.Errorf("SendSync: %v", err)
					return
				}
			}
		}(p)
	}
	tx.Close()

	var sum, count int
	for {
		v, err := rx.RecvSync()
		if chanx.IsDisconnected(err) {
			break
		}
		if err != nil {
			t.Fatalf("RecvSync: %v", err)
		}
		sum += v
		count++
	}
	wg.Wait()

	wantCount := numProducers * itemsPerProducer
	wantSum := wantCount * (wantCount - 1) / 2
	if count != wantCount {
		t.Fatalf("received count: got %d, want %d", count, wantCount)
	}
	if sum != wantSum {
		t.Fatalf("received sum: got %d, want %d", sum, wantSum)
	}
}
