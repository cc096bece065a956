// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx_test

import (
	"sync"
	"testing"

	"go.pellucid.dev/chanx"
)

func TestSPMCUnboundedFanOut(t *testing.T) {
	tx, rx1 := chanx.NewSPMCUnbounded[int]()
	rx2 := rx1.Clone()

	total := 500
	if chanx.RaceEnabled {
		total = 100
	}
	go func() {
		defer tx.Close()
		for i := range total {
			tx.SendAsync(i)
		}
	}()

	var mu sync.Mutex
	count := 0
	var wg sync.WaitGroup
	drain := func(rx *chanx.SPMCUnboundedConsumer[int]) {
		defer wg.Done()
		defer rx.Close()
		for {
			_, err := rx.RecvSync()
			if chanx.IsDisconnected(err) {
				return
			}
			if err != nil {
				t.Errorf("RecvSync: %v", err)
				return
			}
			mu.Lock()
			count++
			mu.Unlock()
		}
	}
	wg.Add(2)
	go drain(rx1)
	go drain(rx2)
	wg.Wait()

	if count != total {
		t.Fatalf("total received: got %d, want %d", count, total)
	}
}
