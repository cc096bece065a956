// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx_test

import (
	"testing"

	"go.pellucid.dev/chanx"
)

// TestOverwritingRingDropsOldest is the spec's ring-buffer overwrite
// scenario: once the ring is full, each further send silently drops the
// oldest unread value rather than failing with Full.
func TestOverwritingRingDropsOldest(t *testing.T) {
	tx, rx := chanx.NewOverwritingRing[int](4)

	for i := range 4 {
		if _, overwrote, err := tx.SendAsync(i); err != nil || overwrote {
			t.Fatalf("SendAsync(%d): overwrote=%v err=%v", i, overwrote, err)
		}
	}

	// The ring now holds {0,1,2,3}; sending 4 more should overwrite 0..3 in
	// turn and never report Full.
	for i := 4; i < 8; i++ {
		displaced, overwrote, err := tx.SendAsync(i)
		if err != nil {
			t.Fatalf("SendAsync(%d): %v", i, err)
		}
		if !overwrote {
			t.Fatalf("SendAsync(%d): expected an overwrite once the ring is full", i)
		}
		if displaced != i-4 {
			t.Fatalf("SendAsync(%d): displaced %d, want %d", i, displaced, i-4)
		}
	}

	for i := 4; i < 8; i++ {
		v, err := rx.RecvAsync()
		if err != nil {
			t.Fatalf("RecvAsync(%d): %v", i, err)
		}
		if v != i {
			t.Fatalf("RecvAsync: got %d, want %d", v, i)
		}
	}
	if _, err := rx.RecvAsync(); !chanx.IsEmpty(err) {
		t.Fatalf("RecvAsync on drained ring: got %v, want Empty", err)
	}
}

func TestOverwritingRingSendNeverBlocks(t *testing.T) {
	tx, rx := chanx.NewOverwritingRing[int](2)
	rx.Close()

	// Even with no receiver left, an overwriting ring only ever reports
	// Disconnected — it never reports Full, since it never refuses a write.
	if _, _, err := tx.SendSync(1); !chanx.IsDisconnected(err) {
		t.Fatalf("SendSync after receiver close: got %v, want Disconnected", err)
	}
}
