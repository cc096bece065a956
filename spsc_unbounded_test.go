// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx_test

import (
	"testing"

	"go.pellucid.dev/chanx"
)

func TestUnboundedListNeverFull(t *testing.T) {
	tx, rx := chanx.NewUnboundedList[int]()

	const n = 10_000
	for i := range n {
		if err := tx.SendAsync(i); err != nil {
			t.Fatalf("SendAsync(%d): %v", i, err)
		}
	}
	for i := range n {
		v, err := rx.RecvAsync()
		if err != nil {
			t.Fatalf("RecvAsync(%d): %v", i, err)
		}
		if v != i {
			t.Fatalf("RecvAsync(%d): got %d, want %d", i, v, i)
		}
	}
	if _, err := rx.RecvAsync(); !chanx.IsEmpty(err) {
		t.Fatalf("RecvAsync on empty: got %v, want Empty", err)
	}
}

func TestUnboundedListSenderDisconnectDrains(t *testing.T) {
	tx, rx := chanx.NewUnboundedList[int]()
	tx.SendAsync(1)
	tx.SendAsync(2)
	tx.Close()

	if v, err := rx.RecvAsync(); err != nil || v != 1 {
		t.Fatalf("RecvAsync: got (%d, %v), want (1, nil)", v, err)
	}
	if v, err := rx.RecvAsync(); err != nil || v != 2 {
		t.Fatalf("RecvAsync: got (%d, %v), want (2, nil)", v, err)
	}
	if _, err := rx.RecvAsync(); !chanx.IsDisconnected(err) {
		t.Fatalf("RecvAsync after drain: got %v, want Disconnected", err)
	}
}
