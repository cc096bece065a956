// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx_test

import (
	"testing"
	"time"

	"go.pellucid.dev/chanx"
)

func TestOneSlotBasic(t *testing.T) {
	tx, rx := chanx.NewOneSlot[int]()

	if err := tx.SendAsync(42); err != nil {
		t.Fatalf("SendAsync: %v", err)
	}
	if !rx.Ready() {
		t.Fatalf("Ready: got false, want true")
	}
	if err := tx.SendAsync(7); !chanx.IsFull(err) {
		t.Fatalf("SendAsync on occupied slot: got %v, want Full", err)
	}

	v, err := rx.RecvAsync()
	if err != nil {
		t.Fatalf("RecvAsync: %v", err)
	}
	if v != 42 {
		t.Fatalf("RecvAsync: got %d, want 42", v)
	}

	if _, err := rx.RecvAsync(); !chanx.IsEmpty(err) {
		t.Fatalf("RecvAsync on empty slot: got %v, want Empty", err)
	}
}

func TestOneSlotSenderDisconnect(t *testing.T) {
	tx, rx := chanx.NewOneSlot[int]()
	tx.Close()

	if _, err := rx.RecvAsync(); !chanx.IsDisconnected(err) {
		t.Fatalf("RecvAsync after sender close: got %v, want Disconnected", err)
	}
}

func TestOneSlotRecvSyncBlocksUntilSend(t *testing.T) {
	tx, rx := chanx.NewOneSlot[string]()
	done := make(chan string, 1)
	go func() {
		v, err := rx.RecvSync()
		if err != nil {
			done <- "error: " + err.Error()
			return
		}
		done <- v
	}()

	time.Sleep(20 * time.Millisecond)
	if err := tx.SendSync("hello"); err != nil {
		t.Fatalf("SendSync: %v", err)
	}

	select {
	case got := <-done:
		if got != "hello" {
			t.Fatalf("RecvSync: got %q, want %q", got, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RecvSync did not unblock after SendSync")
	}
}

func TestOneSlotReceiverCloseWakesMultiplexer(t *testing.T) {
	_, rx := chanx.NewOneSlot[int]()
	sel := chanx.NewSelect()
	sel.Add(rx.AsSelectable())

	done := make(chan []uint64, 1)
	go func() { done <- sel.Wait(make([]uint64, 1)) }()
	time.Sleep(20 * time.Millisecond)
	rx.Close()

	select {
	case ready := <-done:
		if len(ready) != 0 {
			t.Fatalf("Wait after Close of the only channel: got %v, want []", ready)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the only registered channel closed")
	}
}
