package mailbox_test

import (
	"testing"
	"time"

	"github.com/kaben/fusion-core/internal/mailbox"
)

func TestPutThenTakeRoundTrips(t *testing.T) {
	m := mailbox.New[int]()
	m.Put(7)
	v, ok := m.Take()
	if !ok || v != 7 {
		t.Fatalf("Take() = %v, %v; want 7, true", v, ok)
	}
}

func TestPutCoalescesToNewest(t *testing.T) {
	m := mailbox.New[int]()
	m.Put(1)
	m.Put(2)
	m.Put(3)
	v, ok := m.Take()
	if !ok || v != 3 {
		t.Fatalf("Take() = %v, %v; want 3, true (only the newest value should survive)", v, ok)
	}
	if _, ok := m.TryTake(); ok {
		t.Fatalf("expected mailbox empty after a single Take")
	}
}

func TestTakeBlocksUntilPut(t *testing.T) {
	m := mailbox.New[string]()
	done := make(chan string)
	go func() {
		v, _ := m.Take()
		done <- v
	}()

	select {
	case <-done:
		t.Fatalf("Take returned before any Put")
	case <-time.After(20 * time.Millisecond):
	}

	m.Put("ready")
	select {
	case v := <-done:
		if v != "ready" {
			t.Fatalf("got %q, want %q", v, "ready")
		}
	case <-time.After(time.Second):
		t.Fatalf("Take never woke after Put")
	}
}

func TestCloseWakesBlockedTake(t *testing.T) {
	m := mailbox.New[int]()
	done := make(chan bool)
	go func() {
		_, ok := m.Take()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	m.Close()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected ok=false after Close with nothing pending")
		}
	case <-time.After(time.Second):
		t.Fatalf("Take never woke after Close")
	}
}
