package rate

import (
	"testing"
	"time"
)

func TestAllowWithinBudget(t *testing.T) {
	l := NewMemory(time.Hour)
	for i := 0; i < 3; i++ {
		d := l.Allow("user:alice", 3)
		if !d.OK {
			t.Fatalf("request %d unexpectedly limited", i)
		}
		if d.Remaining != 3-i-1 {
			t.Fatalf("expected %d remaining after request %d, got %d", 3-i-1, i, d.Remaining)
		}
	}
	d := l.Allow("user:alice", 3)
	if d.OK {
		t.Fatalf("expected fourth request to be limited")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("expected positive retry hint, got %v", d.RetryAfter)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := NewMemory(time.Hour)
	if d := l.Allow("user:alice", 1); !d.OK {
		t.Fatalf("first alice request limited")
	}
	if d := l.Allow("user:alice", 1); d.OK {
		t.Fatalf("second alice request allowed")
	}
	if d := l.Allow("user:bob", 1); !d.OK {
		t.Fatalf("bob should have a separate budget")
	}
}

func TestBudgetChangeAppliesToCurrentWindow(t *testing.T) {
	l := NewMemory(time.Hour)
	if d := l.Allow("user:alice", 1); !d.OK {
		t.Fatalf("first request limited")
	}
	// A raised budget read from settings takes effect without a new window.
	if d := l.Allow("user:alice", 5); !d.OK || d.Remaining != 3 {
		t.Fatalf("expected raised budget to apply, got %+v", d)
	}
}

func TestWindowExpiryResetsBudget(t *testing.T) {
	l := NewMemory(10 * time.Millisecond)
	l.Allow("ip:10.0.0.1", 1)
	if d := l.Allow("ip:10.0.0.1", 1); d.OK {
		t.Fatalf("expected denial inside the window")
	}
	time.Sleep(20 * time.Millisecond)
	if d := l.Allow("ip:10.0.0.1", 1); !d.OK {
		t.Fatalf("expected fresh budget after window expiry")
	}
}

func TestPruneDropsExpiredCounters(t *testing.T) {
	l := NewMemory(5 * time.Millisecond)
	l.Allow("a", 1)
	l.Allow("b", 1)
	time.Sleep(15 * time.Millisecond)
	l.Allow("c", 1)

	l.mu.Lock()
	n := len(l.counts)
	l.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected expired counters pruned, have %d", n)
	}
}
