package device

import "testing"

// E4: P1 requests device 0 (granted), P2 and P3 request it (both block in
// FIFO order). P1 releases; P2 becomes owner, and P3, still queued, cannot
// release the device.
func TestFIFOHandoffOnRelease(t *testing.T) {
	m := New()

	if granted := m.Request(1, 0); !granted {
		t.Fatalf("P1 should be granted device 0 immediately")
	}
	if granted := m.Request(2, 0); granted {
		t.Fatalf("P2 should block on device 0")
	}
	if granted := m.Request(3, 0); granted {
		t.Fatalf("P3 should block on device 0")
	}

	next, ok := m.Release(1, 0)
	if !ok {
		t.Fatalf("P1 should be able to release device 0")
	}
	if next != 2 {
		t.Fatalf("next owner = %d, want 2", next)
	}

	owner, ok := m.Owner(0)
	if !ok || owner != 2 {
		t.Fatalf("owner = %d, ok=%v, want 2", owner, ok)
	}

	if _, stillOk := m.Release(3, 0); stillOk {
		t.Fatalf("P3 does not own device 0 and should not be able to release it")
	}
}

func TestReRequestByOwnerGrantsImmediately(t *testing.T) {
	m := New()
	m.Request(1, 0)
	if granted := m.Request(1, 0); !granted {
		t.Fatalf("owner re-requesting the same device should be granted immediately")
	}
}

func TestNoDuplicateWaiterEnqueue(t *testing.T) {
	m := New()
	m.Request(1, 0)
	m.Request(2, 0)
	m.Request(2, 0) // duplicate, must not double-enqueue

	m.Release(1, 0)
	owner, _ := m.Owner(0)
	if owner != 2 {
		t.Fatalf("owner = %d, want 2", owner)
	}

	next, ok := m.Release(2, 0)
	if !ok || next != -1 {
		t.Fatalf("expected no further waiters after a single dedup'd entry, got next=%d ok=%v", next, ok)
	}
}

func TestCancelWaitRemovesFromAllQueues(t *testing.T) {
	m := New()
	m.Request(1, 0)
	m.Request(2, 0)
	m.Request(1, 1)
	m.Request(2, 1)

	m.CancelWait(2)

	next, _ := m.Release(1, 0)
	if next != -1 {
		t.Fatalf("P2 should have been cancelled out of device 0's queue, got next=%d", next)
	}
	next, _ = m.Release(1, 1)
	if next != -1 {
		t.Fatalf("P2 should have been cancelled out of device 1's queue, got next=%d", next)
	}
}

func TestReleaseAllWakesSuccessors(t *testing.T) {
	m := New()
	m.Request(1, 0)
	m.Request(2, 0)
	m.Request(1, 1)

	released := m.ReleaseAll(1)
	if len(released) != 2 {
		t.Fatalf("released %d devices, want 2", len(released))
	}

	found := map[int]int{}
	for _, r := range released {
		found[r.Dev] = r.NextOwner
	}
	if found[0] != 2 {
		t.Fatalf("device 0 next owner = %d, want 2", found[0])
	}
	if found[1] != -1 {
		t.Fatalf("device 1 next owner = %d, want -1 (no waiters)", found[1])
	}
}
