// Package device implements the Device Manager of spec.md §4.5: exclusive
// per-device ownership with strict FIFO waiter queues. Grounded on the
// teacher's device/ownership bookkeeping style in
// LucasIBorrat-GoSO/kernel/dispositivos (map+slice state guarded by the
// single kernel goroutine, no internal locking needed here since the
// scheduler tick loop is the sole caller).
package device

import "github.com/FanTuani/tinix/internal/klog"

// Manager tracks ownership and FIFO waiters for a fixed set of devices,
// identified by small integer IDs (spec.md §4.5/§6).
type Manager struct {
	owner   map[int]int   // dev -> pid, absent if free
	waiters map[int][]int // dev -> FIFO of waiting pids
}

// New returns an empty Manager; devices come into existence on first use.
func New() *Manager {
	return &Manager{
		owner:   make(map[int]int),
		waiters: make(map[int][]int),
	}
}

// Request grants dev to pid if free, or enqueues pid on dev's waiter FIFO
// (no duplicate enqueue) and returns false. A pid that already owns dev
// sees granted=true immediately, per spec.md §9's resolution of the
// repeated-DevRequest ambiguity.
func (m *Manager) Request(pid, dev int) (granted bool) {
	if owner, ok := m.owner[dev]; ok {
		if owner == pid {
			return true
		}
		m.enqueue(dev, pid)
		return false
	}
	m.owner[dev] = pid
	klog.Log.WithFields(klog.Fields{"pid": pid, "dev": dev}).Debug("device granted")
	return true
}

func (m *Manager) enqueue(dev, pid int) {
	for _, w := range m.waiters[dev] {
		if w == pid {
			return
		}
	}
	m.waiters[dev] = append(m.waiters[dev], pid)
}

// Release releases dev from pid, promoting the head of its waiter FIFO (if
// any) to owner and returning that pid. ok is false if pid did not own
// dev.
func (m *Manager) Release(pid, dev int) (nextOwner int, ok bool) {
	owner, owns := m.owner[dev]
	if !owns || owner != pid {
		return -1, false
	}
	delete(m.owner, dev)

	queue := m.waiters[dev]
	if len(queue) == 0 {
		klog.Log.WithFields(klog.Fields{"pid": pid, "dev": dev}).Debug("device released, no waiters")
		return -1, true
	}

	next := queue[0]
	m.waiters[dev] = queue[1:]
	m.owner[dev] = next
	klog.Log.WithFields(klog.Fields{"dev": dev, "prev_owner": pid, "new_owner": next}).Debug("device released, waiter promoted")
	return next, true
}

// CancelWait removes pid from every device's waiter FIFO, e.g. on
// termination of a process that never became owner.
func (m *Manager) CancelWait(pid int) {
	for dev, queue := range m.waiters {
		filtered := queue[:0:0]
		for _, w := range queue {
			if w != pid {
				filtered = append(filtered, w)
			}
		}
		m.waiters[dev] = filtered
	}
}

// Released pairs a freed device with the pid that should be woken next, if
// any (NextOwner == -1 when the device had no waiters).
type Released struct {
	Dev       int
	NextOwner int
}

// ReleaseAll releases every device owned by pid and removes it from every
// waiter queue, returning the set of (dev, nextOwner) pairs callers should
// wake (spec.md §4.5, used by process termination).
func (m *Manager) ReleaseAll(pid int) []Released {
	var released []Released
	for dev, owner := range m.owner {
		if owner != pid {
			continue
		}
		next, _ := m.Release(pid, dev)
		released = append(released, Released{Dev: dev, NextOwner: next})
	}
	m.CancelWait(pid)
	return released
}

// Owner reports the current owner of dev, if any.
func (m *Manager) Owner(dev int) (pid int, ok bool) {
	pid, ok = m.owner[dev]
	return
}
