// Package memory implements the demand-paged virtual memory manager: the
// physical frame pool, per-process page tables, address translation, and
// Clock (second-chance) page replacement backed by the swap region of a
// blockdev.Device (spec.md §4.2-§4.3).
//
// Grounded on original_source/src/mem/memory_manager.cpp for the exact
// Clock algorithm and on the teacher's cmd/memoria/{marcos,swap,direcciones,
// tablas_paginas}.go for the Go idiom: package-level structured logging at
// every fault/eviction/swap transfer, plain maps keyed by pid.
package memory

import (
	"fmt"

	"github.com/FanTuani/tinix/internal/blockdev"
	"github.com/FanTuani/tinix/internal/kerr"
	"github.com/FanTuani/tinix/internal/klog"
)

// AccessType distinguishes a read from a write for dirty-bit bookkeeping.
type AccessType int

const (
	Read AccessType = iota
	Write
)

// Stats accumulates memory-access and page-fault counters, either globally
// or per process (spec.md §4.3's implicit observability surface).
type Stats struct {
	MemoryAccesses int
	PageFaults     int
}

// Manager composes PhysicalMemory and per-process page tables over a
// blockdev.Device swap region, implementing spec.md §4.3 in full: address
// translation, page-fault handling, and Clock replacement with a durable
// clock pointer and swap-block cursor.
type Manager struct {
	disk      *blockdev.Device
	pageSize  int
	swapStart int
	swapEnd   int // exclusive, == disk.NumBlocks()

	phys   *PhysicalMemory
	tables map[int]*Table
	stats  map[int]*Stats
	global Stats

	clockPtr      int
	nextSwapBlock int
}

// New builds a memory manager over numFrames physical frames, using disk's
// [swapStart, disk.NumBlocks()) region as swap.
func New(disk *blockdev.Device, numFrames, pageSize, swapStart int) *Manager {
	return &Manager{
		disk:          disk,
		pageSize:      pageSize,
		swapStart:     swapStart,
		swapEnd:       disk.NumBlocks(),
		phys:          NewPhysicalMemory(numFrames),
		tables:        make(map[int]*Table),
		stats:         make(map[int]*Stats),
		nextSwapBlock: swapStart,
	}
}

// Physical exposes the underlying frame pool for introspection (dumps,
// invariant checks).
func (m *Manager) Physical() *PhysicalMemory { return m.phys }

// Table returns the page table for pid, or nil if none exists.
func (m *Manager) Table(pid int) *Table { return m.tables[pid] }

// CreateProcessMemory installs a zeroed page table of length numPages for
// pid. Caller must not call this twice for the same pid (spec.md §4.3).
func (m *Manager) CreateProcessMemory(pid, numPages int) {
	m.tables[pid] = NewTable(numPages)
	m.stats[pid] = &Stats{}
	klog.Log.WithFields(klog.Fields{"pid": pid, "pages": numPages}).Info("page table created")
}

// FreeProcessMemory frees every frame owned by pid's present entries and
// discards its page table.
func (m *Manager) FreeProcessMemory(pid int) error {
	t, ok := m.tables[pid]
	if !ok {
		return fmt.Errorf("memory: pid %d: %w", pid, kerr.ErrUnknownProcess)
	}

	freed := 0
	for i := 0; i < t.Size(); i++ {
		e := t.Entry(i)
		if e.Present {
			m.phys.FreeFrame(e.Frame)
			freed++
		}
	}

	delete(m.tables, pid)
	delete(m.stats, pid)
	klog.Log.WithFields(klog.Fields{"pid": pid, "frames_freed": freed}).Info("process memory freed")
	return nil
}

// Stats returns the global access/fault counters.
func (m *Manager) Stats() Stats { return m.global }

// ProcessStats returns pid's access/fault counters, zero value if unknown.
func (m *Manager) ProcessStats(pid int) Stats {
	if s, ok := m.stats[pid]; ok {
		return *s
	}
	return Stats{}
}

// Access implements spec.md §4.3's access_memory: translates a virtual
// address, counts the access, and on a miss invokes the Clock-based
// page-fault handler. Returns ok=false with a non-nil err only for the
// caller-visible failure kinds (InvalidAddress, UnknownProcess, OutOfSwap);
// those are logged by the caller's instruction dispatch per spec.md §7, not
// escalated here.
func (m *Manager) Access(pid int, va uint64, kind AccessType) (ok bool, err error) {
	t, found := m.tables[pid]
	if !found {
		return false, fmt.Errorf("memory: pid %d: %w", pid, kerr.ErrUnknownProcess)
	}

	vpage := int(va) / m.pageSize
	off := int(va) % m.pageSize

	if vpage >= t.Size() {
		klog.Log.WithFields(klog.Fields{"pid": pid, "vpage": vpage, "table_size": t.Size()}).
			Warn("invalid virtual address")
		return false, fmt.Errorf("memory: vpage %d: %w", vpage, kerr.ErrInvalidAddress)
	}

	m.global.MemoryAccesses++
	m.stats[pid].MemoryAccesses++

	entry := t.Entry(vpage)
	if !entry.Present {
		m.global.PageFaults++
		m.stats[pid].PageFaults++

		klog.Log.WithFields(klog.Fields{"pid": pid, "vpage": vpage, "vaddr": va}).Info("page fault")

		if err := m.handleFault(pid, vpage, kind); err != nil {
			return false, err
		}
	}

	entry.Referenced = true
	if kind == Write {
		entry.Dirty = true
	}

	paddr := entry.Frame*m.pageSize + off
	klog.Log.WithFields(klog.Fields{
		"pid": pid, "vaddr": va, "paddr": paddr, "frame": entry.Frame,
	}).Debug("memory access resolved")

	return true, nil
}

// handleFault implements the page-fault handler algorithm of spec.md §4.3
// step by step.
func (m *Manager) handleFault(pid, vpage int, kind AccessType) error {
	t := m.tables[pid]
	entry := t.Entry(vpage)

	if entry.OnDisk {
		scratch := make([]byte, m.pageSize)
		if err := m.disk.ReadBlock(entry.SwapBlock, scratch); err != nil {
			return err
		}
		klog.Log.WithFields(klog.Fields{"pid": pid, "vpage": vpage, "block": entry.SwapBlock}).
			Info("reading page from swap")
	}

	frame, ok := m.phys.AllocateFrame(pid, vpage)
	if !ok {
		var err error
		frame, err = m.evictWithClock(pid, vpage)
		if err != nil {
			return err
		}
	}

	entry.Present = true
	entry.Frame = frame
	entry.Referenced = true
	entry.Dirty = kind == Write

	klog.Log.WithFields(klog.Fields{"pid": pid, "vpage": vpage, "frame": frame}).Info("page fault resolved")
	return nil
}

// evictWithClock runs the second-chance Clock sweep until it finds a frame
// whose victim entry has Referenced==false, evicts it (writing it to swap
// first if dirty), and force-assigns the frame to (pid, vpage).
func (m *Manager) evictWithClock(pid, vpage int) (int, error) {
	total := m.phys.TotalFrames()

	for probes := 0; ; probes++ {
		if probes > 2*total {
			panic("memory: clock sweep exceeded 2*frames probes, invariant violated")
		}

		victimPID, victimVPage, allocated := m.phys.FrameInfo(m.clockPtr)
		if !allocated {
			panic("memory: clock pointer landed on a free frame")
		}

		victimTable, ok := m.tables[victimPID]
		if !ok {
			panic(fmt.Sprintf("memory: no page table for victim pid %d", victimPID))
		}
		victim := victimTable.Entry(victimVPage)

		if victim.Referenced {
			victim.Referenced = false
			m.clockPtr = (m.clockPtr + 1) % total
			continue
		}

		klog.Log.WithFields(klog.Fields{
			"frame": m.clockPtr, "victim_pid": victimPID, "victim_vpage": victimVPage,
		}).Info("evicting frame")

		if victim.Dirty {
			if !victim.OnDisk {
				if m.nextSwapBlock >= m.swapEnd {
					klog.Log.Error("out of swap blocks")
					return 0, kerr.ErrOutOfSwap
				}
				victim.SwapBlock = m.nextSwapBlock
				m.nextSwapBlock++
				victim.OnDisk = true
			}

			page := make([]byte, m.pageSize)
			if err := m.disk.WriteBlock(victim.SwapBlock, page); err != nil {
				return 0, err
			}
			klog.Log.WithFields(klog.Fields{
				"victim_pid": victimPID, "victim_vpage": victimVPage, "block": victim.SwapBlock,
			}).Info("dirty page written to swap")
		}

		onDisk, swapBlock := victim.OnDisk, victim.SwapBlock
		*victim = Entry{OnDisk: onDisk, SwapBlock: swapBlock}

		frame := m.clockPtr
		m.phys.AssignFrame(frame, pid, vpage)
		m.clockPtr = (m.clockPtr + 1) % total
		return frame, nil
	}
}
