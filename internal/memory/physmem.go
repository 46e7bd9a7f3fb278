package memory

import "github.com/FanTuani/tinix/internal/klog"

// NoOwner marks a frame's owner_pid as absent.
const NoOwner = -1

// Frame is the {allocated, owner_pid, vpage} tuple of spec.md §3; allocated
// is implicit (owner == NoOwner means free), matching
// original_source/include/mem/physical_memory.h's FrameInfo.
type Frame struct {
	OwnerPID int
	VPage    int
}

func (f Frame) allocated() bool { return f.OwnerPID != NoOwner }

// PhysicalMemory is the fixed array of page frames (spec.md §4.2).
// Grounded on the teacher's cmd/memoria/marcos.go (marcosLibres []bool,
// lowest-index-first allocation), generalized to carry owner/vpage per
// frame instead of a parallel map.
type PhysicalMemory struct {
	frames []Frame
}

// NewPhysicalMemory builds a physical memory of the given frame count, all
// initially free.
func NewPhysicalMemory(numFrames int) *PhysicalMemory {
	frames := make([]Frame, numFrames)
	for i := range frames {
		frames[i] = Frame{OwnerPID: NoOwner}
	}
	return &PhysicalMemory{frames: frames}
}

// TotalFrames returns the frame array length.
func (m *PhysicalMemory) TotalFrames() int { return len(m.frames) }

// AllocateFrame returns the lowest free frame index and marks it owned by
// (pid, vpage), or ok=false when every frame is in use.
func (m *PhysicalMemory) AllocateFrame(pid, vpage int) (frame int, ok bool) {
	for i := range m.frames {
		if !m.frames[i].allocated() {
			m.frames[i] = Frame{OwnerPID: pid, VPage: vpage}
			klog.Log.WithFields(klog.Fields{"pid": pid, "vpage": vpage, "frame": i}).Info("frame allocated")
			return i, true
		}
	}
	return 0, false
}

// FreeFrame unconditionally resets frame i.
func (m *PhysicalMemory) FreeFrame(i int) {
	m.frames[i] = Frame{OwnerPID: NoOwner}
	klog.Log.WithField("frame", i).Info("frame freed")
}

// AssignFrame force-assigns an already-selected frame, used by the Clock
// replacer after it has chosen a victim.
func (m *PhysicalMemory) AssignFrame(i, pid, vpage int) {
	m.frames[i] = Frame{OwnerPID: pid, VPage: vpage}
}

// FrameInfo returns the (owner_pid, vpage, allocated) tuple for frame i.
func (m *PhysicalMemory) FrameInfo(i int) (ownerPID, vpage int, allocated bool) {
	f := m.frames[i]
	return f.OwnerPID, f.VPage, f.allocated()
}

// FreeCount returns the number of unallocated frames.
func (m *PhysicalMemory) FreeCount() int {
	n := 0
	for _, f := range m.frames {
		if !f.allocated() {
			n++
		}
	}
	return n
}

// UsedCount returns the number of allocated frames.
func (m *PhysicalMemory) UsedCount() int {
	return len(m.frames) - m.FreeCount()
}
