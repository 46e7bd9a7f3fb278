package process

import (
	"fmt"

	"github.com/FanTuani/tinix/internal/device"
	"github.com/FanTuani/tinix/internal/fsys"
	"github.com/FanTuani/tinix/internal/kerr"
	"github.com/FanTuani/tinix/internal/klog"
	"github.com/FanTuani/tinix/internal/memory"
	"github.com/FanTuani/tinix/internal/script"
)

// MaxIOBytesPerCall caps a single FileRead/FileWrite instruction's byte
// count (spec.md §4.6's "per-call safety maximum").
const MaxIOBytesPerCall = 4096

// FillByte is the constant value FileWrite uses to synthesize its payload.
const FillByte = 0xAA

// rootDir is the fixed working directory every script path resolves
// against; spec.md's script format has no CD opcode.
const rootDir = "/"

// Scheduler is the Process Manager of spec.md §4.6: round-robin
// scheduling over a single CPU with a simulated tick clock.
type Scheduler struct {
	mem *memory.Manager
	fs  *fsys.FileSystem
	dev *device.Manager

	processes  map[int]*PCB
	readyQueue []int
	nextPID    int
	nextTick   int
	curPID     int // -1 when idle

	defaultQuantum      int
	defaultVirtualPages int
}

// NewScheduler builds an idle Scheduler wired to the kernel's shared engines.
func NewScheduler(mem *memory.Manager, fs *fsys.FileSystem, dev *device.Manager, defaultQuantum, defaultVirtualPages int) *Scheduler {
	return &Scheduler{
		mem:                 mem,
		fs:                  fs,
		dev:                 dev,
		processes:           make(map[int]*PCB),
		curPID:              -1,
		defaultQuantum:      defaultQuantum,
		defaultVirtualPages: defaultVirtualPages,
	}
}

// CurrentPID returns the running PID, or -1 if the CPU is idle.
func (s *Scheduler) CurrentPID() int { return s.curPID }

// Process looks up a PCB by PID.
func (s *Scheduler) Process(pid int) (*PCB, bool) {
	p, ok := s.processes[pid]
	return p, ok
}

// CreateProcess assigns a fresh PID, allocates its page table, and
// enqueues it Ready (spec.md §4.6's Creation step).
func (s *Scheduler) CreateProcess(program []script.Instruction) int {
	pid := s.nextPID
	s.nextPID++

	pcb := newPCB(pid, program, s.defaultQuantum, s.defaultVirtualPages)
	s.processes[pid] = pcb
	s.mem.CreateProcessMemory(pid, pcb.VirtualPages)
	s.readyQueue = append(s.readyQueue, pid)

	klog.Log.WithFields(klog.Fields{"pid": pid, "program_size": len(program)}).Info("process created")
	return pid
}

// Tick runs one iteration of spec.md §4.6's tick algorithm: schedule if
// idle, execute one instruction, account quantum/time, resolve the
// post-state, then maintain every sleeping PCB's timer.
func (s *Scheduler) Tick() {
	s.nextTick++

	if s.curPID == -1 {
		s.schedule()
	}
	if s.curPID == -1 {
		s.maintainSleepTimers(-1)
		return
	}

	pcb := s.processes[s.curPID]
	wasBlocked := pcb.State == Blocked
	inst := pcb.Program[pcb.PC]
	s.execute(pcb, inst)
	pcb.PC++

	pcb.QuantumLeft--
	pcb.CPUTime++

	justBlockedPID := -1
	switch {
	case pcb.Done():
		s.terminate(pcb)
	case pcb.QuantumLeft <= 0:
		pcb.State = Ready
		pcb.QuantumLeft = pcb.Quantum
		s.readyQueue = append(s.readyQueue, pcb.PID)
		s.curPID = -1
	case pcb.State == Blocked:
		s.curPID = -1
		if !wasBlocked {
			justBlockedPID = pcb.PID
		}
	}

	s.maintainSleepTimers(justBlockedPID)
}

// schedule pops from the ready queue until it finds a PID that still
// exists and is Ready, tolerating stale entries left by termination.
func (s *Scheduler) schedule() {
	for len(s.readyQueue) > 0 {
		pid := s.readyQueue[0]
		s.readyQueue = s.readyQueue[1:]

		pcb, ok := s.processes[pid]
		if !ok || pcb.State != Ready {
			continue
		}
		pcb.State = Running
		s.curPID = pid
		return
	}
}

// maintainSleepTimers decrements every sleeping PCB's remaining tick count,
// waking it once it reaches zero. justBlockedPID, if not -1, names a PCB
// that transitioned Blocked on sleep during this very tick: its
// blocked_time was just set from the SLEEP instruction's argument and must
// not be decremented until the next tick (spec.md §8 E6).
func (s *Scheduler) maintainSleepTimers(justBlockedPID int) {
	for _, pcb := range s.processes {
		if pcb.PID == justBlockedPID {
			continue
		}
		if pcb.State != Blocked || pcb.BlockedReason != BlockedOnSleep || pcb.BlockedTime <= 0 {
			continue
		}
		pcb.BlockedTime--
		if pcb.BlockedTime <= 0 {
			pcb.State = Ready
			pcb.BlockedReason = NoReason
			s.readyQueue = append(s.readyQueue, pcb.PID)
		}
	}
}

// BlockProcess transitions pid to Blocked for duration ticks. Only valid
// from Ready or Running.
func (s *Scheduler) BlockProcess(pid, duration int) error {
	pcb, ok := s.processes[pid]
	if !ok {
		return kerr.ErrUnknownProcess
	}
	if pcb.State != Ready && pcb.State != Running {
		return fmt.Errorf("process: pid %d: cannot block from state %v", pid, pcb.State)
	}
	pcb.State = Blocked
	pcb.BlockedReason = BlockedOnSleep
	pcb.BlockedTime = duration
	pcb.WaitingDevice = -1
	if pid == s.curPID {
		s.curPID = -1
	}
	return nil
}

// WakeupProcess transitions pid from Blocked to Ready, clearing its
// blocked fields and removing it from any device waiter queue.
func (s *Scheduler) WakeupProcess(pid int) error {
	pcb, ok := s.processes[pid]
	if !ok {
		return kerr.ErrUnknownProcess
	}
	if pcb.State != Blocked {
		return fmt.Errorf("process: pid %d: cannot wake from state %v", pid, pcb.State)
	}
	pcb.State = Ready
	pcb.BlockedReason = NoReason
	pcb.BlockedTime = 0
	pcb.WaitingDevice = -1
	s.dev.CancelWait(pid)
	s.readyQueue = append(s.readyQueue, pid)
	return nil
}

// RunProcess forces pid to Running, preempting whatever was running (which
// goes to the tail of the ready queue).
func (s *Scheduler) RunProcess(pid int) error {
	pcb, ok := s.processes[pid]
	if !ok {
		return kerr.ErrUnknownProcess
	}
	if s.curPID != -1 && s.curPID != pid {
		prev := s.processes[s.curPID]
		prev.State = Ready
		s.readyQueue = append(s.readyQueue, prev.PID)
	}
	pcb.State = Running
	s.curPID = pid
	return nil
}

// terminate implements spec.md §4.6's Termination: release devices
// (waking successors), close open files, free the page table, clear
// cur_pid if needed, and drop the PCB from the map.
func (s *Scheduler) terminate(pcb *PCB) {
	pcb.State = Terminated

	for _, rel := range s.dev.ReleaseAll(pcb.PID) {
		if rel.NextOwner != -1 {
			if err := s.WakeupProcess(rel.NextOwner); err != nil {
				klog.Log.WithFields(klog.Fields{"pid": rel.NextOwner, "dev": rel.Dev}).Warn("could not wake device successor")
			}
		}
	}

	for _, fsFD := range pcb.FDMap {
		if err := s.fs.CloseFile(fsFD); err != nil {
			klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "fd": fsFD}).Warn("close on termination failed")
		}
	}

	if err := s.mem.FreeProcessMemory(pcb.PID); err != nil {
		klog.Log.WithField("pid", pcb.PID).Warn("free page table on termination failed")
	}

	if s.curPID == pcb.PID {
		s.curPID = -1
	}
	delete(s.processes, pcb.PID)

	klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "cpu_time": pcb.CPUTime}).Info("process terminated")
}
