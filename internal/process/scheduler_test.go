package process

import (
	"path/filepath"
	"testing"

	"github.com/FanTuani/tinix/internal/blockdev"
	"github.com/FanTuani/tinix/internal/device"
	"github.com/FanTuani/tinix/internal/fsys"
	"github.com/FanTuani/tinix/internal/memory"
	"github.com/FanTuani/tinix/internal/script"
)

const (
	testBlockSize   = 4096
	testTotalBlocks = 256
	testSwapStart   = 128
	testFrames      = 8
	testQuantum     = 3
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	disk, err := blockdev.Open(filepath.Join(t.TempDir(), "disk.img"), testTotalBlocks, testBlockSize)
	if err != nil {
		t.Fatalf("blockdev.Open: %v", err)
	}
	t.Cleanup(func() { disk.Close() })

	mem := memory.New(disk, testFrames, testBlockSize, testSwapStart)

	layout := fsys.NewLayout(testBlockSize, testSwapStart, 64, 10, 28)
	fs := fsys.New(disk, layout)
	if err := fs.Format(); err != nil {
		t.Fatalf("fs.Format: %v", err)
	}

	return NewScheduler(mem, fs, device.New(), testQuantum, 16)
}

func computeOnlyProgram(n int) []script.Instruction {
	program := make([]script.Instruction, n)
	for i := range program {
		program[i] = script.Instruction{Op: script.Compute}
	}
	return program
}

// E1: three compute-only programs of length 5 under Q=3 round-robin.
// After 5 ticks, exactly one process has completed 3 instructions and
// sits Ready; after 15 ticks all three are Terminated.
func TestRoundRobinFairness(t *testing.T) {
	s := newTestScheduler(t)
	pids := []int{
		s.CreateProcess(computeOnlyProgram(5)),
		s.CreateProcess(computeOnlyProgram(5)),
		s.CreateProcess(computeOnlyProgram(5)),
	}

	for i := 0; i < 5; i++ {
		s.Tick()
	}

	readyWithThree := 0
	for _, pid := range pids {
		pcb, ok := s.Process(pid)
		if !ok {
			t.Fatalf("pid %d should still exist after 5 ticks", pid)
		}
		if pcb.State == Ready && pcb.PC == 3 {
			readyWithThree++
		}
	}
	if readyWithThree != 1 {
		t.Fatalf("exactly one process should be Ready with PC=3 after 5 ticks, got %d", readyWithThree)
	}

	for i := 0; i < 10; i++ {
		s.Tick()
	}

	for _, pid := range pids {
		if _, ok := s.Process(pid); ok {
			t.Fatalf("pid %d should be terminated (and removed) after 15 ticks", pid)
		}
	}
}

// E6: a process running "SLEEP 3; C" blocks for exactly 3 ticks, then
// resumes and runs the trailing Compute to termination.
func TestSleepAccounting(t *testing.T) {
	s := newTestScheduler(t)
	program := []script.Instruction{
		{Op: script.Sleep, N: 3},
		{Op: script.Compute},
	}
	pid := s.CreateProcess(program)

	s.Tick() // executes SLEEP, pc becomes 1, process blocks
	pcb, _ := s.Process(pid)
	if pcb.State != Blocked || pcb.BlockedReason != BlockedOnSleep || pcb.BlockedTime != 3 {
		t.Fatalf("after SLEEP tick: state=%v reason=%v time=%d", pcb.State, pcb.BlockedReason, pcb.BlockedTime)
	}

	s.Tick() // blocked_time 3->2
	s.Tick() // blocked_time 2->1
	if pcb.State != Blocked {
		t.Fatalf("process should still be blocked after 2 more ticks, state=%v", pcb.State)
	}

	s.Tick() // blocked_time 1->0, becomes Ready
	if pcb.State != Ready {
		t.Fatalf("process should be Ready after blocked_time reaches 0, state=%v", pcb.State)
	}

	s.Tick() // scheduled, runs trailing Compute, pc reaches len(program), terminates
	if _, ok := s.Process(pid); ok {
		t.Fatalf("process should be terminated after running the trailing Compute")
	}
}

// E4 wired end-to-end through the scheduler: P1 holds device 0 across a
// quantum boundary; P2 requests it while P1 still owns it and blocks;
// P1's eventual DevRelease promotes P2 to owner and wakes it.
func TestDeviceRequestBlocksAndWakesOnRelease(t *testing.T) {
	s := newTestScheduler(t)
	p1 := s.CreateProcess([]script.Instruction{
		{Op: script.DevRequest, Dev: 0}, // tick1
		{Op: script.Compute},            // tick2
		{Op: script.Compute},            // tick3, exhausts quantum (Q=3)
		{Op: script.Compute},            // tick5 (after requeue)
		{Op: script.DevRelease, Dev: 0}, // tick6
	})
	p2 := s.CreateProcess([]script.Instruction{
		{Op: script.DevRequest, Dev: 0}, // tick4, should block
		{Op: script.Compute},
	})

	for i := 0; i < 3; i++ {
		s.Tick()
	}
	pcb1, _ := s.Process(p1)
	if pcb1.State != Ready {
		t.Fatalf("p1 should be Ready (quantum exhausted) after 3 ticks, got %v", pcb1.State)
	}

	s.Tick() // p2 runs DevRequest 0 against p1's live ownership: blocks
	pcb2, ok := s.Process(p2)
	if !ok {
		t.Fatalf("p2 should still exist")
	}
	if pcb2.State != Blocked || pcb2.BlockedReason != BlockedOnDevice {
		t.Fatalf("p2 should be blocked on device, got state=%v reason=%v", pcb2.State, pcb2.BlockedReason)
	}

	s.Tick() // p1 resumes, runs its third Compute
	s.Tick() // p1 runs DevRelease 0: promotes and wakes p2, then terminates

	if _, stillExists := s.Process(p1); stillExists {
		t.Fatalf("p1 should be terminated after DevRelease+pc overrun")
	}
	if pcb2.State != Ready {
		t.Fatalf("p2 should be woken Ready by p1's DevRelease, got %v", pcb2.State)
	}
	owner, ok := s.dev.Owner(0)
	if !ok || owner != p2 {
		t.Fatalf("device 0 owner = %d (ok=%v), want p2=%d", owner, ok, p2)
	}
}
