// Package process implements the Process Manager / Scheduler of spec.md
// §4.6: the PCB state machine, round-robin tick algorithm, block/wake
// primitives, and instruction dispatch wiring memory, the file system,
// and devices. Grounded on the teacher's PCB/scheduler split in
// LucasIBorrat-GoSO/cmd/kernel/{pcb,planificador,STS}.go, collapsed from
// a distributed multi-process kernel into the single-threaded simulator
// spec.md §5 calls for.
package process

import (
	"github.com/FanTuani/tinix/internal/script"
)

// State is a PCB's position in spec.md §4.6's state machine.
type State int

const (
	New State = iota
	Ready
	Running
	Blocked
	Terminated
)

func (s State) String() string {
	switch s {
	case New:
		return "NEW"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// BlockReason distinguishes why a Blocked PCB is waiting (spec.md §4.6).
type BlockReason int

const (
	NoReason BlockReason = iota
	BlockedOnSleep
	BlockedOnDevice
)

// PCB is the Process Control Block of spec.md §3/§4.6.
type PCB struct {
	PID   int
	State State
	Program []script.Instruction
	PC    int

	Quantum     int
	QuantumLeft int
	CPUTime     int
	TotalTime   int

	BlockedReason BlockReason
	BlockedTime   int
	WaitingDevice int

	// fd_map: script-level file descriptor -> fs-level file descriptor.
	FDMap       map[int]int
	NextScriptFD int

	VirtualPages int
}

// DefaultVirtualPages is the default virtual-page count per process,
// matching original_source's DEFAULT_VIRTUAL_PAGES and config.Default's
// DefaultVPages. Processes are created with the count passed to
// NewScheduler; tests covering spec.md §8's scenarios pass 16 there.
const DefaultVirtualPages = 256

// newPCB builds a fresh PCB in state Ready (spec.md §4.6's Creation step;
// enqueueing onto the scheduler's ready queue is the caller's job).
func newPCB(pid int, program []script.Instruction, quantum, virtualPages int) *PCB {
	return &PCB{
		PID:           pid,
		State:         Ready,
		Program:       program,
		PC:            0,
		Quantum:       quantum,
		QuantumLeft:   quantum,
		TotalTime:     len(program),
		WaitingDevice: -1,
		FDMap:         make(map[int]int),
		NextScriptFD:  3,
		VirtualPages:  virtualPages,
	}
}

// Done reports whether the PCB's program counter has run off the end of
// its program.
func (p *PCB) Done() bool { return p.PC >= len(p.Program) }
