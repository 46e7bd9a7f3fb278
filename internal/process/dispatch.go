package process

import (
	"github.com/FanTuani/tinix/internal/klog"
	"github.com/FanTuani/tinix/internal/memory"
	"github.com/FanTuani/tinix/internal/script"
)

// execute applies inst's single side effect to pcb (spec.md §4.6's
// Instruction dispatch table). The caller advances pc afterward
// regardless of whether the instruction blocked the process.
func (s *Scheduler) execute(pcb *PCB, inst script.Instruction) {
	switch inst.Op {
	case script.Compute:
		// no side effect beyond quantum/time accounting.

	case script.MemRead:
		s.doMemAccess(pcb, inst.Addr, memory.Read)
	case script.MemWrite:
		s.doMemAccess(pcb, inst.Addr, memory.Write)

	case script.FileOpen:
		s.doFileOpen(pcb, inst)
	case script.FileClose:
		s.doFileClose(pcb, inst.Fd)
	case script.FileRead:
		s.doFileRead(pcb, inst.Fd, inst.N)
	case script.FileWrite:
		s.doFileWrite(pcb, inst.Fd, inst.N)

	case script.DevRequest:
		s.doDevRequest(pcb, inst.Dev)
	case script.DevRelease:
		s.doDevRelease(pcb, inst.Dev)

	case script.Sleep:
		pcb.State = Blocked
		pcb.BlockedReason = BlockedOnSleep
		pcb.BlockedTime = inst.N
	}
}

func (s *Scheduler) doMemAccess(pcb *PCB, addr uint64, kind memory.AccessType) {
	ok, err := s.mem.Access(pcb.PID, addr, kind)
	if err != nil || !ok {
		klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "addr": addr, "kind": kind}).Warn("memory access failed")
	}
}

func (s *Scheduler) doFileOpen(pcb *PCB, inst script.Instruction) {
	scriptFD := inst.Fd
	if !inst.FdExplicit {
		scriptFD = pcb.NextScriptFD
		for {
			if _, used := pcb.FDMap[scriptFD]; !used {
				break
			}
			scriptFD++
		}
	} else {
		if scriptFD < 3 {
			klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "fd": scriptFD}).Warn("explicit FileOpen fd must be >= 3")
			return
		}
		if _, used := pcb.FDMap[scriptFD]; used {
			klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "fd": scriptFD}).Warn("explicit FileOpen fd already in use")
			return
		}
	}

	fsFD, err := s.fs.OpenFile(inst.Path, rootDir)
	if err != nil {
		if _, createErr := s.fs.CreateFile(inst.Path, rootDir); createErr == nil {
			fsFD, err = s.fs.OpenFile(inst.Path, rootDir)
		}
	}
	if err != nil {
		klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "path": inst.Path, "err": err}).Warn("FileOpen failed")
		return
	}

	pcb.FDMap[scriptFD] = fsFD
	if scriptFD >= pcb.NextScriptFD {
		pcb.NextScriptFD = scriptFD + 1
	}
}

func (s *Scheduler) doFileClose(pcb *PCB, scriptFD int) {
	fsFD, ok := pcb.FDMap[scriptFD]
	if !ok {
		klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "fd": scriptFD}).Warn("FileClose: unknown fd")
		return
	}
	if err := s.fs.CloseFile(fsFD); err != nil {
		klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "fd": scriptFD, "err": err}).Warn("FileClose failed")
	}
	delete(pcb.FDMap, scriptFD)
}

func (s *Scheduler) doFileRead(pcb *PCB, scriptFD, n int) {
	fsFD, ok := pcb.FDMap[scriptFD]
	if !ok {
		klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "fd": scriptFD}).Warn("FileRead: unknown fd")
		return
	}
	if n > MaxIOBytesPerCall {
		n = MaxIOBytesPerCall
	}
	buf := make([]byte, n)
	got, err := s.fs.ReadFile(fsFD, buf)
	if err != nil {
		klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "fd": scriptFD, "err": err}).Warn("FileRead failed")
		return
	}
	klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "fd": scriptFD, "bytes": got}).Debug("FileRead")
}

func (s *Scheduler) doFileWrite(pcb *PCB, scriptFD, n int) {
	fsFD, ok := pcb.FDMap[scriptFD]
	if !ok {
		klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "fd": scriptFD}).Warn("FileWrite: unknown fd")
		return
	}
	if n > MaxIOBytesPerCall {
		n = MaxIOBytesPerCall
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = FillByte
	}
	put, err := s.fs.WriteFile(fsFD, buf)
	if err != nil {
		klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "fd": scriptFD, "err": err}).Warn("FileWrite failed")
		return
	}
	klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "fd": scriptFD, "bytes": put}).Debug("FileWrite")
}

func (s *Scheduler) doDevRequest(pcb *PCB, dev int) {
	if s.dev.Request(pcb.PID, dev) {
		return
	}
	pcb.State = Blocked
	pcb.BlockedReason = BlockedOnDevice
	pcb.WaitingDevice = dev
	pcb.BlockedTime = 0
}

func (s *Scheduler) doDevRelease(pcb *PCB, dev int) {
	next, ok := s.dev.Release(pcb.PID, dev)
	if !ok {
		klog.Log.WithFields(klog.Fields{"pid": pcb.PID, "dev": dev}).Warn("DevRelease: not owner")
		return
	}
	if next == -1 {
		return
	}
	if err := s.WakeupProcess(next); err != nil {
		klog.Log.WithFields(klog.Fields{"pid": next, "dev": dev, "err": err}).Warn("could not wake device successor")
	}
}
