package monitor

// traps.go implements the CPU's trap handler capability: the fatal hardware traps,
// device completion interrupts, and the clock.

import (
	"fmt"

	"github.com/smoynes/ozzie/internal/vm"
)

// IllegalMemoryAccess stops the machine: an access escaped the process window.
func (m *Monitor) IllegalMemoryAccess(addr vm.Word) {
	m.halt(fmt.Errorf("%w: address %s", ErrIllegalAccess, addr))
}

// DivideByZero stops the machine.
func (m *Monitor) DivideByZero() {
	m.halt(ErrDivideByZero)
}

// IllegalInstruction stops the machine.
func (m *Monitor) IllegalInstruction(instr [4]vm.Word) {
	m.halt(fmt.Errorf("%w: %v", ErrIllegalInstruction, instr))
}

// IOReadComplete unblocks the process waiting on the matching read request and
// delivers the data and a success status onto its saved stack: the data first, the
// status on top, so the program pops status then data. A completion whose requester
// already exited is dropped.
func (m *Monitor) IOReadComplete(device int, addr vm.Word, data vm.Word) {
	p := m.findBlocked(device, BlockRead, addr)
	if p == nil {
		m.log.Debug("dropped read completion", "DEV", device, "ADDR", addr)
		return
	}

	if !m.pushSaved(p, data) || !m.pushSaved(p, StatusSuccess) {
		return
	}

	m.unblock(p)
}

// IOWriteComplete unblocks the matching write requester and pushes a success status
// onto its saved stack.
func (m *Monitor) IOWriteComplete(device int, addr vm.Word) {
	p := m.findBlocked(device, BlockWrite, addr)
	if p == nil {
		m.log.Debug("dropped write completion", "DEV", device, "ADDR", addr)
		return
	}

	if !m.pushSaved(p, StatusSuccess) {
		return
	}

	m.unblock(p)
}

// InterruptClock runs the scheduler at the end of each quantum. The idle process is
// never preempted; it exits on its own within a few steps.
func (m *Monitor) InterruptClock() {
	if m.current == nil || m.current.idle {
		return
	}

	m.schedule()
}
