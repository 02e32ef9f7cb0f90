package monitor

// syscall.go implements the system-call layer. Arguments arrive on the calling
// process's stack with the call identifier on top; results are pushed back before the
// process resumes.

import (
	"fmt"

	"github.com/smoynes/ozzie/internal/vm"
)

// System call identifiers.
const (
	SysExit vm.Word = iota
	SysOutput
	SysGetPID
	SysOpen
	SysClose
	SysRead
	SysWrite
	SysExec
	SysYield
	SysCoreDump
)

// Status codes pushed back to programs.
const (
	StatusSuccess           vm.Word = 0
	StatusDeviceNotFound    vm.Word = -1
	StatusDeviceNotSharable vm.Word = -2
	StatusDeviceAlreadyOpen vm.Word = -3
	StatusDeviceNotOpen     vm.Word = -4
	StatusDeviceReadOnly    vm.Word = -5
	StatusDeviceWriteOnly   vm.Word = -6
)

// SystemCall dispatches a TRAP from the running process. The call identifier is
// popped from the process's stack first; each handler pops its own arguments.
func (m *Monitor) SystemCall() {
	if m.current == nil {
		return
	}

	m.inSyscall = true
	defer func() { m.inSyscall = false }()

	id, ok := m.popLive()
	if !ok {
		return
	}

	m.log.Debug("syscall", "PID", m.current.PID, "ID", id)

	switch id {
	case SysExit:
		m.sysExit()
	case SysOutput:
		m.sysOutput()
	case SysGetPID:
		m.pushLive(vm.Word(m.current.PID))
	case SysOpen:
		m.sysOpen()
	case SysClose:
		m.sysClose()
	case SysRead:
		m.sysRead()
	case SysWrite:
		m.sysWrite()
	case SysExec:
		m.sysExec()
	case SysYield:
		m.schedule()
	case SysCoreDump:
		m.sysCoreDump()
	default:
		m.log.Warn("unknown syscall", "PID", m.current.PID, "ID", id)
	}
}

// sysExit retires the current process: its window returns to the free list, any
// devices it held are released, and the scheduler dispatches a successor. When the
// table empties the machine stops.
func (m *Monitor) sysExit() {
	p := m.current

	m.log.Debug("exit", "PID", p.PID)

	m.removeProcess(p)
	m.freeMemory(p)
	m.releaseAll(p.PID)

	if len(m.procs) == 0 {
		m.halt(nil)
		return
	}

	m.schedule()
}

// sysOutput prints the popped value to the console.
func (m *Monitor) sysOutput() {
	value, ok := m.popLive()
	if !ok {
		return
	}

	fmt.Fprintf(m.out, "OUTPUT: %s\n", value)
}

// sysOpen adds the caller to a device's opener set. Opening a non-sharable device
// that is in use blocks the caller until a holder closes; the success status is
// delivered onto its stack when the grant happens.
func (m *Monitor) sysOpen() {
	devID, ok := m.popLive()
	if !ok {
		return
	}

	rec := m.device(int(devID))

	switch {
	case rec == nil:
		m.pushLive(StatusDeviceNotFound)
	case rec.isOpenBy(m.current.PID):
		m.pushLive(StatusDeviceAlreadyOpen)
	case !rec.dev.Sharable() && rec.openCount() > 0:
		m.blockCurrent(int(devID), BlockOpen, 0)
		m.schedule()
	default:
		rec.open(m.current.PID)
		m.pushLive(StatusSuccess)
	}
}

// sysClose removes the caller from a device's opener set and hands a freed
// non-sharable device to the first blocked open-waiter.
func (m *Monitor) sysClose() {
	devID, ok := m.popLive()
	if !ok {
		return
	}

	rec := m.device(int(devID))

	switch {
	case rec == nil:
		m.pushLive(StatusDeviceNotFound)
	case !rec.isOpenBy(m.current.PID):
		m.pushLive(StatusDeviceNotOpen)
	default:
		rec.close(m.current.PID)
		m.pushLive(StatusSuccess)
		m.grantToWaiter(int(devID), rec)
	}
}

// sysRead validates and dispatches a device read, then blocks the caller until the
// completion interrupt delivers the data. An unavailable device makes the call retry:
// the arguments go back on the stack and the program counter steps back onto the
// trap, so the process re-issues it when next dispatched.
func (m *Monitor) sysRead() {
	addr, ok := m.popLive()
	if !ok {
		return
	}

	devID, ok := m.popLive()
	if !ok {
		return
	}

	rec := m.device(int(devID))

	switch {
	case rec == nil:
		m.pushLive(StatusDeviceNotFound)
		return
	case !rec.isOpenBy(m.current.PID):
		m.pushLive(StatusDeviceNotOpen)
		return
	case !rec.dev.Readable():
		m.pushLive(StatusDeviceWriteOnly)
		return
	}

	if !rec.dev.Available() {
		m.retrySyscall(SysRead, devID, addr)
		return
	}

	rec.dev.Read(addr)

	m.current.Priority += m.cfg.ReadPriority
	m.blockCurrent(int(devID), BlockRead, addr)
	m.schedule()
}

// sysWrite is symmetric to sysRead.
func (m *Monitor) sysWrite() {
	value, ok := m.popLive()
	if !ok {
		return
	}

	addr, ok := m.popLive()
	if !ok {
		return
	}

	devID, ok := m.popLive()
	if !ok {
		return
	}

	rec := m.device(int(devID))

	switch {
	case rec == nil:
		m.pushLive(StatusDeviceNotFound)
		return
	case !rec.isOpenBy(m.current.PID):
		m.pushLive(StatusDeviceNotOpen)
		return
	case !rec.dev.Writeable():
		m.pushLive(StatusDeviceReadOnly)
		return
	}

	if !rec.dev.Available() {
		m.retrySyscall(SysWrite, devID, addr, value)
		return
	}

	rec.dev.Write(addr, value)

	m.current.Priority += m.cfg.WritePriority
	m.blockCurrent(int(devID), BlockWrite, addr)
	m.schedule()
}

// retrySyscall rebuilds the call's stack frame bottom-up, finishing with the call
// identifier, rewinds onto the trap instruction, and reschedules. When the process is
// next dispatched it re-issues the same call.
func (m *Monitor) retrySyscall(id vm.Word, args ...vm.Word) {
	for _, arg := range args {
		if !m.pushLive(arg) {
			return
		}
	}

	if !m.pushLive(id) {
		return
	}

	m.cpu.Reg[vm.PC] -= vm.InstrSize
	m.schedule()
}

// sysExec creates a process from the least-called registered program. The caller's
// registers round-trip through its PCB so a compaction during allocation relocates it
// safely; allocation failure leaves the table unchanged and the caller simply
// continues past the call.
func (m *Monitor) sysExec() {
	prog := m.leastCalled()
	if prog == nil {
		m.log.Warn("exec with empty program registry", "PID", m.current.PID)
		return
	}

	cur := m.current
	m.saveContext(cur)

	if _, err := m.createProcess(prog); err != nil {
		m.log.Warn("exec failed", "PID", cur.PID, "PROGRAM", prog.Name, "ERR", err)
	}

	m.restoreContext(cur)
}

// sysCoreDump prints the caller's registers and its top three stack words, then
// retires it. Values print as they pop, top of stack first.
func (m *Monitor) sysCoreDump() {
	fmt.Fprintf(m.out, "COREDUMP pid %d\n%s\n", m.current.PID, m.cpu.Reg)

	for i := 0; i < 3; i++ {
		value, ok := m.popLive()
		if !ok {
			return
		}

		fmt.Fprintf(m.out, "  stack[%d]: %s\n", i, value)
	}

	m.sysExit()
}
