package monitor

// sched.go contains the process scheduler.

import (
	"math"

	"github.com/smoynes/ozzie/internal/log"
	"github.com/smoynes/ozzie/internal/vm"
)

// schedule ages priorities, selects the next process to run, and performs the context
// switch. Called on every clock interrupt and from any system call that blocks,
// yields, or retires the current process.
func (m *Monitor) schedule() {
	m.age()

	next := m.selectNext()

	if next != nil && next == m.current {
		return
	}

	if next == nil {
		cur := m.current
		resident := cur != nil && m.inTable(cur)

		// Idle creation can allocate and therefore compact. The current
		// process's registers must live in its PCB across the relocation and be
		// reloaded after.
		if resident {
			m.saveContext(cur)
		}

		idle, err := m.createIdleProcess()
		if err != nil {
			m.halt(err)
			return
		}

		if resident {
			m.restoreContext(cur)
		}

		next = idle
	}

	m.contextSwitch(next)
}

// age raises the priority of every ready, non-current process by the aging increment
// when the current clock quantum is a multiple of the aging period. Every scheduler
// pass made during such a quantum ages again.
func (m *Monitor) age() {
	if m.cfg.AgingPriority == 0 {
		return
	}

	quantum := m.cpu.Ticks() / m.cfg.ClockFrequency

	if quantum%m.cfg.AgingTime != 0 {
		return
	}

	for _, p := range m.procs {
		if p == m.current || p.Blocked() {
			continue
		}

		p.Priority += m.cfg.AgingPriority
	}
}

// selectNext picks the ready process with the highest priority. The current process,
// if still runnable, starts as the incumbent with a threshold bias so a contender must
// beat it decisively; ties go to the earliest table entry. Returns nil when nothing is
// runnable.
func (m *Monitor) selectNext() *PCB {
	var (
		best      *PCB
		bestPri   = math.MinInt
		incumbent = m.current != nil && m.inTable(m.current) && !m.current.Blocked()
	)

	if incumbent {
		best = m.current
		bestPri = m.current.Priority + m.cfg.PriorityThreshold
	}

	for _, p := range m.procs {
		if p.Blocked() || p == m.current {
			continue
		}

		if p.Priority > bestPri {
			best = p
			bestPri = p.Priority
		}
	}

	return best
}

// contextSwitch saves the current process and dispatches the next one. Each register
// copy is charged to the tick counter as switch overhead.
func (m *Monitor) contextSwitch(next *PCB) {
	cur := m.current

	if cur != nil && m.inTable(cur) {
		m.saveContext(cur)
		m.cpu.AddTicks(m.cfg.SwitchTicks)

		if !cur.Blocked() {
			cur.markReady(m.cpu.Ticks())
		}
	}

	m.restoreContext(next)
	m.cpu.AddTicks(m.cfg.SwitchTicks)

	next.recordDispatch(m.cpu.Ticks())
	m.current = next

	m.log.Debug("dispatch",
		log.Int("PID", next.PID),
		log.Int("PRI", next.Priority),
		log.Int64("TICK", int64(m.cpu.Ticks())),
	)
}

// blockCurrent suspends the running process on a device request. The registers are
// saved by the scheduler when another process is dispatched.
func (m *Monitor) blockCurrent(device int, op BlockOp, addr vm.Word) {
	m.current.Block = &BlockState{Device: device, Op: op, Addr: addr}
}

// unblock returns a blocked process to the ready state.
func (m *Monitor) unblock(p *PCB) {
	p.Block = nil
	p.markReady(m.cpu.Ticks())
}

// findBlocked locates the first process blocked on the given request. For reads and
// writes the request address must match as well.
func (m *Monitor) findBlocked(device int, op BlockOp, addr vm.Word) *PCB {
	for _, p := range m.procs {
		if !p.Blocked() || p.Block.Device != device || p.Block.Op != op {
			continue
		}

		if op != BlockOpen && p.Block.Addr != addr {
			continue
		}

		return p
	}

	return nil
}
