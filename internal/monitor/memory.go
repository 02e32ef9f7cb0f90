package monitor

// memory.go contains the contiguous-memory allocator and compaction.

import (
	"fmt"
	"sort"

	"github.com/smoynes/ozzie/internal/log"
	"github.com/smoynes/ozzie/internal/vm"
)

// MemBlock is one free extent. At every quiescent point the process windows and the
// free blocks together tile all of RAM without overlap.
type MemBlock struct {
	Addr vm.Word
	Size vm.Word
}

func (b MemBlock) String() string {
	return fmt.Sprintf("[%s +%s)", b.Addr, b.Size)
}

// alloc finds a contiguous extent of the given size, first fit. An exact-size block
// is removed from the free list; a larger block is shrunk in place and its old start
// address returned. When memory is sufficient but fragmented, the allocator compacts
// and retries once; by construction the retry cannot fail.
func (m *Monitor) alloc(size vm.Word) (vm.Word, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: bad size %s", ErrNoMemory, size)
	}

	if addr, ok := m.allocFit(size); ok {
		return addr, nil
	}

	total := vm.Word(0)
	for _, b := range m.free {
		total += b.Size
	}

	if total < size {
		return 0, fmt.Errorf("%w: want %s, free %s", ErrNoMemory, size, total)
	}

	m.compact()

	if addr, ok := m.allocFit(size); ok {
		return addr, nil
	}

	return 0, fmt.Errorf("%w: want %s after compaction", ErrNoMemory, size)
}

// allocFit scans the free list, lowest address first.
func (m *Monitor) allocFit(size vm.Word) (vm.Word, bool) {
	sort.Slice(m.free, func(i, j int) bool { return m.free[i].Addr < m.free[j].Addr })

	for i := range m.free {
		block := &m.free[i]

		switch {
		case block.Size == size:
			addr := block.Addr
			m.free = append(m.free[:i], m.free[i+1:]...)

			return addr, true
		case block.Size > size:
			addr := block.Addr
			block.Addr += size
			block.Size -= size

			return addr, true
		}
	}

	return 0, false
}

// freeMemory returns a process's memory window to the free list and merges adjacent blocks,
// so no two free blocks ever touch.
func (m *Monitor) freeMemory(p *PCB) {
	m.free = append(m.free, MemBlock{
		Addr: p.Saved[vm.Base],
		Size: p.Saved[vm.Lim],
	})

	m.coalesce()
}

func (m *Monitor) coalesce() {
	sort.Slice(m.free, func(i, j int) bool { return m.free[i].Addr < m.free[j].Addr })

	merged := m.free[:0]

	for _, b := range m.free {
		if n := len(merged); n > 0 && merged[n-1].Addr+merged[n-1].Size == b.Addr {
			merged[n-1].Size += b.Size
			continue
		}

		merged = append(merged, b)
	}

	m.free = merged
}

// compact relocates every process to the lowest available address, in base order, and
// replaces the free list with a single block spanning the remainder of RAM. Window
// contents move wholesale; in each relocated PCB the saved base and program counter
// shift with the window while the limit and the window-relative stack pointer are
// unchanged. Callers holding live registers for a resident process must save them to
// the PCB first and reload after.
func (m *Monitor) compact() {
	byBase := make([]*PCB, len(m.procs))
	copy(byBase, m.procs)
	sort.Slice(byBase, func(i, j int) bool {
		return byBase[i].Saved[vm.Base] < byBase[j].Saved[vm.Base]
	})

	next := vm.Word(0)

	for _, p := range byBase {
		base, lim := p.Saved[vm.Base], p.Saved[vm.Lim]

		if base != next {
			shift := next - base

			m.ram.Copy(next, base, lim)
			p.Saved[vm.Base] += shift
			p.Saved[vm.PC] += shift

			m.log.Debug("relocated",
				log.Int("PID", p.PID),
				log.String("FROM", base.String()),
				log.String("TO", next.String()),
			)
		}

		next += lim
	}

	if next < m.ram.Size() {
		m.free = []MemBlock{{Addr: next, Size: m.ram.Size() - next}}
	} else {
		m.free = nil
	}
}
