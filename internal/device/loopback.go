package device

import (
	"sync"

	"github.com/smoynes/ozzie/internal/vm"
)

// Loopback is a synchronous, sharable storage device: writes store words by address
// and reads return them. Every request completes before the next CPU step, which
// makes it the simplest device to exercise blocking I/O against.
type Loopback struct {
	mut sync.Mutex

	id    int
	intr  *vm.Interrupt
	cells map[vm.Word]vm.Word
}

// NewLoopback creates a loopback device.
func NewLoopback(intr *vm.Interrupt) *Loopback {
	return &Loopback{
		intr:  intr,
		cells: make(map[vm.Word]vm.Word),
	}
}

func (l *Loopback) ID() int         { return l.id }
func (l *Loopback) SetID(id int)    { l.id = id }
func (l *Loopback) Sharable() bool  { return true }
func (l *Loopback) Available() bool { return true }
func (l *Loopback) Readable() bool  { return true }
func (l *Loopback) Writeable() bool { return true }

// Read returns the stored word and posts its completion immediately.
func (l *Loopback) Read(addr vm.Word) vm.Word {
	l.mut.Lock()
	data := l.cells[addr]
	l.mut.Unlock()

	l.intr.Post(vm.Completion{
		Kind:   vm.ReadDone,
		Device: l.id,
		Addr:   addr,
		Data:   data,
	})

	return data
}

// Write stores the word and posts its completion immediately.
func (l *Loopback) Write(addr vm.Word, value vm.Word) {
	l.mut.Lock()
	l.cells[addr] = value
	l.mut.Unlock()

	l.intr.Post(vm.Completion{
		Kind:   vm.WriteDone,
		Device: l.id,
		Addr:   addr,
	})
}
