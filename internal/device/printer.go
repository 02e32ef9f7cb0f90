package device

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/smoynes/ozzie/internal/vm"
)

// Printer is a sharable output device. A write makes the device busy for the print
// delay, during which it reports unavailable; the completion posts when the character
// has been "printed". Programs that hit the busy window are rescheduled by the kernel
// and retry.
type Printer struct {
	mut sync.Mutex

	id   int
	intr *vm.Interrupt
	out  io.Writer

	busy  bool
	delay time.Duration
}

// DefaultPrintDelay is how long one write keeps the printer busy.
const DefaultPrintDelay = time.Millisecond

// NewPrinter creates a printer writing characters to out.
func NewPrinter(intr *vm.Interrupt, out io.Writer) *Printer {
	return &Printer{
		intr:  intr,
		out:   out,
		delay: DefaultPrintDelay,
	}
}

// SetDelay overrides the print delay. Zero completes writes with no simulated work.
func (p *Printer) SetDelay(d time.Duration) {
	p.delay = d
}

func (p *Printer) ID() int         { return p.id }
func (p *Printer) SetID(id int)    { p.id = id }
func (p *Printer) Sharable() bool  { return true }
func (p *Printer) Readable() bool  { return false }
func (p *Printer) Writeable() bool { return true }

func (p *Printer) Available() bool {
	p.mut.Lock()
	defer p.mut.Unlock()

	return !p.busy
}

func (p *Printer) Read(vm.Word) vm.Word { return 0 }

// Write prints one word as a character, asynchronously.
func (p *Printer) Write(addr vm.Word, value vm.Word) {
	p.mut.Lock()
	p.busy = true
	p.mut.Unlock()

	go func() {
		if p.delay > 0 {
			time.Sleep(p.delay)
		}

		p.mut.Lock()
		fmt.Fprintf(p.out, "%c", rune(value))
		p.busy = false
		p.mut.Unlock()

		p.intr.Post(vm.Completion{
			Kind:   vm.WriteDone,
			Device: p.id,
			Addr:   addr,
		})
	}()
}
