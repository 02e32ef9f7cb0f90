package monitor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smoynes/ozzie/internal/log"
	"github.com/smoynes/ozzie/internal/vm"
)

type testHarness struct {
	*testing.T
	out bytes.Buffer
}

func newHarness(t *testing.T) *testHarness {
	t.Parallel()
	return &testHarness{T: t}
}

// Make builds a monitor logging through the test and printing to a captured buffer.
func (t *testHarness) Make(opts ...OptionFn) *Monitor {
	t.Helper()

	base := []OptionFn{
		WithLogger(log.NewFormattedLogger(testWriter{t.T})),
		WithOutput(&t.out),
	}

	return New(append(base, opts...)...)
}

// Output returns everything the machine printed.
func (t *testHarness) Output() string {
	return t.out.String()
}

// Run drives the monitor with a deadline, failing the test on timeout.
func (t *testHarness) Run(m *Monitor) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.Run(ctx)

	if ctx.Err() != nil {
		t.Fatal("machine did not halt before deadline")
	}

	return err
}

// stepUntil steps the machine until the condition holds, failing after max steps.
func (t *testHarness) stepUntil(m *Monitor, max int, cond func() bool) {
	t.Helper()

	for i := 0; i < max; i++ {
		if cond() {
			return
		}

		if err := m.cpu.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
	}

	if !cond() {
		t.Fatalf("condition not reached in %d steps", max)
	}
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(b []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(b), "\n"))
	return len(b), nil
}

// fakeDevice is a scriptable device capability for kernel tests.
type fakeDevice struct {
	mut sync.Mutex

	id        int
	intr      *vm.Interrupt
	sharable  bool
	readable  bool
	writeable bool
	busy      bool

	// auto completes every request immediately, loopback-style.
	auto  bool
	cells map[vm.Word]vm.Word

	reads  []vm.Word
	writes []vm.Word
}

func newFakeDevice(intr *vm.Interrupt) *fakeDevice {
	return &fakeDevice{
		intr:      intr,
		sharable:  true,
		readable:  true,
		writeable: true,
		cells:     make(map[vm.Word]vm.Word),
	}
}

func (d *fakeDevice) ID() int         { return d.id }
func (d *fakeDevice) SetID(id int)    { d.id = id }
func (d *fakeDevice) Sharable() bool  { return d.sharable }
func (d *fakeDevice) Readable() bool  { return d.readable }
func (d *fakeDevice) Writeable() bool { return d.writeable }

func (d *fakeDevice) Available() bool {
	d.mut.Lock()
	defer d.mut.Unlock()

	return !d.busy
}

func (d *fakeDevice) Read(addr vm.Word) vm.Word {
	d.mut.Lock()
	defer d.mut.Unlock()

	d.reads = append(d.reads, addr)

	if d.auto {
		data := d.cells[addr]
		d.intr.Post(vm.Completion{
			Kind: vm.ReadDone, Device: d.id, Addr: addr, Data: data,
		})

		return data
	}

	return 0
}

func (d *fakeDevice) Write(addr vm.Word, value vm.Word) {
	d.mut.Lock()
	defer d.mut.Unlock()

	d.writes = append(d.writes, addr)
	d.cells[addr] = value

	if d.auto {
		d.intr.Post(vm.Completion{Kind: vm.WriteDone, Device: d.id, Addr: addr})
	}
}

func (d *fakeDevice) completeRead(addr, data vm.Word) {
	d.intr.Post(vm.Completion{Kind: vm.ReadDone, Device: d.id, Addr: addr, Data: data})
}

func (d *fakeDevice) completeWrite(addr vm.Word) {
	d.intr.Post(vm.Completion{Kind: vm.WriteDone, Device: d.id, Addr: addr})
}

// checkPartition asserts that process windows and free blocks tile RAM exactly.
func checkPartition(t *testing.T, m *Monitor) {
	t.Helper()

	type segment struct {
		addr, size vm.Word
	}

	var segs []segment

	for _, p := range m.procs {
		segs = append(segs, segment{p.Saved[vm.Base], p.Saved[vm.Lim]})
	}

	for _, b := range m.free {
		segs = append(segs, segment{b.Addr, b.Size})
	}

	for i := 0; i < len(segs); i++ {
		for j := i + 1; j < len(segs); j++ {
			if segs[j].addr < segs[i].addr {
				segs[i], segs[j] = segs[j], segs[i]
			}
		}
	}

	next := vm.Word(0)

	for _, s := range segs {
		if s.addr != next {
			t.Fatalf("partition broken at %s: segments %v, free %v",
				next, segs, m.free)
		}

		next += s.size
	}

	if next != m.ram.Size() {
		t.Fatalf("partition does not span RAM: covered %s of %s", next, m.ram.Size())
	}
}

// Program text used across scenarios, built from encoded tuples.

func instr(op vm.Opcode, operands ...vm.Word) [4]vm.Word {
	return vm.Encode(op, operands...)
}

func r(reg vm.Reg) vm.Word { return vm.Word(reg) }

// trapCall pushes the identifier and traps.
func trapCall(id vm.Word) [][4]vm.Word {
	return [][4]vm.Word{
		instr(vm.OpSet, r(vm.R4), id),
		instr(vm.OpPush, r(vm.R4)),
		instr(vm.OpTrap),
	}
}

func concat(parts ...[][4]vm.Word) []vm.Word {
	var all [][4]vm.Word

	for _, p := range parts {
		all = append(all, p...)
	}

	return flatten(all...)
}

func TestArithmeticOutput(tt *testing.T) {
	t := newHarness(tt)
	m := t.Make()

	code := concat(
		[][4]vm.Word{
			instr(vm.OpSet, r(vm.R0), 7),
			instr(vm.OpSet, r(vm.R1), 5),
			instr(vm.OpAdd, r(vm.R2), r(vm.R0), r(vm.R1)),
			instr(vm.OpPush, r(vm.R2)),
		},
		trapCall(SysOutput),
		trapCall(SysExit),
	)

	m.AddProgram(&Program{Name: "arith", Code: code})

	if err := t.Run(m); err != nil {
		t.Errorf("run: %v", err)
	}

	if !strings.Contains(t.Output(), "OUTPUT: 12\n") {
		t.Errorf("want OUTPUT: 12, got: %q", t.Output())
	}
}

func TestDivideByZeroFatal(tt *testing.T) {
	t := newHarness(tt)
	m := t.Make()

	code := flatten(
		instr(vm.OpSet, r(vm.R0), 10),
		instr(vm.OpSet, r(vm.R1), 0),
		instr(vm.OpDiv, r(vm.R2), r(vm.R0), r(vm.R1)),
	)

	m.AddProgram(&Program{Name: "div0", Code: code})

	err := t.Run(m)

	if !errors.Is(err, ErrDivideByZero) {
		t.Errorf("want divide-by-zero fault, got: %v", err)
	}
}

func TestIllegalBranchFatal(tt *testing.T) {
	t := newHarness(tt)
	m := t.Make()

	code := flatten(instr(vm.OpBranch, 100000))

	m.AddProgram(&Program{Name: "wild", Code: code, AllocSize: 40})

	err := t.Run(m)

	if !errors.Is(err, ErrIllegalAccess) {
		t.Errorf("want illegal access fault, got: %v", err)
	}
}

func TestCompletionForExitedProcessDropped(tt *testing.T) {
	t := newHarness(tt)
	m := t.Make()

	dev := newFakeDevice(m.Interrupt())
	m.AddDevice(dev)

	// A completion with no matching requester arrives before the program runs.
	dev.completeRead(3, 77)

	code := concat(trapCall(SysExit))

	m.AddProgram(&Program{Name: "exit", Code: code})

	if err := t.Run(m); err != nil {
		t.Errorf("stray completion must be dropped, got: %v", err)
	}
}

