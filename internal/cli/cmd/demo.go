package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/smoynes/ozzie/internal/asm"
	"github.com/smoynes/ozzie/internal/cli"
	"github.com/smoynes/ozzie/internal/device"
	"github.com/smoynes/ozzie/internal/log"
	"github.com/smoynes/ozzie/internal/monitor"
)

// Demo returns the demo command.
func Demo() cli.Command {
	return &demo{log: log.DefaultLogger()}
}

type demo struct {
	logLevel slog.Level
	log      *log.Logger
}

func (demo) Description() string {
	return "run the built-in demonstration programs"
}

func (demo) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `demo

Runs two programs side by side: an arithmetic program that prints a sum and a
courier that copies words through the loopback device. Demonstrates scheduling,
blocking I/O and process exit.`)

	return err
}

func (d *demo) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)

	fs.Func("loglevel", "set log `level`", func(s string) error {
		return d.logLevel.UnmarshalText([]byte(s))
	})

	return fs
}

// arithSource sums two constants, prints the result, and exits.
const arithSource = `
	SET R0, 7
	SET R1, 5
	ADD R2, R0, R1
	PUSH R2
	SET R0, 1	; OUTPUT
	PUSH R0
	TRAP
	SET R0, 0	; EXIT
	PUSH R0
	TRAP
`

// courierSource writes a word to the loopback device, reads it back, and prints it.
// Device id 1 is the loopback; the printer is id 0.
const courierSource = `
	SET R0, 1	; loopback device id
	PUSH R0
	SET R1, 3	; OPEN
	PUSH R1
	TRAP
	POP R1		; open status

	PUSH R0		; dev
	SET R2, 9	; device address
	PUSH R2
	SET R3, 42	; payload
	PUSH R3
	SET R1, 6	; WRITE
	PUSH R1
	TRAP
	POP R1		; write status

	PUSH R0		; dev
	PUSH R2		; addr
	SET R1, 5	; READ
	PUSH R1
	TRAP
	POP R1		; read status
	POP R3		; data

	PUSH R3
	SET R1, 1	; OUTPUT
	PUSH R1
	TRAP

	PUSH R0
	SET R1, 4	; CLOSE
	PUSH R1
	TRAP
	POP R1

	SET R0, 0	; EXIT
	PUSH R0
	TRAP
`

func (d *demo) Run(ctx context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	log.LogLevel.Set(d.logLevel)

	m := monitor.New(
		monitor.WithLogger(logger),
		monitor.WithOutput(out),
	)

	m.AddDevice(device.NewPrinter(m.Interrupt(), out))
	m.AddDevice(device.NewLoopback(m.Interrupt()))

	for _, prog := range []struct {
		name string
		src  string
	}{
		{"arith", arithSource},
		{"courier", courierSource},
	} {
		code, err := asm.Assemble(prog.src)
		if err != nil {
			logger.Error("assembling demo", "PROGRAM", prog.name, "ERR", err)
			return 1
		}

		index := m.AddProgram(&monitor.Program{Name: prog.name, Code: code})

		if _, err := m.Spawn(index); err != nil {
			logger.Error("spawning demo", "PROGRAM", prog.name, "ERR", err)
			return 1
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := m.Run(ctx); err != nil {
		logger.Error("machine stopped", "ERR", err)
		return 2
	}

	fmt.Fprintln(out, "demo complete")

	return 0
}
