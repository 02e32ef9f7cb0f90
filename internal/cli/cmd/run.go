package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/smoynes/ozzie/internal/asm"
	"github.com/smoynes/ozzie/internal/cli"
	"github.com/smoynes/ozzie/internal/device"
	"github.com/smoynes/ozzie/internal/log"
	"github.com/smoynes/ozzie/internal/monitor"
	"github.com/smoynes/ozzie/internal/vm"
)

// Runner returns the run command.
func Runner() cli.Command {
	return &runner{log: log.DefaultLogger()}
}

type runner struct {
	logLevel slog.Level
	timeout  time.Duration
	ramSize  int
	log      *log.Logger
}

func (runner) Description() string {
	return "assemble programs and run them"
}

func (runner) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `run program.s [program.s ...]

Assembles each source file, registers the programs with the monitor, spawns one
process per program, and runs the machine until every process exits.`)

	return err
}

func (r *runner) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("run", flag.ExitOnError)

	fs.Func("loglevel", "set log `level`", func(s string) error {
		return r.logLevel.UnmarshalText([]byte(s))
	})
	fs.DurationVar(&r.timeout, "timeout", 10*time.Second, "give up after `duration`")
	fs.IntVar(&r.ramSize, "ram", 0, "memory size in `words`")

	return fs
}

func (r *runner) Run(ctx context.Context, args []string, out io.Writer, logger *log.Logger) int {
	log.LogLevel.Set(r.logLevel)

	if len(args) == 0 {
		logger.Error("no programs to run")
		return 1
	}

	cfg := monitor.DefaultConfig()
	if r.ramSize > 0 {
		cfg.RAMSize = vm.Word(r.ramSize)
	}

	m := monitor.New(
		monitor.WithConfig(cfg),
		monitor.WithLogger(logger),
		monitor.WithOutput(out),
	)

	m.AddDevice(device.NewPrinter(m.Interrupt(), out))
	m.AddDevice(device.NewLoopback(m.Interrupt()))

	for _, name := range args {
		src, err := os.ReadFile(name)
		if err != nil {
			logger.Error("reading program", "FILE", name, "ERR", err)
			return 1
		}

		code, err := asm.Assemble(string(src))
		if err != nil {
			logger.Error("assembling", "FILE", name, "ERR", err)
			return 1
		}

		index := m.AddProgram(&monitor.Program{
			Name: filepath.Base(name),
			Code: code,
		})

		if _, err := m.Spawn(index); err != nil {
			logger.Error("spawning", "FILE", name, "ERR", err)
			return 1
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := m.Run(ctx); err != nil {
		logger.Error("machine stopped", "ERR", err)
		return 2
	}

	return 0
}
