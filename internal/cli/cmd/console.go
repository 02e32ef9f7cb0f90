package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/smoynes/ozzie/internal/asm"
	"github.com/smoynes/ozzie/internal/cli"
	"github.com/smoynes/ozzie/internal/device"
	"github.com/smoynes/ozzie/internal/log"
	"github.com/smoynes/ozzie/internal/monitor"
	"github.com/smoynes/ozzie/internal/tty"
)

// Console returns the interactive console command.
func Console() cli.Command {
	return &console{log: log.DefaultLogger()}
}

type console struct {
	logLevel slog.Level
	timeout  time.Duration
	log      *log.Logger
}

func (console) Description() string {
	return "interactive monitor shell"
}

func (console) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `console

Starts an interactive shell over a fresh machine. Commands:

  load <file.s>    assemble a source file and register the program
  spawn <index>    create a process from a registered program
  run              run the machine until every process exits
  ps               show the process table
  mem              show the free list
  devices          show the device table
  quit             leave the console`)

	return err
}

var consoleCommands = []string{
	"load", "spawn", "run", "ps", "mem", "devices", "help", "quit",
}

func (c *console) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("console", flag.ExitOnError)

	fs.Func("loglevel", "set log `level`", func(s string) error {
		return c.logLevel.UnmarshalText([]byte(s))
	})
	fs.DurationVar(&c.timeout, "timeout", time.Minute, "give up a run after `duration`")

	return fs
}

func (c *console) Run(ctx context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	log.LogLevel.Set(c.logLevel)

	m := monitor.New(
		monitor.WithLogger(logger),
		monitor.WithOutput(out),
	)

	printer := device.NewPrinter(m.Interrupt(), out)
	keyboard := device.NewKeyboard(m.Interrupt())
	loopback := device.NewLoopback(m.Interrupt())

	m.AddDevice(printer)
	m.AddDevice(keyboard)
	m.AddDevice(loopback)

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(text string) []string {
		var matches []string

		for _, cmd := range consoleCommands {
			if strings.HasPrefix(cmd, strings.ToLower(text)) {
				matches = append(matches, cmd)
			}
		}

		return matches
	})

	for {
		input, err := line.Prompt("ozzie> ")

		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return 0
		} else if err != nil {
			logger.Error("reading line", "ERR", err)
			return 1
		}

		line.AppendHistory(input)

		if quit := c.dispatch(ctx, m, keyboard, input, out, logger); quit {
			return 0
		}
	}
}

func (c *console) dispatch(
	ctx context.Context,
	m *monitor.Monitor,
	keyboard *device.Keyboard,
	input string,
	out io.Writer,
	logger *log.Logger,
) bool {
	fields := strings.Fields(input)

	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true
	case "help":
		_ = c.Usage(out)
	case "load":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: load <file.s>")
			return false
		}

		c.load(m, fields[1], out, logger)
	case "spawn":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: spawn <index>")
			return false
		}

		index, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Fprintln(out, "bad index:", fields[1])
			return false
		}

		if pid, err := m.Spawn(index); err != nil {
			fmt.Fprintln(out, "spawn:", err)
		} else {
			fmt.Fprintln(out, "pid", pid)
		}
	case "run":
		c.runMachine(ctx, m, keyboard, out, logger)
	case "ps":
		snap := m.Snapshot()

		fmt.Fprintf(out, "tick %d\n", snap.Tick)

		for _, p := range snap.Processes {
			fmt.Fprintf(out, "  pid %-4d %-24s pri %-4d base %-6s lim %-6s starve max %d avg %.1f\n",
				p.PID, p.State, p.Priority, p.Base, p.Lim, p.MaxStarve, p.AvgStarve)
		}
	case "mem":
		for _, b := range m.Snapshot().Free {
			fmt.Fprintf(out, "  free %s\n", b)
		}
	case "devices":
		for _, d := range m.Snapshot().Devices {
			fmt.Fprintf(out, "  dev %d open by %v\n", d.ID, d.Openers)
		}
	default:
		fmt.Fprintln(out, "unknown command:", fields[0])
	}

	return false
}

func (c *console) load(m *monitor.Monitor, name string, out io.Writer, logger *log.Logger) {
	src, err := os.ReadFile(name)
	if err != nil {
		fmt.Fprintln(out, "load:", err)
		return
	}

	code, err := asm.Assemble(string(src))
	if err != nil {
		fmt.Fprintln(out, "load:", err)
		return
	}

	index := m.AddProgram(&monitor.Program{
		Name: filepath.Base(name),
		Code: code,
	})

	fmt.Fprintln(out, "program", index, filepath.Base(name))
}

// runMachine drives the monitor until halt. While running, the real terminal feeds
// the keyboard device if one is attached to a TTY.
func (c *console) runMachine(
	ctx context.Context,
	m *monitor.Monitor,
	keyboard *device.Keyboard,
	out io.Writer,
	logger *log.Logger,
) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ttyCtx, _, restore, err := tty.WithConsole(ctx, keyboard)
	if err == nil {
		ctx = ttyCtx
		defer restore()
	} else if !errors.Is(err, tty.ErrNoTTY) {
		logger.Warn("console input unavailable", "ERR", err)
	}

	if err := m.Run(ctx); err != nil {
		fmt.Fprintln(out, "machine stopped:", err)
		return
	}

	fmt.Fprintln(out, "machine halted")
}
