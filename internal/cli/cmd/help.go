package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/smoynes/ozzie/internal/cli"
	"github.com/smoynes/ozzie/internal/log"
)

// Help returns the help command for a command list.
func Help(commands []cli.Command) cli.Command {
	return &help{commands: commands}
}

type help struct {
	commands []cli.Command
}

func (help) Description() string {
	return "display help for commands"
}

func (h help) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `help [command]

Prints documentation for a command.`)

	return err
}

func (help) FlagSet() *cli.FlagSet {
	return flag.NewFlagSet("help", flag.ContinueOnError)
}

func (h help) Run(_ context.Context, args []string, out io.Writer, _ *log.Logger) int {
	if len(args) >= 1 {
		for _, cmd := range h.commands {
			if cmd.FlagSet().Name() != args[0] {
				continue
			}

			if err := cmd.Usage(out); err != nil {
				return 1
			}

			fs := cmd.FlagSet()
			fs.SetOutput(out)
			fs.PrintDefaults()

			return 0
		}

		fmt.Fprintln(out, "unknown command:", args[0])

		return 1
	}

	fmt.Fprintln(out, "ozzie is a simulated microcomputer and operating system.")
	fmt.Fprintln(out, "\nCommands:")

	for _, cmd := range h.commands {
		fmt.Fprintf(out, "  %-10s %s\n", cmd.FlagSet().Name(), cmd.Description())
	}

	fmt.Fprintln(out, "\nUse 'help <command>' for details.")

	return 0
}
