// cmd/ozzie is the conventional entry point for the ozzie simulator. It offers the same
// subcommands as the repository root command, without the root command's global
// --log, --loglevel and --help flags.
package main

import (
	"context"
	"os"

	"github.com/smoynes/ozzie/internal/cli"
	"github.com/smoynes/ozzie/internal/cli/cmd"
)

var commands = []cli.Command{
	cmd.Runner(),
	cmd.Demo(),
	cmd.Console(),
}

func main() {
	result :=
		cli.New(context.Background()).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
