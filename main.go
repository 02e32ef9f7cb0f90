// ozzie is the command-line interface to a simulated microcomputer and its operating
// system.
package main

import (
	"context"
	"os"

	getopt "github.com/pborman/getopt/v2"

	"github.com/smoynes/ozzie/internal/cli"
	"github.com/smoynes/ozzie/internal/cli/cmd"
	"github.com/smoynes/ozzie/internal/log"
)

var commands = []cli.Command{
	cmd.Runner(),
	cmd.Demo(),
	cmd.Console(),
}

func main() {
	optLogFile := getopt.StringLong("log", 'l', "", "Log file (default stderr)")
	optLogLevel := getopt.StringLong("loglevel", 'v', "", "Log level: debug, info, warn, error")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.SetParameters("<command> [arguments]")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	logStream := os.Stderr

	if *optLogFile != "" {
		file, err := os.Create(*optLogFile)
		if err != nil {
			println("cannot create log file:", err.Error())
			os.Exit(1)
		}

		logStream = file
	}

	if *optLogLevel != "" {
		var level log.Level

		if err := level.UnmarshalText([]byte(*optLogLevel)); err != nil {
			println("bad log level:", *optLogLevel)
			os.Exit(1)
		}

		log.LogLevel.Set(level)
	}

	result :=
		cli.New(context.Background()).
			WithLogger(logStream).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(getopt.Args())

	os.Exit(result)
}
