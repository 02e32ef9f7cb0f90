// Package tool defines very naive scripts for development tasks: think of them as
// executable screenplays replacing rote shell commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	path "path/filepath"
	"time"
)

var usage = `go run ./internal/tool <COMMAND>

Commands:

- deps   installs development dependencies: stringer, golint
- lint   check style with go vet and golint
`

func main() {
	args := os.Args

	if err := projectWorkingDirectory(); err != nil {
		log.Fatal(err)
	}

	switch {
	case len(args) == 2 && args[1] == "deps":
		if err := installDeps(); err != nil {
			log.Fatal(err)
		}
	case len(args) == 2 && args[1] == "lint":
		if err := lint(); err != nil {
			log.Fatal(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
	}
}

// projectWorkingDirectory finds the project directory, the working directory or its
// ancestor with a go.mod file, and changes into it. Refuses a root directory to
// prevent inadvertent catastrophes.
func projectWorkingDirectory() error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	for {
		file := path.Join(dir, "go.mod")

		if _, err := os.Stat(file); err == nil {
			break
		} else if os.IsNotExist(err) {
			dir = path.Dir(dir)
		} else {
			return err
		}
	}

	if dir == path.Dir(dir) {
		return errors.New("project directory is root directory")
	}

	return os.Chdir(dir)
}

func installDeps() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	goCmd, err := exec.LookPath("go")
	if err != nil {
		return fmt.Errorf("go (required): %w", err)
	}

	println("go (required):", goCmd)

	for _, tool := range []string{
		"golang.org/x/tools/cmd/stringer@latest",
		"golang.org/x/lint/golint@latest",
	} {
		println("go install -v " + tool)

		if err := run(ctx, goCmd, "install", "-v", tool); err != nil {
			return fmt.Errorf("go install: %w", err)
		}
	}

	return nil
}

func lint() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, "go", "vet", "./..."); err != nil {
		return err
	}

	if golint, err := exec.LookPath("golint"); err == nil {
		return run(ctx, golint, "./...")
	}

	println("golint not installed; run 'go run ./internal/tool deps'")

	return nil
}

func run(ctx context.Context, cmd string, args ...string) error {
	c := exec.CommandContext(ctx, cmd, args...)
	out, err := c.CombinedOutput()

	println(string(out))

	return err
}
