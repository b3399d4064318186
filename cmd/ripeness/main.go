// Package main provides the ripeness CLI entrypoint.
//
// Usage:
//
//	ripeness serve [--config file] [--port 8000]
//	ripeness predict [--heatmap-dir dir] [--no-gate] <file|dir|url>...
//	ripeness version
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	ripeness "github.com/menta2k/fruit-ripeness"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "ripeness",
		Usage:          "Guava ripeness inference service",
		Version:        fmt.Sprintf("%s (commit: %s)", ripeness.Version, commit),
		Flags:          globalFlags(),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			serveCommand(),
			predictCommand(),
			versionCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
