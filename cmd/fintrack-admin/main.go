package main

import (
	"os"

	"fintrack/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.BootstrapLogger()

	if err := newRootCommand(os.Stdin, logger).Execute(); err != nil {
		os.Exit(1)
	}
}
