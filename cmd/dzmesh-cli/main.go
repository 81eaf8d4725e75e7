// Package main provides the entry point for dzmesh-cli.
//
// dzmesh-cli inspects running world and zone processes through their admin
// API and manages the shared expedition database.
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/dzmesh-go/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
