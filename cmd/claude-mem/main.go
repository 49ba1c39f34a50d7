// Package main provides the entry point for the claude-mem CLI.
package main

import (
	"fmt"
	"os"

	"github.com/iammorganparry/claude-mem/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
