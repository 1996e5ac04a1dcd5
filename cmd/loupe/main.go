// Package main is the entry point for the loupe server and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/loupe-data/loupe/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
