// Package main is the entry point for the scavenger daemon.
package main

import (
	"fmt"
	"os"

	"github.com/mineworks/scavengerd/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
