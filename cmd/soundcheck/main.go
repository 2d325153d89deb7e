package main

import (
	"fmt"
	"os"
)

// Overridden at build time: -ldflags "-X main.version=v1.2.3"
var version = "dev"

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
