// Package main is the entry point for the schc compression agent.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/schc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
