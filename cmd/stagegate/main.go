// cmd/stagegate/main.go
//
// Entry point for the stagegate CLI. It inspects the venture stage contracts,
// validates stage data against them and replays recorded ventures through the
// pipeline.

package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errContractViolation) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
