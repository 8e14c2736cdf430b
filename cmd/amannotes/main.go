// Package main provides the entry point for the amannotes CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/amannotes/cmd/amannotes/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
